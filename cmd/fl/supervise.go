package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fieldline/internal/supervisor"
)

func superviseCmd() *cobra.Command {
	var (
		interval    time.Duration
		concurrency int
		metricsAddr string
		once        bool
	)
	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run the auto-pause supervisor",
		Long: `Sweeps live and soft-launched projects on an interval and pauses soft launches
for review once their test limit is reached. Send SIGUSR1 to trigger an
immediate sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				cfg := rt.ws.Config
				if interval <= 0 {
					interval = cfg.Interval()
				}
				if concurrency <= 0 {
					concurrency = cfg.Supervisor.Concurrency
				}
				sup := supervisor.New(rt.controller, nil, supervisor.Options{
					Interval:    interval,
					Concurrency: concurrency,
					Lister:      rt.backend,
					Logger:      rt.logger,
				})
				if once {
					return printSweep(sup.Sweep(ctx))
				}
				if addr := viper.GetString("metrics-addr"); addr != "" {
					stop := serveMetrics(addr, rt.logger)
					defer stop()
				}
				return runSupervisor(ctx, sup, rt.logger)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "sweep interval (defaults to supervisor.interval_seconds)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "projects processed in parallel per sweep")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	_ = viper.BindPFlag("metrics-addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func runSupervisor(ctx context.Context, sup *supervisor.Supervisor, logger *zap.Logger) error {
	h := sup.Start(ctx)
	wake := make(chan os.Signal, 1)
	if sig := wakeSignal(); sig != nil {
		signal.Notify(wake, sig)
		defer signal.Stop(wake)
	}
	fmt.Fprintln(os.Stderr, "supervisor running; press Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			<-h.Done()
			return nil
		case <-h.Done():
			return nil
		case <-wake:
			logger.Info("wake requested")
			h.Wake()
		}
	}
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printSweep(r supervisor.SweepReport) error {
	if viper.GetBool("json") {
		errs := make(map[string]string, len(r.Errors))
		for id, err := range r.Errors {
			errs[id] = err.Error()
		}
		return printJSON(map[string]any{
			"skipped":   r.Skipped,
			"refreshed": r.Refreshed,
			"monitored": r.Monitored,
			"paused":    r.Paused,
			"errors":    errs,
		})
	}
	fmt.Printf("refreshed %d, monitored %d, paused %d\n", len(r.Refreshed), len(r.Monitored), len(r.Paused))
	for _, id := range r.Paused {
		fmt.Println("paused", id)
	}
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("error %s: %v\n", id, r.Errors[id])
	}
	return nil
}
