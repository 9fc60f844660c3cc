package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
	"fieldline/internal/server"
	"fieldline/internal/softlaunch"
	fieldlinesdk "fieldline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline runs survey projects through a soft launch before full fielding.
Core concepts:
- Project: a survey with a completes goal; statuses go draft -> soft_launch -> soft_paused/awaiting_review -> live.
- Soft launch: a restricted test period bounded by a test limit (fixed completes or percentage of goal).
- Auto-pause: the supervisor pauses a soft launch for review once its test limit is reached.
- Review: results (completes, quality, response time, issues) decide whether to promote to full launch.
- Workspace: the .fieldline directory holding the database and the notification inbox; fieldline.yml configures it.
- Event log: every state change, view with 'fl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.Bool("remote", false, "use the HTTP service from fieldline.yml instead of the workspace database")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "remote", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(fieldCmd())
	rootCmd.AddCommand(softLaunchCmd())
	rootCmd.AddCommand(superviseCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectStatusCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name string
	var goal int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				p, err := rt.backend.CreateProject(ctx, id, name, goal)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().IntVar(&goal, "goal", 0, "completes goal")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func projectListCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStates(statuses)
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				items, err := rt.backend.ListProjects(ctx, filter...)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its current soft launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				p, err := rt.backend.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set project status (draft projects can go live directly)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.ProjectState(args[1])
			if !status.Valid() {
				return fmt.Errorf("invalid status %s", args[1])
			}
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				p, err := rt.backend.SetStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
}

func fieldCmd() *cobra.Command {
	var count int
	var duration, quality float64
	var flagged bool
	cmd := &cobra.Command{
		Use:   "field <id>",
		Short: "Record completed responses for a fielding project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			items := make([]fieldlinesdk.Response, count)
			for i := range items {
				items[i] = fieldlinesdk.Response{DurationSeconds: duration, QualityScore: quality, Flagged: flagged}
			}
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				pr, err := rt.backend.RecordResponses(ctx, args[0], items)
				if err != nil {
					return err
				}
				return printProgress(pr)
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of responses")
	cmd.Flags().Float64Var(&duration, "duration", 300, "response duration in seconds")
	cmd.Flags().Float64Var(&quality, "quality", 80, "quality score (0-100)")
	cmd.Flags().BoolVar(&flagged, "flagged", false, "flag the responses for review")
	return cmd
}

func softLaunchCmd() *cobra.Command {
	sl := &cobra.Command{
		Use:     "softlaunch",
		Aliases: []string{"sl"},
		Short:   "Run the soft-launch lifecycle",
	}
	sl.AddCommand(softLaunchStartCmd())
	sl.AddCommand(softLaunchMonitorCmd())
	sl.AddCommand(softLaunchPauseCmd())
	sl.AddCommand(softLaunchReviewCmd())
	sl.AddCommand(softLaunchResultsCmd())
	sl.AddCommand(softLaunchPromoteCmd())
	return sl
}

func softLaunchStartCmd() *cobra.Command {
	var limit float64
	var limitType string
	var autoPause bool
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start (or restart) a soft launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := domain.SoftLaunchConfig{
				TestLimit:     limit,
				TestLimitType: domain.LimitType(limitType),
				AutoPause:     autoPause,
			}
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				if err := rt.controller.StartSoftLaunch(ctx, args[0], cfg); err != nil {
					return err
				}
				pr, err := rt.backend.Progress(ctx, args[0])
				if err != nil {
					return err
				}
				return printProgress(pr)
			})
		},
	}
	cmd.Flags().Float64Var(&limit, "limit", 0, "test limit")
	cmd.Flags().StringVar(&limitType, "type", string(domain.LimitFixed), "limit type (fixed, percentage)")
	cmd.Flags().BoolVar(&autoPause, "auto-pause", true, "pause automatically when the limit is reached")
	_ = cmd.MarkFlagRequired("limit")
	return cmd
}

func softLaunchMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <id>",
		Short: "Show progress and whether the test limit is reached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				pr, err := rt.controller.FetchProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printProgress(pr)
			})
		},
	}
}

func softLaunchPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a soft launch for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				if err := rt.controller.PauseForReview(ctx, args[0]); err != nil {
					return err
				}
				return showProject(ctx, rt, args[0])
			})
		},
	}
}

func softLaunchReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <id>",
		Short: "Hand a soft launch to a reviewer without auto-pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				p, err := rt.backend.RequestReview(ctx, args[0])
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
}

func softLaunchResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <id>",
		Short: "Show soft-launch results for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				res, err := rt.controller.GetTestResults(ctx, args[0])
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
}

func softLaunchPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <id>",
		Short: "Promote a reviewed project to full launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, rt *session) error {
				if err := rt.controller.PromoteToFullLaunch(ctx, args[0]); err != nil {
					return err
				}
				return showProject(ctx, rt, args[0])
			})
		},
	}
}

func notificationsCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "notifications",
		Short: "In-app notification inbox",
	}
	n.AddCommand(notificationsListCmd())
	n.AddCommand(notificationsReadCmd())
	return n
}

func notificationsListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo().ListNotifications(ctx, unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Created", "Project", "Kind", "Title", "Body", "Read"})
				for _, n := range items {
					read := ""
					if n.ReadAt != nil {
						read = *n.ReadAt
					}
					tw.AppendRow(table.Row{n.CreatedAt, n.ProjectID, n.Kind, n.Title, n.Body, read})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&limit, "n", 50, "number of notifications")
	return cmd
}

func notificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Repo().MarkNotificationsRead(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("marked %d notification(s) read\n", n)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every project change recorded by the workspace: creation, soft-launch starts, pauses, promotions and recorded responses.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Repo().LatestEvents(ctx, n, projectID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Project", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.ActorID, e.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP service",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyRevokeCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				plain, key := repo.NewAPIKey(viper.GetString("actor-id"), name)
				if err := ws.Repo().InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": plain})
				}
				fmt.Printf("API key %s for %s (shown once):\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Repo().ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo().RevokeAPIKey(ctx, args[0])
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with FIELDLINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			token, err := server.IssueToken(os.Getenv("FIELDLINE_JWT_SECRET"), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage fieldline.yml",
		Long:  "fieldline.yml holds the service endpoint, supervisor interval, retry policy, review criteria and notification channels.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var baseURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8080/v0", "project service base URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the project service HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.NewLogger(viper.GetString("log-level"))
			if err != nil {
				return err
			}
			defer logger.Sync()
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("FIELDLINE_JWT_SECRET"), Logger: logger}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("FIELDLINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

// session is the wiring shared by commands that drive the lifecycle.
type session struct {
	ws         *app.Workspace
	logger     *zap.Logger
	backend    backend
	notifier   *notify.Dispatcher
	controller *softlaunch.Controller
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withBackend(ctx context.Context, fn func(context.Context, *session) error) error {
	logger, err := app.NewLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		rt := &session{ws: ws, logger: logger}
		if viper.GetBool("remote") {
			rt.backend = app.Remote(ws.Config)
		} else {
			rt.backend = localBackend{engine.Local{Engine: ws.Engine, ActorID: viper.GetString("actor-id")}}
		}
		rt.notifier, err = app.Notifier(ws.Config, ws.Repo(), logger)
		if err != nil {
			return err
		}
		rt.controller = softlaunch.New(rt.backend, rt.notifier, logger, softlaunch.WithPolicy(app.RetryPolicy(ws.Config)))
		return fn(ctx, rt)
	})
}

func parseStates(in []string) ([]domain.ProjectState, error) {
	var out []domain.ProjectState
	for _, s := range in {
		st := domain.ProjectState(strings.TrimSpace(s))
		if !st.Valid() {
			return nil, fmt.Errorf("invalid status %s", s)
		}
		out = append(out, st)
	}
	return out, nil
}

func showProject(ctx context.Context, rt *session, id string) error {
	p, err := rt.backend.GetProject(ctx, id)
	if err != nil {
		return err
	}
	return printProjects([]domain.Project{p})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func describeLimit(cfg *domain.SoftLaunchConfig, goal int) string {
	if cfg == nil {
		return "-"
	}
	limit := fmt.Sprintf("%g", cfg.TestLimit)
	if cfg.TestLimitType == domain.LimitPercentage {
		limit += "%"
	}
	limit += fmt.Sprintf(" (target %d)", cfg.Target(goal))
	if cfg.AutoPause {
		limit += " auto-pause"
	}
	return limit
}

func printProjects(items []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Status", "Fielded", "Goal", "Soft launch"})
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Fielded, p.Goal, describeLimit(p.SoftLaunch, p.Goal)})
	}
	fmt.Println(tw.Render())
	return nil
}

func printProgress(pr domain.Progress) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"progress": pr, "limit_reached": pr.LimitReached()})
	}
	tw := newTable(table.Row{"Project", "Status", "Fielded", "Goal", "Soft launch", "Limit reached"})
	tw.AppendRow(table.Row{pr.ProjectID, pr.Status, pr.Fielded, pr.Goal, describeLimit(pr.SoftLaunch, pr.Goal), pr.LimitReached()})
	fmt.Println(tw.Render())
	return nil
}

func printResult(res domain.SoftLaunchResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	tw := newTable(table.Row{"Project", "Completes", "Target", "Quality", "Avg response", "Passed"})
	tw.AppendRow(table.Row{res.ProjectID, res.Completes, res.TestLimit, notify.FormatQuality(res.QualityScore), res.AvgResponseTime.Round(time.Second), res.Passed})
	fmt.Println(tw.Render())
	for _, issue := range res.Issues {
		fmt.Println("-", issue)
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
