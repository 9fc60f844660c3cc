// Package supervisor runs the periodic loop that pauses soft-launched
// projects for review once their test limit is reached.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fieldline/internal/domain"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultConcurrency = 4
)

// Controller is the part of softlaunch.Controller the supervisor drives.
type Controller interface {
	MonitorProgress(ctx context.Context, projectID string) (bool, error)
	FetchProgress(ctx context.Context, projectID string) (domain.Progress, error)
	PauseForReview(ctx context.Context, projectID string) error
}

// Lister lists projects on the remote service.
type Lister interface {
	ListProjects(ctx context.Context, statuses ...domain.ProjectState) ([]domain.Project, error)
}

// reconcileStates are the states fetched when a Lister is configured.
var reconcileStates = []domain.ProjectState{
	domain.StateLive,
	domain.StateSoftLaunch,
	domain.StateSoftPaused,
	domain.StateAwaitingReview,
}

type Options struct {
	Interval    time.Duration
	Concurrency int
	Lister      Lister // optional
	Logger      *zap.Logger
	Now         func() time.Time
}

type Supervisor struct {
	ctl         Controller
	view        *View
	lister      Lister
	log         *zap.Logger
	interval    time.Duration
	concurrency int
	now         func() time.Time

	guard    *pauseGuard
	sweeping sync.Mutex
}

func New(ctl Controller, view *View, opts Options) *Supervisor {
	if view == nil {
		view = NewView()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Supervisor{
		ctl:         ctl,
		view:        view,
		lister:      opts.Lister,
		log:         opts.Logger.Named("supervisor"),
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		guard:       newPauseGuard(),
	}
}

func (s *Supervisor) View() *View { return s.view }

// SweepReport summarizes one sweep.
type SweepReport struct {
	Skipped   bool // another sweep was in flight
	Refreshed []string
	Monitored []string
	Paused    []string
	Errors    map[string]error // keyed by project ID; "" for the listing
}

type reportBuilder struct {
	mu sync.Mutex
	r  SweepReport
}

func (b *reportBuilder) add(list *[]string, id string) {
	b.mu.Lock()
	*list = append(*list, id)
	b.mu.Unlock()
}

func (b *reportBuilder) fail(id string, err error) {
	b.mu.Lock()
	if b.r.Errors == nil {
		b.r.Errors = make(map[string]error)
	}
	b.r.Errors[id] = err
	b.mu.Unlock()
}

// Sweep runs one pass over the view. Concurrent calls return a skipped
// report instead of overlapping. Per-project failures are logged and
// reported, never returned.
func (s *Supervisor) Sweep(ctx context.Context) SweepReport {
	if !s.sweeping.TryLock() {
		sweepsTotal.WithLabelValues("skipped").Inc()
		return SweepReport{Skipped: true}
	}
	defer s.sweeping.Unlock()

	start := time.Now()
	b := &reportBuilder{}

	if s.lister != nil {
		projects, err := s.lister.ListProjects(ctx, reconcileStates...)
		if ctx.Err() != nil {
			return s.finish(b, "cancelled", start)
		}
		if err != nil {
			s.projectFailed(b, "list", "", err)
		} else {
			s.view.Reconcile(projects)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range s.view.Snapshot() {
		switch {
		case p.Status == domain.StateLive:
			g.Go(func() error {
				s.refresh(gctx, b, p.ID)
				return nil
			})
		case p.Status == domain.StateSoftLaunch && p.SoftLaunch != nil && p.SoftLaunch.AutoPause:
			g.Go(func() error {
				s.supervise(gctx, b, p.ID)
				return nil
			})
		}
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return s.finish(b, "cancelled", start)
	}
	s.pruneGuard()
	return s.finish(b, "completed", start)
}

// pruneGuard forgets pause claims of projects that left soft launch and
// review or dropped out of the view.
func (s *Supervisor) pruneGuard() {
	s.guard.prune(func(id string) bool {
		p, ok := s.view.Get(id)
		return ok && (p.Status == domain.StateSoftLaunch || p.Status.InReview())
	})
}

func (s *Supervisor) finish(b *reportBuilder, outcome string, start time.Time) SweepReport {
	sweepsTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		sweepDuration.Observe(time.Since(start).Seconds())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.r
}

func (s *Supervisor) projectFailed(b *reportBuilder, step, projectID string, err error) {
	sweepErrorsTotal.WithLabelValues(step).Inc()
	s.log.Warn("sweep step failed",
		zap.String("context", step),
		zap.String("project_id", projectID),
		zap.Error(err),
	)
	b.fail(projectID, err)
}

func (s *Supervisor) refresh(ctx context.Context, b *reportBuilder, id string) {
	pr, err := s.ctl.FetchProgress(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.projectFailed(b, "refresh", id, err)
		return
	}
	s.view.Merge(pr)
	b.add(&b.r.Refreshed, id)
}

// supervise runs monitor, local check and pause strictly in order for one
// project.
func (s *Supervisor) supervise(ctx context.Context, b *reportBuilder, id string) {
	reached, err := s.ctl.MonitorProgress(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.projectFailed(b, "monitor", id, err)
		return
	}
	b.add(&b.r.Monitored, id)
	if !reached {
		return
	}

	pr, err := s.ctl.FetchProgress(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.projectFailed(b, "refresh", id, err)
		return
	}
	p := s.view.Merge(pr)
	if p.Status != domain.StateSoftLaunch || p.SoftLaunch == nil || !p.SoftLaunch.AutoPause {
		return
	}
	if !p.SoftLaunch.LimitReached(p.Fielded, p.Goal) {
		s.log.Debug("remote limit signal not confirmed locally",
			zap.String("project_id", id),
			zap.Int("fielded", p.Fielded),
			zap.Int("goal", p.Goal),
		)
		return
	}

	key := cycleKey(id, p.SoftLaunch)
	if !s.guard.claim(key) {
		return
	}
	err = s.ctl.PauseForReview(ctx, id)
	if err != nil {
		s.guard.release(key)
		if ctx.Err() == nil {
			s.projectFailed(b, "pause", id, err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.view.MarkPaused(id, s.now())
	pausesTotal.Inc()
	b.add(&b.r.Paused, id)
	s.log.Info("project paused for review", zap.String("project_id", id))
}

func (s *Supervisor) shouldPoll() bool {
	return s.lister != nil || s.view.HasActive()
}

// Handle controls a running supervisor loop.
type Handle struct {
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

// Stop cancels the loop. Results of calls still in flight are discarded.
func (h *Handle) Stop() { h.cancel() }

// Wake requests an immediate sweep. A wake that arrives while a sweep is
// running is queued as a single follow-up sweep.
func (h *Handle) Wake() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Start runs an initial sweep and then sweeps on every interval tick while
// any project is live or soft-launched, and on every Wake.
func (s *Supervisor) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.loop(ctx, h)
	return h
}

func (s *Supervisor) loop(ctx context.Context, h *Handle) {
	defer close(h.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("supervisor started", zap.Duration("interval", s.interval))
	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor stopped")
			return
		case <-ticker.C:
			if s.shouldPoll() {
				s.run(ctx)
			}
		case <-h.wake:
			s.run(ctx)
		}
	}
}

func (s *Supervisor) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report := s.Sweep(ctx)
	if len(report.Errors) > 0 || len(report.Paused) > 0 {
		s.log.Info("sweep finished",
			zap.Int("refreshed", len(report.Refreshed)),
			zap.Int("monitored", len(report.Monitored)),
			zap.Int("paused", len(report.Paused)),
			zap.Int("errors", len(report.Errors)),
		)
	}
}
