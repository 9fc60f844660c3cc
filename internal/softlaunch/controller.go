package softlaunch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fieldline/internal/domain"
)

// Service is the remote project service that owns soft-launch state.
type Service interface {
	StartSoftLaunch(ctx context.Context, projectID string, cfg domain.SoftLaunchConfig) error
	Progress(ctx context.Context, projectID string) (domain.Progress, error)
	Pause(ctx context.Context, projectID string) error
	Results(ctx context.Context, projectID string) (domain.SoftLaunchResult, error)
	Promote(ctx context.Context, projectID string) error
}

// Notifier receives lifecycle events. Implementations must not block for
// long, return errors or panic.
type Notifier interface {
	Notify(ctx context.Context, evt domain.LifecycleEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt domain.LifecycleEvent)

func (f NotifierFunc) Notify(ctx context.Context, evt domain.LifecycleEvent) { f(ctx, evt) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.LifecycleEvent) {}

// Controller drives the soft-launch protocol for individual projects. It
// holds no per-project state and is safe for concurrent use.
type Controller struct {
	service  Service
	notifier Notifier
	log      *zap.Logger
	policy   RetryPolicy
	sleep    Sleeper
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy replaces the retry policy.
func WithPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithSleeper replaces the wait used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a Controller. A nil notifier discards events and a nil logger
// discards diagnostics.
func New(service Service, notifier Notifier, logger *zap.Logger, opts ...Option) *Controller {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		service:  service,
		notifier: notifier,
		log:      logger.Named("softlaunch"),
		policy:   DefaultPolicy(),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSoftLaunch begins a test period for projectID. Starting a project that
// is already soft-launched restarts monitoring with cfg. A zero StartedAt is
// stamped from the controller clock before the request; the service may
// still record its own start time for the cycle.
func (c *Controller) StartSoftLaunch(ctx context.Context, projectID string, cfg domain.SoftLaunchConfig) error {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = c.now()
	}
	err := c.retry(ctx, OpStart, projectID, func(ctx context.Context) error {
		return c.service.StartSoftLaunch(ctx, projectID, cfg)
	})
	if err != nil {
		c.fail(ctx, projectID, err)
		return err
	}
	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventStarted, ProjectID: projectID, Config: &cfg})
	c.log.Info("soft launch started",
		zap.String("project_id", projectID),
		zap.Float64("test_limit", cfg.TestLimit),
		zap.String("test_limit_type", string(cfg.TestLimitType)),
		zap.Bool("auto_pause", cfg.AutoPause),
	)
	return nil
}

// MonitorProgress reads progress and reports whether the active soft launch
// reached its test limit. It never changes state.
func (c *Controller) MonitorProgress(ctx context.Context, projectID string) (bool, error) {
	pr, err := c.fetch(ctx, OpMonitor, projectID)
	if err != nil {
		return false, err
	}
	return pr.LimitReached(), nil
}

// FetchProgress reads progress for projectID.
func (c *Controller) FetchProgress(ctx context.Context, projectID string) (domain.Progress, error) {
	return c.fetch(ctx, OpProgress, projectID)
}

func (c *Controller) fetch(ctx context.Context, op, projectID string) (domain.Progress, error) {
	var pr domain.Progress
	err := c.retry(ctx, op, projectID, func(ctx context.Context) error {
		var err error
		pr, err = c.service.Progress(ctx, projectID)
		return err
	})
	if err != nil {
		c.fail(ctx, projectID, err)
		return domain.Progress{}, err
	}
	return pr, nil
}

// PauseForReview halts fielding for review. Callers deduplicate; every
// successful call emits a paused event.
func (c *Controller) PauseForReview(ctx context.Context, projectID string) error {
	err := c.retry(ctx, OpPause, projectID, func(ctx context.Context) error {
		return c.service.Pause(ctx, projectID)
	})
	if err != nil {
		c.fail(ctx, projectID, err)
		return err
	}
	evt := domain.LifecycleEvent{Kind: domain.EventPaused, ProjectID: projectID}
	if res, err := c.service.Results(ctx, projectID); err == nil {
		evt.Result = &res
	} else {
		c.log.Debug("results unavailable for pause notification", zap.String("project_id", projectID), zap.Error(err))
	}
	c.emit(ctx, evt)
	c.log.Info("soft launch paused for review", zap.String("project_id", projectID))
	return nil
}

// GetTestResults fetches the review snapshot of the current soft launch.
func (c *Controller) GetTestResults(ctx context.Context, projectID string) (domain.SoftLaunchResult, error) {
	var res domain.SoftLaunchResult
	err := c.retry(ctx, OpResults, projectID, func(ctx context.Context) error {
		var err error
		res, err = c.service.Results(ctx, projectID)
		return err
	})
	if err != nil {
		c.fail(ctx, projectID, err)
		return domain.SoftLaunchResult{}, err
	}
	return res, nil
}

// PromoteToFullLaunch ends review and opens unrestricted fielding.
func (c *Controller) PromoteToFullLaunch(ctx context.Context, projectID string) error {
	err := c.retry(ctx, OpPromote, projectID, func(ctx context.Context) error {
		return c.service.Promote(ctx, projectID)
	})
	if err != nil {
		c.fail(ctx, projectID, err)
		return err
	}
	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventPromoted, ProjectID: projectID})
	c.log.Info("soft launch promoted", zap.String("project_id", projectID))
	return nil
}

func (c *Controller) fail(ctx context.Context, projectID string, err error) {
	if errors.Is(err, context.Canceled) {
		c.log.Debug("soft-launch operation cancelled", zap.String("project_id", projectID), zap.Error(err))
		return
	}
	c.log.Error("soft-launch operation exhausted retries", zap.String("project_id", projectID), zap.Error(err))
	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventError, ProjectID: projectID, Message: err.Error()})
}

// emit drops events once ctx is done so that torn-down callers stay silent.
func (c *Controller) emit(ctx context.Context, evt domain.LifecycleEvent) {
	if ctx.Err() != nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = c.now()
	}
	c.notifier.Notify(ctx, evt)
}
