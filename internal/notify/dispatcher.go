// Package notify delivers soft-launch lifecycle events to people.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fieldline/internal/domain"
)

// Message is one rendered lifecycle event.
type Message struct {
	Event domain.LifecycleEvent
	Title string
	Body  string
}

// Channel delivers messages to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DispatcherOptions configures the Dispatcher behavior.
type DispatcherOptions struct {
	RateLimitPerMinute int // per project, error events only; 0 disables
	Channels           []Channel
}

// projectLimiter tracks rate limits per project.
type projectLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newProjectLimiter(perMinute int) *projectLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &projectLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    max(1, perMinute/10),
	}
}

func (p *projectLimiter) Allow(projectID string) bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.limiters[projectID]
	if !ok {
		limiter = rate.NewLimiter(p.rate, p.burst)
		p.limiters[projectID] = limiter
	}
	return limiter.Allow()
}

// Dispatcher renders lifecycle events and fans them out to channels.
// Delivery failures are logged and counted, never returned.
type Dispatcher struct {
	logger   *zap.Logger
	channels []Channel
	limiter  *projectLimiter
}

func NewDispatcher(logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:   logger.Named("notify"),
		channels: opts.Channels,
		limiter:  newProjectLimiter(opts.RateLimitPerMinute),
	}
}

// Notify delivers evt to every channel in order. Only error events are rate
// limited; started, paused and promoted always go out.
func (d *Dispatcher) Notify(ctx context.Context, evt domain.LifecycleEvent) {
	if evt.Kind == domain.EventError && !d.limiter.Allow(evt.ProjectID) {
		rateLimitedTotal.Inc()
		d.logger.Debug("project rate limited", zap.String("project_id", evt.ProjectID), zap.String("kind", string(evt.Kind)))
		return
	}
	title, body := Render(evt)
	msg := Message{Event: evt, Title: title, Body: body}
	for _, ch := range d.channels {
		start := time.Now()
		err := d.send(ctx, ch, msg)
		sendDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			sendTotal.WithLabelValues(ch.Name(), "error").Inc()
			d.logger.Warn("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("project_id", evt.ProjectID),
				zap.String("kind", string(evt.Kind)),
				zap.Error(err),
			)
			continue
		}
		sendTotal.WithLabelValues(ch.Name(), "success").Inc()
	}
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return ch.Send(ctx, msg)
}
