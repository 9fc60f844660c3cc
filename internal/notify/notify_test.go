package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

type captureChannel struct {
	name string
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

type panicChannel struct{}

func (panicChannel) Name() string { return "panicky" }

func (panicChannel) Send(context.Context, Message) error {
	panic("boom")
}

func pausedEvent() domain.LifecycleEvent {
	return domain.LifecycleEvent{
		Kind:      domain.EventPaused,
		ProjectID: "p1",
		At:        time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Result: &domain.SoftLaunchResult{
			ProjectID:       "p1",
			Completes:       10,
			TestLimit:       10,
			QualityScore:    82,
			AvgResponseTime: 4 * time.Minute,
			Issues:          []string{"2 responses flagged for review (20%)"},
		},
	}
}

func TestFormatQuality(t *testing.T) {
	assert.Equal(t, "8.2/10", FormatQuality(82))
	assert.Equal(t, "10.0/10", FormatQuality(100))
	assert.Equal(t, "0.0/10", FormatQuality(-3))
	assert.Equal(t, "10.0/10", FormatQuality(140))
}

func TestRender(t *testing.T) {
	title, body := Render(pausedEvent())
	assert.Equal(t, "Soft launch paused for review", title)
	assert.Contains(t, body, "10 of 10 completes")
	assert.Contains(t, body, "quality 8.2/10")
	assert.Contains(t, body, "4m0s")
	assert.Contains(t, body, "1 issue(s)")

	title, body = Render(domain.LifecycleEvent{
		Kind:      domain.EventStarted,
		ProjectID: "p1",
		Config:    &domain.SoftLaunchConfig{TestLimit: 25, TestLimitType: domain.LimitPercentage, AutoPause: true},
	})
	assert.Equal(t, "Soft launch started", title)
	assert.Contains(t, body, "25% of goal")
	assert.Contains(t, body, "pauses automatically")

	_, body = Render(domain.LifecycleEvent{Kind: domain.EventError, ProjectID: "p1", Message: "soft launch pause failed"})
	assert.Equal(t, "Project p1: soft launch pause failed", body)
}

func TestDispatcherFanOutSurvivesFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := &captureChannel{name: "failing", err: errors.New("down")}
	last := &captureChannel{name: "last"}
	d := NewDispatcher(zap.New(core), DispatcherOptions{Channels: []Channel{failing, panicChannel{}, last}})

	d.Notify(context.Background(), pausedEvent())

	require.Len(t, last.msgs, 1)
	assert.Equal(t, "Soft launch paused for review", last.msgs[0].Title)
	assert.Len(t, failing.msgs, 1)
	warns := logs.FilterMessage("notification delivery failed").All()
	require.Len(t, warns, 2)
	assert.Equal(t, "failing", warns[0].ContextMap()["channel"])
	assert.Equal(t, "panicky", warns[1].ContextMap()["channel"])
	assert.Contains(t, warns[1].ContextMap()["error"], "boom")
}

func TestDispatcherRateLimitsPerProject(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	d := NewDispatcher(nil, DispatcherOptions{RateLimitPerMinute: 1, Channels: []Channel{ch}})

	evt := domain.LifecycleEvent{Kind: domain.EventError, ProjectID: "p1", Message: "service unavailable"}
	d.Notify(context.Background(), evt)
	d.Notify(context.Background(), evt)
	other := evt
	other.ProjectID = "p2"
	d.Notify(context.Background(), other)

	require.Len(t, ch.msgs, 2)
	assert.Equal(t, "p1", ch.msgs[0].Event.ProjectID)
	assert.Equal(t, "p2", ch.msgs[1].Event.ProjectID)
}

func TestErrorBurstDoesNotSuppressTransitions(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	d := NewDispatcher(nil, DispatcherOptions{RateLimitPerMinute: 10, Channels: []Channel{ch}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d.Notify(ctx, domain.LifecycleEvent{Kind: domain.EventError, ProjectID: "p1", Message: "timeout"})
	}
	d.Notify(ctx, pausedEvent())
	d.Notify(ctx, domain.LifecycleEvent{Kind: domain.EventPromoted, ProjectID: "p1"})

	var kinds []domain.EventKind
	for _, m := range ch.msgs {
		kinds = append(kinds, m.Event.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventError, domain.EventPaused, domain.EventPromoted}, kinds)
}

func TestWebhookChannel(t *testing.T) {
	var (
		mu       sync.Mutex
		received []WebhookEnvelope
		headers  []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env WebhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, env)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(WebhookConfig{URL: srv.URL, Events: []string{"paused"}, Secret: "s3cret"})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), Message{Event: domain.LifecycleEvent{Kind: domain.EventStarted, ProjectID: "p1"}}))
	evt := pausedEvent()
	title, body := Render(evt)
	require.NoError(t, ch.Send(context.Background(), Message{Event: evt, Title: title, Body: body}))

	require.Len(t, received, 1)
	assert.Equal(t, "paused", received[0].Type)
	assert.Equal(t, "p1", received[0].Data.ProjectID)
	require.NotNil(t, received[0].Data.Result)
	assert.Equal(t, 10, received[0].Data.Result.Completes)
	assert.Equal(t, "s3cret", headers[0].Get("X-Fieldline-Secret"))
	assert.Equal(t, "paused", headers[0].Get("X-Fieldline-Event"))
}

func TestWebhookChannelReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	err = ch.Send(context.Background(), Message{Event: pausedEvent()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestWebhookURLValidation(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/hook", "http://", "://bad"} {
		_, err := NewWebhookChannel(WebhookConfig{URL: raw})
		assert.Error(t, err, raw)
	}
}

func TestDesktopChannelCommands(t *testing.T) {
	var calls [][]string
	run := func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}
	msg := Message{Title: `Say "hi"`, Body: `path C:\tmp`}

	mac := &DesktopChannel{goos: "darwin", run: run}
	require.NoError(t, mac.Send(context.Background(), msg))
	linux := &DesktopChannel{goos: "linux", run: run}
	require.NoError(t, linux.Send(context.Background(), msg))
	other := &DesktopChannel{goos: "plan9", run: run}
	assert.Error(t, other.Send(context.Background(), msg))

	require.Len(t, calls, 2)
	assert.Equal(t, "osascript", calls[0][0])
	assert.Equal(t, `display notification "path C:\\tmp" with title "Say \"hi\"" sound name "default"`, calls[0][2])
	assert.Equal(t, []string{"notify-send", "--app-name=fieldline", `Say "hi"`, `path C:\tmp`}, calls[1])
}

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a "quoted" word`, `a \"quoted\" word`},
		{`back\slash`, `back\\slash`},
		{`\"`, `\\\"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeAppleScript(tt.in))
	}
}

func TestEmailChannel(t *testing.T) {
	ch, err := NewEmailChannel(EmailConfig{Addr: "smtp.example.com:587", Username: "u", Password: "p", From: "ops@example.com", To: []string{"a@example.com", "b@example.com"}})
	require.NoError(t, err)
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	ch.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	require.NoError(t, ch.Send(context.Background(), Message{Title: "Soft launch\r\nBcc: x", Body: "body text"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [fieldline] Soft launch  Bcc: x\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "body text\r\n"))

	_, err = NewEmailChannel(EmailConfig{Addr: "smtp.example.com:25"})
	assert.Error(t, err)
}

func TestBannerChannelWritesInbox(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}

	d := NewDispatcher(nil, DispatcherOptions{Channels: []Channel{NewBannerChannel(r)}})
	d.Notify(context.Background(), pausedEvent())

	items, err := r.ListNotifications(context.Background(), true, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProjectID)
	assert.Equal(t, domain.EventPaused, items[0].Kind)
	assert.Equal(t, "Soft launch paused for review", items[0].Title)
}

func TestChannelsFromConfig(t *testing.T) {
	off := false
	cfg := config.NotificationConfig{
		Banner:  config.ChannelToggle{Enabled: true},
		Desktop: config.ChannelToggle{Enabled: true},
		Webhooks: []config.WebhookConfig{
			{URL: "https://hooks.example.com/a"},
			{URL: "https://hooks.example.com/b", Enabled: &off},
		},
	}
	chans, err := ChannelsFromConfig(cfg, repo.Repo{})
	require.NoError(t, err)
	var names []string
	for _, c := range chans {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"banner", "desktop", "webhook"}, names)

	cfg.Webhooks = []config.WebhookConfig{{URL: "mailto:x"}}
	_, err = ChannelsFromConfig(cfg, nil)
	assert.ErrorContains(t, err, "webhooks[0]")
}
