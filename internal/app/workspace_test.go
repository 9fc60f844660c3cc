package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/softlaunch"
)

func TestOpenUsesDefaultsWithoutConfigFile(t *testing.T) {
	ws, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, 10*time.Second, ws.Config.Interval())
	p, err := ws.Engine.CreateProject(context.Background(), engine.CreateProjectOptions{ID: "p1", Goal: 10, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, p.Status)
}

func TestOpenReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	yml := "supervisor:\n  interval_seconds: 3\nretry:\n  max_attempts: 5\n  base_delay_ms:\n    pause: 40\n"
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))

	ws, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, 3*time.Second, ws.Config.Interval())

	p := RetryPolicy(ws.Config)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 40*time.Millisecond, p.BaseDelays[softlaunch.OpPause])
	assert.Equal(t, 80*time.Millisecond, p.Backoff(softlaunch.OpPause, 2))
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy(nil)
	assert.Equal(t, softlaunch.DefaultPolicy(), p)
}

func TestNotifierRejectsBadWebhook(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Webhooks = []config.WebhookConfig{{URL: "not a url"}}
	_, err := Notifier(cfg, nil, nil)
	assert.Error(t, err)
}

func TestRemoteClientFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Service.APIKey = "fl_key"
	c := Remote(cfg)
	assert.Equal(t, "fl_key", c.APIKey)
	assert.Equal(t, cfg.Service.BaseURL, c.BaseURL)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger("debug")
	require.NoError(t, err)
	_, err = NewLogger("loud")
	assert.Error(t, err)
}
