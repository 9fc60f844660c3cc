// Package app wires workspace storage, config and the soft-launch stack
// together for the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
	"fieldline/internal/softlaunch"
	fieldlinesdk "fieldline/sdk/go"
)

// Workspace is an opened, migrated workspace database with its config.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace directory, migrates the database and loads
// fieldline.yml, falling back to defaults when the file is absent.
func Open(ctx context.Context, dir string) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open workspace db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: engine.New(conn, cfg)}, nil
}

func (w *Workspace) Close() error { return w.DB.Close() }

func (w *Workspace) Repo() repo.Repo { return w.Engine.Repo }

// RetryPolicy builds the controller retry policy from cfg, keeping the
// built-in base delay for operations the file does not set.
func RetryPolicy(cfg *config.Config) softlaunch.RetryPolicy {
	p := softlaunch.DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	for op, d := range p.BaseDelays {
		p.BaseDelays[op] = cfg.BaseDelay(op, d)
	}
	return p
}

// Notifier builds the notification dispatcher for the enabled channels.
func Notifier(cfg *config.Config, inbox notify.Inbox, logger *zap.Logger) (*notify.Dispatcher, error) {
	channels, err := notify.ChannelsFromConfig(cfg.Notifications, inbox)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(logger, notify.DispatcherOptions{
		RateLimitPerMinute: cfg.Notifications.RateLimitPerMinute,
		Channels:           channels,
	}), nil
}

// Remote returns an API client for the configured project service.
func Remote(cfg *config.Config) *fieldlinesdk.Client {
	c := fieldlinesdk.New(cfg.Service.BaseURL)
	c.APIKey = cfg.Service.APIKey
	c.BearerToken = cfg.Service.Token
	c.Timeout = cfg.Timeout()
	return c
}

// NewLogger builds a console logger at level (debug, info, warn, error).
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
