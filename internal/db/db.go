// Package db locates and opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir           = ".fieldline"
	fileName           = "fieldline.db"
	DefaultBusyTimeout = 5 * time.Second
)

// Config selects the workspace whose database is opened.
type Config struct {
	Workspace   string
	BusyTimeout time.Duration
}

func (c Config) dir() string {
	if c.Workspace == "" {
		return stateDir
	}
	return filepath.Join(c.Workspace, stateDir)
}

// Path returns the database file of the configured workspace.
func (c Config) Path() string { return filepath.Join(c.dir(), fileName) }

func (c Config) dsn() string {
	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + c.Path() + "?" + q.Encode()
}

// EnsureWorkspace creates the workspace state directory and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Config{Workspace: workspace}.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace state dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database, creating its directory when needed.
// Foreign keys are enforced and writers wait up to BusyTimeout for a lock.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", cfg.dsn())
}
