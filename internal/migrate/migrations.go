// Package migrate applies the embedded, numbered SQL schema files.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed sql/*.sql
var embedded embed.FS

// Migration is one NNNN_name.sql file.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Load reads every *.sql file at the root of fsys, ordered by version.
func Load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]string, len(names))
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		var v int
		if _, err := fmt.Sscanf(path.Base(name), "%d_", &v); err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid migration filename %s", name)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", v, prev, name)
		}
		seen[v] = name
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: v, Name: name, UpSQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func bundled() ([]Migration, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Latest returns the highest embedded schema version.
func Latest() (int, error) {
	ms, err := bundled()
	if err != nil || len(ms) == 0 {
		return 0, err
	}
	return ms[len(ms)-1].Version, nil
}

// Version returns the schema version recorded in db, or 0 for a fresh file.
func Version(db *sql.DB) (int, error) {
	var exists int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	var v int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// Migrate brings db up to the latest embedded schema.
func Migrate(db *sql.DB) error {
	ms, err := bundled()
	if err != nil {
		return err
	}
	_, err = Apply(db, ms)
	return err
}

// Apply runs the migrations newer than the recorded version, each in its own
// transaction, and returns how many ran.
func Apply(db *sql.DB, migrations []Migration) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	current, err := Version(db)
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyOne(db, m, current); err != nil {
			return applied, err
		}
		current = m.Version
		applied++
	}
	return applied, nil
}

func applyOne(db *sql.DB, m Migration, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.UpSQL); err != nil {
		return fmt.Errorf("migration %s: %w", m.Name, err)
	}
	stmt := `UPDATE schema_version SET version=?`
	if from == 0 {
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			return err
		}
		stmt = `INSERT INTO schema_version(version) VALUES (?)`
	}
	if _, err := tx.Exec(stmt, m.Version); err != nil {
		return fmt.Errorf("record version %d: %w", m.Version, err)
	}
	return tx.Commit()
}
