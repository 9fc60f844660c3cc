package migrate_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/db"
	"fieldline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := migrate.Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, migrate.Migrate(conn))
	require.NoError(t, migrate.Migrate(conn))

	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, 3, latest)
	v, err = migrate.Version(conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	for _, table := range []string{"projects", "soft_launches", "responses", "events", "api_keys", "notifications"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
	_, err = conn.Exec(`SELECT last_used_at FROM api_keys`)
	require.NoError(t, err)
}

func TestLoadOrdersAndRejectsDuplicates(t *testing.T) {
	ms, err := migrate.Load(fstest.MapFS{
		"0002_b.sql": {Data: []byte("CREATE TABLE b(x);")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a(x);")},
		"README.md":  {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "0002_b.sql", ms[1].Name)

	_, err = migrate.Load(fstest.MapFS{
		"0001_a.sql":     {Data: []byte("")},
		"0001_again.sql": {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")

	_, err = migrate.Load(fstest.MapFS{"init.sql": {Data: []byte("")}})
	assert.Error(t, err)
}

func TestApplyRunsOnlyNewerMigrations(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	first := []migrate.Migration{{Version: 1, Name: "0001_a.sql", UpSQL: "CREATE TABLE a(x INTEGER);"}}
	n, err := migrate.Apply(conn, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	both := append(first, migrate.Migration{Version: 2, Name: "0002_b.sql", UpSQL: "CREATE TABLE b(x INTEGER);"})
	n, err = migrate.Apply(conn, both)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v, err := migrate.Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	broken := append(both, migrate.Migration{Version: 3, Name: "0003_bad.sql", UpSQL: "NOT SQL"})
	n, err = migrate.Apply(conn, broken)
	assert.ErrorContains(t, err, "0003_bad.sql")
	assert.Zero(t, n)
	v, err = migrate.Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
