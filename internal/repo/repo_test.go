package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func seedProject(t *testing.T, r repo.Repo, id string, status domain.ProjectState) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	require.NoError(t, r.InsertProject(context.Background(), nil, domain.Project{
		ID: id, Status: status, Goal: 100, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestCurrentSoftLaunchPicksLatestCycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedProject(t, r, "p1", domain.StateSoftLaunch)

	_, err := r.CurrentSoftLaunch(ctx, "p1")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(1500 * time.Millisecond)
	require.NoError(t, r.InsertSoftLaunch(ctx, nil, "p1", domain.SoftLaunchConfig{ID: "c1", TestLimit: 5, TestLimitType: domain.LimitFixed, StartedAt: first}))
	require.NoError(t, r.InsertSoftLaunch(ctx, nil, "p1", domain.SoftLaunchConfig{ID: "c2", TestLimit: 50, TestLimitType: domain.LimitPercentage, AutoPause: true, StartedAt: second}))

	cur, err := r.CurrentSoftLaunch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "c2", cur.ID)
	assert.True(t, cur.AutoPause)
	assert.Equal(t, domain.LimitPercentage, cur.TestLimitType)
	assert.True(t, second.Equal(cur.StartedAt))
	assert.Nil(t, cur.PausedAt)
}

func TestMarkSoftLaunchPausedOnce(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedProject(t, r, "p1", domain.StateSoftLaunch)
	require.NoError(t, r.InsertSoftLaunch(ctx, nil, "p1", domain.SoftLaunchConfig{ID: "c1", TestLimit: 5, TestLimitType: domain.LimitFixed, StartedAt: time.Now()}))

	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	ok, err := r.MarkSoftLaunchPaused(ctx, nil, "c1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.MarkSoftLaunchPaused(ctx, nil, "c1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p.SoftLaunch)
	require.NotNil(t, p.SoftLaunch.PausedAt)
	assert.True(t, at.Equal(*p.SoftLaunch.PausedAt))
}

func TestListProjectsFiltersByStatus(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedProject(t, r, "live-1", domain.StateLive)
	seedProject(t, r, "soft-1", domain.StateSoftLaunch)
	seedProject(t, r, "draft-1", domain.StateDraft)

	items, err := r.ListProjects(ctx, repo.ProjectFilter{Statuses: []domain.ProjectState{domain.StateLive, domain.StateSoftLaunch}})
	require.NoError(t, err)
	var ids []string
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"live-1", "soft-1"}, ids)

	all, err := r.ListProjects(ctx, repo.ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAddFieldedAndUpdateStatus(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedProject(t, r, "p1", domain.StateLive)
	require.NoError(t, r.AddFielded(ctx, nil, "p1", 7, "2024-01-02T00:00:00Z"))
	require.NoError(t, r.UpdateProjectStatus(ctx, nil, "p1", domain.StateSoftLaunch, "2024-01-02T00:00:00Z"))
	p, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Fielded)
	assert.Equal(t, domain.StateSoftLaunch, p.Status)

	assert.ErrorIs(t, r.AddFielded(ctx, nil, "missing", 1, "x"), repo.ErrNotFound)
	assert.ErrorIs(t, r.UpdateProjectStatus(ctx, nil, "missing", domain.StateLive, "x"), repo.ErrNotFound)
}

func TestNotificationsInbox(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertNotification(ctx, domain.Notification{ID: "n1", ProjectID: "p1", Kind: domain.EventStarted, Title: "t", Body: "b"}))
	require.NoError(t, r.InsertNotification(ctx, domain.Notification{ID: "n2", ProjectID: "p1", Kind: domain.EventPaused, Title: "t", Body: "b"}))

	unread, err := r.ListNotifications(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := r.MarkNotificationsRead(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	unread, err = r.ListNotifications(ctx, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	plain, key := repo.NewAPIKey("ops", "ci")
	require.NoError(t, r.InsertAPIKey(ctx, nil, key))
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, "ops", got.ActorID)
	assert.Nil(t, got.LastUsedAt)
	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey("nope"))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.TouchAPIKey(ctx, key.ID, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	keys, err := r.ListAPIKeys(ctx, "ops")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)
	assert.Equal(t, "2024-05-01T09:00:00Z", *keys[0].LastUsedAt)

	require.NoError(t, r.RevokeAPIKey(ctx, key.ID))
	assert.ErrorIs(t, r.RevokeAPIKey(ctx, key.ID), repo.ErrNotFound)
	keys, err = r.ListAPIKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
