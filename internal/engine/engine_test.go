package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, engine.CreateProjectOptions{ID: "proj-1", Name: "Brand tracker", Goal: 40, ActorID: "tester"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) record(t *testing.T, n int, in engine.ResponseInput) domain.Progress {
	t.Helper()
	items := make([]engine.ResponseInput, n)
	for i := range items {
		items[i] = in
	}
	pr, err := env.Engine.RecordResponses(env.Ctx, "proj-1", items, "tester")
	if err != nil {
		t.Fatalf("record responses: %v", err)
	}
	return pr
}

var good = engine.ResponseInput{DurationSeconds: 240, QualityScore: 85}

func TestSoftLaunchLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 5, TestLimitType: domain.LimitFixed, AutoPause: true}, "tester")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.Status != domain.StateSoftLaunch || p.SoftLaunch == nil || p.SoftLaunch.ID == "" {
		t.Fatalf("unexpected project after start: %+v", p)
	}
	pr := env.record(t, 5, good)
	if pr.Fielded != 5 || !pr.LimitReached() {
		t.Fatalf("expected limit reached at 5, got %+v", pr)
	}
	p, err = env.Engine.Pause(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if p.Status != domain.StateSoftPaused || p.SoftLaunch.PausedAt == nil {
		t.Fatalf("expected paused with stamp, got %+v", p)
	}
	if _, err := env.Engine.RequestReview(env.Ctx, "proj-1", "tester"); err != nil {
		t.Fatalf("review: %v", err)
	}
	p, err = env.Engine.Promote(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if p.Status != domain.StateLive {
		t.Fatalf("expected live, got %s", p.Status)
	}
	pr, err = env.Engine.Progress(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if pr.SoftLaunch != nil {
		t.Fatalf("live project should not report a soft launch")
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	var te engine.TransitionError

	_, err := env.Engine.Pause(env.Ctx, "proj-1", "tester")
	if !errors.As(err, &te) {
		t.Fatalf("pause from draft: expected TransitionError, got %v", err)
	}
	_, err = env.Engine.Promote(env.Ctx, "proj-1", "tester")
	if !errors.As(err, &te) || te.From != domain.StateDraft {
		t.Fatalf("promote from draft: expected TransitionError, got %v", err)
	}
	if _, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 5, TestLimitType: domain.LimitFixed}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Pause(env.Ctx, "proj-1", "tester"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Pause(env.Ctx, "proj-1", "tester")
	if !errors.As(err, &te) {
		t.Fatalf("second pause: expected TransitionError, got %v", err)
	}
	_, err = env.Engine.SetStatus(env.Ctx, "proj-1", domain.StateLive, "tester")
	if !errors.As(err, &te) {
		t.Fatalf("set status from review: expected TransitionError, got %v", err)
	}
	_, err = env.Engine.Pause(env.Ctx, "missing", "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetStatusDraftToLive(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.SetStatus(env.Ctx, "proj-1", domain.StateLive, "tester")
	if err != nil || p.Status != domain.StateLive {
		t.Fatalf("draft -> live: %v", err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, "proj-1", domain.StateSoftPaused, "tester"); err == nil {
		t.Fatalf("expected soft_paused to be rejected by SetStatus")
	}
}

func TestRestartOpensNewCycle(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 5, TestLimitType: domain.LimitFixed, AutoPause: true}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.record(t, 2, good)
	second, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 50, TestLimitType: domain.LimitPercentage, AutoPause: true}, "tester")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.SoftLaunch.ID == second.SoftLaunch.ID {
		t.Fatalf("expected a new cycle id")
	}
	pr, err := env.Engine.Progress(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if pr.SoftLaunch == nil || pr.SoftLaunch.ID != second.SoftLaunch.ID {
		t.Fatalf("progress should carry the new cycle, got %+v", pr.SoftLaunch)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "proj-1", "softlaunch.restarted")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one restarted event, got %d", len(evts))
	}
	res, err := env.Engine.Results(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Completes != 0 {
		t.Fatalf("responses from the previous cycle must not count, got %d", res.Completes)
	}
}

func TestResultsEvaluation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 25, TestLimitType: domain.LimitPercentage}, "tester"); err != nil {
		t.Fatal(err)
	}
	env.record(t, 8, good)
	res, err := env.Engine.Results(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.TestLimit != 10 || res.Completes != 8 || res.Passed {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Issues) != 1 || !strings.Contains(res.Issues[0], "8 of 10") {
		t.Fatalf("expected shortfall issue, got %v", res.Issues)
	}

	env.record(t, 2, good)
	res, err = env.Engine.Results(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed || len(res.Issues) != 0 {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.QualityScore != 85 || res.AvgResponseTime != 4*time.Minute {
		t.Fatalf("unexpected metrics %+v", res)
	}
}

func TestResultsFlagsQualityProblems(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 4, TestLimitType: domain.LimitFixed}, "tester"); err != nil {
		t.Fatal(err)
	}
	env.record(t, 2, engine.ResponseInput{DurationSeconds: 10, QualityScore: 40, Flagged: true})
	env.record(t, 2, engine.ResponseInput{DurationSeconds: 90, QualityScore: 60})
	res, err := env.Engine.Results(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatalf("expected failure")
	}
	joined := strings.Join(res.Issues, "\n")
	for _, want := range []string{"quality score 50.0", "average response time", "under 30s", "2 responses flagged"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing issue %q in %v", want, res.Issues)
		}
	}
}

func TestRecordResponsesRequiresFielding(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RecordResponses(env.Ctx, "proj-1", []engine.ResponseInput{good}, "tester")
	if !errors.Is(err, engine.ErrNotFielding) {
		t.Fatalf("draft project: expected ErrNotFielding, got %v", err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, "proj-1", domain.StateLive, "tester"); err != nil {
		t.Fatal(err)
	}
	pr := env.record(t, 3, good)
	if pr.Fielded != 3 {
		t.Fatalf("expected 3 fielded, got %d", pr.Fielded)
	}
	if _, err := env.Engine.RecordResponses(env.Ctx, "proj-1", []engine.ResponseInput{{QualityScore: 120}}, "tester"); err == nil {
		t.Fatalf("expected quality range error")
	}
}

func TestStartValidatesConfig(t *testing.T) {
	env := newTestEnv(t)
	for _, cfg := range []domain.SoftLaunchConfig{
		{TestLimit: 0, TestLimitType: domain.LimitFixed},
		{TestLimit: 150, TestLimitType: domain.LimitPercentage},
		{TestLimit: 5, TestLimitType: "ratio"},
	} {
		if _, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", cfg, "tester"); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartSoftLaunch(env.Ctx, "proj-1", domain.SoftLaunchConfig{TestLimit: 1, TestLimitType: domain.LimitFixed}, "tester"); err != nil {
		t.Fatal(err)
	}
	env.record(t, 1, good)
	if _, err := env.Engine.Pause(env.Ctx, "proj-1", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Promote(env.Ctx, "proj-1", "tester"); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE project_id=? ORDER BY id`, "proj-1")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatal(err)
		}
		types = append(types, typ)
	}
	want := []string{"project.created", "softlaunch.started", "responses.recorded", "softlaunch.paused", "project.status.changed", "softlaunch.promoted"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events %v", types)
	}
}
