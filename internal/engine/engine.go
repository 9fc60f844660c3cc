package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// TransitionError reports a lifecycle move the state machine forbids.
type TransitionError struct {
	ProjectID string
	From      domain.ProjectState
	To        domain.ProjectState
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("project %s cannot move from %s to %s", e.ProjectID, e.From, e.To)
}

// ErrNotFielding is returned when responses arrive for a project that is not collecting them.
var ErrNotFielding = errors.New("project is not fielding")

// ErrNoSoftLaunch is returned when an operation needs a soft-launch cycle and the project has none.
var ErrNoSoftLaunch = errors.New("project has no soft launch")

func ensureStateTransition(projectID string, from, to domain.ProjectState) error {
	switch from {
	case domain.StateDraft:
		if to == domain.StateLive || to == domain.StateSoftLaunch {
			return nil
		}
	case domain.StateLive:
		if to == domain.StateSoftLaunch {
			return nil
		}
	case domain.StateSoftLaunch:
		if to == domain.StateSoftLaunch || to == domain.StateSoftPaused || to == domain.StateAwaitingReview {
			return nil
		}
	case domain.StateSoftPaused:
		if to == domain.StateAwaitingReview || to == domain.StateLive || to == domain.StateSoftLaunch {
			return nil
		}
	case domain.StateAwaitingReview:
		if to == domain.StateLive || to == domain.StateSoftLaunch {
			return nil
		}
	}
	return TransitionError{ProjectID: projectID, From: from, To: to}
}

// CreateProjectOptions are parameters for creating a project.
type CreateProjectOptions struct {
	ID      string
	Name    string
	Goal    int
	ActorID string
}

func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if opts.Goal < 0 {
		return domain.Project{}, errors.New("goal must not be negative")
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := e.stamp()
	p := domain.Project{
		ID:        id,
		Name:      opts.Name,
		Status:    domain.StateDraft,
		Goal:      opts.Goal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return p, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectEvent(events.ProjectCreated, p.ID, opts.ActorID, events.Payload{"goal": p.Goal, "status": p.Status})); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// UpdateProject changes the name or goal of a project.
func (e Engine) UpdateProject(ctx context.Context, id string, name *string, goal *int, actorID string) (domain.Project, error) {
	if goal != nil && *goal < 0 {
		return domain.Project{}, errors.New("goal must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, id, name, goal, e.stamp()); err != nil {
		return domain.Project{}, err
	}
	payload := events.Payload{}
	if name != nil {
		payload["name"] = *name
	}
	if goal != nil {
		payload["goal"] = *goal
	}
	if err := e.Events.Append(ctx, tx, events.ProjectEvent(events.ProjectUpdated, id, actorID, payload)); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, err
	}
	return p, tx.Commit()
}

// SetStatus moves a draft project to live. Soft-launch states are entered
// through their own operations so that cycle bookkeeping stays consistent.
func (e Engine) SetStatus(ctx context.Context, id string, status domain.ProjectState, actorID string) (domain.Project, error) {
	if !status.Valid() {
		return domain.Project{}, fmt.Errorf("invalid status %s", status)
	}
	if status != domain.StateLive {
		return domain.Project{}, fmt.Errorf("invalid status %s: use the soft-launch operations", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, err
	}
	if p.Status != domain.StateDraft {
		return p, TransitionError{ProjectID: id, From: p.Status, To: status}
	}
	if err := e.setStatus(ctx, tx, &p, status, actorID); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func (e Engine) setStatus(ctx context.Context, tx *sql.Tx, p *domain.Project, to domain.ProjectState, actorID string) error {
	if err := ensureStateTransition(p.ID, p.Status, to); err != nil {
		return err
	}
	now := e.stamp()
	if err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, to, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectEvent(events.ProjectStatusChanged, p.ID, actorID, events.Payload{"from": p.Status, "to": to})); err != nil {
		return err
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

func validateSoftLaunch(cfg domain.SoftLaunchConfig) error {
	switch cfg.TestLimitType {
	case domain.LimitFixed:
		if cfg.TestLimit < 1 {
			return errors.New("invalid test_limit: fixed limits need at least one complete")
		}
	case domain.LimitPercentage:
		if cfg.TestLimit <= 0 || cfg.TestLimit > 100 {
			return errors.New("invalid test_limit: percentage must be in (0, 100]")
		}
	default:
		return fmt.Errorf("invalid test_limit_type %q", cfg.TestLimitType)
	}
	return nil
}

// StartSoftLaunch opens a new soft-launch cycle. Starting again while a
// cycle is active replaces it and restarts monitoring.
func (e Engine) StartSoftLaunch(ctx context.Context, id string, cfg domain.SoftLaunchConfig, actorID string) (domain.Project, error) {
	if err := validateSoftLaunch(cfg); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, err
	}
	restart := p.Status == domain.StateSoftLaunch
	from := p.Status
	if err := ensureStateTransition(id, p.Status, domain.StateSoftLaunch); err != nil {
		return p, err
	}
	cycle := domain.SoftLaunchConfig{
		ID:            uuid.NewString(),
		TestLimit:     cfg.TestLimit,
		TestLimitType: cfg.TestLimitType,
		AutoPause:     cfg.AutoPause,
		StartedAt:     e.now().UTC(),
	}
	if err := e.Repo.InsertSoftLaunch(ctx, tx, id, cycle); err != nil {
		return p, fmt.Errorf("insert soft launch: %w", err)
	}
	now := e.stamp()
	if !restart {
		if err := e.Repo.UpdateProjectStatus(ctx, tx, id, domain.StateSoftLaunch, now); err != nil {
			return p, err
		}
	}
	evt := events.SoftLaunchStarted
	if restart {
		evt = events.SoftLaunchRestarted
	}
	if err := e.Events.Append(ctx, tx, events.SoftLaunchEvent(evt, id, cycle.ID, actorID, events.Payload{
		"from":            from,
		"test_limit":      cycle.TestLimit,
		"test_limit_type": cycle.TestLimitType,
		"auto_pause":      cycle.AutoPause,
		"target":          cycle.Target(p.Goal),
	})); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = domain.StateSoftLaunch
	p.UpdatedAt = now
	p.SoftLaunch = &cycle
	return p, nil
}

// Progress reports fielding for a project. The active cycle is attached only
// while the project is in a soft-launch state.
func (e Engine) Progress(ctx context.Context, id string) (domain.Progress, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Progress{}, err
	}
	return progressOf(p), nil
}

func progressOf(p domain.Project) domain.Progress {
	pr := domain.Progress{ProjectID: p.ID, Status: p.Status, Fielded: p.Fielded, Goal: p.Goal}
	switch p.Status {
	case domain.StateSoftLaunch, domain.StateSoftPaused, domain.StateAwaitingReview:
		pr.SoftLaunch = p.SoftLaunch
	}
	return pr
}

// Pause halts a soft launch for review and stamps the cycle's paused_at.
func (e Engine) Pause(ctx context.Context, id, actorID string) (domain.Project, error) {
	return e.haltSoftLaunch(ctx, id, domain.StateSoftPaused, events.SoftLaunchPaused, actorID)
}

// RequestReview hands a paused (or still running) soft launch to reviewers.
func (e Engine) RequestReview(ctx context.Context, id, actorID string) (domain.Project, error) {
	return e.haltSoftLaunch(ctx, id, domain.StateAwaitingReview, events.SoftLaunchReview, actorID)
}

func (e Engine) haltSoftLaunch(ctx context.Context, id string, to domain.ProjectState, evt, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, err
	}
	if p.Status == to {
		return p, TransitionError{ProjectID: id, From: p.Status, To: to}
	}
	if err := ensureStateTransition(id, p.Status, to); err != nil {
		return p, err
	}
	if p.SoftLaunch == nil {
		return p, ErrNoSoftLaunch
	}
	now := e.now().UTC()
	stamped, err := e.Repo.MarkSoftLaunchPaused(ctx, tx, p.SoftLaunch.ID, now)
	if err != nil {
		return p, err
	}
	if stamped {
		p.SoftLaunch.PausedAt = &now
	}
	from := p.Status
	if err := e.Repo.UpdateProjectStatus(ctx, tx, id, to, e.stamp()); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, events.SoftLaunchEvent(evt, id, p.SoftLaunch.ID, actorID, events.Payload{
		"from":    from,
		"to":      to,
		"fielded": p.Fielded,
		"target":  p.SoftLaunch.Target(p.Goal),
	})); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = to
	return p, nil
}

// Promote ends review and moves the project to full launch.
func (e Engine) Promote(ctx context.Context, id, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, err
	}
	if !p.Status.InReview() {
		return p, TransitionError{ProjectID: id, From: p.Status, To: domain.StateLive}
	}
	from := p.Status
	if err := e.setStatus(ctx, tx, &p, domain.StateLive, actorID); err != nil {
		return p, err
	}
	var cycleID string
	if p.SoftLaunch != nil {
		cycleID = p.SoftLaunch.ID
	}
	if err := e.Events.Append(ctx, tx, events.SoftLaunchEvent(events.SoftLaunchPromoted, id, cycleID, actorID, events.Payload{"from": from, "fielded": p.Fielded})); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

// ResponseInput is one completed response submitted for fielding.
type ResponseInput struct {
	DurationSeconds float64
	QualityScore    float64
	Flagged         bool
}

// RecordResponses stores completed responses and advances the fielded count.
// While soft-launched they are attributed to the active cycle.
func (e Engine) RecordResponses(ctx context.Context, id string, items []ResponseInput, actorID string) (domain.Progress, error) {
	if len(items) == 0 {
		return domain.Progress{}, errors.New("at least one response is required")
	}
	for i, it := range items {
		if it.DurationSeconds < 0 {
			return domain.Progress{}, fmt.Errorf("invalid response %d: duration must not be negative", i)
		}
		if it.QualityScore < 0 || it.QualityScore > 100 {
			return domain.Progress{}, fmt.Errorf("invalid response %d: quality score must be between 0 and 100", i)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Progress{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return domain.Progress{}, err
	}
	var cycleID *string
	switch p.Status {
	case domain.StateLive:
	case domain.StateSoftLaunch:
		if p.SoftLaunch != nil {
			cycleID = &p.SoftLaunch.ID
		}
	default:
		return domain.Progress{}, fmt.Errorf("%w: status is %s", ErrNotFielding, p.Status)
	}
	now := e.now().UTC()
	rows := make([]domain.Response, len(items))
	for i, it := range items {
		rows[i] = domain.Response{
			ID:              uuid.NewString(),
			ProjectID:       id,
			SoftLaunchID:    cycleID,
			DurationSeconds: it.DurationSeconds,
			QualityScore:    it.QualityScore,
			Flagged:         it.Flagged,
			CreatedAt:       now.Add(time.Duration(i) * time.Nanosecond).Format(time.RFC3339Nano),
		}
	}
	if err := e.Repo.InsertResponses(ctx, tx, rows); err != nil {
		return domain.Progress{}, err
	}
	if err := e.Repo.AddFielded(ctx, tx, id, len(rows), e.stamp()); err != nil {
		return domain.Progress{}, err
	}
	payload := events.Payload{"count": len(rows), "fielded": p.Fielded + len(rows)}
	if cycleID != nil {
		payload["soft_launch_id"] = *cycleID
	}
	if err := e.Events.Append(ctx, tx, events.ProjectEvent(events.ResponsesRecorded, id, actorID, payload)); err != nil {
		return domain.Progress{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Progress{}, err
	}
	p.Fielded += len(rows)
	return progressOf(p), nil
}

// Results evaluates the current soft-launch cycle against the review criteria.
func (e Engine) Results(ctx context.Context, id string) (domain.SoftLaunchResult, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.SoftLaunchResult{}, err
	}
	if p.SoftLaunch == nil {
		return domain.SoftLaunchResult{}, ErrNoSoftLaunch
	}
	responses, err := e.Repo.CycleResponses(ctx, id, p.SoftLaunch.ID)
	if err != nil {
		return domain.SoftLaunchResult{}, err
	}
	return evaluate(p, responses, e.review()), nil
}

func (e Engine) review() config.ReviewConfig {
	if e.Config == nil {
		return config.Default().Review
	}
	return e.Config.Review
}

func evaluate(p domain.Project, responses []domain.Response, rc config.ReviewConfig) domain.SoftLaunchResult {
	res := domain.SoftLaunchResult{
		ProjectID: p.ID,
		Completes: len(responses),
		TestLimit: p.SoftLaunch.Target(p.Goal),
		Issues:    []string{},
	}
	if res.Completes < res.TestLimit {
		res.Issues = append(res.Issues, fmt.Sprintf("only %d of %d test completes collected", res.Completes, res.TestLimit))
	}
	if res.Completes > 0 {
		var quality, seconds float64
		var speeders, flagged int
		for _, r := range responses {
			quality += r.QualityScore
			seconds += r.DurationSeconds
			if rc.SpeederSeconds > 0 && r.DurationSeconds < rc.SpeederSeconds {
				speeders++
			}
			if r.Flagged {
				flagged++
			}
		}
		n := float64(res.Completes)
		res.QualityScore = quality / n
		avgSeconds := seconds / n
		res.AvgResponseTime = time.Duration(avgSeconds * float64(time.Second))
		if res.QualityScore < rc.MinQualityScore {
			res.Issues = append(res.Issues, fmt.Sprintf("average quality score %.1f is below %.1f", res.QualityScore, rc.MinQualityScore))
		}
		if rc.MinAvgResponseSeconds > 0 && avgSeconds < rc.MinAvgResponseSeconds {
			res.Issues = append(res.Issues, fmt.Sprintf("average response time %s is below %s",
				res.AvgResponseTime.Round(time.Second), time.Duration(rc.MinAvgResponseSeconds*float64(time.Second))))
		}
		if ratio := float64(speeders) / n; speeders > 0 && ratio > rc.MaxSpeederRatio {
			res.Issues = append(res.Issues, fmt.Sprintf("%.0f%% of responses finished in under %.0fs", ratio*100, rc.SpeederSeconds))
		}
		if ratio := float64(flagged) / n; flagged > 0 && ratio > rc.MaxFlaggedRatio {
			res.Issues = append(res.Issues, fmt.Sprintf("%d responses flagged for review (%.0f%%)", flagged, ratio*100))
		}
	}
	res.Passed = res.Completes >= res.TestLimit && len(res.Issues) == 0
	return res
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) ListProjects(ctx context.Context, statuses ...domain.ProjectState) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, repo.ProjectFilter{Statuses: statuses})
}
