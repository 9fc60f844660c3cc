package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,COALESCE(name,'') AS name,status,goal,fielded,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var status string
	err := row.Scan(&p.ID, &p.Name, &status, &p.Goal, &p.Fielded, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.Status = domain.ProjectState(status)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,status,goal,fielded,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, nullable(p.Name), string(p.Status), p.Goal, p.Fielded, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetProject returns a project with its current soft-launch cycle attached.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	sl, err := r.CurrentSoftLaunchTx(ctx, tx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return p, err
	}
	p.SoftLaunch = sl
	return p, nil
}

// ProjectFilter narrows ListProjects. Empty fields match everything.
type ProjectFilter struct {
	Statuses []domain.ProjectState
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += fmt.Sprintf(` WHERE status IN (%s)`, strings.Join(marks, ","))
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		sl, err := r.CurrentSoftLaunch(ctx, res[i].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		res[i].SoftLaunch = sl
	}
	return res, nil
}

func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectState, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name *string, goal *int, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, nullable(*name))
	}
	if goal != nil {
		fields = append(fields, "goal=?")
		args = append(args, *goal)
	}
	args = append(args, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddFielded(ctx context.Context, tx *sql.Tx, id string, n int, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET fielded=fielded+?, updated_at=? WHERE id=?`, n, updatedAt, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- soft launches ---

func (r Repo) InsertSoftLaunch(ctx context.Context, tx *sql.Tx, projectID string, cfg domain.SoftLaunchConfig) error {
	if cfg.ID == "" {
		return errors.New("soft launch id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO soft_launches(id,project_id,test_limit,test_limit_type,auto_pause,started_at,paused_at) VALUES (?,?,?,?,?,?,?)`,
		cfg.ID, projectID, cfg.TestLimit, string(cfg.TestLimitType), boolInt(cfg.AutoPause), formatTime(cfg.StartedAt), nullableTime(cfg.PausedAt))
	return err
}

// CurrentSoftLaunch returns the most recently started cycle for a project.
func (r Repo) CurrentSoftLaunch(ctx context.Context, projectID string) (*domain.SoftLaunchConfig, error) {
	return r.CurrentSoftLaunchTx(ctx, nil, projectID)
}

func (r Repo) CurrentSoftLaunchTx(ctx context.Context, tx *sql.Tx, projectID string) (*domain.SoftLaunchConfig, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id,test_limit,test_limit_type,auto_pause,started_at,paused_at FROM soft_launches WHERE project_id=? ORDER BY started_at DESC, rowid DESC LIMIT 1`, projectID)
	var (
		cfg       domain.SoftLaunchConfig
		limitType string
		autoPause int
		startedAt string
		pausedAt  sql.NullString
	)
	err := row.Scan(&cfg.ID, &cfg.TestLimit, &limitType, &autoPause, &startedAt, &pausedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg.TestLimitType = domain.LimitType(limitType)
	cfg.AutoPause = autoPause != 0
	if cfg.StartedAt, err = time.Parse(tsLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if pausedAt.Valid {
		ts, err := time.Parse(tsLayout, pausedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse paused_at: %w", err)
		}
		cfg.PausedAt = &ts
	}
	return &cfg, nil
}

// MarkSoftLaunchPaused stamps paused_at once; it reports false when the
// cycle was already paused.
func (r Repo) MarkSoftLaunchPaused(ctx context.Context, tx *sql.Tx, softLaunchID string, pausedAt time.Time) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE soft_launches SET paused_at=? WHERE id=? AND paused_at IS NULL`, formatTime(pausedAt), softLaunchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- responses ---

func (r Repo) InsertResponses(ctx context.Context, tx *sql.Tx, items []domain.Response) error {
	for _, resp := range items {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO responses(id,project_id,soft_launch_id,duration_seconds,quality_score,flagged,created_at) VALUES (?,?,?,?,?,?,?)`,
			resp.ID, resp.ProjectID, nullableStringPtr(resp.SoftLaunchID), resp.DurationSeconds, resp.QualityScore, boolInt(resp.Flagged), resp.CreatedAt); err != nil {
			return fmt.Errorf("insert response %s: %w", resp.ID, err)
		}
	}
	return nil
}

// CycleResponses lists responses recorded during one soft-launch cycle.
func (r Repo) CycleResponses(ctx context.Context, projectID, softLaunchID string) ([]domain.Response, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,soft_launch_id,duration_seconds,quality_score,flagged,created_at FROM responses WHERE project_id=? AND soft_launch_id=? ORDER BY created_at, id`, projectID, softLaunchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Response
	for rows.Next() {
		var (
			resp    domain.Response
			slID    sql.NullString
			flagged int
		)
		if err := rows.Scan(&resp.ID, &resp.ProjectID, &slID, &resp.DurationSeconds, &resp.QualityScore, &flagged, &resp.CreatedAt); err != nil {
			return nil, err
		}
		if slID.Valid {
			resp.SoftLaunchID = &slID.String
		}
		resp.Flagged = flagged != 0
		res = append(res, resp)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>?`
	args := []any{cursor}
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE project_id=?`, projectID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// tsLayout is fixed width so that soft-launch timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
