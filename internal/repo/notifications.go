package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fieldline/internal/domain"
)

// InsertNotification stores an in-application banner entry.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		return errors.New("id required")
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,project_id,kind,title,body,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.ProjectID, string(n.Kind), n.Title, n.Body, n.CreatedAt)
	return err
}

// ListNotifications returns banner entries newest first.
func (r Repo) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,project_id,kind,title,body,created_at,read_at FROM notifications`
	if unreadOnly {
		query += ` WHERE read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var (
			n      domain.Notification
			kind   string
			readAt sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.ProjectID, &kind, &n.Title, &n.Body, &n.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		n.Kind = domain.EventKind(kind)
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationsRead dismisses every unread banner and returns how many.
func (r Repo) MarkNotificationsRead(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE read_at IS NULL`, at.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
