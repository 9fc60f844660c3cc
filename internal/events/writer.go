package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the project service.
const (
	ProjectCreated       = "project.created"
	ProjectUpdated       = "project.updated"
	ProjectStatusChanged = "project.status.changed"
	SoftLaunchStarted    = "softlaunch.started"
	SoftLaunchRestarted  = "softlaunch.restarted"
	SoftLaunchPaused     = "softlaunch.paused"
	SoftLaunchReview     = "softlaunch.review.requested"
	SoftLaunchPromoted   = "softlaunch.promoted"
	ResponsesRecorded    = "responses.recorded"
)

type Payload map[string]any

// Record is one row of the event log.
type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

// ProjectEvent describes a change to the project row itself.
func ProjectEvent(typ, projectID, actorID string, payload Payload) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: actorID, Payload: payload}
}

// SoftLaunchEvent describes a change to one soft-launch cycle.
func SoftLaunchEvent(typ, projectID, cycleID, actorID string, payload Payload) Record {
	return Record{Type: typ, ProjectID: projectID, EntityKind: "soft_launch", EntityID: cycleID, ActorID: actorID, Payload: payload}
}

// Writer appends records inside the caller's transaction so that the log
// commits or rolls back with the change it describes.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if rec.Type == "" {
		return fmt.Errorf("event type required")
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if rec.ActorID == "" {
		rec.ActorID = "system"
	}
	if rec.Payload == nil {
		rec.Payload = Payload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", rec.Type, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), rec.Type, orNull(rec.ProjectID), rec.EntityKind, orNull(rec.EntityID), rec.ActorID, string(data))
	return err
}

func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
