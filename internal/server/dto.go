package server

import (
	"encoding/json"

	"fieldline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Goal int    `json:"goal" minimum:"0"`
}

type UpdateProjectRequest struct {
	Name *string `json:"name,omitempty"`
	Goal *int    `json:"goal,omitempty" minimum:"0"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"draft,live,soft_launch,soft_paused,awaiting_review"`
}

type StartSoftLaunchRequest struct {
	TestLimit     float64 `json:"test_limit"`
	TestLimitType string  `json:"test_limit_type" enum:"fixed,percentage"`
	AutoPause     bool    `json:"auto_pause"`
}

type ResponseItem struct {
	DurationSeconds float64 `json:"duration_seconds"`
	QualityScore    float64 `json:"quality_score"`
	Flagged         bool    `json:"flagged,omitempty"`
}

type RecordResponsesRequest struct {
	Responses []ResponseItem `json:"responses"`
}

// Response payloads

type ProjectResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name,omitempty"`
	Status     string              `json:"status" enum:"draft,live,soft_launch,soft_paused,awaiting_review"`
	Goal       int                 `json:"goal"`
	Fielded    int                 `json:"fielded"`
	CreatedAt  string              `json:"created_at" format:"date-time"`
	UpdatedAt  string              `json:"updated_at" format:"date-time"`
	SoftLaunch *SoftLaunchResponse `json:"soft_launch,omitempty"`
}

type SoftLaunchResponse struct {
	ID            string  `json:"id"`
	TestLimit     float64 `json:"test_limit"`
	TestLimitType string  `json:"test_limit_type" enum:"fixed,percentage"`
	AutoPause     bool    `json:"auto_pause"`
	StartedAt     string  `json:"started_at" format:"date-time"`
	PausedAt      *string `json:"paused_at,omitempty" format:"date-time"`
	Target        int     `json:"target"`
}

type ProgressResponse struct {
	ProjectID    string              `json:"project_id"`
	Status       string              `json:"status"`
	Fielded      int                 `json:"fielded"`
	Goal         int                 `json:"goal"`
	SoftLaunch   *SoftLaunchResponse `json:"soft_launch,omitempty"`
	LimitReached bool                `json:"limit_reached"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:         p.ID,
		Name:       p.Name,
		Status:     string(p.Status),
		Goal:       p.Goal,
		Fielded:    p.Fielded,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		SoftLaunch: softLaunchResponse(p.SoftLaunch, p.Goal),
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

const wireTime = "2006-01-02T15:04:05.999999999Z07:00"

func softLaunchResponse(c *domain.SoftLaunchConfig, goal int) *SoftLaunchResponse {
	if c == nil {
		return nil
	}
	res := &SoftLaunchResponse{
		ID:            c.ID,
		TestLimit:     c.TestLimit,
		TestLimitType: string(c.TestLimitType),
		AutoPause:     c.AutoPause,
		StartedAt:     c.StartedAt.UTC().Format(wireTime),
		Target:        c.Target(goal),
	}
	if c.PausedAt != nil {
		res.PausedAt = strPtr(c.PausedAt.UTC().Format(wireTime))
	}
	return res
}

func progressResponse(p domain.Progress) ProgressResponse {
	return ProgressResponse{
		ProjectID:    p.ProjectID,
		Status:       string(p.Status),
		Fielded:      p.Fielded,
		Goal:         p.Goal,
		SoftLaunch:   softLaunchResponse(p.SoftLaunch, p.Goal),
		LimitReached: p.LimitReached(),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func strPtr(in string) *string {
	return &in
}
