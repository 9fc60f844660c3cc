package main

import (
	"context"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	fieldlinesdk "fieldline/sdk/go"
)

// backend is the project service the CLI talks to: the workspace database
// by default, or the HTTP API with --remote.
type backend interface {
	StartSoftLaunch(ctx context.Context, projectID string, cfg domain.SoftLaunchConfig) error
	Progress(ctx context.Context, projectID string) (domain.Progress, error)
	Pause(ctx context.Context, projectID string) error
	Results(ctx context.Context, projectID string) (domain.SoftLaunchResult, error)
	Promote(ctx context.Context, projectID string) error

	ListProjects(ctx context.Context, statuses ...domain.ProjectState) ([]domain.Project, error)
	CreateProject(ctx context.Context, id, name string, goal int) (domain.Project, error)
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
	SetStatus(ctx context.Context, projectID string, status domain.ProjectState) (domain.Project, error)
	RequestReview(ctx context.Context, projectID string) (domain.Project, error)
	RecordResponses(ctx context.Context, projectID string, items []fieldlinesdk.Response) (domain.Progress, error)
}

var _ backend = (*fieldlinesdk.Client)(nil)

type localBackend struct {
	engine.Local
}

func (b localBackend) CreateProject(ctx context.Context, id, name string, goal int) (domain.Project, error) {
	return b.Engine.CreateProject(ctx, engine.CreateProjectOptions{ID: id, Name: name, Goal: goal, ActorID: b.ActorID})
}

func (b localBackend) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return b.Engine.GetProject(ctx, projectID)
}

func (b localBackend) SetStatus(ctx context.Context, projectID string, status domain.ProjectState) (domain.Project, error) {
	return b.Engine.SetStatus(ctx, projectID, status, b.ActorID)
}

func (b localBackend) RequestReview(ctx context.Context, projectID string) (domain.Project, error) {
	return b.Engine.RequestReview(ctx, projectID, b.ActorID)
}

func (b localBackend) RecordResponses(ctx context.Context, projectID string, items []fieldlinesdk.Response) (domain.Progress, error) {
	in := make([]engine.ResponseInput, 0, len(items))
	for _, it := range items {
		in = append(in, engine.ResponseInput{DurationSeconds: it.DurationSeconds, QualityScore: it.QualityScore, Flagged: it.Flagged})
	}
	return b.Engine.RecordResponses(ctx, projectID, in, b.ActorID)
}
