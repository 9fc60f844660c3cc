package engine

import (
	"context"

	"fieldline/internal/domain"
)

// Local exposes the engine through the same calls as the HTTP client so the
// soft-launch controller can drive a workspace database directly.
type Local struct {
	Engine  Engine
	ActorID string
}

func (l Local) StartSoftLaunch(ctx context.Context, projectID string, cfg domain.SoftLaunchConfig) error {
	_, err := l.Engine.StartSoftLaunch(ctx, projectID, cfg, l.ActorID)
	return err
}

func (l Local) Progress(ctx context.Context, projectID string) (domain.Progress, error) {
	return l.Engine.Progress(ctx, projectID)
}

func (l Local) Pause(ctx context.Context, projectID string) error {
	_, err := l.Engine.Pause(ctx, projectID, l.ActorID)
	return err
}

func (l Local) Results(ctx context.Context, projectID string) (domain.SoftLaunchResult, error) {
	return l.Engine.Results(ctx, projectID)
}

func (l Local) Promote(ctx context.Context, projectID string) error {
	_, err := l.Engine.Promote(ctx, projectID, l.ActorID)
	return err
}

func (l Local) ListProjects(ctx context.Context, statuses ...domain.ProjectState) ([]domain.Project, error) {
	return l.Engine.ListProjects(ctx, statuses...)
}
