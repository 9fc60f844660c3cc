package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectInput[T any] struct {
	ProjectID string `path:"project_id"`
	Body      T      `json:"body"`
}

type routes struct {
	e engine.Engine
}

func (rt routes) register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(context.Context, *struct{}) (*body[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
	rt.projects(api)
	rt.softLaunch(api)
	rt.responses(api)
	rt.events(api)
}

// project runs a state-changing call on behalf of the authenticated actor.
func project(ctx context.Context, call func(actorID string) (domain.Project, error)) (*body[ProjectResponse], error) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return nil, authErr
	}
	p, err := call(actorID)
	if err != nil {
		return nil, handleError(err)
	}
	return reply(projectResponse(p)), nil
}

func (rt routes) projects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, in *body[CreateProjectRequest]) (*body[ProjectResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		return project(ctx, func(actorID string) (domain.Project, error) {
			return rt.e.CreateProject(ctx, engine.CreateProjectOptions{
				ID:      in.Body.ID,
				Name:    in.Body.Name,
				Goal:    in.Body.Goal,
				ActorID: actorID,
			})
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		Status []string `query:"status,explode" doc:"Repeat the parameter or pass a comma-separated list"`
	}) (*body[[]ProjectResponse], error) {
		statuses := make([]domain.ProjectState, 0, len(in.Status))
		for _, raw := range in.Status {
			for _, s := range strings.Split(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					statuses = append(statuses, domain.ProjectState(s))
				}
			}
		}
		items, err := rt.e.ListProjects(ctx, statuses...)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapProjects(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *projectPath) (*body[ProjectResponse], error) {
		p, err := rt.e.GetProject(ctx, in.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(projectResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project name or goal",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, in *projectInput[UpdateProjectRequest]) (*body[ProjectResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		return project(ctx, func(actorID string) (domain.Project, error) {
			return rt.e.UpdateProject(ctx, in.ProjectID, in.Body.Name, in.Body.Goal, actorID)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/status",
		Summary:     "Set project status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *projectInput[SetStatusRequest]) (*body[ProjectResponse], error) {
		return project(ctx, func(actorID string) (domain.Project, error) {
			return rt.e.SetStatus(ctx, in.ProjectID, domain.ProjectState(in.Body.Status), actorID)
		})
	})
}

func (rt routes) softLaunch(api huma.API) {
	transitionErrors := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID: "start-soft-launch",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/soft-launch",
		Summary:     "Start or restart a soft launch",
		Errors:      transitionErrors,
	}, func(ctx context.Context, in *projectInput[StartSoftLaunchRequest]) (*body[ProjectResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		cfg := domain.SoftLaunchConfig{
			TestLimit:     in.Body.TestLimit,
			TestLimitType: domain.LimitType(in.Body.TestLimitType),
			AutoPause:     in.Body.AutoPause,
		}
		return project(ctx, func(actorID string) (domain.Project, error) {
			return rt.e.StartSoftLaunch(ctx, in.ProjectID, cfg, actorID)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Fielding progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, in *projectPath) (*body[ProgressResponse], error) {
		pr, err := rt.e.Progress(ctx, in.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(progressResponse(pr)), nil
	})

	for _, op := range []struct {
		id, path, summary string
		call              func(context.Context, string, string) (domain.Project, error)
	}{
		{"pause-soft-launch", "/projects/{project_id}/soft-launch/pause", "Pause a soft launch for review", rt.e.Pause},
		{"request-review", "/projects/{project_id}/soft-launch/review", "Hand a soft launch to reviewers", rt.e.RequestReview},
		{"promote", "/projects/{project_id}/promote", "Promote to full launch", rt.e.Promote},
	} {
		call := op.call
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Errors:      transitionErrors,
		}, func(ctx context.Context, in *projectPath) (*body[ProjectResponse], error) {
			return project(ctx, func(actorID string) (domain.Project, error) {
				return call(ctx, in.ProjectID, actorID)
			})
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-soft-launch-results",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/soft-launch/results",
		Summary:     "Soft-launch review results",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *projectPath) (*body[domain.SoftLaunchResult], error) {
		res, err := rt.e.Results(ctx, in.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func (rt routes) responses(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "record-responses",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/responses",
		Summary:     "Record completed responses",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, in *projectInput[RecordResponsesRequest]) (*body[ProgressResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items := make([]engine.ResponseInput, 0, len(in.Body.Responses))
		for _, r := range in.Body.Responses {
			items = append(items, engine.ResponseInput{
				DurationSeconds: r.DurationSeconds,
				QualityScore:    r.QualityScore,
				Flagged:         r.Flagged,
			})
		}
		pr, err := rt.e.RecordResponses(ctx, in.ProjectID, items, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(progressResponse(pr)), nil
	})
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultEventLimit
	case limit > maxEventLimit:
		return maxEventLimit
	default:
		return limit
	}
}

func (rt routes) events(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List events",
		Description: "Without a cursor the newest events are returned first. With a cursor, events after it are returned oldest first.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, in *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*body[paginatedEvents], error) {
		limit := clampLimit(in.Limit)
		var (
			items []domain.Event
			err   error
		)
		if in.Cursor == "" {
			items, err = rt.e.Repo.LatestEvents(ctx, limit, in.ProjectID, in.Type)
		} else {
			after, perr := strconv.ParseInt(in.Cursor, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": in.Cursor})
			}
			items, err = rt.e.Repo.EventsAfter(ctx, limit, after, in.ProjectID)
		}
		if err != nil {
			return nil, handleError(err)
		}

		page := paginatedEvents{Items: []EventResponse{}, NextCursor: in.Cursor}
		var newest int64
		for _, evt := range items {
			newest = max(newest, evt.ID)
			if in.Type == "" || evt.Type == in.Type {
				page.Items = append(page.Items, eventResponse(evt))
			}
		}
		if newest > 0 {
			page.NextCursor = strconv.FormatInt(newest, 10)
		}
		return reply(page), nil
	})
}
