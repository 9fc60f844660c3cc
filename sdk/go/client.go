package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldline/internal/domain"
)

// Client is a Fieldline HTTP API client. BaseURL includes the API version
// prefix, for example http://127.0.0.1:8080/v0.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Response is one completed response submitted for fielding.
type Response struct {
	DurationSeconds float64 `json:"duration_seconds"`
	QualityScore    float64 `json:"quality_score"`
	Flagged         bool    `json:"flagged,omitempty"`
}

// CreateProject creates a draft project. An empty id lets the server pick one.
func (c *Client) CreateProject(ctx context.Context, id, name string, goal int) (domain.Project, error) {
	body := map[string]any{"goal": goal}
	if id != "" {
		body["id"] = id
	}
	if name != "" {
		body["name"] = name
	}
	var resp domain.Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// ListProjects lists projects, optionally filtered by status.
func (c *Client) ListProjects(ctx context.Context, statuses ...domain.ProjectState) ([]domain.Project, error) {
	endpoint := "projects"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, s := range statuses {
			q.Add("status", string(s))
		}
		endpoint += "?" + q.Encode()
	}
	var resp []domain.Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetProject fetches a project with its current soft launch.
func (c *Client) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodGet, projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// SetStatus moves a draft project to live.
func (c *Client) SetStatus(ctx context.Context, projectID string, status domain.ProjectState) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodPatch, projectPath(projectID, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// StartSoftLaunch starts or restarts a soft launch with cfg.
func (c *Client) StartSoftLaunch(ctx context.Context, projectID string, cfg domain.SoftLaunchConfig) error {
	body := map[string]any{
		"test_limit":      cfg.TestLimit,
		"test_limit_type": cfg.TestLimitType,
		"auto_pause":      cfg.AutoPause,
	}
	return c.do(ctx, http.MethodPost, projectPath(projectID, "soft-launch"), body, nil)
}

// Progress reads fielding progress together with the active soft launch.
func (c *Client) Progress(ctx context.Context, projectID string) (domain.Progress, error) {
	var resp domain.Progress
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "progress"), nil, &resp)
	return resp, err
}

// Pause halts the soft launch for review.
func (c *Client) Pause(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodPost, projectPath(projectID, "soft-launch/pause"), nil, nil)
}

// RequestReview hands the soft launch to reviewers.
func (c *Client) RequestReview(ctx context.Context, projectID string) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "soft-launch/review"), nil, &resp)
	return resp, err
}

// Results fetches the review snapshot of the current soft launch.
func (c *Client) Results(ctx context.Context, projectID string) (domain.SoftLaunchResult, error) {
	var resp domain.SoftLaunchResult
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "soft-launch/results"), nil, &resp)
	return resp, err
}

// Promote moves a reviewed project to full launch.
func (c *Client) Promote(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodPost, projectPath(projectID, "promote"), nil, nil)
}

// RecordResponses submits completed responses and returns the new progress.
func (c *Client) RecordResponses(ctx context.Context, projectID string, items []Response) (domain.Progress, error) {
	var resp domain.Progress
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "responses"), map[string]any{"responses": items}, &resp)
	return resp, err
}

// EventsPage returns a page of events. Without a cursor the newest come
// first; with one, events after it come oldest first.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := projectPath(projectID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Health pings the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(projectID, p string) string {
	base := "projects/" + url.PathEscape(projectID)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
