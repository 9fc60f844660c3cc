package domain

import "time"

// ProjectState is the lifecycle state of a survey project.
type ProjectState string

const (
	StateDraft          ProjectState = "draft"
	StateLive           ProjectState = "live"
	StateSoftLaunch     ProjectState = "soft_launch"
	StateSoftPaused     ProjectState = "soft_paused"
	StateAwaitingReview ProjectState = "awaiting_review"
)

// Valid reports whether s is one of the known states.
func (s ProjectState) Valid() bool {
	switch s {
	case StateDraft, StateLive, StateSoftLaunch, StateSoftPaused, StateAwaitingReview:
		return true
	}
	return false
}

// InReview reports whether fielding is halted pending a human decision.
func (s ProjectState) InReview() bool {
	return s == StateSoftPaused || s == StateAwaitingReview
}

// LimitType selects the unit of SoftLaunchConfig.TestLimit.
type LimitType string

const (
	LimitFixed      LimitType = "fixed"
	LimitPercentage LimitType = "percentage"
)

type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Status    ProjectState `json:"status" enum:"draft,live,soft_launch,soft_paused,awaiting_review"`
	Goal      int          `json:"goal"`
	Fielded   int          `json:"fielded"`
	CreatedAt string       `json:"created_at" format:"date-time"`
	UpdatedAt string       `json:"updated_at" format:"date-time"`

	SoftLaunch *SoftLaunchConfig `json:"soft_launch,omitempty"`
}

// SoftLaunchConfig is attached to a project for one soft-launch cycle.
type SoftLaunchConfig struct {
	ID            string     `json:"id,omitempty"`
	TestLimit     float64    `json:"test_limit"`
	TestLimitType LimitType  `json:"test_limit_type" enum:"fixed,percentage"`
	AutoPause     bool       `json:"auto_pause"`
	StartedAt     time.Time  `json:"started_at"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
}

// Target resolves the test limit to a completed-response count for goal.
// Percentage limits round up so that the target is never below the threshold.
func (c SoftLaunchConfig) Target(goal int) int {
	if c.TestLimitType == LimitPercentage {
		if goal <= 0 {
			return 0
		}
		raw := c.TestLimit * float64(goal) / 100
		n := int(raw)
		if float64(n) < raw {
			n++
		}
		return n
	}
	n := int(c.TestLimit)
	if float64(n) < c.TestLimit {
		n++
	}
	return n
}

// LimitReached evaluates the pause predicate against fielded progress.
// A percentage limit never fires for a project without a goal.
func (c SoftLaunchConfig) LimitReached(fielded, goal int) bool {
	switch c.TestLimitType {
	case LimitPercentage:
		if goal <= 0 {
			return false
		}
		return float64(fielded)*100 >= c.TestLimit*float64(goal)
	default:
		return float64(fielded) >= c.TestLimit
	}
}

// Progress is the remote view of fielding for one project.
type Progress struct {
	ProjectID  string            `json:"project_id"`
	Status     ProjectState      `json:"status"`
	Fielded    int               `json:"fielded"`
	Goal       int               `json:"goal"`
	SoftLaunch *SoftLaunchConfig `json:"soft_launch,omitempty"`
}

// LimitReached reports whether the active soft launch reached its test limit.
func (p Progress) LimitReached() bool {
	if p.SoftLaunch == nil {
		return false
	}
	return p.SoftLaunch.LimitReached(p.Fielded, p.Goal)
}

// SoftLaunchResult is the review snapshot for the current cycle.
// QualityScore is on a 0-100 scale.
type SoftLaunchResult struct {
	ProjectID       string        `json:"project_id"`
	Completes       int           `json:"completes"`
	TestLimit       int           `json:"test_limit"`
	Passed          bool          `json:"passed"`
	QualityScore    float64       `json:"quality_score"`
	AvgResponseTime time.Duration `json:"avg_response_time_ns"`
	Issues          []string      `json:"issues"`
}

// Response is one completed survey response recorded against a project.
type Response struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	SoftLaunchID    *string `json:"soft_launch_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	QualityScore    float64 `json:"quality_score"`
	Flagged         bool    `json:"flagged"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

// EventKind names a user-facing lifecycle transition.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventPaused   EventKind = "paused"
	EventPromoted EventKind = "promoted"
	EventError    EventKind = "error"
)

// LifecycleEvent is handed to the notifier for every soft-launch transition.
type LifecycleEvent struct {
	Kind      EventKind         `json:"kind"`
	ProjectID string            `json:"project_id"`
	Config    *SoftLaunchConfig `json:"config,omitempty"`
	Result    *SoftLaunchResult `json:"result,omitempty"`
	Message   string            `json:"message,omitempty"`
	At        time.Time         `json:"at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string  `json:"id"`
	ActorID    string  `json:"actor_id"`
	Name       string  `json:"name,omitempty"`
	KeyHash    string  `json:"key_hash"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
}

// Notification is an in-application banner entry.
type Notification struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Kind      EventKind `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt string    `json:"created_at" format:"date-time"`
	ReadAt    *string   `json:"read_at,omitempty" format:"date-time"`
}
