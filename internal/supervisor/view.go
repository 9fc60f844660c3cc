package supervisor

import (
	"sort"
	"sync"
	"time"

	"fieldline/internal/domain"
)

// View is the supervisor's read-through cache of project state, keyed by
// project ID. The last successful fetch for a project wins.
type View struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
}

func NewView(projects ...domain.Project) *View {
	v := &View{projects: make(map[string]domain.Project, len(projects))}
	for _, p := range projects {
		v.projects[p.ID] = cloneProject(p)
	}
	return v
}

func cloneProject(p domain.Project) domain.Project {
	if p.SoftLaunch != nil {
		cfg := *p.SoftLaunch
		if cfg.PausedAt != nil {
			at := *cfg.PausedAt
			cfg.PausedAt = &at
		}
		p.SoftLaunch = &cfg
	}
	return p
}

// Get returns a copy of the cached project.
func (v *View) Get(id string) (domain.Project, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

// Snapshot returns copies of every cached project ordered by ID.
func (v *View) Snapshot() []domain.Project {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Project, 0, len(v.projects))
	for _, p := range v.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reconcile replaces the cached set with a full listing from the service.
func (v *View) Reconcile(projects []domain.Project) {
	next := make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		next[p.ID] = cloneProject(p)
	}
	v.mu.Lock()
	v.projects = next
	v.mu.Unlock()
}

// Put stores p, replacing any cached entry.
func (v *View) Put(p domain.Project) {
	v.mu.Lock()
	v.projects[p.ID] = cloneProject(p)
	v.mu.Unlock()
}

// Merge folds a progress fetch into the cached project. A fetch without a
// soft-launch config keeps the cached one.
func (v *View) Merge(pr domain.Progress) domain.Project {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.projects[pr.ProjectID]
	if !ok {
		p = domain.Project{ID: pr.ProjectID}
	}
	p.Status = pr.Status
	p.Fielded = pr.Fielded
	p.Goal = pr.Goal
	if pr.SoftLaunch != nil {
		cfg := *pr.SoftLaunch
		p.SoftLaunch = &cfg
	}
	v.projects[p.ID] = p
	return cloneProject(p)
}

// MarkPaused records a completed pause for review.
func (v *View) MarkPaused(id string, at time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.projects[id]
	if !ok {
		return false
	}
	p.Status = domain.StateSoftPaused
	if p.SoftLaunch != nil {
		cfg := *p.SoftLaunch
		if cfg.PausedAt == nil {
			cfg.PausedAt = &at
		}
		p.SoftLaunch = &cfg
	}
	v.projects[id] = p
	return true
}

// HasActive reports whether any cached project is live or soft-launched.
func (v *View) HasActive() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, p := range v.projects {
		if p.Status == domain.StateLive || p.Status == domain.StateSoftLaunch {
			return true
		}
	}
	return false
}
