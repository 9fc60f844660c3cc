package supervisor

import (
	"strconv"
	"sync"

	"fieldline/internal/domain"
)

type guardKey struct {
	projectID string
	cycle     string
}

// pauseGuard remembers which soft-launch cycles already had a pause issued.
type pauseGuard struct {
	mu      sync.Mutex
	claimed map[guardKey]struct{}
}

func newPauseGuard() *pauseGuard {
	return &pauseGuard{claimed: make(map[guardKey]struct{})}
}

func cycleKey(projectID string, cfg *domain.SoftLaunchConfig) guardKey {
	key := guardKey{projectID: projectID}
	if cfg != nil {
		key.cycle = strconv.FormatInt(cfg.StartedAt.UnixNano(), 10)
		if cfg.ID != "" {
			key.cycle = cfg.ID
		}
	}
	return key
}

// claim marks the cycle and reports whether the caller got it first.
func (g *pauseGuard) claim(key guardKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.claimed[key]; ok {
		return false
	}
	g.claimed[key] = struct{}{}
	return true
}

func (g *pauseGuard) release(key guardKey) {
	g.mu.Lock()
	delete(g.claimed, key)
	g.mu.Unlock()
}

// prune drops the cycles of projects for which tracked reports false.
func (g *pauseGuard) prune(tracked func(projectID string) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.claimed {
		if !tracked(key.projectID) {
			delete(g.claimed, key)
		}
	}
}

func (g *pauseGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claimed)
}
