package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fieldline/internal/domain"
)

func TestLimitReachedFixed(t *testing.T) {
	cfg := domain.SoftLaunchConfig{TestLimit: 10, TestLimitType: domain.LimitFixed}
	assert.False(t, cfg.LimitReached(9, 100))
	assert.True(t, cfg.LimitReached(10, 100))
	assert.True(t, cfg.LimitReached(11, 100))
}

func TestLimitReachedPercentage(t *testing.T) {
	cfg := domain.SoftLaunchConfig{TestLimit: 50, TestLimitType: domain.LimitPercentage}
	assert.False(t, cfg.LimitReached(19, 40))
	assert.True(t, cfg.LimitReached(20, 40))
	assert.False(t, cfg.LimitReached(20, 0), "no goal never reaches a percentage limit")
}

func TestLimitReachedAtPercentageTarget(t *testing.T) {
	tests := []struct {
		limit float64
		goal  int
	}{
		{29, 100},
		{57, 100},
		{58, 100},
		{33, 300},
		{12.5, 80},
	}
	for _, tt := range tests {
		cfg := domain.SoftLaunchConfig{TestLimit: tt.limit, TestLimitType: domain.LimitPercentage}
		target := cfg.Target(tt.goal)
		assert.True(t, cfg.LimitReached(target, tt.goal), "limit %g%% of %d at %d", tt.limit, tt.goal, target)
		assert.False(t, cfg.LimitReached(target-1, tt.goal), "limit %g%% of %d at %d", tt.limit, tt.goal, target-1)
	}
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.SoftLaunchConfig
		goal int
		want int
	}{
		{"fixed", domain.SoftLaunchConfig{TestLimit: 5, TestLimitType: domain.LimitFixed}, 100, 5},
		{"fixed fractional", domain.SoftLaunchConfig{TestLimit: 4.2, TestLimitType: domain.LimitFixed}, 100, 5},
		{"percentage exact", domain.SoftLaunchConfig{TestLimit: 50, TestLimitType: domain.LimitPercentage}, 40, 20},
		{"percentage rounds up", domain.SoftLaunchConfig{TestLimit: 10, TestLimitType: domain.LimitPercentage}, 33, 4},
		{"percentage no goal", domain.SoftLaunchConfig{TestLimit: 10, TestLimitType: domain.LimitPercentage}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Target(tt.goal))
		})
	}
}

func TestProgressLimitReachedWithoutSoftLaunch(t *testing.T) {
	p := domain.Progress{Fielded: 100, Goal: 100}
	assert.False(t, p.LimitReached())
	p.SoftLaunch = &domain.SoftLaunchConfig{TestLimit: 10, TestLimitType: domain.LimitFixed}
	assert.True(t, p.LimitReached())
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, domain.StateSoftPaused.InReview())
	assert.True(t, domain.StateAwaitingReview.InReview())
	assert.False(t, domain.StateSoftLaunch.InReview())
	assert.False(t, domain.ProjectState("archived").Valid())
	assert.True(t, domain.StateLive.Valid())
}
