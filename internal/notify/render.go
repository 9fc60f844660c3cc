package notify

import (
	"fmt"
	"strings"
	"time"

	"fieldline/internal/domain"
)

// FormatQuality renders a 0-100 quality score on the /10 display scale.
func FormatQuality(score float64) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return fmt.Sprintf("%.1f/10", score/10)
}

func describeLimit(cfg *domain.SoftLaunchConfig) string {
	if cfg == nil {
		return "its configured limit"
	}
	if cfg.TestLimitType == domain.LimitPercentage {
		return fmt.Sprintf("%g%% of goal", cfg.TestLimit)
	}
	return fmt.Sprintf("%g completes", cfg.TestLimit)
}

// Render builds the title and body shown for evt on every channel.
func Render(evt domain.LifecycleEvent) (string, string) {
	switch evt.Kind {
	case domain.EventStarted:
		body := fmt.Sprintf("Project %s is soft-launched with a test limit of %s.", evt.ProjectID, describeLimit(evt.Config))
		if evt.Config != nil && evt.Config.AutoPause {
			body += " Fielding pauses automatically when the limit is reached."
		}
		return "Soft launch started", body
	case domain.EventPaused:
		var b strings.Builder
		fmt.Fprintf(&b, "Project %s reached its test limit and is paused for review.", evt.ProjectID)
		if r := evt.Result; r != nil {
			fmt.Fprintf(&b, " %d of %d completes, quality %s, average response time %s.",
				r.Completes, r.TestLimit, FormatQuality(r.QualityScore), r.AvgResponseTime.Round(time.Second))
			if n := len(r.Issues); n > 0 {
				fmt.Fprintf(&b, " %d issue(s) need attention.", n)
			}
		}
		return "Soft launch paused for review", b.String()
	case domain.EventPromoted:
		return "Project promoted to full launch", fmt.Sprintf("Project %s is now fielding without restriction.", evt.ProjectID)
	case domain.EventError:
		msg := evt.Message
		if msg == "" {
			msg = "an unknown error occurred"
		}
		return "Soft launch error", fmt.Sprintf("Project %s: %s", evt.ProjectID, msg)
	default:
		return string(evt.Kind), evt.ProjectID
	}
}
