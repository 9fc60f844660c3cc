package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DesktopChannel raises an OS notification via osascript on macOS and
// notify-send elsewhere.
type DesktopChannel struct {
	goos string
	run  Runner
}

func NewDesktopChannel() *DesktopChannel {
	return &DesktopChannel{goos: runtime.GOOS, run: execRunner}
}

func (d *DesktopChannel) Name() string { return "desktop" }

func (d *DesktopChannel) Send(ctx context.Context, msg Message) error {
	switch d.goos {
	case "darwin":
		script := `display notification "` + escapeAppleScript(msg.Body) +
			`" with title "` + escapeAppleScript(msg.Title) + `" sound name "default"`
		return d.run(ctx, "osascript", "-e", script)
	case "linux", "freebsd", "openbsd", "netbsd":
		return d.run(ctx, "notify-send", "--app-name=fieldline", msg.Title, msg.Body)
	default:
		return fmt.Errorf("desktop notifications are not supported on %s", d.goos)
	}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
