package inject

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// X11Injector types text via xdotool. The window is raised by name first
// when WindowName is set.
type X11Injector struct {
	WindowName string
}

var _ Injector = (*X11Injector)(nil)

func (x *X11Injector) Inject(ctx context.Context, text string, pressEnter bool) error {
	if x.WindowName != "" {
		cmd := exec.CommandContext(ctx, "xdotool", "search", "--name", x.WindowName, "windowactivate", "--sync")
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("xdotool activate: %s: %w", strings.TrimSpace(string(out)), err)
		}
	}

	args := []string{"type", "--clearmodifiers", "--", text}
	cmd := exec.CommandContext(ctx, "xdotool", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("xdotool type: %s: %w", strings.TrimSpace(string(out)), err)
	}

	if pressEnter {
		cmd := exec.CommandContext(ctx, "xdotool", "key", "Return")
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("xdotool key: %s: %w", strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}
