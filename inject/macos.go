package inject

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// MacInjector types text via AppleScript System Events keystrokes.
type MacInjector struct {
	// App is the application to activate before typing.
	App string
}

var _ Injector = (*MacInjector)(nil)

func (m *MacInjector) Inject(ctx context.Context, text string, pressEnter bool) error {
	script := m.script(text, pressEnter)
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (m *MacInjector) script(text string, pressEnter bool) string {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	lines := []string{
		fmt.Sprintf("tell application %q to activate", m.App),
		`tell application "System Events"`,
		fmt.Sprintf("keystroke \"%s\"", escaped),
	}
	if pressEnter {
		lines = append(lines, "key code 36")
	}
	lines = append(lines, "end tell")
	return strings.Join(lines, "\n")
}
