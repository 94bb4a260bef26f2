package inject

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// WindowsInjector types text via the WScript.Shell SendKeys automation
// interface, driven through PowerShell.
type WindowsInjector struct {
	// TitlePattern matches the window title to focus before typing.
	TitlePattern string
}

var _ Injector = (*WindowsInjector)(nil)

func (w *WindowsInjector) Inject(ctx context.Context, text string, pressEnter bool) error {
	script := w.script(text, pressEnter)
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("powershell sendkeys: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// sendKeysEscape escapes characters SendKeys treats as control syntax.
func sendKeysEscape(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			sb.WriteRune('{')
			sb.WriteRune(r)
			sb.WriteRune('}')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (w *WindowsInjector) script(text string, pressEnter bool) string {
	keys := sendKeysEscape(text)
	if pressEnter {
		keys += "{ENTER}"
	}
	keys = strings.ReplaceAll(keys, "'", "''")
	pattern := strings.ReplaceAll(w.TitlePattern, "'", "''")
	return fmt.Sprintf(
		"$shell = New-Object -ComObject WScript.Shell; "+
			"[void]$shell.AppActivate('%s'); "+
			"$shell.SendKeys('%s')",
		pattern, keys,
	)
}
