// Package inject types transcribed text into the focused application using
// platform keystroke automation.
package inject

import (
	"context"
	"fmt"
	"runtime"
)

// Injector delivers text to the active input field, optionally followed by
// an activation/submit keystroke.
type Injector interface {
	Inject(ctx context.Context, text string, pressEnter bool) error
}

// ErrUnsupportedPlatform is returned by New on platforms with no injector.
type ErrUnsupportedPlatform struct {
	GOOS string
}

func (e *ErrUnsupportedPlatform) Error() string {
	return fmt.Sprintf("no injector for platform %s", e.GOOS)
}

// New selects the injector variant for the current platform, once, at
// startup. targetApp names the application window to focus before typing.
func New(targetApp string) (Injector, error) {
	switch runtime.GOOS {
	case "darwin":
		return &MacInjector{App: targetApp}, nil
	case "windows":
		return &WindowsInjector{TitlePattern: targetApp}, nil
	case "linux":
		return &X11Injector{WindowName: targetApp}, nil
	default:
		return nil, &ErrUnsupportedPlatform{GOOS: runtime.GOOS}
	}
}
