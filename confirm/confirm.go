// Package confirm asks a human whether a risky transcript may be injected.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Confirmer decides whether a flagged transcript may proceed. Implementations
// block until the user answers or the deadline passes.
type Confirmer interface {
	Confirm(ctx context.Context, transcript, keyword string) (bool, error)
}

// Auto is a Confirmer with a fixed answer, for headless runs and tests.
type Auto bool

var _ Confirmer = Auto(false)

func (a Auto) Confirm(context.Context, string, string) (bool, error) {
	return bool(a), nil
}

// Terminal prompts on a terminal and reads a y/N answer. An unanswered
// prompt is denied once Timeout elapses, so a walked-away user can never
// wedge the pipeline. One reader goroutine serves all prompts for the
// lifetime of the Terminal; a fresh reader per prompt would strand its
// predecessor on In after a timeout, and the stranded read would then
// swallow the answer meant for the next prompt.
type Terminal struct {
	In  io.Reader
	Out io.Writer
	// Timeout bounds how long the prompt may wait. Zero means DefaultTimeout.
	Timeout time.Duration

	once    sync.Once
	answers chan bool
}

// DefaultTimeout is applied when Terminal.Timeout is unset.
const DefaultTimeout = 30 * time.Second

var _ Confirmer = (*Terminal)(nil)

func (t *Terminal) start() {
	t.answers = make(chan bool)
	go func() {
		defer close(t.answers)
		reader := bufio.NewReader(t.In)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				t.answers <- true
			default:
				t.answers <- false
			}
		}
	}()
}

func (t *Terminal) Confirm(ctx context.Context, transcript, keyword string) (bool, error) {
	t.once.Do(t.start)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fmt.Fprintf(t.Out, "Risky keyword %q detected.\n\nTranscript:\n%s\n\nInject anyway? [y/N] ", keyword, transcript)

	select {
	case approved := <-t.answers:
		return approved, nil
	case <-ctx.Done():
		fmt.Fprintln(t.Out, "\nno answer, denying")
		return false, nil
	}
}
