// Package bridge buffers decrypted audio and drives each accumulated chunk
// through the transcribe, risk-screen, confirm, inject, and audit stages.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mozhi/agent/audit"
	"github.com/mozhi/agent/confirm"
	"github.com/mozhi/agent/inject"
	"github.com/mozhi/agent/risk"
	"github.com/mozhi/agent/stt"
)

const defaultMaxWorkers = 2

// Pipeline executes the processing stages for one audio chunk, strictly in
// order. It is shared by every session's aggregator; the worker slots bound
// how many transcriptions run at once across sessions.
type Pipeline struct {
	transcriber stt.Transcriber
	filter      *risk.Filter
	confirmer   confirm.Confirmer
	injector    inject.Injector
	sink        audit.Sink
	logger      *slog.Logger
	autoSend    bool
	slots       chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger. Defaults to a JSON logger on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithAutoSend controls whether injection is followed by a submit keystroke.
func WithAutoSend(autoSend bool) Option {
	return func(p *Pipeline) { p.autoSend = autoSend }
}

// WithMaxWorkers caps concurrent transcriptions.
func WithMaxWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.slots = make(chan struct{}, n)
		}
	}
}

// NewPipeline wires the collaborators into a pipeline.
func NewPipeline(transcriber stt.Transcriber, filter *risk.Filter, confirmer confirm.Confirmer, injector inject.Injector, sink audit.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber: transcriber,
		filter:      filter,
		confirmer:   confirmer,
		injector:    injector,
		sink:        sink,
		autoSend:    true,
		slots:       make(chan struct{}, defaultMaxWorkers),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	p.logger = p.logger.With("component", "bridge")
	return p
}

// Process runs one extracted chunk through every stage. A failing
// collaborator aborts this chunk only; the caller logs the error and keeps
// its connection alive for the next one.
func (p *Pipeline) Process(ctx context.Context, chunk []byte) error {
	result, err := p.transcribe(ctx, chunk)
	if err != nil {
		return fmt.Errorf("transcribe stage: %w", err)
	}
	// Silence and model hallucination guards: nothing to act on.
	if result.Text == "" {
		return nil
	}

	entry := audit.NewEntry(audit.ActionTranscribed, result.Text,
		fmt.Sprintf("confidence=%.3f,latency_ms=%d", result.Confidence, result.LatencyMS))
	if err := p.sink.Append(entry); err != nil {
		return fmt.Errorf("audit stage: %w", err)
	}
	p.logger.Info("transcription completed",
		"text", result.Text,
		"confidence", result.Confidence,
		"latency_ms", result.LatencyMS,
	)

	decision := p.filter.Evaluate(result.Text)
	if decision.NeedsConfirmation {
		keyword := decision.Keyword
		if keyword == "" {
			keyword = "unknown"
		}
		approved, err := p.confirmer.Confirm(ctx, result.Text, keyword)
		if err != nil {
			// An unanswerable prompt is a denial, never a pass-through.
			p.logger.Error("confirmation failed, denying", "error", err)
			approved = false
		}

		action := audit.ActionConfirmed
		if !approved {
			action = audit.ActionBlocked
		}
		entry := audit.NewEntry(action, result.Text, "keyword="+decision.Keyword)
		if err := p.sink.Append(entry); err != nil {
			return fmt.Errorf("audit stage: %w", err)
		}
		if !approved {
			p.logger.Warn("injection blocked", "keyword", decision.Keyword)
			return nil
		}
	}

	if err := p.injector.Inject(ctx, result.Text, p.autoSend); err != nil {
		return fmt.Errorf("inject stage: %w", err)
	}
	entry = audit.NewEntry(audit.ActionInjected, result.Text, fmt.Sprintf("auto_send=%t", p.autoSend))
	if err := p.sink.Append(entry); err != nil {
		return fmt.Errorf("audit stage: %w", err)
	}
	return nil
}

// transcribe runs the CPU-heavy stage under a worker slot so concurrent
// sessions cannot saturate the host.
func (p *Pipeline) transcribe(ctx context.Context, chunk []byte) (stt.Result, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	}
	defer func() { <-p.slots }()
	return p.transcriber.Transcribe(ctx, chunk, stt.SampleRate)
}
