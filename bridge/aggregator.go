package bridge

import (
	"context"
	"sync"
)

// DefaultThreshold is 3 seconds of 16 kHz, 16-bit mono PCM.
const DefaultThreshold = 96000

// Aggregator accumulates one session's decrypted audio and dispatches the
// whole buffer through the pipeline when it reaches the threshold. Dispatch
// happens on the caller's goroutine and does not return until the chunk's
// pipeline run completes, so a fast producer stalls at the threshold
// boundary instead of piling up unprocessed audio.
type Aggregator struct {
	pipeline  *Pipeline
	threshold int

	// dispatch serializes pipeline runs: a second connection bound to the
	// same session token must not overlap its chunk with one in flight.
	dispatch sync.Mutex

	mu  sync.Mutex
	buf []byte
}

// NewAggregator creates an aggregator over the shared pipeline. A threshold
// of 0 or less means DefaultThreshold.
func NewAggregator(pipeline *Pipeline, threshold int) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Aggregator{pipeline: pipeline, threshold: threshold}
}

// HandleAudio appends decrypted bytes. Below the threshold it returns
// immediately; at or over, the entire buffer is extracted as one chunk,
// reset, and processed to completion.
func (a *Aggregator) HandleAudio(ctx context.Context, pcm []byte) error {
	a.mu.Lock()
	a.buf = append(a.buf, pcm...)
	if len(a.buf) < a.threshold {
		a.mu.Unlock()
		return nil
	}
	chunk := a.buf
	a.buf = nil
	a.mu.Unlock()

	a.dispatch.Lock()
	defer a.dispatch.Unlock()
	return a.pipeline.Process(ctx, chunk)
}

// Flush processes whatever partial chunk remains, e.g. on push-to-talk
// release or connection close. Empty buffer is a no-op.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.buf) == 0 {
		a.mu.Unlock()
		return nil
	}
	chunk := a.buf
	a.buf = nil
	a.mu.Unlock()

	a.dispatch.Lock()
	defer a.dispatch.Unlock()
	return a.pipeline.Process(ctx, chunk)
}

// Len reports the currently buffered byte count.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Registry hands out one aggregator per session token, so concurrent
// devices never interleave audio into the same buffer.
type Registry struct {
	pipeline  *Pipeline
	threshold int

	mu   sync.Mutex
	aggs map[string]*Aggregator
}

// NewRegistry creates an empty registry over the shared pipeline.
func NewRegistry(pipeline *Pipeline, threshold int) *Registry {
	return &Registry{
		pipeline:  pipeline,
		threshold: threshold,
		aggs:      make(map[string]*Aggregator),
	}
}

// For returns the aggregator for a session token, creating it on first use.
func (r *Registry) For(token string) *Aggregator {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggs[token]
	if !ok {
		agg = NewAggregator(r.pipeline, r.threshold)
		r.aggs[token] = agg
	}
	return agg
}

// Release flushes and removes a session's aggregator. Safe to call for a
// token that was never seen.
func (r *Registry) Release(ctx context.Context, token string) error {
	r.mu.Lock()
	agg, ok := r.aggs[token]
	delete(r.aggs, token)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return agg.Flush(ctx)
}

// Len reports how many session aggregators are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aggs)
}
