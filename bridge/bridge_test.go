package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozhi/agent/audit"
	"github.com/mozhi/agent/confirm"
	"github.com/mozhi/agent/risk"
	"github.com/mozhi/agent/stt"
)

type stubTranscriber struct {
	mu     sync.Mutex
	text   string
	err    error
	chunks [][]byte
}

func (s *stubTranscriber) Transcribe(_ context.Context, pcm []byte, _ int) (stt.Result, error) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), pcm...))
	s.mu.Unlock()
	if s.err != nil {
		return stt.Result{}, s.err
	}
	return stt.Result{Text: s.text, Confidence: 0.9, LatencyMS: 12}, nil
}

type stubInjector struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubInjector) Inject(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	return s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestPipeline(transcriber stt.Transcriber, confirmer confirm.Confirmer, injector *stubInjector, sink audit.Sink) *Pipeline {
	return NewPipeline(
		transcriber,
		risk.NewFilter(risk.DefaultKeywords, true),
		confirmer,
		injector,
		sink,
		WithLogger(quietLogger()),
	)
}

func TestAggregatorThreshold(t *testing.T) {
	tr := &stubTranscriber{text: "hello"}
	inj := &stubInjector{}
	sink := audit.NewMemorySink()
	agg := NewAggregator(newTestPipeline(tr, confirm.Auto(true), inj, sink), 0)

	ctx := context.Background()

	// 96,000 bytes split unevenly must produce exactly one dispatch with
	// every byte in receipt order.
	payload := make([]byte, DefaultThreshold)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	splits := []int{1, 4093, 32000, 95999 - 1 - 4093 - 32000, 1}
	offset := 0
	for _, n := range splits {
		require.NoError(t, agg.HandleAudio(ctx, payload[offset:offset+n]))
		offset += n
	}
	require.Equal(t, DefaultThreshold, offset)

	require.Len(t, tr.chunks, 1)
	require.True(t, bytes.Equal(payload, tr.chunks[0]), "dispatched chunk must be the full buffer in order")
	require.Equal(t, 0, agg.Len())
}

// blockingTranscriber parks every call on gate and records the highest
// number of calls that were ever in flight at once.
type blockingTranscriber struct {
	gate     chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *blockingTranscriber) Transcribe(_ context.Context, _ []byte, _ int) (stt.Result, error) {
	n := b.inFlight.Add(1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	<-b.gate
	b.inFlight.Add(-1)
	return stt.Result{Text: "hello", Confidence: 0.9, LatencyMS: 12}, nil
}

func TestAggregatorSerializesDispatch(t *testing.T) {
	tr := &blockingTranscriber{gate: make(chan struct{})}
	inj := &stubInjector{}
	agg := NewAggregator(newTestPipeline(tr, confirm.Auto(true), inj, audit.NewMemorySink()), 4)

	// Two writers crossing the threshold back to back, as when a second
	// connection binds to the same session token.
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = agg.HandleAudio(ctx, []byte("pcmx"))
		}()
	}

	// Give both goroutines time to reach dispatch, then release the parked
	// transcriptions one at a time.
	time.Sleep(50 * time.Millisecond)
	tr.gate <- struct{}{}
	tr.gate <- struct{}{}
	wg.Wait()

	require.Equal(t, int32(1), tr.maxSeen.Load(), "chunk pipelines on one aggregator must not overlap")
	require.Equal(t, []string{"hello", "hello"}, inj.calls)
}

func TestAggregatorFlush(t *testing.T) {
	tr := &stubTranscriber{text: "hello"}
	inj := &stubInjector{}
	agg := NewAggregator(newTestPipeline(tr, confirm.Auto(true), inj, audit.NewMemorySink()), 0)

	ctx := context.Background()
	partial := make([]byte, DefaultThreshold-1)
	require.NoError(t, agg.HandleAudio(ctx, partial))
	require.Empty(t, tr.chunks, "below threshold there must be no dispatch")

	require.NoError(t, agg.Flush(ctx))
	require.Len(t, tr.chunks, 1)
	require.Len(t, tr.chunks[0], DefaultThreshold-1)
	require.Equal(t, 0, agg.Len())

	// Flushing an empty buffer is a no-op.
	require.NoError(t, agg.Flush(ctx))
	require.Len(t, tr.chunks, 1)
}

func TestPipelineBlockedOnDecline(t *testing.T) {
	tr := &stubTranscriber{text: "delete the logs"}
	inj := &stubInjector{}
	sink := audit.NewMemorySink()
	p := newTestPipeline(tr, confirm.Auto(false), inj, sink)

	require.NoError(t, p.Process(context.Background(), []byte("pcm")))

	entries, err := sink.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionTranscribed, entries[0].Action)
	require.Equal(t, audit.ActionBlocked, entries[1].Action)
	require.Contains(t, entries[1].Details, "keyword=delete")
	require.Empty(t, inj.calls, "a declined transcript must never be injected")
}

func TestPipelineConfirmedAndInjected(t *testing.T) {
	tr := &stubTranscriber{text: "delete the logs"}
	inj := &stubInjector{}
	sink := audit.NewMemorySink()
	p := newTestPipeline(tr, confirm.Auto(true), inj, sink)

	require.NoError(t, p.Process(context.Background(), []byte("pcm")))

	entries, err := sink.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, audit.ActionTranscribed, entries[0].Action)
	require.Equal(t, audit.ActionConfirmed, entries[1].Action)
	require.Equal(t, audit.ActionInjected, entries[2].Action)
	require.Contains(t, entries[2].Details, "auto_send=true")
	require.Equal(t, []string{"delete the logs"}, inj.calls)
}

func TestPipelineCleanTranscriptSkipsConfirmation(t *testing.T) {
	tr := &stubTranscriber{text: "hello there"}
	inj := &stubInjector{}
	sink := audit.NewMemorySink()
	p := newTestPipeline(tr, confirm.Auto(false), inj, sink)

	require.NoError(t, p.Process(context.Background(), []byte("pcm")))

	entries, err := sink.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionTranscribed, entries[0].Action)
	require.Equal(t, audit.ActionInjected, entries[1].Action)
	require.Equal(t, []string{"hello there"}, inj.calls)
}

func TestPipelineDropsEmptyTranscript(t *testing.T) {
	tr := &stubTranscriber{text: ""}
	inj := &stubInjector{}
	sink := audit.NewMemorySink()
	p := newTestPipeline(tr, confirm.Auto(true), inj, sink)

	require.NoError(t, p.Process(context.Background(), []byte("pcm")))

	entries, err := sink.List()
	require.NoError(t, err)
	require.Empty(t, entries, "empty transcript leaves no audit trail")
	require.Empty(t, inj.calls)
}

func TestPipelineCollaboratorFailureIsContained(t *testing.T) {
	tr := &stubTranscriber{err: errors.New("model crashed")}
	inj := &stubInjector{}
	agg := NewAggregator(newTestPipeline(tr, confirm.Auto(true), inj, audit.NewMemorySink()), 4)

	ctx := context.Background()
	err := agg.HandleAudio(ctx, []byte("pcm1"))
	require.Error(t, err)

	// The failure consumed its chunk; the aggregator keeps working.
	tr.err = nil
	tr.text = "hello"
	require.NoError(t, agg.HandleAudio(ctx, []byte("pcm2")))
	require.Len(t, tr.chunks, 2)
}

func TestPipelineInjectionFailure(t *testing.T) {
	tr := &stubTranscriber{text: "hello"}
	inj := &stubInjector{err: errors.New("window not found")}
	sink := audit.NewMemorySink()
	p := newTestPipeline(tr, confirm.Auto(true), inj, sink)

	err := p.Process(context.Background(), []byte("pcm"))
	require.ErrorContains(t, err, "inject stage")

	entries, listErr := sink.List()
	require.NoError(t, listErr)
	require.Len(t, entries, 1, "only the transcribed entry exists when injection fails")
	require.Equal(t, audit.ActionTranscribed, entries[0].Action)
}

func TestRegistryPerSessionIsolation(t *testing.T) {
	tr := &stubTranscriber{text: "hello"}
	inj := &stubInjector{}
	reg := NewRegistry(newTestPipeline(tr, confirm.Auto(true), inj, audit.NewMemorySink()), 8)

	ctx := context.Background()
	require.NoError(t, reg.For("tok-a").HandleAudio(ctx, []byte("aaaa")))
	require.NoError(t, reg.For("tok-b").HandleAudio(ctx, []byte("bbbb")))
	require.Empty(t, tr.chunks, "neither session reached its own threshold")
	require.Equal(t, 2, reg.Len())

	require.Same(t, reg.For("tok-a"), reg.For("tok-a"))

	require.NoError(t, reg.For("tok-a").HandleAudio(ctx, []byte("aaaa")))
	require.Len(t, tr.chunks, 1)
	require.Equal(t, []byte("aaaaaaaa"), tr.chunks[0])

	require.NoError(t, reg.Release(ctx, "tok-b"))
	require.Len(t, tr.chunks, 2)
	require.Equal(t, []byte("bbbb"), tr.chunks[1])
	require.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Release(ctx, "never-seen"))
}
