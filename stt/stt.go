// Package stt turns raw PCM audio into transcript text via a
// Whisper-compatible speech-to-text backend.
package stt

import "context"

// Transcriber is the interface implemented by speech-to-text backends.
type Transcriber interface {
	// Transcribe converts one PCM16 mono chunk at the given sample rate
	// into text.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}

// Result is one transcription outcome.
type Result struct {
	Text string
	// Confidence is in [0, 1].
	Confidence float64
	LatencyMS  int64
}

// SampleRate is the fixed input rate the agent receives from clients:
// 16 kHz, 16-bit mono PCM.
const SampleRate = 16000
