package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = string(openai.AudioModelWhisper1)

// OpenAI transcribes audio through the OpenAI audio transcriptions API.
//
// It also works against any OpenAI-compatible endpoint (e.g. a local
// whisper server) by setting WithBaseURL.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

// Option configures the OpenAI transcriber.
type Option func(*config)

type config struct {
	model    string
	language string
	baseURL  string
}

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage hints the spoken language (ISO 639-1).
func WithLanguage(language string) Option {
	return func(c *config) { c.language = language }
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(baseURL string) Option {
	return func(c *config) { c.baseURL = baseURL }
}

// NewOpenAI creates an OpenAI-backed transcriber.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{model: defaultModel}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAI{
		client:   &client,
		model:    cfg.model,
		language: cfg.language,
	}
}

// Model returns the configured model identifier.
func (o *OpenAI) Model() string {
	return o.model
}

// Transcribe sends one PCM16 mono chunk for transcription and returns the
// text with latency metadata.
func (o *OpenAI) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	start := time.Now()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(EncodeWAV(pcm, sampleRate)), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}

	transcription, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("transcribing audio: %w", err)
	}

	return Result{
		Text: strings.TrimSpace(transcription.Text),
		// The transcriptions API reports no per-utterance confidence, so a
		// successful response is treated as fully confident.
		Confidence: 1.0,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}
