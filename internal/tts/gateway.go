package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Gateway is the single entry point to the synthesis model. It normalizes
// whatever the backend returns so callers never see a nil model without an
// error or a nil segment list.
type Gateway struct {
	backend Backend
	log     *slog.Logger
}

func NewGateway(backend Backend, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{backend: backend, log: log.With(slog.String("component", "tts-gateway"))}
}

// Build loads a model. It is a single blocking attempt; failures wrap
// ErrBuildFailed.
func (g *Gateway) Build(ctx context.Context, opts BuildOptions) (Model, error) {
	start := time.Now()
	model, err := g.backend.Build(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: backend returned no model", ErrBuildFailed)
	}
	g.log.Info("model ready",
		slog.String("model_path", opts.ModelPath),
		slog.String("device", opts.Device),
		slog.Duration("elapsed", time.Since(start)),
	)
	return model, nil
}

func (g *Gateway) Voices(ctx context.Context, model Model) ([]string, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	voices, err := model.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	if voices == nil {
		voices = []string{}
	}
	return voices, nil
}

// Synthesize renders text with the given voice. Speed is clamped before it
// reaches the model.
func (g *Gateway) Synthesize(ctx context.Context, model Model, text, voice string, speed float64) (Result, error) {
	if model == nil {
		return Result{}, ErrNoModel
	}
	req := Request{Text: text, Voice: voice, Speed: ClampSpeed(speed)}
	segments, err := model.Synthesize(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize: %w", err)
	}

	result := Result{Segments: make([][]float32, 0, len(segments))}
	var graphemes, phonemes []string
	for _, seg := range segments {
		if len(seg.Samples) == 0 {
			continue
		}
		result.Segments = append(result.Segments, seg.Samples)
		if seg.Graphemes != "" {
			graphemes = append(graphemes, seg.Graphemes)
		}
		if seg.Phonemes != "" {
			phonemes = append(phonemes, seg.Phonemes)
		}
	}
	result.Graphemes = strings.Join(graphemes, " ")
	result.Phonemes = strings.Join(phonemes, " ")

	g.log.Debug("synthesis complete",
		slog.String("voice", req.Voice),
		slog.Float64("speed", req.Speed),
		slog.Int("segments", len(result.Segments)),
	)
	return result, nil
}
