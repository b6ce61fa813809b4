package tts

import (
	"context"
	"errors"
)

var (
	// ErrBuildFailed wraps every model construction failure.
	ErrBuildFailed = errors.New("model build failed")
	ErrNoModel     = errors.New("no model loaded")
	ErrModelClosed = errors.New("model closed")
)

// BuildOptions selects the weights and runtime for a model.
type BuildOptions struct {
	ModelPath string
	Device    string // auto, cuda or cpu
	Language  string
	Quiet     bool
}

type Request struct {
	Text  string
	Voice string
	Speed float64
}

// Segment is one chunk of synthesized speech with the text it came from.
type Segment struct {
	Graphemes string
	Phonemes  string
	Samples   []float32
}

// Result is the normalized outcome of a synthesis call. An empty Segments
// slice means no audio was produced.
type Result struct {
	Segments  [][]float32
	Graphemes string
	Phonemes  string
}

// Empty reports whether the result carries no audio.
func (r Result) Empty() bool { return len(r.Segments) == 0 }

// Model is a loaded synthesis model.
type Model interface {
	Voices(ctx context.Context) ([]string, error)
	Synthesize(ctx context.Context, req Request) ([]Segment, error)
	Close() error
}

// Backend constructs models.
type Backend interface {
	Build(ctx context.Context, opts BuildOptions) (Model, error)
}
