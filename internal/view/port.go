// Package view holds the presentation adapters the session controller drives.
package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-tts/internal/audio"
)

// ErrInterrupted is returned by input operations when the user aborts (Ctrl-C
// or end of input). The session treats it as a request to exit.
var ErrInterrupted = errors.New("input interrupted")

// Port is everything the session needs from a presentation layer.
type Port interface {
	SetVoices(voices []string)
	GetParams(voice string, speed float64, text string) (string, float64, string, error)
	ShowGeneratedSegment(graphemes, phonemes string)
	PromptPlayAudio() bool
	GetAudio(path string) (audio.Clip, error)
	PlayAudio(ctx context.Context, clip audio.Clip) error
	ShowNoAudioGenerated()
	ShowAvailableVoices(voices []string)
	ShowExit()
	GetMenuSelection(commands []string) (string, error)
	ShowInvalidChoice()
	SaveAudioWithRetry(ctx context.Context, samples []float32, sampleRate int, path string) bool
}

// PlaybackPolicy decides what happens when the audio device fails.
type PlaybackPolicy int

const (
	// PlaybackReport tells the user and carries on.
	PlaybackReport PlaybackPolicy = iota
	// PlaybackPropagate returns the error to the caller.
	PlaybackPropagate
)

// ParsePlaybackPolicy maps the config value onto a policy; empty selects def.
func ParsePlaybackPolicy(value string, def PlaybackPolicy) (PlaybackPolicy, error) {
	switch value {
	case "":
		return def, nil
	case "report":
		return PlaybackReport, nil
	case "propagate":
		return PlaybackPropagate, nil
	default:
		return def, fmt.Errorf("unknown playback policy %q", value)
	}
}
