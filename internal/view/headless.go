package view

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

type HeadlessOptions struct {
	Store    *audio.Store
	Playback PlaybackPolicy
	// Script is the sequence of menu selections to replay. Once a non-empty
	// script is exhausted the menu reports ErrInterrupted.
	Script []string
	// NoPlayback answers the play prompt with no.
	NoPlayback bool
	Logger     *slog.Logger
}

// Headless drives a session without a terminal. It never blocks on input and
// writes nothing to stdout.
type Headless struct {
	store      *audio.Store
	playback   PlaybackPolicy
	script     []string
	scripted   bool
	noPlayback bool
	voices     []string
	log        *slog.Logger

	// Last* record what the session would have shown a user.
	LastGraphemes string
	LastPhonemes  string
	NoAudio       int
	InvalidChoice int
}

func NewHeadless(opts HeadlessOptions) *Headless {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Headless{
		store:      opts.Store,
		playback:   opts.Playback,
		script:     append([]string(nil), opts.Script...),
		scripted:   len(opts.Script) > 0,
		noPlayback: opts.NoPlayback,
		log:        log.With(slog.String("component", "headless")),
	}
}

func (h *Headless) SetVoices(voices []string) {
	h.voices = append([]string(nil), voices...)
}

// GetParams returns the supplied values with speed clamped into range.
func (h *Headless) GetParams(voice string, speed float64, text string) (string, float64, string, error) {
	return voice, tts.ClampSpeed(speed), text, nil
}

func (h *Headless) ShowGeneratedSegment(graphemes, phonemes string) {
	h.LastGraphemes, h.LastPhonemes = graphemes, phonemes
	h.log.Debug("generated segment", slog.String("graphemes", graphemes), slog.String("phonemes", phonemes))
}

func (h *Headless) PromptPlayAudio() bool { return !h.noPlayback }

func (h *Headless) GetAudio(path string) (audio.Clip, error) {
	return h.store.Load(path)
}

func (h *Headless) PlayAudio(ctx context.Context, clip audio.Clip) error {
	if err := h.store.Play(ctx, clip); err != nil {
		if h.playback == PlaybackReport {
			h.log.Warn("playback failed", slog.String("error", err.Error()))
			return nil
		}
		return err
	}
	return nil
}

func (h *Headless) ShowNoAudioGenerated() {
	h.NoAudio++
	h.log.Debug("no audio generated")
}

func (h *Headless) ShowAvailableVoices(voices []string) {
	h.log.Debug("available voices", slog.Any("voices", voices))
}

func (h *Headless) ShowExit() {
	h.log.Debug("exit")
}

// GetMenuSelection replays the script, or returns the first registered
// command when no script was supplied.
func (h *Headless) GetMenuSelection(commands []string) (string, error) {
	if h.scripted {
		if len(h.script) == 0 {
			return "", ErrInterrupted
		}
		next := h.script[0]
		h.script = h.script[1:]
		return next, nil
	}
	if len(commands) == 0 {
		return "", nil
	}
	return commands[0], nil
}

func (h *Headless) ShowInvalidChoice() {
	h.InvalidChoice++
	h.log.Debug("invalid choice")
}

func (h *Headless) SaveAudioWithRetry(ctx context.Context, samples []float32, sampleRate int, path string) bool {
	return h.store.SaveWithRetry(ctx, samples, sampleRate, path, func(attempt, maxAttempts int, err error, delay time.Duration) {
		h.log.Debug("retrying audio save",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
		)
	})
}
