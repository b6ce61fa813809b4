package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultSaveAttempts = 3
	DefaultRetryDelay   = time.Second
)

// RetryNotify is told about a failed attempt before the store waits delay and
// tries again.
type RetryNotify func(attempt, maxAttempts int, err error, delay time.Duration)

type StoreOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Store persists, loads and plays audio for a session.
type Store struct {
	codec       Codec
	player      Player
	maxAttempts int
	retryDelay  time.Duration
	log         *slog.Logger
}

func NewStore(codec Codec, player Player, opts StoreOptions) *Store {
	if codec == nil {
		codec = WAVCodec{}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultSaveAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		codec:       codec,
		player:      player,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		log:         log.With(slog.String("component", "audio-store")),
	}
}

func (s *Store) MaxAttempts() int { return s.maxAttempts }

// SaveWithRetry writes samples to path, retrying with a fixed delay. It
// reports false once every attempt has failed or ctx is cancelled.
func (s *Store) SaveWithRetry(ctx context.Context, samples []float32, sampleRate int, path string, notify RetryNotify) bool {
	attempt := 0
	write := func() (struct{}, error) {
		attempt++
		return struct{}{}, s.codec.Write(path, samples, sampleRate)
	}
	onRetry := func(err error, delay time.Duration) {
		s.log.Warn("audio save failed",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxAttempts),
			slog.String("error", err.Error()),
		)
		if notify != nil {
			notify(attempt, s.maxAttempts, err, delay)
		}
	}

	_, err := backoff.Retry(ctx, write,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(onRetry),
	)
	if err != nil {
		s.log.Error("audio save abandoned",
			slog.String("path", path),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
		return false
	}
	s.log.Debug("audio saved", slog.String("path", path), slog.Int("samples", len(samples)))
	return true
}

// Load reads path as frames × channels.
func (s *Store) Load(path string) (Clip, error) {
	data, rate, err := s.codec.Read(path)
	if err != nil {
		return Clip{}, fmt.Errorf("load audio %s: %w", path, err)
	}
	if len(data) == 1 {
		return Clip{Frames: Column(data[0]), SampleRate: rate}, nil
	}
	return Clip{Frames: ToFrames(data), SampleRate: rate}, nil
}

func (s *Store) Play(ctx context.Context, clip Clip) error {
	if s.player == nil {
		return fmt.Errorf("no audio player configured")
	}
	return s.player.Play(ctx, clip)
}
