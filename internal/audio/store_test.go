package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyCodec struct {
	failures int
	writes   int
	saved    []float32
}

func (c *flakyCodec) Write(path string, samples []float32, sampleRate int) error {
	c.writes++
	if c.writes <= c.failures {
		return errors.New("permission denied: file in use")
	}
	c.saved = append([]float32(nil), samples...)
	return nil
}

func (c *flakyCodec) Read(string) ([][]float32, int, error) {
	return [][]float32{c.saved}, SampleRate, nil
}

type recordingPlayer struct {
	clips []Clip
}

func (p *recordingPlayer) Play(_ context.Context, clip Clip) error {
	p.clips = append(p.clips, clip)
	return nil
}

func testStore(codec Codec, player Player, attempts int) *Store {
	return NewStore(codec, player, StoreOptions{
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSaveWithRetryRecovers(t *testing.T) {
	for k := 0; k < 3; k++ {
		codec := &flakyCodec{failures: k}
		store := testStore(codec, nil, 3)

		var notified []int
		ok := store.SaveWithRetry(context.Background(), []float32{0.1, 0.2}, SampleRate, "out.wav",
			func(attempt, max int, err error, delay time.Duration) {
				assert.Equal(t, 3, max)
				assert.Error(t, err)
				notified = append(notified, attempt)
			})

		require.True(t, ok, "k=%d", k)
		assert.Equal(t, k+1, codec.writes)
		assert.Len(t, notified, k)
		for i, attempt := range notified {
			assert.Equal(t, i+1, attempt)
		}
	}
}

func TestSaveWithRetryGivesUp(t *testing.T) {
	codec := &flakyCodec{failures: 100}
	store := testStore(codec, nil, 4)

	delays := 0
	ok := store.SaveWithRetry(context.Background(), []float32{1}, SampleRate, "out.wav",
		func(int, int, error, time.Duration) { delays++ })

	assert.False(t, ok)
	assert.Equal(t, 4, codec.writes)
	assert.Equal(t, 3, delays)
}

func TestNewStoreDefaults(t *testing.T) {
	codec := &flakyCodec{failures: 100}
	store := NewStore(codec, nil, StoreOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Equal(t, DefaultSaveAttempts, store.MaxAttempts())

	ctx, cancel := context.WithCancel(context.Background())
	var delays []time.Duration
	ok := store.SaveWithRetry(ctx, []float32{1}, SampleRate, "out.wav",
		func(_ int, _ int, _ error, delay time.Duration) {
			delays = append(delays, delay)
			cancel()
		})

	assert.False(t, ok)
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, delays)
}

func TestSaveWithRetryHonoursCancel(t *testing.T) {
	codec := &flakyCodec{failures: 100}
	store := NewStore(codec, nil, StoreOptions{
		MaxAttempts: 5,
		RetryDelay:  time.Hour,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	ok := store.SaveWithRetry(ctx, []float32{1}, SampleRate, "out.wav",
		func(int, int, error, time.Duration) { cancel() })

	assert.False(t, ok)
	assert.Equal(t, 1, codec.writes)
}

func TestStoreRoundTripsWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.wav")
	store := testStore(WAVCodec{}, nil, 1)
	samples := []float32{0, 0.25, -0.5, 0.75, -1}

	require.True(t, store.SaveWithRetry(context.Background(), samples, SampleRate, path, nil))

	clip, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, SampleRate, clip.SampleRate)
	assert.Equal(t, Column(samples), clip.Frames)
}

func TestStorePlayDelegates(t *testing.T) {
	player := &recordingPlayer{}
	store := testStore(&flakyCodec{}, player, 1)
	clip := Clip{Frames: Column([]float32{0.5}), SampleRate: SampleRate}

	require.NoError(t, store.Play(context.Background(), clip))
	require.Len(t, player.clips, 1)
	assert.Equal(t, clip, player.clips[0])

	assert.Error(t, testStore(&flakyCodec{}, nil, 1).Play(context.Background(), clip))
}
