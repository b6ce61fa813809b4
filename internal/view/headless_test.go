package view

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessClampsSpeedToNearestBound(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Logger: discardLogger()})
	cases := map[float64]float64{0.1: 0.5, 0.5: 0.5, 1.7: 1.7, 2.0: 2.0, 5: 2.0}
	for in, want := range cases {
		voice, speed, text, err := h.GetParams("af_sky", in, "hi")
		require.NoError(t, err)
		assert.Equal(t, "af_sky", voice)
		assert.Equal(t, "hi", text)
		assert.Equal(t, want, speed, "speed %v", in)
	}

	_, speed, _, err := h.GetParams("af_sky", math.NaN(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2.0, speed)
}

func TestHeadlessMenuDefaultsToFirstCommand(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Logger: discardLogger()})
	for i := 0; i < 3; i++ {
		choice, err := h.GetMenuSelection([]string{"list", "generate", "play", "exit"})
		require.NoError(t, err)
		assert.Equal(t, "list", choice)
	}
	choice, err := h.GetMenuSelection(nil)
	require.NoError(t, err)
	assert.Empty(t, choice)
}

func TestHeadlessMenuReplaysScript(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Script: []string{"generate", "exit"}, Logger: discardLogger()})
	commands := []string{"list", "generate", "play", "exit"}

	choice, err := h.GetMenuSelection(commands)
	require.NoError(t, err)
	assert.Equal(t, "generate", choice)
	choice, err = h.GetMenuSelection(commands)
	require.NoError(t, err)
	assert.Equal(t, "exit", choice)

	_, err = h.GetMenuSelection(commands)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestHeadlessPlaybackPropagatesByDefault(t *testing.T) {
	player := &fakePlayer{err: errors.New("device busy")}
	h := NewHeadless(HeadlessOptions{Store: newTestStore(player), Playback: PlaybackPropagate, Logger: discardLogger()})
	clip := audio.Clip{Frames: audio.Column([]float32{0.1}), SampleRate: audio.SampleRate}

	assert.EqualError(t, h.PlayAudio(context.Background(), clip), "device busy")

	h.playback = PlaybackReport
	assert.NoError(t, h.PlayAudio(context.Background(), clip))
}

func TestHeadlessRecordsNotices(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Store: newTestStore(nil), Logger: discardLogger()})
	assert.True(t, h.PromptPlayAudio())
	assert.False(t, NewHeadless(HeadlessOptions{NoPlayback: true, Logger: discardLogger()}).PromptPlayAudio())

	h.ShowGeneratedSegment("Hello", "həlˈO")
	h.ShowNoAudioGenerated()
	h.ShowInvalidChoice()
	h.ShowAvailableVoices([]string{"af_bella"})
	h.ShowExit()

	assert.Equal(t, "Hello", h.LastGraphemes)
	assert.Equal(t, "həlˈO", h.LastPhonemes)
	assert.Equal(t, 1, h.NoAudio)
	assert.Equal(t, 1, h.InvalidChoice)

	path := filepath.Join(t.TempDir(), "out.wav")
	require.True(t, h.SaveAudioWithRetry(context.Background(), []float32{0.25}, audio.SampleRate, path))
	clip, err := h.GetAudio(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.25}}, clip.Frames)
}
