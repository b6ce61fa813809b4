package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFramesTransposesChannelMajor(t *testing.T) {
	channelMajor := [][]float32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	}
	want := [][]float32{{1, 5}, {2, 6}, {3, 7}, {4, 8}}
	assert.Equal(t, want, ToFrames(channelMajor))

	// already frames × channels
	assert.Equal(t, want, ToFrames(want))
	assert.Empty(t, ToFrames(nil))
}

func TestColumn(t *testing.T) {
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, Column([]float32{0.1, 0.2}))
	assert.Equal(t, 1, Clip{Frames: Column([]float32{1})}.Channels())
	assert.Equal(t, 0, Clip{}.Channels())
}

func TestConcatPreservesOrder(t *testing.T) {
	got := Concat([][]float32{{1, 2}, {3}, {4, 5, 6}})
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got)
	assert.Empty(t, Concat(nil))
}

func TestWAVCodecStereoReadsChannelMajor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	frames := [][]float32{{0.1, -0.1}, {0.2, -0.2}, {0.3, -0.3}}
	require.NoError(t, EncodeFrames(f, frames, 22050))
	require.NoError(t, f.Close())

	data, rate, err := WAVCodec{}.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, rate)
	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}, {-0.1, -0.2, -0.3}}, data)
	assert.Equal(t, frames, ToFrames(data))
}

func TestWAVCodecMissingFile(t *testing.T) {
	_, _, err := WAVCodec{}.Read(filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewExecPlayerParsesCommand(t *testing.T) {
	p, err := NewExecPlayer(`ffplay -nodisp -autoexit -loglevel "quiet"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}, p.command)

	p, err = NewExecPlayer("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.command)

	_, err = NewExecPlayer(`aplay "unterminated`)
	assert.Error(t, err)
}
