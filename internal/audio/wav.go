package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// ErrUnsupportedFormat is returned for WAV encodings the codec cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

// Codec persists and restores waveforms.
type Codec interface {
	Write(path string, samples []float32, sampleRate int) error
	// Read returns channel-major samples and the file's sample rate.
	Read(path string) ([][]float32, int, error)
}

// WAVCodec stores 32-bit IEEE float WAV files.
type WAVCodec struct{}

func (WAVCodec) Write(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeFrames(f, Column(samples), sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeFrames writes a frames × channels matrix as a float WAV stream.
func EncodeFrames(w io.WriteSeeker, frames [][]float32, sampleRate int) error {
	channels := 1
	if len(frames) > 0 && len(frames[0]) > 0 {
		channels = len(frames[0])
	}
	data := make([]int, 0, len(frames)*channels)
	for _, frame := range frames {
		for _, s := range frame {
			data = append(data, int(int32(math.Float32bits(s))))
		}
	}

	enc := wav.NewEncoder(w, sampleRate, 32, channels, wavFormatFloat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 32,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

func (WAVCodec) Read(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	}

	convert, err := sampleConverter(dec.WavAudioFormat, dec.BitDepth)
	if err != nil {
		return nil, 0, err
	}

	frames := len(buf.Data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames*channels; i++ {
		out[i%channels][i/channels] = convert(buf.Data[i])
	}
	return out, int(dec.SampleRate), nil
}

func sampleConverter(format, bitDepth uint16) (func(int) float32, error) {
	switch {
	case format == wavFormatFloat && bitDepth == 32:
		return func(v int) float32 { return math.Float32frombits(uint32(int32(v))) }, nil
	case format == wavFormatPCM && (bitDepth == 16 || bitDepth == 24 || bitDepth == 32):
		scale := float32(int64(1) << (bitDepth - 1))
		return func(v int) float32 { return float32(v) / scale }, nil
	default:
		return nil, fmt.Errorf("%w: format %d, %d-bit", ErrUnsupportedFormat, format, bitDepth)
	}
}
