package tts

import (
	"context"
	"math"
	"strings"
	"sync"
)

const mockSampleRate = 24000

// MockBackend produces a short sine tone per non-empty line of text. It needs
// no model weights and is used for demos and tests.
type MockBackend struct {
	voices []string
}

func NewMockBackend(voices []string) *MockBackend {
	return &MockBackend{voices: append([]string(nil), voices...)}
}

func (b *MockBackend) Build(ctx context.Context, _ BuildOptions) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockModel{voices: b.voices}, nil
}

type mockModel struct {
	mu     sync.Mutex
	voices []string
	closed bool
}

func (m *mockModel) Voices(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelClosed
	}
	return append([]string(nil), m.voices...), nil
}

func (m *mockModel) Synthesize(ctx context.Context, req Request) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelClosed
	}
	freq := 220.0
	for i, v := range m.voices {
		if v == req.Voice {
			freq += 40 * float64(i)
		}
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}

	var segments []Segment
	for _, line := range strings.Split(req.Text, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := int(float64(len([]rune(line))) * 0.06 * mockSampleRate / speed)
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/mockSampleRate))
		}
		segments = append(segments, Segment{
			Graphemes: line,
			Phonemes:  strings.ToLower(line),
			Samples:   samples,
		})
	}
	return segments, nil
}

func (m *mockModel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
