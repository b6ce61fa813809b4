package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// NATSBackend talks to a loqa-ttsd worker hosting the model.
type NATSBackend struct {
	conn    *nats.Conn
	timeout time.Duration
	log     *slog.Logger
}

func NewNATSBackend(conn *nats.Conn, timeout time.Duration, log *slog.Logger) *NATSBackend {
	if log == nil {
		log = slog.Default()
	}
	return &NATSBackend{conn: conn, timeout: timeout, log: log.With(slog.String("component", "tts-nats"))}
}

func (b *NATSBackend) Build(ctx context.Context, opts BuildOptions) (Model, error) {
	var reply protocol.BuildReply
	req := protocol.BuildRequest{
		ModelPath: opts.ModelPath,
		Device:    opts.Device,
		Language:  opts.Language,
		Quiet:     opts.Quiet,
	}
	if err := b.request(ctx, protocol.SubjectModelBuild, req, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if reply.ModelID == "" {
		return nil, errors.New("worker returned no model id")
	}
	b.log.Info("remote model ready", slog.String("model_id", reply.ModelID))
	return &natsModel{backend: b, id: reply.ModelID}, nil
}

func (b *NATSBackend) request(ctx context.Context, subject string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}

type natsModel struct {
	backend *NATSBackend
	id      string
}

func (m *natsModel) Voices(ctx context.Context) ([]string, error) {
	var reply protocol.VoicesReply
	if err := m.backend.request(ctx, protocol.SubjectModelVoices, protocol.VoicesRequest{ModelID: m.id}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Voices, nil
}

// Synthesize collects the chunk stream the worker publishes to a private inbox.
func (m *natsModel) Synthesize(ctx context.Context, req Request) ([]Segment, error) {
	conn := m.backend.conn
	inbox := nats.NewInbox()
	sub, err := conn.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	data, err := json.Marshal(protocol.SynthesizeRequest{ModelID: m.id, Text: req.Text, Voice: req.Voice, Speed: req.Speed})
	if err != nil {
		return nil, err
	}
	if err := conn.PublishRequest(protocol.SubjectModelSynthesize, inbox, data); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.backend.timeout)
	defer cancel()

	var segments []Segment
	pcm := map[int][]byte{}
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("await synthesis: %w", err)
		}
		var chunk protocol.SegmentChunk
		if err := json.Unmarshal(msg.Data, &chunk); err != nil {
			return nil, fmt.Errorf("decode synthesis chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, errors.New(chunk.Error)
		}
		if chunk.Segment >= 0 && (len(chunk.PCM) > 0 || chunk.Graphemes != "" || chunk.Phonemes != "") {
			for len(segments) <= chunk.Segment {
				segments = append(segments, Segment{})
			}
			seg := &segments[chunk.Segment]
			if chunk.Graphemes != "" {
				seg.Graphemes = chunk.Graphemes
			}
			if chunk.Phonemes != "" {
				seg.Phonemes = chunk.Phonemes
			}
			pcm[chunk.Segment] = append(pcm[chunk.Segment], chunk.PCM...)
		}
		if chunk.Final {
			break
		}
	}

	for i := range segments {
		samples, err := decodePCM(pcm[i])
		if err != nil {
			return nil, err
		}
		segments[i].Samples = samples
	}
	return segments, nil
}

func (m *natsModel) Close() error {
	var reply protocol.CloseReply
	if err := m.backend.request(context.Background(), protocol.SubjectModelClose, protocol.CloseRequest{ModelID: m.id}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}
