package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service hosts models built by a local backend and answers model requests
// arriving on the bus.
type Service struct {
	bus     *bus.Client
	backend Backend
	timeout time.Duration

	mu     sync.Mutex
	models map[string]Model
	subs   []*nats.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, backend Backend, timeout time.Duration, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:     busClient,
		backend: backend,
		timeout: timeout,
		models:  make(map[string]Model),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectModelBuild:      s.handleBuild,
		protocol.SubjectModelVoices:     s.handleVoices,
		protocol.SubjectModelSynthesize: s.handleSynthesize,
		protocol.SubjectModelClose:      s.handleClose,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			for _, prev := range s.subs {
				_ = prev.Unsubscribe()
			}
			s.subs = nil
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return s.bus.Conn().Flush()
}

// Close stops serving and releases every hosted model.
func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	models := s.models
	s.models = make(map[string]Model)
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Drain()
	}
	for id, model := range models {
		if err := model.Close(); err != nil {
			s.logger.Warn("failed to close model", slog.String("model_id", id), slogError(err))
		}
	}
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// Models reports how many models are currently loaded.
func (s *Service) Models() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}

func (s *Service) handleBuild(msg *nats.Msg) {
	var req protocol.BuildRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.BuildReply{Error: "invalid build request"})
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	model, err := s.backend.Build(ctx, BuildOptions{
		ModelPath: req.ModelPath,
		Device:    req.Device,
		Language:  req.Language,
		Quiet:     req.Quiet,
	})
	if err == nil && model == nil {
		err = errors.New("backend returned no model")
	}
	if err != nil {
		s.logger.Warn("model build failed", slog.String("model_path", req.ModelPath), slogError(err))
		s.respond(msg, protocol.BuildReply{Error: err.Error()})
		return
	}
	voices, err := model.Voices(ctx)
	if err != nil {
		_ = model.Close()
		s.respond(msg, protocol.BuildReply{Error: err.Error()})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.models[id] = model
	s.mu.Unlock()

	s.logger.Info("model loaded", slog.String("model_id", id), slog.String("model_path", req.ModelPath))
	s.respond(msg, protocol.BuildReply{ModelID: id, Voices: voices})
}

func (s *Service) handleVoices(msg *nats.Msg) {
	var req protocol.VoicesRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.VoicesReply{Error: "invalid voices request"})
		return
	}
	model, err := s.model(req.ModelID)
	if err != nil {
		s.respond(msg, protocol.VoicesReply{Error: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	voices, err := model.Voices(ctx)
	if err != nil {
		s.respond(msg, protocol.VoicesReply{Error: err.Error()})
		return
	}
	s.respond(msg, protocol.VoicesReply{Voices: voices})
}

func (s *Service) handleSynthesize(msg *nats.Msg) {
	if msg.Reply == "" {
		s.logger.Warn("synthesize request without reply inbox")
		return
	}
	var req protocol.SynthesizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.publishChunk(msg.Reply, protocol.SegmentChunk{Error: "invalid synthesize request", Final: true})
		return
	}
	model, err := s.model(req.ModelID)
	if err != nil {
		s.publishChunk(msg.Reply, protocol.SegmentChunk{ModelID: req.ModelID, Error: err.Error(), Final: true})
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	segments, err := model.Synthesize(ctx, Request{Text: req.Text, Voice: req.Voice, Speed: req.Speed})
	if err != nil {
		s.logger.Warn("tts synthesis error", slog.String("model_id", req.ModelID), slogError(err))
		s.publishChunk(msg.Reply, protocol.SegmentChunk{ModelID: req.ModelID, Error: err.Error(), Final: true})
		return
	}

	sequence := 0
	for i, seg := range segments {
		pcm := encodePCM(seg.Samples)
		first := true
		for first || len(pcm) > 0 {
			n := min(len(pcm), protocol.MaxChunkPCM)
			chunk := protocol.SegmentChunk{
				ModelID:  req.ModelID,
				Segment:  i,
				Sequence: sequence,
				PCM:      pcm[:n],
			}
			if first {
				chunk.Graphemes = seg.Graphemes
				chunk.Phonemes = seg.Phonemes
			}
			s.publishChunk(msg.Reply, chunk)
			pcm = pcm[n:]
			first = false
			sequence++
		}
	}
	s.publishChunk(msg.Reply, protocol.SegmentChunk{
		ModelID:  req.ModelID,
		Segment:  len(segments),
		Sequence: sequence,
		Final:    true,
	})
}

func (s *Service) handleClose(msg *nats.Msg) {
	var req protocol.CloseRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.CloseReply{Error: "invalid close request"})
		return
	}
	s.mu.Lock()
	model, ok := s.models[req.ModelID]
	delete(s.models, req.ModelID)
	s.mu.Unlock()
	if !ok {
		s.respond(msg, protocol.CloseReply{})
		return
	}
	var reply protocol.CloseReply
	if err := model.Close(); err != nil {
		reply.Error = err.Error()
	}
	s.logger.Info("model released", slog.String("model_id", req.ModelID))
	s.respond(msg, reply)
}

func (s *Service) model(id string) (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	model, ok := s.models[id]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", id)
	}
	return model, nil
}

func (s *Service) respond(msg *nats.Msg, reply any) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slog.String("subject", msg.Subject), slogError(err))
	}
}

func (s *Service) publishChunk(subject string, chunk protocol.SegmentChunk) {
	chunk.Timestamp = time.Now().UTC()
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Warn("failed to marshal tts chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish tts chunk", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
