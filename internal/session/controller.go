package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/telemetry"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"github.com/loqalabs/loqa-tts/internal/view"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Handler runs one menu command.
type Handler func(ctx context.Context) (Action, error)

type command struct {
	key     string
	handler Handler
}

// Controller owns a session and drives it through a view.Port.
type Controller struct {
	opts     Options
	port     view.Port
	gateway  *tts.Gateway
	log      *slog.Logger
	session  Session
	commands []command

	tracer       trace.Tracer
	generations  metric.Int64Counter
	emptyResults metric.Int64Counter
	saveFailures metric.Int64Counter
}

func New(opts Options, port view.Port, gateway *tts.Gateway, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	c := &Controller{
		opts:    opts,
		port:    port,
		gateway: gateway,
		log:     log.With(slog.String("component", "session"), slog.String("session_id", id)),
		session: Session{
			ID:         id,
			Speed:      tts.ClampSpeed(opts.Speed),
			Text:       opts.Text,
			OutputPath: opts.OutputPath,
			State:      StateUninitialized,
		},
		tracer: otel.Tracer(telemetry.InstrumentationName),
	}
	c.initMetrics()
	c.commands = []command{
		{key: "list", handler: c.HandleListVoices},
		{key: "generate", handler: func(ctx context.Context) (Action, error) {
			return c.HandleGenerateSpeech(ctx, "", false)
		}},
		{key: "play", handler: c.HandlePlayAudio},
		{key: "exit", handler: c.HandleExit},
	}
	return c
}

func (c *Controller) initMetrics() {
	meter := otel.Meter(telemetry.InstrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		ctr, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c.log.Warn("failed to create counter", slog.String("name", name), slog.String("error", err.Error()))
			return noop.Int64Counter{}
		}
		return ctr
	}
	c.generations = counter("tts.generations", "Speech generation requests")
	c.emptyResults = counter("tts.generations.empty", "Generations that produced no audio")
	c.saveFailures = counter("tts.saves.failed", "Audio files that could not be written")
}

// Commands lists the menu keys in registration order.
func (c *Controller) Commands() []string {
	keys := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		keys[i] = cmd.key
	}
	return keys
}

func (c *Controller) lookup(key string) (Handler, bool) {
	for _, cmd := range c.commands {
		if cmd.key == key {
			return cmd.handler, true
		}
	}
	return nil, false
}

// Session returns a copy of the current session state.
func (c *Controller) Session() Session {
	s := c.session
	s.Voices = slices.Clone(c.session.Voices)
	return s
}

// Load builds the model and fetches the voice catalog. Calling it again
// releases the current model and starts over.
func (c *Controller) Load(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "session.load")
	defer span.End()

	if c.session.Model != nil {
		if err := c.session.Model.Close(); err != nil {
			c.log.Warn("failed to release previous model", slog.String("error", err.Error()))
		}
		c.session.Model = nil
		c.session.Voices = nil
	}

	c.log.Debug("building model", slog.String("model_path", c.opts.ModelPath), slog.String("device", c.opts.Device))
	model, err := c.gateway.Build(ctx, tts.BuildOptions{
		ModelPath: c.opts.ModelPath,
		Device:    c.opts.Device,
		Language:  c.opts.Language,
		Quiet:     c.opts.QuietBuild,
	})
	if err != nil {
		return c.failLoad(span, err)
	}
	voices, err := c.gateway.Voices(ctx, model)
	if err != nil {
		_ = model.Close()
		return c.failLoad(span, err)
	}

	c.session.Model = model
	c.session.Voices = voices
	c.port.SetVoices(voices)
	c.session.Voice = ""
	if len(voices) > 0 {
		c.session.Voice = voices[0]
	}
	if c.opts.Voice != "" {
		c.HandleSetVoice(c.opts.Voice)
	}
	c.session.State = StateReady

	span.SetAttributes(attribute.Int("voices", len(voices)))
	c.log.Info("session ready", slog.Int("voices", len(voices)), slog.String("voice", c.session.Voice))
	return nil
}

func (c *Controller) failLoad(span trace.Span, err error) error {
	c.session.State = StateTerminated
	span.RecordError(err)
	span.SetStatus(codes.Error, "model unavailable")
	c.log.Error("failed to initialize model", slog.String("error", err.Error()))
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}

// Start runs the menu loop until a handler asks to exit or fails. Unknown
// selections are reported and the menu is shown again.
func (c *Controller) Start(ctx context.Context) error {
	c.session.State = StateLooping
	defer func() { c.session.State = StateTerminated }()

	for {
		if err := ctx.Err(); err != nil {
			c.log.Info("exiting", slog.String("reason", err.Error()))
			return nil
		}

		choice, err := c.port.GetMenuSelection(c.Commands())
		if err != nil {
			if errors.Is(err, view.ErrInterrupted) {
				c.port.ShowExit()
				c.log.Info("exiting")
				return nil
			}
			return fmt.Errorf("read menu selection: %w", err)
		}

		handler, ok := c.lookup(choice)
		if !ok {
			c.port.ShowInvalidChoice()
			continue
		}

		action, err := handler(ctx)
		if action == ActionExit {
			if err != nil {
				c.log.Error("session cannot continue", slog.String("error", err.Error()))
			}
			c.log.Info("exiting")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// HandleGenerateSpeech collects parameters, synthesizes, then offers playback
// and saves the result. A non-empty text overrides whatever the port returned.
// When quiet is set the playback prompt is skipped.
func (c *Controller) HandleGenerateSpeech(ctx context.Context, text string, quiet bool) (Action, error) {
	ctx, span := c.tracer.Start(ctx, "session.generate")
	defer span.End()

	if c.session.Model == nil || len(c.session.Voices) == 0 {
		c.log.Error("session not properly initialized",
			slog.Int("voices", len(c.session.Voices)),
			slog.Bool("model", c.session.Model != nil),
		)
		c.session.State = StateTerminated
		span.SetStatus(codes.Error, ErrNotInitialized.Error())
		return ActionExit, ErrNotInitialized
	}

	voice, speed, promptText, err := c.port.GetParams(c.session.Voice, c.session.Speed, c.session.Text)
	if err != nil {
		if errors.Is(err, view.ErrInterrupted) {
			c.log.Debug("generation cancelled")
			return ActionContinue, nil
		}
		return ActionContinue, fmt.Errorf("collect parameters: %w", err)
	}
	c.HandleSetVoice(voice)
	c.session.Speed = tts.ClampSpeed(speed)
	c.session.Text = promptText
	if text != "" {
		c.session.Text = text
	}

	span.SetAttributes(
		attribute.String("voice", c.session.Voice),
		attribute.Float64("speed", c.session.Speed),
	)
	c.generations.Add(ctx, 1)

	result, err := c.gateway.Synthesize(ctx, c.session.Model, c.session.Text, c.session.Voice, c.session.Speed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return ActionContinue, err
	}

	if result.Empty() {
		c.emptyResults.Add(ctx, 1)
		c.session.LastSaved = false
		c.port.ShowNoAudioGenerated()
		return ActionContinue, nil
	}

	samples := audio.Concat(result.Segments)
	c.port.ShowGeneratedSegment(result.Graphemes, result.Phonemes)
	if !quiet && c.port.PromptPlayAudio() {
		clip := audio.Clip{Frames: audio.Column(samples), SampleRate: audio.SampleRate}
		if err := c.port.PlayAudio(ctx, clip); err != nil {
			return ActionContinue, fmt.Errorf("play audio: %w", err)
		}
	}

	c.session.LastSaved = c.port.SaveAudioWithRetry(ctx, samples, audio.SampleRate, c.session.OutputPath)
	if !c.session.LastSaved {
		c.saveFailures.Add(ctx, 1)
		c.log.Error("audio not saved", slog.String("path", c.session.OutputPath))
	}
	span.SetAttributes(attribute.Bool("saved", c.session.LastSaved), attribute.Int("samples", len(samples)))
	return ActionContinue, nil
}

func (c *Controller) HandleListVoices(ctx context.Context) (Action, error) {
	_, span := c.tracer.Start(ctx, "session.list")
	defer span.End()
	c.port.ShowAvailableVoices(slices.Clone(c.session.Voices))
	return ActionContinue, nil
}

// HandlePlayAudio replays the last saved file.
func (c *Controller) HandlePlayAudio(ctx context.Context) (Action, error) {
	ctx, span := c.tracer.Start(ctx, "session.play")
	defer span.End()

	clip, err := c.port.GetAudio(c.session.OutputPath)
	if err != nil {
		span.RecordError(err)
		return ActionContinue, fmt.Errorf("read %s: %w", c.session.OutputPath, err)
	}
	if err := c.port.PlayAudio(ctx, clip); err != nil {
		span.RecordError(err)
		return ActionContinue, fmt.Errorf("play audio: %w", err)
	}
	return ActionContinue, nil
}

// HandleSetVoice selects voice if it is in the catalog and falls back to the
// first catalog entry otherwise.
func (c *Controller) HandleSetVoice(voice string) {
	if len(c.session.Voices) == 0 {
		return
	}
	if slices.Contains(c.session.Voices, voice) {
		c.session.Voice = voice
		return
	}
	c.log.Debug("unknown voice, using default", slog.String("requested", voice), slog.String("voice", c.session.Voices[0]))
	c.session.Voice = c.session.Voices[0]
}

func (c *Controller) HandleExit(ctx context.Context) (Action, error) {
	_, span := c.tracer.Start(ctx, "session.exit")
	defer span.End()
	c.port.ShowExit()
	return ActionExit, nil
}

// Close releases the model.
func (c *Controller) Close() error {
	if c.session.Model == nil {
		return nil
	}
	err := c.session.Model.Close()
	c.session.Model = nil
	return err
}
