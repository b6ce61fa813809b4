package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/session"
	"github.com/loqalabs/loqa-tts/internal/telemetry"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"github.com/loqalabs/loqa-tts/internal/view"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	headless bool
	gateway  *tts.Gateway
	store    *audio.Store
	bus      *bus.Client
	metrics  *http.Server
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, opts, &cfg)

	logger := telemetry.NewLogger(cfg.Telemetry, os.Stderr, cfg.Session.Debug)
	a := &app{
		cfg:      cfg,
		logger:   logger,
		headless: cfg.Session.Headless || !stdinIsTerminal(),
	}

	a.shutdown, err = a.setupTelemetry(ctx)
	if err != nil {
		return nil, err
	}

	backend, err := a.backend(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.gateway = tts.NewGateway(backend, logger)

	player, err := audio.NewExecPlayer(cfg.Audio.PlayerCommand)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = audio.NewStore(audio.WAVCodec{}, player, audio.StoreOptions{
		MaxAttempts: cfg.Audio.SaveAttempts,
		RetryDelay:  time.Duration(cfg.Audio.SaveRetryDelayMS) * time.Millisecond,
		Logger:      logger,
	})
	return a, nil
}

// applyFlags layers explicitly set flags over file and environment config.
func applyFlags(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Session.Debug = opts.debug
	}
	if flags.Changed("headless") {
		cfg.Session.Headless = opts.headless
	}
	if flags.Changed("output") {
		cfg.Session.OutputPath = opts.output
	}
	if flags.Changed("text") {
		cfg.Session.Text = opts.text
	}
	if flags.Changed("voice") {
		cfg.Session.Voice = opts.voice
	}
	if flags.Changed("speed") {
		cfg.Session.Speed = tts.ClampSpeed(opts.speed)
	}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (a *app) setupTelemetry(ctx context.Context) (func(context.Context) error, error) {
	shutdown, handler, err := telemetry.Setup(ctx, a.cfg, os.Stderr, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	if bind := a.cfg.Telemetry.PrometheusBind; bind != "" && handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		a.metrics = &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("metrics endpoint failed", slog.String("error", err.Error()))
			}
		}()
	}
	return shutdown, nil
}

func (a *app) backend(ctx context.Context) (tts.Backend, error) {
	switch a.cfg.Model.Backend {
	case "mock":
		return tts.NewMockBackend(a.cfg.Model.Voices), nil
	case "nats":
		client, err := bus.Connect(ctx, a.cfg.RuntimeName, a.cfg.Bus, a.logger)
		if err != nil {
			return nil, err
		}
		a.bus = client
		timeout := time.Duration(a.cfg.Model.RequestTimeoutMS) * time.Millisecond
		return tts.NewNATSBackend(client.Conn(), timeout, a.logger), nil
	default:
		return tts.NewExecBackend(a.cfg.Model.Command, a.logger)
	}
}

type portOptions struct {
	forceHeadless bool
	script        []string
	noPlayback    bool
}

// port builds the CLI or headless adapter. The returned func releases the
// terminal.
func (a *app) port(opts portOptions) (view.Port, func() error, error) {
	if a.headless || opts.forceHeadless {
		policy, err := view.ParsePlaybackPolicy(a.cfg.Audio.PlaybackErrors, view.PlaybackPropagate)
		if err != nil {
			return nil, nil, err
		}
		script := opts.script
		if len(script) == 0 && !opts.forceHeadless {
			script = []string{"generate", "exit"}
		}
		h := view.NewHeadless(view.HeadlessOptions{
			Store:      a.store,
			Playback:   policy,
			Script:     script,
			NoPlayback: opts.noPlayback,
			Logger:     a.logger,
		})
		return h, func() error { return nil }, nil
	}

	policy, err := view.ParsePlaybackPolicy(a.cfg.Audio.PlaybackErrors, view.PlaybackReport)
	if err != nil {
		return nil, nil, err
	}
	cli, err := view.NewCLI(view.CLIOptions{
		Store:       a.store,
		Playback:    policy,
		HistoryFile: filepath.Join(os.TempDir(), ".loqa_tts_history"),
		Logger:      a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return cli, cli.Close, nil
}

func (a *app) controller(port view.Port) *session.Controller {
	return session.New(session.OptionsFromConfig(a.cfg), port, a.gateway, a.logger)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	a.bus.Close()
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (a *app) buildOptions() tts.BuildOptions {
	opts := session.OptionsFromConfig(a.cfg)
	return tts.BuildOptions{
		ModelPath: opts.ModelPath,
		Device:    opts.Device,
		Language:  opts.Language,
		Quiet:     opts.QuietBuild,
	}
}
