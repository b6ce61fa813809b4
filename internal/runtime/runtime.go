package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/capability"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/telemetry"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

// Runtime is the loqa-ttsd worker: it hosts models for remote sessions on the
// bus and exposes health and metrics over HTTP.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	traceOut    io.Writer
	httpServer  *http.Server
	tracerClose func(context.Context) error
	embedded    *natsserver.EmbeddedServer
	bus         *bus.Client
	service     *tts.Service
	announcer   *capability.Announcer
	ready       atomic.Bool
	addr        atomic.Value
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger, traceOut io.Writer) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		traceOut: traceOut,
	}
}

// Start blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, r.cfg, r.traceOut, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	busCfg := r.cfg.Bus
	r.embedded, err = natsserver.Start(busCfg, r.logger)
	if err != nil {
		r.shutdown()
		return err
	}
	if r.embedded != nil {
		busCfg.Servers = []string{r.embedded.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		r.shutdown()
		return err
	}

	backend, name, err := r.backend()
	if err != nil {
		r.shutdown()
		return err
	}
	timeout := time.Duration(r.cfg.Model.RequestTimeoutMS) * time.Millisecond
	r.service = tts.NewService(ctx, r.bus, backend, timeout, r.logger)
	if err := r.service.Start(); err != nil {
		r.shutdown()
		return fmt.Errorf("failed to start tts service: %w", err)
	}

	r.announcer = capability.NewAnnouncer(capability.WorkerInfo{
		Runtime:  r.cfg.RuntimeName,
		Backend:  name,
		Device:   tts.ResolveDevice(r.cfg.Model.Device),
		Language: r.cfg.Model.Language,
	}, r.service.Models, r.bus, time.Duration(r.cfg.Bus.HeartbeatMS)*time.Millisecond, r.logger)
	if err := r.announcer.Start(ctx); err != nil {
		r.shutdown()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port))
	if err != nil {
		r.shutdown()
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.addr.Store(listener.Addr().String())
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", r.Addr()), slog.String("backend", r.cfg.Model.Backend))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

// Addr is the bound HTTP address once the runtime is ready.
func (r *Runtime) Addr() string {
	addr, _ := r.addr.Load().(string)
	return addr
}

func (r *Runtime) Ready() bool { return r.ready.Load() }

// backend picks what the worker hosts. A worker always runs models locally,
// so the nats setting falls back to exec.
func (r *Runtime) backend() (tts.Backend, string, error) {
	if r.cfg.Model.Backend == "mock" {
		return tts.NewMockBackend(r.cfg.Model.Voices), "mock", nil
	}
	backend, err := tts.NewExecBackend(r.cfg.Model.Command, r.logger)
	return backend, "exec", err
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		r.wg.Wait()
	}
	if r.announcer != nil {
		r.announcer.Close()
	}
	if r.service != nil {
		r.service.Close()
	}
	r.bus.Close()
	r.embedded.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
