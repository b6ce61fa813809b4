package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/capability"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeServesModelsOverEmbeddedBus(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Backend = "mock"
	cfg.Model.Voices = []string{"af_bella", "af_sky"}
	cfg.Bus.Embedded = true
	cfg.Bus.Port = -1
	cfg.Bus.StoreDir = t.TempDir()
	cfg.HTTP.Bind = "127.0.0.1"
	cfg.HTTP.Port = 0

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := New(cfg, logger, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	require.Eventually(t, rt.Ready, 5*time.Second, 10*time.Millisecond)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get("http://" + rt.Addr() + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	conn, err := nats.Connect(rt.embedded.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	workers, err := capability.Discover(ctx, conn, 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "mock", workers[0].Backend)

	gw := tts.NewGateway(tts.NewNATSBackend(conn, 5*time.Second, logger), logger)
	model, err := gw.Build(ctx, tts.BuildOptions{ModelPath: config.DefaultModelPath, Device: "cpu"})
	require.NoError(t, err)
	voices, err := gw.Voices(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, []string{"af_bella", "af_sky"}, voices)

	result, err := gw.Synthesize(ctx, model, "hello", "af_sky", 1)
	require.NoError(t, err)
	assert.Len(t, result.Segments, 1)
	require.NoError(t, model.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop")
	}
	assert.False(t, rt.Ready())
}

func TestRuntimeFailsWithoutBus(t *testing.T) {
	cfg := config.Default()
	cfg.Bus.Servers = []string{"nats://127.0.0.1:1"}
	cfg.Bus.ConnectTimeout = 200
	cfg.HTTP.Port = 0

	rt := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	err := rt.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, rt.Ready())
}
