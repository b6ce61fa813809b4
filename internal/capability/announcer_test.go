package capability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnouncerAnswersDiscovery(t *testing.T) {
	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)
	defer server.Shutdown()

	cfg := config.Default().Bus
	cfg.Servers = []string{server.ClientURL()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(context.Background(), "announcer-test", cfg, logger)
	require.NoError(t, err)
	defer client.Close()

	conn, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	heartbeats, err := conn.SubscribeSync(subjectHeartbeat + "*")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	announcer := NewAnnouncer(WorkerInfo{Runtime: "loqa-ttsd", Backend: "mock", Device: "cpu"},
		func() int { return 2 }, client, 20*time.Millisecond, logger)
	require.NoError(t, announcer.Start(context.Background()))
	defer announcer.Close()
	require.NoError(t, client.Conn().Flush())

	workers, err := Discover(context.Background(), conn, 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, announcer.ID(), workers[0].ID)
	assert.Equal(t, "mock", workers[0].Backend)
	assert.Equal(t, 2, workers[0].Models)

	msg, err := heartbeats.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var hb WorkerInfo
	require.NoError(t, json.Unmarshal(msg.Data, &hb))
	assert.Equal(t, announcer.ID(), hb.ID)

	announcer.Close()
	require.NoError(t, client.Conn().Flush())
	workers, err = Discover(context.Background(), conn, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, workers)
}
