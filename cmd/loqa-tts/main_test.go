package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loqa-tts.yaml")
	data := `
session:
  output_path: ` + output + `
  headless: true
model:
  backend: mock
  voices: [af_bella, af_sky]
audio:
  player_command: "true"
  save_retry_delay_ms: 1
telemetry:
  log_level: error
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSaySavesAudio(t *testing.T) {
	output := filepath.Join(t.TempDir(), "said.wav")
	out, err := execute(t, "say", "--config", writeConfig(t, output), "hello", "there")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, output+" ("), out)
	assert.FileExists(t, output)
}

func TestVoicesListsCatalog(t *testing.T) {
	out, err := execute(t, "voices", "--config", writeConfig(t, filepath.Join(t.TempDir(), "x.wav")))
	require.NoError(t, err)
	assert.Equal(t, "af_bella\naf_sky\n", out)
}

func TestRootHeadlessGeneratesOnce(t *testing.T) {
	output := filepath.Join(t.TempDir(), "session.wav")
	_, err := execute(t, "--config", writeConfig(t, output), "--voice", "af_sky", "--speed", "9", "--text", "from flags")
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestFlagsOverrideConfig(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--output", "flag.wav", "--speed", "0.1", "--debug"}))

	a, err := newApp(context.Background(), cmd, &rootOptions{output: "flag.wav", speed: 0.1, debug: true})
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, "flag.wav", a.cfg.Session.OutputPath)
	assert.Equal(t, 0.5, a.cfg.Session.Speed)
	assert.True(t, a.cfg.Session.Debug)
	assert.False(t, a.buildOptions().Quiet)
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(t, "voices", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWorkersWithEmptyBus(t *testing.T) {
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	server := natstest.RunServer(&opts)
	defer server.Shutdown()

	t.Setenv("LOQA_TTS_BUS_SERVERS", server.ClientURL())
	out, err := execute(t, "workers", "--wait", "50ms")
	require.NoError(t, err)
	assert.Equal(t, "No workers found.\n", out)
}
