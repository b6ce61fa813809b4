package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.OutputPath != DefaultOutputFile {
		t.Fatalf("expected default output path, got %q", cfg.Session.OutputPath)
	}
	if cfg.Model.Path != DefaultModelPath {
		t.Fatalf("expected default model path, got %q", cfg.Model.Path)
	}
	if cfg.Audio.SaveAttempts != 3 || cfg.Audio.SaveRetryDelayMS != 1000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Audio)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-tts.yaml")
	data := `
session:
  output_path: out/speech.wav
  speed: 1.25
  voice: af_sky
model:
  backend: mock
  voices: [af_bella, af_sky]
  language: b
audio:
  player_command: "ffplay -nodisp -autoexit"
  playback_errors: propagate
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "out/speech.wav", cfg.Session.OutputPath)
	assert.InEpsilon(t, 1.25, cfg.Session.Speed, 0.0001)
	assert.Equal(t, "af_sky", cfg.Session.Voice)
	assert.Equal(t, "mock", cfg.Model.Backend)
	assert.Equal(t, []string{"af_bella", "af_sky"}, cfg.Model.Voices)
	assert.Equal(t, "b", cfg.Model.Language)
	assert.Equal(t, "propagate", cfg.Audio.PlaybackErrors)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultText, cfg.Session.Text)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-tts.toml")
	data := `
runtime_name = "tts-worker"

[model]
backend = "exec"
command = "python3 bridge.py"
device = "cpu"

[bus]
embedded = true
port = 4333
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tts-worker", cfg.RuntimeName)
	assert.Equal(t, "python3 bridge.py", cfg.Model.Command)
	assert.Equal(t, "cpu", cfg.Model.Device)
	assert.True(t, cfg.Bus.Embedded)
	assert.Equal(t, 4333, cfg.Bus.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_TTS_SESSION_OUTPUT_PATH", "/tmp/override.wav")
	t.Setenv("LOQA_TTS_SESSION_SPEED", "0.75")
	t.Setenv("LOQA_TTS_MODEL_BACKEND", "nats")
	t.Setenv("LOQA_TTS_MODEL_DEVICE", "cuda")
	t.Setenv("LOQA_TTS_BUS_SERVERS", "nats://one:4222,nats://two:4222")
	t.Setenv("LOQA_TTS_AUDIO_SAVE_ATTEMPTS", "5")
	t.Setenv("LOQA_TTS_TELEMETRY_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.wav", cfg.Session.OutputPath)
	assert.InEpsilon(t, 0.75, cfg.Session.Speed, 0.0001)
	assert.Equal(t, "nats", cfg.Model.Backend)
	assert.Equal(t, "cuda", cfg.Model.Device)
	assert.Equal(t, []string{"nats://one:4222", "nats://two:4222"}, cfg.Bus.Servers)
	assert.Equal(t, 5, cfg.Audio.SaveAttempts)
	assert.Equal(t, "json", cfg.Telemetry.LogFormat)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"speed below range":   func(c *Config) { c.Session.Speed = 0.4 },
		"speed above range":   func(c *Config) { c.Session.Speed = 2.5 },
		"speed not a number":  func(c *Config) { c.Session.Speed = math.NaN() },
		"unknown backend":     func(c *Config) { c.Model.Backend = "http" },
		"mock without voices": func(c *Config) { c.Model.Backend = "mock" },
		"exec without cmd":    func(c *Config) { c.Model.Command = " " },
		"unknown device":      func(c *Config) { c.Model.Device = "tpu" },
		"unknown language":    func(c *Config) { c.Model.Language = "z" },
		"zero attempts":       func(c *Config) { c.Audio.SaveAttempts = 0 },
		"zero retry delay":    func(c *Config) { c.Audio.SaveRetryDelayMS = 0 },
		"bad playback policy": func(c *Config) { c.Audio.PlaybackErrors = "ignore" },
		"empty output path":   func(c *Config) { c.Session.OutputPath = "" },
		"zero heartbeat":      func(c *Config) { c.Bus.HeartbeatMS = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestEnvRejectsNaNSpeed(t *testing.T) {
	t.Setenv("LOQA_TTS_SESSION_SPEED", "NaN")
	_, err := Load("")
	assert.ErrorContains(t, err, "session.speed")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
