package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModelPath  = "kokoro-v1_0.pth"
	DefaultOutputFile = "output.wav"
	DefaultLanguage   = "a" // 'a' American English, 'b' British English
	DefaultText       = "Hello, welcome to this text-to-speech test."

	envPrefix = "LOQA_TTS_"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat      string `yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" toml:"otlp_insecure" env:"OTLP_INSECURE"`
	TraceStdout    bool   `yaml:"trace_stdout" toml:"trace_stdout" env:"TRACE_STDOUT"`
	PrometheusBind string `yaml:"prometheus_bind" toml:"prometheus_bind" env:"PROMETHEUS_BIND"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind" toml:"bind" env:"BIND"`
	Port int    `yaml:"port" toml:"port" env:"PORT"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded" toml:"embedded" env:"EMBEDDED"`
	Port           int      `yaml:"port" toml:"port" env:"PORT"`
	StoreDir       string   `yaml:"store_dir" toml:"store_dir" env:"STORE_DIR"`
	Servers        []string `yaml:"servers" toml:"servers" env:"SERVERS"`
	Username       string   `yaml:"username" toml:"username" env:"USERNAME"`
	Password       string   `yaml:"password" toml:"password" env:"PASSWORD"`
	Token          string   `yaml:"token" toml:"token" env:"TOKEN"`
	TLSInsecure    bool     `yaml:"tls_insecure" toml:"tls_insecure" env:"TLS_INSECURE"`
	ConnectTimeout int      `yaml:"connect_timeout_ms" toml:"connect_timeout_ms" env:"CONNECT_TIMEOUT_MS"`
	HeartbeatMS    int      `yaml:"heartbeat_ms" toml:"heartbeat_ms" env:"HEARTBEAT_MS"`
}

// SessionConfig seeds the interactive session.
type SessionConfig struct {
	OutputPath string   `yaml:"output_path" toml:"output_path" env:"OUTPUT_PATH"`
	Text       string   `yaml:"text" toml:"text" env:"TEXT"`
	Speed      float64  `yaml:"speed" toml:"speed" env:"SPEED"`
	Voice      string   `yaml:"voice" toml:"voice" env:"VOICE"`
	Headless   bool     `yaml:"headless" toml:"headless" env:"HEADLESS"`
	Debug      bool     `yaml:"debug" toml:"debug" env:"DEBUG"`
	Commands   []string `yaml:"commands" toml:"commands" env:"COMMANDS"`
}

type ModelConfig struct {
	Backend          string   `yaml:"backend" toml:"backend" env:"BACKEND"` // exec, nats, mock
	Path             string   `yaml:"path" toml:"path" env:"PATH"`
	Device           string   `yaml:"device" toml:"device" env:"DEVICE"`
	Language         string   `yaml:"language" toml:"language" env:"LANGUAGE"`
	Command          string   `yaml:"command" toml:"command" env:"COMMAND"`
	QuietBuild       bool     `yaml:"quiet_build" toml:"quiet_build" env:"QUIET_BUILD"`
	Voices           []string `yaml:"voices" toml:"voices" env:"VOICES"`
	RequestTimeoutMS int      `yaml:"request_timeout_ms" toml:"request_timeout_ms" env:"REQUEST_TIMEOUT_MS"`
}

type AudioConfig struct {
	PlayerCommand    string `yaml:"player_command" toml:"player_command" env:"PLAYER_COMMAND"`
	SaveAttempts     int    `yaml:"save_attempts" toml:"save_attempts" env:"SAVE_ATTEMPTS"`
	SaveRetryDelayMS int    `yaml:"save_retry_delay_ms" toml:"save_retry_delay_ms" env:"SAVE_RETRY_DELAY_MS"`
	PlaybackErrors   string `yaml:"playback_errors" toml:"playback_errors" env:"PLAYBACK_ERRORS"` // "", report, propagate
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name" toml:"runtime_name" env:"RUNTIME_NAME"`
	Environment string          `yaml:"environment" toml:"environment" env:"ENVIRONMENT"`
	Session     SessionConfig   `yaml:"session" toml:"session" envPrefix:"SESSION_"`
	Model       ModelConfig     `yaml:"model" toml:"model" envPrefix:"MODEL_"`
	Audio       AudioConfig     `yaml:"audio" toml:"audio" envPrefix:"AUDIO_"`
	Telemetry   TelemetryConfig `yaml:"telemetry" toml:"telemetry" envPrefix:"TELEMETRY_"`
	Bus         BusConfig       `yaml:"bus" toml:"bus" envPrefix:"BUS_"`
	HTTP        HTTPConfig      `yaml:"http" toml:"http" envPrefix:"HTTP_"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tts",
		Environment: "development",
		Session: SessionConfig{
			OutputPath: DefaultOutputFile,
			Text:       DefaultText,
			Speed:      1.0,
		},
		Model: ModelConfig{
			Backend:          "exec",
			Path:             DefaultModelPath,
			Device:           "auto",
			Language:         DefaultLanguage,
			Command:          "python3 -m loqa_kokoro",
			QuietBuild:       true,
			RequestTimeoutMS: 120000,
		},
		Audio: AudioConfig{
			SaveAttempts:     3,
			SaveRetryDelayMS: 1000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Bus: BusConfig{
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			HeartbeatMS:    5000,
		},
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8081,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.Session.OutputPath == "" {
		return errors.New("session.output_path must not be empty")
	}
	if !(cfg.Session.Speed >= 0.5 && cfg.Session.Speed <= 2.0) {
		return errors.New("session.speed must be between 0.5 and 2.0")
	}
	switch cfg.Model.Backend {
	case "exec", "nats", "mock":
	default:
		return errors.New("model.backend must be one of exec|nats|mock")
	}
	if cfg.Model.Backend == "exec" && strings.TrimSpace(cfg.Model.Command) == "" {
		return errors.New("model.command must be set when backend=exec")
	}
	if cfg.Model.Backend == "mock" && len(cfg.Model.Voices) == 0 {
		return errors.New("model.voices must not be empty when backend=mock")
	}
	if cfg.Model.Path == "" {
		return errors.New("model.path must not be empty")
	}
	switch cfg.Model.Device {
	case "auto", "cuda", "cpu":
	default:
		return errors.New("model.device must be one of auto|cuda|cpu")
	}
	switch cfg.Model.Language {
	case "a", "b":
	default:
		return errors.New("model.language must be one of a|b")
	}
	if cfg.Model.RequestTimeoutMS <= 0 {
		return errors.New("model.request_timeout_ms must be positive")
	}
	if cfg.Audio.SaveAttempts < 1 {
		return errors.New("audio.save_attempts must be >= 1")
	}
	if cfg.Audio.SaveRetryDelayMS <= 0 {
		return errors.New("audio.save_retry_delay_ms must be positive")
	}
	switch cfg.Audio.PlaybackErrors {
	case "", "report", "propagate":
	default:
		return errors.New("audio.playback_errors must be one of report|propagate")
	}
	switch cfg.Telemetry.LogFormat {
	case "text", "json":
	default:
		return errors.New("telemetry.log_format must be one of text|json")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if cfg.Model.Backend == "nats" && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when backend=nats")
	}
	if cfg.Bus.HeartbeatMS <= 0 {
		return errors.New("bus.heartbeat_ms must be positive")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	return nil
}
