package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Name        string           `yaml:"name"`
	Environment string           `yaml:"environment"`
	Engine      EngineConfig     `yaml:"engine"`
	Audio       AudioConfig      `yaml:"audio"`
	Recognizer  RecognizerConfig `yaml:"recognizer"`
	Driver      DriverConfig     `yaml:"driver"`
	Output      OutputConfig     `yaml:"output"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
}

type EngineConfig struct {
	Mode      string `yaml:"mode"` // vosk, whisper, exec, mock
	ModelPath string `yaml:"model_path"`
	LogLevel  int    `yaml:"log_level"`
	Command   string `yaml:"command"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
	// ExecTimeout bounds one external command run in exec mode.
	ExecTimeout int `yaml:"exec_timeout_ms"`
	// ConcurrentSessions allows sessions that share a model to decode in
	// parallel. Only enable it for engines that document read-only model use.
	ConcurrentSessions bool `yaml:"concurrent_sessions"`
}

type AudioConfig struct {
	SampleRate  int `yaml:"sample_rate"`
	ChunkFrames int `yaml:"chunk_frames"`
}

type RecognizerConfig struct {
	MaxAlternatives int  `yaml:"max_alternatives"`
	Words           bool `yaml:"words"`
}

type DriverConfig struct {
	Workers      int  `yaml:"workers"`
	FileTimeout  int  `yaml:"file_timeout_ms"`
	ReuseSession bool `yaml:"reuse_session"`
}

type OutputConfig struct {
	Format string `yaml:"format"` // text, json
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json, text
	Traces         string `yaml:"traces"`     // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	return Config{
		Name:        "loqa-transcribe",
		Environment: "development",
		Engine: EngineConfig{
			Mode:        "vosk",
			ModelPath:   "./model",
			LogLevel:    0,
			Language:    "auto",
			ExecTimeout: 60000,
		},
		Audio: AudioConfig{
			SampleRate:  44100,
			ChunkFrames: 4000,
		},
		Recognizer: RecognizerConfig{
			MaxAlternatives: 3,
			Words:           true,
		},
		Driver: DriverConfig{
			Workers:      1,
			ReuseSession: true,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			Traces:       "none",
			OTLPInsecure: true,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-transcribe.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			Subject:        "stt.text.final",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads an optional YAML file over the defaults, applies LOQA_*
// environment overrides and validates the result.
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
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Name, "LOQA_NAME")
	overrideString(&cfg.Environment, "LOQA_ENVIRONMENT")
	overrideString(&cfg.Engine.Mode, "LOQA_ENGINE_MODE")
	overrideString(&cfg.Engine.ModelPath, "LOQA_ENGINE_MODEL_PATH")
	overrideInt(&cfg.Engine.LogLevel, "LOQA_ENGINE_LOG_LEVEL")
	overrideString(&cfg.Engine.Command, "LOQA_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Language, "LOQA_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.Threads, "LOQA_ENGINE_THREADS")
	overrideInt(&cfg.Engine.ExecTimeout, "LOQA_ENGINE_EXEC_TIMEOUT_MS")
	overrideBool(&cfg.Engine.ConcurrentSessions, "LOQA_ENGINE_CONCURRENT_SESSIONS")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.ChunkFrames, "LOQA_AUDIO_CHUNK_FRAMES")
	overrideInt(&cfg.Recognizer.MaxAlternatives, "LOQA_RECOGNIZER_MAX_ALTERNATIVES")
	overrideBool(&cfg.Recognizer.Words, "LOQA_RECOGNIZER_WORDS")
	overrideInt(&cfg.Driver.Workers, "LOQA_DRIVER_WORKERS")
	overrideInt(&cfg.Driver.FileTimeout, "LOQA_DRIVER_FILE_TIMEOUT_MS")
	overrideBool(&cfg.Driver.ReuseSession, "LOQA_DRIVER_REUSE_SESSION")
	overrideString(&cfg.Output.Format, "LOQA_OUTPUT_FORMAT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "LOQA_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.Traces, "LOQA_TELEMETRY_TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "LOQA_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Subject, "LOQA_BUS_SUBJECT")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Name == "" {
		return errors.New("name must not be empty")
	}
	switch cfg.Engine.Mode {
	case "vosk", "whisper", "exec", "mock":
	default:
		return errors.New("engine.mode must be one of vosk|whisper|exec|mock")
	}
	if strings.TrimSpace(cfg.Engine.ModelPath) == "" {
		return errors.New("engine.model_path must not be empty")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.ExecTimeout < 0 {
		return errors.New("engine.exec_timeout_ms must be >= 0")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.ChunkFrames <= 0 {
		return errors.New("audio.chunk_frames must be positive")
	}
	if cfg.Recognizer.MaxAlternatives < 0 {
		return errors.New("recognizer.max_alternatives must be >= 0")
	}
	if cfg.Driver.Workers <= 0 {
		return errors.New("driver.workers must be >= 1")
	}
	if cfg.Driver.FileTimeout < 0 {
		return errors.New("driver.file_timeout_ms must be >= 0")
	}
	switch cfg.Output.Format {
	case "text", "json":
	default:
		return errors.New("output.format must be one of text|json")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	switch cfg.Telemetry.Traces {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when traces=otlp")
		}
	default:
		return errors.New("telemetry.traces must be one of none|stdout|otlp")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty when retention_mode=persistent")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when the bus is enabled")
		}
	}
	return nil
}
