package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Engine.ModelPath != "./model" {
		t.Fatalf("expected default model path, got %q", cfg.Engine.ModelPath)
	}
	if cfg.Recognizer.MaxAlternatives != 3 || !cfg.Recognizer.Words {
		t.Fatalf("unexpected recognizer defaults: %+v", cfg.Recognizer)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa.yaml")
	data := []byte(`
engine:
  mode: mock
  model_path: /models/en
audio:
  sample_rate: 16000
output:
  format: json
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "mock" || cfg.Engine.ModelPath != "/models/en" {
		t.Fatalf("expected engine section from file, got %+v", cfg.Engine)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.ChunkFrames != 4000 {
		t.Fatalf("expected chunk frames default to survive, got %d", cfg.Audio.ChunkFrames)
	}
	if cfg.Output.Format != "json" {
		t.Fatalf("expected json output")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_ENGINE_MODE", "exec")
	t.Setenv("LOQA_ENGINE_COMMAND", "python3 stt.py")
	t.Setenv("LOQA_AUDIO_SAMPLE_RATE", "16000")
	t.Setenv("LOQA_DRIVER_WORKERS", "4")
	t.Setenv("LOQA_DRIVER_REUSE_SESSION", "false")
	t.Setenv("LOQA_BUS_ENABLED", "true")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_MAX_RUNS", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "python3 stt.py" {
		t.Fatalf("expected engine override, got %+v", cfg.Engine)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected sample rate override")
	}
	if cfg.Driver.Workers != 4 || cfg.Driver.ReuseSession {
		t.Fatalf("expected driver override, got %+v", cfg.Driver)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus override, got %+v", cfg.Bus)
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxRuns != 12 {
		t.Fatalf("expected event store override, got %+v", cfg.EventStore)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"LOQA_ENGINE_MODE":        "pocketsphinx",
		"LOQA_AUDIO_SAMPLE_RATE":  "-1",
		"LOQA_OUTPUT_FORMAT":      "xml",
		"LOQA_DRIVER_WORKERS":     "0",
		"LOQA_TELEMETRY_TRACES":   "otlp",
		"LOQA_AUDIO_CHUNK_FRAMES": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestExecModeRequiresCommand(t *testing.T) {
	t.Setenv("LOQA_ENGINE_MODE", "exec")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "engine.command") {
		t.Fatalf("expected engine.command error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LOQA_ENGINE_MODEL_PATH=/from/dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LOQA_ENGINE_MODEL_PATH", "")
	os.Unsetenv("LOQA_ENGINE_MODEL_PATH")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.ModelPath != "/from/dotenv" {
		t.Fatalf("expected model path from .env, got %q", cfg.Engine.ModelPath)
	}
}
