package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.TelemetryConfig{LogLevel: "warn", LogFormat: "json"}
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at warn level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["msg"] != "shown" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	NewLogger(config.TelemetryConfig{LogLevel: "debug", LogFormat: "text"}, &buf).Debug("console")
	if !strings.Contains(buf.String(), "console") || json.Valid(buf.Bytes()) {
		t.Fatalf("expected console formatted line, got %q", buf.String())
	}
}

func TestSetupServesMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.PrometheusBind = "127.0.0.1:0"
	logger := NewLogger(config.TelemetryConfig{LogLevel: "error"}, io.Discard)

	tel, err := Setup(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	counter, err := otel.Meter("telemetry-test").Int64Counter("transcribe.test.files")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 2)

	resp, err := http.Get("http://" + tel.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + tel.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "transcribe_test_files_total") {
		t.Fatalf("expected counter in metrics output, got:\n%s", body)
	}
}

func TestSetupWithoutListener(t *testing.T) {
	logger := NewLogger(config.TelemetryConfig{LogLevel: "error"}, io.Discard)
	tel, err := Setup(context.Background(), config.Default(), logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if tel.Addr() != "" {
		t.Fatalf("expected no listener, got %s", tel.Addr())
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
