package telemetry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the process logger. Logs never go to stdout, which
// carries transcripts.
func NewLogger(cfg config.TelemetryConfig, w io.Writer) *slog.Logger {
	level, ok := logLevelMap[strings.ToLower(cfg.LogLevel)]
	if !ok {
		level = slog.LevelInfo
	}
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
