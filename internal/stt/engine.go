package stt

import (
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

// ErrEngineUnavailable is returned when a backend was not compiled in.
var ErrEngineUnavailable = errors.New("engine not available in this build")

// Options configures a recognizer at creation time.
type Options struct {
	MaxAlternatives int
	Words           bool
}

// Engine abstracts a native recognition library. Implementations are
// synchronous and need not be safe for concurrent use of one recognizer;
// Handle serializes access.
type Engine interface {
	Name() string
	SetLogLevel(level int)
	LoadModel(path string) (NativeModel, error)
}

// NativeModel is a loaded model owned by a Handle.
type NativeModel interface {
	NewRecognizer(sampleRate float64, opts Options) (NativeRecognizer, error)
	Free()
}

// NativeRecognizer is one decoding session. Result strings are the engine's
// JSON documents.
type NativeRecognizer interface {
	AcceptWaveform(pcm []byte) (bool, error)
	Result() (string, error)
	PartialResult() (string, error)
	FinalResult() (string, error)
	Reset()
	Free()
}

// NewEngine builds the backend selected by cfg.Mode.
func NewEngine(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg.Command, cfg.Language, time.Duration(cfg.ExecTimeout)*time.Millisecond)
	case "vosk":
		return newVoskEngine()
	case "whisper":
		return newWhisperEngine(cfg.Language, cfg.Threads)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
