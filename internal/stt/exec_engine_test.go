package stt

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/fault"
)

func configFor(mode string) config.EngineConfig {
	cfg := config.Default().Engine
	cfg.Mode = mode
	cfg.Command = "true"
	return cfg
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec engine test needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "stt.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecEngineFinalResult(t *testing.T) {
	script := writeScript(t, `
audio=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--audio" ]; then audio="$2"; fi
  shift
done
[ -s "$audio" ] || exit 3
echo '{"text":"hello from exec","confidence":0.75}'`)

	engine, err := NewExecEngine(script, "en", 10*time.Second)
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	h := NewHandle(engine, HandleConfig{}, newLogger())
	t.Cleanup(func() { _ = h.Close() })
	model, err := h.Load("./model")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess, err := h.CreateSession(model, 16000, Options{MaxAlternatives: 1})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	empty, err := sess.FinalResult()
	if err != nil || empty.Text != "" {
		t.Fatalf("expected empty final without audio, got %+v (%v)", empty, err)
	}
	if _, err := sess.AcceptChunk(make([]byte, 3200)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	res, err := sess.FinalResult()
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if res.Text != "hello from exec" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].Confidence != 0.75 {
		t.Fatalf("unexpected alternatives %+v", res.Alternatives)
	}
}

func TestExecEngineCommandFailure(t *testing.T) {
	script := writeScript(t, `echo boom >&2; exit 1`)
	engine, err := NewExecEngine(script, "", 0)
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	h := NewHandle(engine, HandleConfig{}, newLogger())
	t.Cleanup(func() { _ = h.Close() })
	model, err := h.Load("./model")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess, err := h.CreateSession(model, 16000, Options{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := sess.AcceptChunk(make([]byte, 320)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := sess.FinalResult(); !errors.Is(err, fault.Engine) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestExecEngineEmptyCommand(t *testing.T) {
	if _, err := NewExecEngine("   ", "", 0); err == nil {
		t.Fatal("expected error for empty command")
	}
}
