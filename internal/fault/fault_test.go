package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("stream: %w", New(IO, "read", "a.wav", io.ErrUnexpectedEOF))
	if !errors.Is(err, IO) {
		t.Fatalf("expected io kind to match: %v", err)
	}
	if errors.Is(err, UnsupportedFormat) {
		t.Fatalf("unexpected kind match")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to be preserved")
	}
	if KindOf(err) != IO {
		t.Fatalf("expected io, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain error")
	}
}

func TestErrorString(t *testing.T) {
	err := New(ModelLoad, "load model", "./model", errors.New("corrupt"))
	if got, want := err.Error(), "load model ./model: model_load: corrupt"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWithPath(t *testing.T) {
	err := WithPath(New(UnsupportedFormat, "validate", "", nil), "b.wav")
	var fe *Error
	if !errors.As(err, &fe) || fe.Path != "b.wav" {
		t.Fatalf("expected path to be set, got %v", err)
	}
	kept := WithPath(New(IO, "open", "a.wav", nil), "b.wav")
	if !errors.As(kept, &fe) || fe.Path != "a.wav" {
		t.Fatalf("expected existing path to be kept, got %v", kept)
	}
}
