// Package fault defines the error kinds shared by the audio, recognizer and
// driver layers.
package fault

import (
	"errors"
	"strings"
)

// Kind classifies a failure. A Kind is itself an error so it can be used as
// the target of errors.Is.
type Kind string

const (
	IO                Kind = "io"
	UnsupportedFormat Kind = "unsupported_format"
	ModelLoad         Kind = "model_load"
	SessionCreate     Kind = "session_create"
	InvalidChunk      Kind = "invalid_chunk"
	DanglingReference Kind = "dangling_reference"
	Lifecycle         Kind = "lifecycle"
	// Engine covers backend failures that do not fit another kind, such as an
	// external command exiting non-zero.
	Engine Kind = "engine"
)

func (k Kind) Error() string { return string(k) }

// Error carries the kind, the operation and the path being worked on.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New builds an *Error. path may be empty.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// WithPath returns err with Path filled in when the outermost *Error has none.
func WithPath(err error, path string) error {
	var fe *Error
	if !errors.As(err, &fe) || fe.Path != "" {
		return err
	}
	cp := *fe
	cp.Path = path
	if fe == err {
		return &cp
	}
	return err
}
