//go:build !whisper

package stt

// WhisperAvailable reports whether the whisper.cpp backend is compiled in.
func WhisperAvailable() bool { return false }

func newWhisperEngine(string, int) (Engine, error) {
	return nil, ErrEngineUnavailable
}
