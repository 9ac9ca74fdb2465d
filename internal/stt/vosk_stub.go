//go:build !vosk

package stt

// VoskAvailable reports whether the vosk backend is compiled in.
func VoskAvailable() bool { return false }

func newVoskEngine() (Engine, error) {
	return nil, ErrEngineUnavailable
}
