//go:build vosk

package stt

import (
	"fmt"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskAvailable reports whether the vosk backend is compiled in.
func VoskAvailable() bool { return true }

type voskEngine struct{}

func newVoskEngine() (Engine, error) {
	return voskEngine{}, nil
}

func (voskEngine) Name() string { return "vosk" }

func (voskEngine) SetLogLevel(level int) { vosk.SetLogLevel(level) }

func (voskEngine) LoadModel(path string) (NativeModel, error) {
	m, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("vosk model: %w", err)
	}
	return &voskModel{model: m}, nil
}

type voskModel struct {
	model *vosk.VoskModel
}

func (m *voskModel) NewRecognizer(sampleRate float64, opts Options) (NativeRecognizer, error) {
	rec, err := vosk.NewRecognizer(m.model, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("vosk recognizer: %w", err)
	}
	if opts.MaxAlternatives > 0 {
		rec.SetMaxAlternatives(opts.MaxAlternatives)
	}
	if opts.Words {
		rec.SetWords(1)
	}
	return &voskRecognizer{rec: rec}, nil
}

func (m *voskModel) Free() { m.model.Free() }

type voskRecognizer struct {
	rec *vosk.VoskRecognizer
}

func (r *voskRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	switch code := r.rec.AcceptWaveform(pcm); code {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("vosk accept waveform returned %d", code)
	}
}

func (r *voskRecognizer) Result() (string, error) { return r.rec.Result(), nil }

func (r *voskRecognizer) PartialResult() (string, error) { return r.rec.PartialResult(), nil }

func (r *voskRecognizer) FinalResult() (string, error) { return r.rec.FinalResult(), nil }

func (r *voskRecognizer) Reset() { r.rec.Reset() }

func (r *voskRecognizer) Free() { r.rec.Free() }
