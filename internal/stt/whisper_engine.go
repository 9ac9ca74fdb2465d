//go:build whisper

package stt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/tidwall/sjson"
)

// whisperSampleRate is the only rate whisper.cpp decodes.
const whisperSampleRate = 16000

// WhisperAvailable reports whether the whisper.cpp backend is compiled in.
func WhisperAvailable() bool { return true }

// whisperEngine is not a streaming decoder: audio is buffered and the whole
// utterance is decoded on FinalResult.
type whisperEngine struct {
	language string
	threads  int
}

func newWhisperEngine(language string, threads int) (Engine, error) {
	if language == "" {
		language = "auto"
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &whisperEngine{language: language, threads: threads}, nil
}

func (e *whisperEngine) Name() string { return "whisper" }

func (e *whisperEngine) SetLogLevel(int) {}

func (e *whisperEngine) LoadModel(path string) (NativeModel, error) {
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &whisperModel{engine: e, model: m}, nil
}

type whisperModel struct {
	engine *whisperEngine
	model  whisper.Model
}

func (m *whisperModel) NewRecognizer(sampleRate float64, opts Options) (NativeRecognizer, error) {
	return &whisperRecognizer{model: m, sampleRate: int(sampleRate), opts: opts}, nil
}

func (m *whisperModel) Free() { _ = m.model.Close() }

type whisperRecognizer struct {
	model      *whisperModel
	sampleRate int
	opts       Options
	samples    []float32
}

func (r *whisperRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	const scale = 1.0 / 32768.0
	for i := 0; i+1 < len(pcm); i += 2 {
		r.samples = append(r.samples, float32(float64(int16(binary.LittleEndian.Uint16(pcm[i:])))*scale))
	}
	return false, nil
}

func (r *whisperRecognizer) Result() (string, error) { return sjson.Set("", "text", "") }

func (r *whisperRecognizer) PartialResult() (string, error) { return sjson.Set("", "partial", "") }

func (r *whisperRecognizer) FinalResult() (string, error) {
	samples := r.samples
	r.samples = nil
	if len(samples) == 0 {
		return sjson.Set("", "text", "")
	}
	samples = resampleLinear(samples, r.sampleRate, whisperSampleRate)

	wctx, err := r.model.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(r.model.engine.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(r.model.engine.threads))
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var texts, words []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		item, _ := sjson.Set("{}", "end", seg.End.Seconds())
		item, _ = sjson.Set(item, "start", seg.Start.Seconds())
		item, _ = sjson.Set(item, "word", text)
		words = append(words, item)
	}

	doc, _ := sjson.Set("", "text", strings.Join(texts, " "))
	if r.opts.Words && len(texts) > 0 {
		doc, _ = sjson.SetRaw(doc, "result", "["+strings.Join(words, ",")+"]")
	}
	return doc, nil
}

func (r *whisperRecognizer) Reset() { r.samples = nil }

func (r *whisperRecognizer) Free() { r.samples = nil }

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}
