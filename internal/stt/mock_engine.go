package stt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/tidwall/sjson"
)

const (
	// mockThreshold is the mean absolute amplitude above which a block counts as voiced.
	mockThreshold = 500
	// mockBoundaryBlocks silent blocks after speech end an utterance.
	mockBoundaryBlocks = 5
)

var mockVocabulary = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
	"india", "juliett", "kilo", "lima", "mike", "november", "oscar", "papa",
}

// MockEngine is a deterministic engine without a native dependency. Audio is
// cut into 100ms blocks; each run of voiced blocks becomes one word chosen by
// hashing its samples, and a long enough silence ends the utterance.
type MockEngine struct {
	logLevel atomic.Int64
	loads    atomic.Int64
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (e *MockEngine) Name() string { return "mock" }

func (e *MockEngine) SetLogLevel(level int) { e.logLevel.Store(int64(level)) }

// LogLevel returns the last level set.
func (e *MockEngine) LogLevel() int { return int(e.logLevel.Load()) }

// Loads counts LoadModel calls.
func (e *MockEngine) Loads() int { return int(e.loads.Load()) }

func (e *MockEngine) LoadModel(path string) (NativeModel, error) {
	e.loads.Add(1)
	if path == "" {
		return nil, errors.New("empty model path")
	}
	return &mockModel{path: path}, nil
}

type mockModel struct {
	path string
}

func (m *mockModel) NewRecognizer(sampleRate float64, opts Options) (NativeRecognizer, error) {
	blockSamples := int(sampleRate / 10)
	if blockSamples <= 0 {
		return nil, fmt.Errorf("sample rate %.0f too low", sampleRate)
	}
	return &mockRecognizer{
		opts:       opts,
		blockBytes: blockSamples * FrameSize,
		blockSecs:  float64(blockSamples) / sampleRate,
	}, nil
}

func (m *mockModel) Free() {}

type mockWord struct {
	text       string
	start, end float64
}

type mockRecognizer struct {
	opts       Options
	blockBytes int
	blockSecs  float64

	pending   []byte
	block     int
	words     []mockWord
	voiced    bool
	wordStart int
	hashBytes []byte
	silent    int
	completed string
}

func (r *mockRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	r.pending = append(r.pending, pcm...)
	boundary := false
	for len(r.pending) >= r.blockBytes {
		if r.consume(r.pending[:r.blockBytes]) {
			boundary = true
		}
		r.pending = r.pending[r.blockBytes:]
	}
	return boundary, nil
}

// consume processes one block and reports whether it closed an utterance.
func (r *mockRecognizer) consume(block []byte) bool {
	defer func() { r.block++ }()

	var sum int64
	for i := 0; i+1 < len(block); i += 2 {
		v := int64(int16(binary.LittleEndian.Uint16(block[i:])))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	mean := sum / int64(len(block)/2)

	if mean > mockThreshold {
		if !r.voiced {
			r.voiced = true
			r.wordStart = r.block
			r.hashBytes = r.hashBytes[:0]
		}
		r.hashBytes = append(r.hashBytes, block...)
		r.silent = 0
		return false
	}

	r.closeWord(r.block)
	r.silent++
	if r.silent == mockBoundaryBlocks && len(r.words) > 0 {
		r.completed = r.render(r.words)
		r.words = nil
		return true
	}
	return false
}

func (r *mockRecognizer) closeWord(endBlock int) {
	if !r.voiced {
		return
	}
	h := fnv.New32a()
	_, _ = h.Write(r.hashBytes)
	r.words = append(r.words, mockWord{
		text:  mockVocabulary[h.Sum32()%uint32(len(mockVocabulary))],
		start: float64(r.wordStart) * r.blockSecs,
		end:   float64(endBlock) * r.blockSecs,
	})
	r.voiced = false
	r.hashBytes = r.hashBytes[:0]
}

func (r *mockRecognizer) Result() (string, error) {
	if r.completed != "" {
		out := r.completed
		r.completed = ""
		return out, nil
	}
	return r.render(nil), nil
}

func (r *mockRecognizer) PartialResult() (string, error) {
	return sjson.Set("", "partial", joinMockWords(r.words))
}

func (r *mockRecognizer) FinalResult() (string, error) {
	r.closeWord(r.block)
	out := r.render(r.words)
	r.words = nil
	r.pending = r.pending[:0]
	r.silent = 0
	return out, nil
}

func (r *mockRecognizer) Reset() {
	r.pending = r.pending[:0]
	r.words = nil
	r.voiced = false
	r.hashBytes = r.hashBytes[:0]
	r.silent = 0
	r.completed = ""
}

func (r *mockRecognizer) Free() {}

// render builds the same JSON layout the vosk engine produces.
func (r *mockRecognizer) render(words []mockWord) string {
	text := joinMockWords(words)
	if r.opts.MaxAlternatives > 0 {
		doc, _ := sjson.Set(`{"alternatives":[{"confidence":1,"text":""}]}`, "alternatives.0.text", text)
		if r.opts.Words && len(words) > 0 {
			doc, _ = sjson.SetRaw(doc, "alternatives.0.result", renderMockWords(words, false))
		}
		return doc
	}
	doc, _ := sjson.Set("", "text", text)
	if r.opts.Words && len(words) > 0 {
		doc, _ = sjson.SetRaw(doc, "result", renderMockWords(words, true))
	}
	return doc
}

func renderMockWords(words []mockWord, withConf bool) string {
	items := make([]string, len(words))
	for i, w := range words {
		item := "{}"
		if withConf {
			item, _ = sjson.Set(item, "conf", 1.0)
		}
		item, _ = sjson.Set(item, "end", w.end)
		item, _ = sjson.Set(item, "start", w.start)
		item, _ = sjson.Set(item, "word", w.text)
		items[i] = item
	}
	return "[" + strings.Join(items, ",") + "]"
}

func joinMockWords(words []mockWord) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}
