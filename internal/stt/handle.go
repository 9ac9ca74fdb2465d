package stt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-transcribe/internal/fault"
)

// FrameSize is the byte size of one mono 16-bit sample frame.
const FrameSize = 2

var (
	// ErrReleased is wrapped by lifecycle errors on released models or sessions.
	ErrReleased = errors.New("handle already released")
	// ErrForeignHandle is returned when a Model or Session from another Handle is used.
	ErrForeignHandle = errors.New("handle belongs to a different recognizer")
)

type HandleConfig struct {
	LogLevel int
	// ConcurrentSessions lets sessions on one model run in parallel.
	ConcurrentSessions bool
}

// Handle owns every model and session created through it. Entries live in an
// arena keyed by id; Model and Session values are references into it, so use
// after release is detected instead of reaching a freed native pointer.
type Handle struct {
	engine Engine
	cfg    HandleConfig
	log    *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	models   map[uint64]*modelEntry
	sessions map[uint64]*sessionEntry
}

type modelEntry struct {
	id       uint64
	path     string
	native   NativeModel
	refs     int
	released bool
	// mu serializes recognizers sharing the model.
	mu sync.Mutex
}

type sessionEntry struct {
	id         uint64
	model      *modelEntry
	native     NativeRecognizer
	sampleRate int
	opts       Options
	released   bool
	mu         sync.Mutex
}

// Model references a loaded model.
type Model struct {
	h    *Handle
	id   uint64
	path string
}

// Session references a recognizer bound to one model and sample rate.
type Session struct {
	h  *Handle
	id uint64
}

// Stats counts live arena entries.
type Stats struct {
	Models   int
	Sessions int
}

// NewHandle applies the engine log level and returns an empty arena.
func NewHandle(engine Engine, cfg HandleConfig, log *slog.Logger) *Handle {
	engine.SetLogLevel(cfg.LogLevel)
	return &Handle{
		engine:   engine,
		cfg:      cfg,
		log:      log.With(slog.String("component", "recognizer"), slog.String("engine", engine.Name())),
		models:   make(map[uint64]*modelEntry),
		sessions: make(map[uint64]*sessionEntry),
	}
}

// EngineName reports the backend name.
func (h *Handle) EngineName() string { return h.engine.Name() }

// Load loads the model at path.
func (h *Handle) Load(path string) (*Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fault.New(fault.ModelLoad, "load model", path, errors.New("empty model path"))
	}
	native, err := h.engine.LoadModel(path)
	if err != nil {
		return nil, fault.New(fault.ModelLoad, "load model", path, err)
	}
	if native == nil {
		return nil, fault.New(fault.ModelLoad, "load model", path, errors.New("engine returned no model"))
	}

	h.mu.Lock()
	h.nextID++
	entry := &modelEntry{id: h.nextID, path: path, native: native}
	h.models[entry.id] = entry
	h.mu.Unlock()

	h.log.Info("model loaded", slog.String("model_path", path))
	return &Model{h: h, id: entry.id, path: path}, nil
}

// CreateSession builds a recognizer on model for mono 16-bit audio at sampleRate.
func (h *Handle) CreateSession(model *Model, sampleRate int, opts Options) (*Session, error) {
	if sampleRate <= 0 {
		return nil, fault.New(fault.SessionCreate, "create session", "", fmt.Errorf("invalid sample rate %d", sampleRate))
	}
	if opts.MaxAlternatives < 0 {
		return nil, fault.New(fault.SessionCreate, "create session", "", fmt.Errorf("invalid max alternatives %d", opts.MaxAlternatives))
	}
	m, err := h.reserveModel(model, "create session")
	if err != nil {
		return nil, err
	}

	native, err := h.newRecognizer(m, sampleRate, opts)
	if err != nil {
		h.unreserveModel(m)
		return nil, fault.New(fault.SessionCreate, "create session", m.path, err)
	}

	h.mu.Lock()
	h.nextID++
	entry := &sessionEntry{id: h.nextID, model: m, native: native, sampleRate: sampleRate, opts: opts}
	h.sessions[entry.id] = entry
	h.mu.Unlock()

	h.log.Debug("session created", slog.Uint64("session", entry.id), slog.Int("sample_rate", sampleRate))
	return &Session{h: h, id: entry.id}, nil
}

// Close releases every live session and then every model.
func (h *Handle) Close() error {
	h.mu.Lock()
	sessions := make([]uint64, 0, len(h.sessions))
	for id, s := range h.sessions {
		if !s.released {
			sessions = append(sessions, id)
		}
	}
	models := make([]*Model, 0, len(h.models))
	for id, m := range h.models {
		if !m.released {
			models = append(models, &Model{h: h, id: id, path: m.path})
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, id := range sessions {
		if err := (&Session{h: h, id: id}).Release(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range models {
		if err := m.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats reports live model and session counts.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st Stats
	for _, m := range h.models {
		if !m.released {
			st.Models++
		}
	}
	for _, s := range h.sessions {
		if !s.released {
			st.Sessions++
		}
	}
	return st
}

func (h *Handle) reserveModel(model *Model, op string) (*modelEntry, error) {
	if model == nil || model.h != h {
		return nil, fault.New(fault.SessionCreate, op, "", ErrForeignHandle)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.models[model.id]
	if !ok {
		return nil, fault.New(fault.SessionCreate, op, model.path, ErrForeignHandle)
	}
	if m.released {
		return nil, fault.New(fault.Lifecycle, op, m.path, ErrReleased)
	}
	m.refs++
	return m, nil
}

func (h *Handle) unreserveModel(m *modelEntry) {
	h.mu.Lock()
	m.refs--
	h.mu.Unlock()
}

func (h *Handle) newRecognizer(m *modelEntry, sampleRate int, opts Options) (NativeRecognizer, error) {
	if !h.cfg.ConcurrentSessions {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	native, err := m.native.NewRecognizer(float64(sampleRate), opts)
	if err != nil {
		return nil, err
	}
	if native == nil {
		return nil, errors.New("engine returned no recognizer")
	}
	return native, nil
}

// Path returns the filesystem path the model was loaded from.
func (m *Model) Path() string { return m.path }

// Release frees the native model. It fails with a dangling reference error
// while sessions still use the model; releasing twice is a no-op.
func (m *Model) Release() error {
	h := m.h
	h.mu.Lock()
	entry, ok := h.models[m.id]
	if !ok {
		h.mu.Unlock()
		return fault.New(fault.Lifecycle, "release model", m.path, ErrForeignHandle)
	}
	if entry.released {
		h.mu.Unlock()
		return nil
	}
	if entry.refs > 0 {
		refs := entry.refs
		h.mu.Unlock()
		return fault.New(fault.DanglingReference, "release model", m.path, fmt.Errorf("%d session(s) still reference the model", refs))
	}
	entry.released = true
	native := entry.native
	entry.native = nil
	h.mu.Unlock()

	entry.mu.Lock()
	native.Free()
	entry.mu.Unlock()
	h.log.Info("model released", slog.String("model_path", m.path))
	return nil
}

// acquire locks the session, and its model unless concurrent sessions are
// allowed. The returned func undoes the locks.
func (s *Session) acquire(op string) (*sessionEntry, func(), error) {
	h := s.h
	h.mu.Lock()
	entry, ok := h.sessions[s.id]
	h.mu.Unlock()
	if !ok {
		return nil, nil, fault.New(fault.Lifecycle, op, "", ErrForeignHandle)
	}

	entry.mu.Lock()
	if entry.released {
		entry.mu.Unlock()
		return nil, nil, fault.New(fault.Lifecycle, op, "", ErrReleased)
	}
	if h.cfg.ConcurrentSessions {
		return entry, entry.mu.Unlock, nil
	}
	m := entry.model
	m.mu.Lock()
	return entry, func() {
		m.mu.Unlock()
		entry.mu.Unlock()
	}, nil
}

// SampleRate returns the rate the session was created with.
func (s *Session) SampleRate() (int, error) {
	entry, unlock, err := s.acquire("sample rate")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return entry.sampleRate, nil
}

// AcceptChunk feeds PCM bytes and reports whether an utterance ended.
func (s *Session) AcceptChunk(chunk []byte) (bool, error) {
	if len(chunk) == 0 {
		return false, fault.New(fault.InvalidChunk, "accept chunk", "", errors.New("empty chunk"))
	}
	if len(chunk)%FrameSize != 0 {
		return false, fault.New(fault.InvalidChunk, "accept chunk", "", fmt.Errorf("chunk of %d bytes is not aligned to %d-byte frames", len(chunk), FrameSize))
	}
	entry, unlock, err := s.acquire("accept chunk")
	if err != nil {
		return false, err
	}
	defer unlock()
	boundary, err := entry.native.AcceptWaveform(chunk)
	if err != nil {
		return false, fault.New(fault.InvalidChunk, "accept chunk", "", err)
	}
	return boundary, nil
}

// Result returns the utterance completed by the last boundary.
func (s *Session) Result() (Result, error) {
	return s.read("result", NativeRecognizer.Result)
}

// PartialResult snapshots in-progress decoding without changing it.
func (s *Session) PartialResult() (Result, error) {
	return s.read("partial result", NativeRecognizer.PartialResult)
}

// FinalResult flushes the current utterance. Later chunks start a new one.
func (s *Session) FinalResult() (Result, error) {
	return s.read("final result", NativeRecognizer.FinalResult)
}

func (s *Session) read(op string, fn func(NativeRecognizer) (string, error)) (Result, error) {
	entry, unlock, err := s.acquire(op)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	raw, err := fn(entry.native)
	if err != nil {
		return Result{}, fault.New(fault.Engine, op, "", err)
	}
	return ParseResult(raw), nil
}

// Reset discards in-progress state without producing a result.
func (s *Session) Reset() error {
	entry, unlock, err := s.acquire("reset")
	if err != nil {
		return err
	}
	defer unlock()
	entry.native.Reset()
	return nil
}

// Rebind moves the session onto model at sampleRate. The new recognizer is
// built first; the previous one is freed exactly once afterwards.
func (s *Session) Rebind(model *Model, sampleRate int) error {
	h := s.h
	if sampleRate <= 0 {
		return fault.New(fault.SessionCreate, "rebind session", "", fmt.Errorf("invalid sample rate %d", sampleRate))
	}
	h.mu.Lock()
	entry, ok := h.sessions[s.id]
	h.mu.Unlock()
	if !ok {
		return fault.New(fault.Lifecycle, "rebind session", "", ErrForeignHandle)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.released {
		return fault.New(fault.Lifecycle, "rebind session", "", ErrReleased)
	}

	next, err := h.reserveModel(model, "rebind session")
	if err != nil {
		return err
	}
	native, err := h.newRecognizer(next, sampleRate, entry.opts)
	if err != nil {
		h.unreserveModel(next)
		return fault.New(fault.SessionCreate, "rebind session", next.path, err)
	}

	prev := entry.model
	h.freeRecognizer(prev, entry.native)
	entry.native = native
	entry.model = next
	entry.sampleRate = sampleRate
	h.unreserveModel(prev)
	return nil
}

// Release frees the recognizer and drops its model reference. Releasing
// twice is a no-op.
func (s *Session) Release() error {
	h := s.h
	h.mu.Lock()
	entry, ok := h.sessions[s.id]
	h.mu.Unlock()
	if !ok {
		return fault.New(fault.Lifecycle, "release session", "", ErrForeignHandle)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.released {
		return nil
	}
	h.freeRecognizer(entry.model, entry.native)
	entry.native = nil
	// released is also read under h.mu by Stats and Close
	h.mu.Lock()
	entry.released = true
	h.mu.Unlock()
	h.unreserveModel(entry.model)
	h.log.Debug("session released", slog.Uint64("session", entry.id))
	return nil
}

func (h *Handle) freeRecognizer(m *modelEntry, native NativeRecognizer) {
	if !h.cfg.ConcurrentSessions {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	native.Free()
}
