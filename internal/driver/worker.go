package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-transcribe/internal/audio"
	"github.com/loqalabs/loqa-transcribe/internal/fault"
	"github.com/loqalabs/loqa-transcribe/internal/pipeline"
	"github.com/loqalabs/loqa-transcribe/internal/stt"
)

// worker owns one model and at most one session. It is used by a single
// goroutine.
type worker struct {
	d       *Driver
	fatal   *fatalState
	model   *stt.Model
	session *stt.Session
}

func (d *Driver) newWorker(fatal *fatalState) *worker {
	return &worker{d: d, fatal: fatal}
}

func (w *worker) process(ctx context.Context, runID, path string) (rep Report) {
	started := time.Now()
	rep = Report{Path: path, RunID: runID}

	ctx, span := w.d.tracer.Start(ctx, "transcribe.file", trace.WithAttributes(attribute.String("audio.path", path)))
	defer func() {
		rep.Elapsed = time.Since(started)
		span.SetAttributes(attribute.Int("audio.chunks", rep.Chunks), attribute.Int64("audio.bytes", rep.Bytes))
		if rep.Err != nil {
			span.RecordError(rep.Err)
			span.SetStatus(codes.Error, ErrorKind(rep.Err))
		}
		span.End()
	}()

	if err := w.fatal.get(); err != nil {
		rep.Err = err
		return rep
	}
	if err := w.ensureModel(); err != nil {
		rep.Err = err
		return rep
	}

	src, err := w.d.opts.Opener.Open(path)
	if err != nil {
		rep.Err = err
		return rep
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			w.d.log.Warn("close audio failed", slog.String("path", path), slog.String("error", cerr.Error()))
		}
	}()
	rep.AudioDuration = src.Duration()

	cfg := w.d.opts.Config
	session, err := w.ensureSession(cfg.Audio.SampleRate)
	if err != nil {
		rep.Err = err
		return rep
	}

	if timeout := time.Duration(cfg.Driver.FileTimeout) * time.Millisecond; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := pipeline.Run(ctx, src, session, audio.Required(cfg.Audio.SampleRate))
	rep.Text = out.Text
	rep.Result = out.Final
	rep.Utterances = out.Utterances
	rep.Chunks = out.Chunks
	rep.Bytes = out.Bytes
	if err != nil {
		rep.Err = fault.WithPath(err, path)
		if errors.Is(err, fault.Lifecycle) {
			w.fatal.set(rep.Err)
		}
	}

	if !cfg.Driver.ReuseSession {
		w.releaseSession()
	}
	return rep
}

func (w *worker) ensureModel() error {
	if w.model != nil {
		return nil
	}
	model, err := w.d.opts.Handle.Load(w.d.opts.Config.Engine.ModelPath)
	if err != nil {
		w.fatal.set(err)
		return err
	}
	w.model = model
	w.d.log.Info("model loaded", slog.String("path", model.Path()))
	return nil
}

func (w *worker) ensureSession(sampleRate int) (*stt.Session, error) {
	if w.session != nil {
		return w.session, nil
	}
	rc := w.d.opts.Config.Recognizer
	session, err := w.d.opts.Handle.CreateSession(w.model, sampleRate, stt.Options{
		MaxAlternatives: rc.MaxAlternatives,
		Words:           rc.Words,
	})
	if err != nil {
		w.fatal.set(err)
		return nil, err
	}
	w.session = session
	return session, nil
}

func (w *worker) releaseSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Release(); err != nil {
		w.d.log.Warn("release session failed", slog.String("error", err.Error()))
	}
	w.session = nil
}

// close releases the session before the model it references.
func (w *worker) close() {
	w.releaseSession()
	if w.model == nil {
		return
	}
	if err := w.model.Release(); err != nil {
		w.d.log.Warn("release model failed", slog.String("path", w.model.Path()), slog.String("error", err.Error()))
	}
	w.model = nil
}
