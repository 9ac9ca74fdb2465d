// Package driver runs the transcription of a list of files: one model, one
// session reused across files, and one report per path in input order.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-transcribe/internal/audio"
	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/eventstore"
	"github.com/loqalabs/loqa-transcribe/internal/fault"
	"github.com/loqalabs/loqa-transcribe/internal/protocol"
	"github.com/loqalabs/loqa-transcribe/internal/stt"
)

const instrumentation = "github.com/loqalabs/loqa-transcribe/driver"

// Recorder stores finished runs.
type Recorder interface {
	AppendRun(ctx context.Context, run eventstore.Run) error
}

// Publisher broadcasts successful transcripts.
type Publisher interface {
	PublishTranscript(ctx context.Context, t protocol.Transcript) error
}

// Options configures a Driver. Handle and Reporter are required.
type Options struct {
	Handle    *stt.Handle
	Opener    *audio.Opener
	Config    config.Config
	Reporter  Reporter
	Recorder  Recorder
	Publisher Publisher
	Logger    *slog.Logger
}

// Report is the outcome for one path.
type Report struct {
	Path          string
	RunID         string
	Text          string
	Result        stt.Result
	Utterances    []stt.Result
	Chunks        int
	Bytes         int64
	AudioDuration time.Duration
	Elapsed       time.Duration
	Err           error
}

// Summary collects the reports of one Run.
type Summary struct {
	RunID   string
	Reports []Report
	Elapsed time.Duration
}

// Failed counts the reports carrying an error.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// ErrorKind classifies err for reports: a fault kind, "timeout",
// "canceled", or "error" for anything else. It is "" for a nil err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case fault.KindOf(err) != "":
		return string(fault.KindOf(err))
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

type Driver struct {
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer

	files   metric.Int64Counter
	failed  metric.Int64Counter
	chunks  metric.Int64Counter
	bytes   metric.Int64Counter
	elapsed metric.Float64Histogram
}

func New(opts Options) (*Driver, error) {
	if opts.Handle == nil {
		return nil, errors.New("driver requires a recognizer handle")
	}
	if opts.Reporter == nil {
		return nil, errors.New("driver requires a reporter")
	}
	if opts.Opener == nil {
		opts.Opener = audio.NewOpener(nil, opts.Config.Audio.ChunkFrames)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Driver{
		opts:   opts,
		log:    opts.Logger.With(slog.String("component", "driver")),
		tracer: otel.Tracer(instrumentation),
	}
	meter := otel.Meter(instrumentation)
	var err error
	if d.files, err = meter.Int64Counter("transcribe.files", metric.WithDescription("Files processed")); err != nil {
		return nil, fmt.Errorf("create files counter: %w", err)
	}
	if d.failed, err = meter.Int64Counter("transcribe.files.failed", metric.WithDescription("Files that failed")); err != nil {
		return nil, fmt.Errorf("create failed counter: %w", err)
	}
	if d.chunks, err = meter.Int64Counter("transcribe.chunks", metric.WithDescription("Audio chunks accepted")); err != nil {
		return nil, fmt.Errorf("create chunks counter: %w", err)
	}
	if d.bytes, err = meter.Int64Counter("transcribe.audio.bytes", metric.WithUnit("By"), metric.WithDescription("PCM bytes accepted")); err != nil {
		return nil, fmt.Errorf("create bytes counter: %w", err)
	}
	if d.elapsed, err = meter.Float64Histogram("transcribe.file.duration", metric.WithUnit("s"), metric.WithDescription("Processing time per file")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return d, nil
}

// Run processes every path and reports each one as soon as it and all
// earlier paths are done. A failed file does not stop the run; an unusable
// model fails every remaining file with the same error.
func (d *Driver) Run(ctx context.Context, paths []string) Summary {
	started := time.Now()
	summary := Summary{RunID: uuid.NewString()}
	d.log.Info("run started",
		slog.String("run_id", summary.RunID),
		slog.Int("files", len(paths)),
		slog.String("engine", d.opts.Handle.EngineName()))

	var fatal fatalState
	workers := d.opts.Config.Driver.Workers
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers <= 1 {
		w := d.newWorker(&fatal)
		for _, path := range paths {
			rep := w.process(ctx, summary.RunID, path)
			d.emit(ctx, rep)
			summary.Reports = append(summary.Reports, rep)
		}
		w.close()
	} else {
		summary.Reports = d.runParallel(ctx, summary.RunID, paths, workers, &fatal)
	}

	summary.Elapsed = time.Since(started)
	d.log.Info("run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("files", len(paths)),
		slog.Int("failed", summary.Failed()),
		slog.Duration("elapsed", summary.Elapsed))
	return summary
}

// runParallel gives each worker its own model and session. Reports are
// emitted in input order.
func (d *Driver) runParallel(ctx context.Context, runID string, paths []string, workers int, fatal *fatalState) []Report {
	results := make([]chan Report, len(paths))
	for i := range results {
		results[i] = make(chan Report, 1)
	}
	jobs := make(chan int)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for i := range paths {
			jobs <- i
		}
		return nil
	})
	for n := 0; n < workers; n++ {
		w := d.newWorker(fatal)
		g.Go(func() error {
			defer w.close()
			for i := range jobs {
				results[i] <- w.process(ctx, runID, paths[i])
			}
			return nil
		})
	}

	reports := make([]Report, 0, len(paths))
	for i := range paths {
		rep := <-results[i]
		d.emit(ctx, rep)
		reports = append(reports, rep)
	}
	_ = g.Wait()
	return reports
}

func (d *Driver) emit(ctx context.Context, rep Report) {
	attrs := metric.WithAttributes(attribute.String("error.kind", ErrorKind(rep.Err)))
	d.files.Add(ctx, 1, attrs)
	d.chunks.Add(ctx, int64(rep.Chunks))
	d.bytes.Add(ctx, rep.Bytes)
	d.elapsed.Record(ctx, rep.Elapsed.Seconds(), attrs)

	if rep.Err != nil {
		d.failed.Add(ctx, 1, attrs)
		d.log.Error("file failed",
			slog.String("path", rep.Path),
			slog.String("kind", ErrorKind(rep.Err)),
			slog.String("error", rep.Err.Error()))
	} else {
		d.log.Info("file transcribed",
			slog.String("path", rep.Path),
			slog.Int("chunks", rep.Chunks),
			slog.Int("utterances", len(rep.Utterances)),
			slog.Duration("audio", rep.AudioDuration),
			slog.Duration("elapsed", rep.Elapsed))
	}

	if err := d.opts.Reporter.Report(rep); err != nil {
		d.log.Warn("write report failed", slog.String("path", rep.Path), slog.String("error", err.Error()))
	}
	if d.opts.Recorder != nil {
		if err := d.opts.Recorder.AppendRun(context.WithoutCancel(ctx), d.record(rep)); err != nil {
			d.log.Warn("record run failed", slog.String("path", rep.Path), slog.String("error", err.Error()))
		}
	}
	if d.opts.Publisher != nil && rep.Err == nil {
		if err := d.opts.Publisher.PublishTranscript(context.WithoutCancel(ctx), d.transcript(rep)); err != nil {
			d.log.Warn("publish transcript failed", slog.String("path", rep.Path), slog.String("error", err.Error()))
		}
	}
}

func (d *Driver) record(rep Report) eventstore.Run {
	run := eventstore.Run{
		RunID:     rep.RunID,
		Path:      rep.Path,
		Engine:    d.opts.Handle.EngineName(),
		Text:      rep.Text,
		Result:    rep.Result.Raw,
		ErrorKind: ErrorKind(rep.Err),
		Chunks:    rep.Chunks,
		Bytes:     rep.Bytes,
		AudioMS:   rep.AudioDuration.Milliseconds(),
		ElapsedMS: rep.Elapsed.Milliseconds(),
	}
	if rep.Err != nil {
		run.Error = rep.Err.Error()
	}
	return run
}

func (d *Driver) transcript(rep Report) protocol.Transcript {
	t := protocol.Transcript{
		RunID:     rep.RunID,
		Path:      rep.Path,
		Text:      rep.Text,
		Timestamp: time.Now().UTC(),
		ElapsedMS: rep.Elapsed.Milliseconds(),
		Engine:    d.opts.Handle.EngineName(),
	}
	if len(rep.Result.Alternatives) > 0 {
		t.Confidence = rep.Result.Alternatives[0].Confidence
	}
	return t
}

// fatalState holds the error that made the model unusable, shared by all
// workers of a run.
type fatalState struct {
	mu  sync.Mutex
	err error
}

func (f *fatalState) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fatalState) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}
