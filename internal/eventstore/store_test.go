package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.AppendRun(ctx, Run{RunID: "r", Path: "a.wav"}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	runs, err := es.ListRuns(ctx, "", 10)
	if err != nil || runs != nil {
		t.Fatalf("expected no runs from ephemeral store, got %v (%v)", runs, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "nested", "runs.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ok := Run{RunID: "run-1", Path: "a.wav", Engine: "mock", Text: "alpha", Result: `{"text":"alpha"}`, Chunks: 3, Bytes: 24000, AudioMS: 272, ElapsedMS: 5}
	failed := Run{RunID: "run-1", Path: "b.wav", Engine: "mock", ErrorKind: "unsupported_format", Error: "channels 2, want 1"}
	for _, r := range []Run{ok, failed} {
		if err := es.AppendRun(context.Background(), r); err != nil {
			t.Fatalf("append run: %v", err)
		}
	}

	runs, err := es.ListRuns(context.Background(), "a.wav", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Text != "alpha" || runs[0].Bytes != 24000 || runs[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected run: %+v", runs[0])
	}

	all, err := es.ListRuns(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list all runs: %v", err)
	}
	if len(all) != 2 || all[1].ErrorKind != "unsupported_format" {
		t.Fatalf("unexpected runs: %+v", all)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "runs.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRuns: 2}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendRun(context.Background(), Run{RunID: "old", Path: "old.wav"}); err != nil {
		t.Fatalf("append run: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for i, p := range []string{"a.wav", "b.wav", "c.wav"} {
		created := es.clock().Add(time.Duration(i) * time.Minute)
		if err := es.AppendRun(context.Background(), Run{RunID: "new", Path: p, CreatedAt: created}); err != nil {
			t.Fatalf("append run: %v", err)
		}
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	runs, err := es.ListRuns(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].Path != "b.wav" || runs[1].Path != "c.wav" {
		t.Fatalf("expected the two newest runs to survive, got %+v", runs)
	}
}
