package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/loqalabs/loqa-transcribe/internal/audio"
	"github.com/loqalabs/loqa-transcribe/internal/fault"
	"github.com/loqalabs/loqa-transcribe/internal/stt"
)

type fakeSource struct {
	format audio.Format
	chunks [][]byte
	err    error
	reads  int
}

func (s *fakeSource) Format() audio.Format { return s.format }

func (s *fakeSource) Next() ([]byte, error) {
	s.reads++
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

type fakeRecognizer struct {
	accepted   [][]byte
	boundaryAt map[int]bool
	rejectAt   int
	finals     int
	resets     int
}

func (r *fakeRecognizer) AcceptChunk(chunk []byte) (bool, error) {
	if r.rejectAt > 0 && len(r.accepted)+1 == r.rejectAt {
		return false, fault.New(fault.InvalidChunk, "accept chunk", "", errors.New("rejected"))
	}
	r.accepted = append(r.accepted, chunk)
	return r.boundaryAt[len(r.accepted)], nil
}

func (r *fakeRecognizer) Result() (stt.Result, error) {
	return stt.Result{Text: "utterance"}, nil
}

func (r *fakeRecognizer) FinalResult() (stt.Result, error) {
	r.finals++
	return stt.Result{Text: "tail"}, nil
}

func (r *fakeRecognizer) Reset() error {
	r.resets++
	return nil
}

func chunks(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{byte(i), byte(i + 1)}, 4)
	}
	return out
}

func TestRunForwardsInOrder(t *testing.T) {
	want := chunks(5)
	src := &fakeSource{format: audio.Required(16000), chunks: append([][]byte{}, want...)}
	rec := &fakeRecognizer{boundaryAt: map[int]bool{2: true}}

	out, err := Run(context.Background(), src, rec, audio.Required(16000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !bytes.Equal(bytes.Join(rec.accepted, nil), bytes.Join(want, nil)) {
		t.Fatal("accepted bytes differ from source bytes")
	}
	if out.Chunks != 5 || out.Bytes != 40 || rec.finals != 1 {
		t.Fatalf("unexpected outcome %+v finals=%d", out, rec.finals)
	}
	if len(out.Utterances) != 1 || out.Text != "utterance tail" {
		t.Fatalf("unexpected text %q utterances %d", out.Text, len(out.Utterances))
	}
}

func TestRunRejectsFormatBeforeReading(t *testing.T) {
	stereo := audio.Required(16000)
	stereo.Channels = 2
	src := &fakeSource{format: stereo, chunks: chunks(3)}
	rec := &fakeRecognizer{}

	_, err := Run(context.Background(), src, rec, audio.Required(16000))
	if !errors.Is(err, fault.UnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if src.reads != 0 || len(rec.accepted) != 0 || rec.finals != 0 {
		t.Fatalf("expected no reads or chunks, got reads=%d accepted=%d", src.reads, len(rec.accepted))
	}
}

func TestRunFinalizesOnReadError(t *testing.T) {
	ioErr := fault.New(fault.IO, "read audio", "a.wav", audio.ErrTruncated)
	src := &fakeSource{format: audio.Required(16000), chunks: chunks(2), err: ioErr}
	rec := &fakeRecognizer{}

	out, err := Run(context.Background(), src, rec, audio.Required(16000))
	if !errors.Is(err, audio.ErrTruncated) {
		t.Fatalf("expected truncation error, got %v", err)
	}
	if rec.finals != 1 || out.Final.Text != "tail" || out.Chunks != 2 {
		t.Fatalf("expected partial finalize, got %+v", out)
	}
	if src.reads != 3 {
		t.Fatalf("expected reading to stop at the error, got %d reads", src.reads)
	}
}

func TestRunClassifiesUnknownReadErrors(t *testing.T) {
	src := &fakeSource{format: audio.Required(16000), err: errors.New("disk on fire")}
	_, err := Run(context.Background(), src, &fakeRecognizer{}, audio.Required(16000))
	if !errors.Is(err, fault.IO) {
		t.Fatalf("expected io kind, got %v", err)
	}
}

func TestRunResetsOnRejectedChunk(t *testing.T) {
	src := &fakeSource{format: audio.Required(16000), chunks: chunks(4)}
	rec := &fakeRecognizer{rejectAt: 3}

	out, err := Run(context.Background(), src, rec, audio.Required(16000))
	if !errors.Is(err, fault.InvalidChunk) {
		t.Fatalf("expected invalid chunk, got %v", err)
	}
	if out.Chunks != 2 || rec.resets != 1 || rec.finals != 0 {
		t.Fatalf("unexpected state: chunks=%d resets=%d finals=%d", out.Chunks, rec.resets, rec.finals)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{format: audio.Required(16000), chunks: chunks(2)}
	rec := &fakeRecognizer{}

	_, err := Run(ctx, src, rec, audio.Required(16000))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(rec.accepted) != 0 || rec.resets != 1 {
		t.Fatalf("expected reset without chunks, accepted=%d resets=%d", len(rec.accepted), rec.resets)
	}
}
