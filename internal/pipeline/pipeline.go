// Package pipeline drains an audio source into a recognizer session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-transcribe/internal/audio"
	"github.com/loqalabs/loqa-transcribe/internal/fault"
	"github.com/loqalabs/loqa-transcribe/internal/stt"
)

// Source yields whole-frame PCM chunks after exposing its format.
type Source interface {
	Format() audio.Format
	Next() ([]byte, error)
}

// Recognizer is the part of *stt.Session the pipeline drives.
type Recognizer interface {
	AcceptChunk(chunk []byte) (bool, error)
	Result() (stt.Result, error)
	FinalResult() (stt.Result, error)
	Reset() error
}

// Outcome is what one run produced. On a mid-stream read error it holds the
// result finalized from the audio accepted before the error.
type Outcome struct {
	Chunks     int
	Bytes      int64
	Utterances []stt.Result
	Final      stt.Result
	Text       string
}

// Run validates the source format against required, then forwards every
// chunk to rec in order and finalizes.
//
// A format mismatch is returned before any chunk is read. A read error stops
// forwarding; the session is finalized and the error returned with the
// outcome. A rejected chunk or a cancelled ctx resets the session.
func Run(ctx context.Context, src Source, rec Recognizer, required audio.Format) (Outcome, error) {
	var out Outcome
	if err := audio.Validate(src.Format(), required); err != nil {
		return out, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return out, abort(rec, fmt.Errorf("stream interrupted: %w", err))
		}

		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if fault.KindOf(err) == "" {
				err = fault.New(fault.IO, "read audio", "", err)
			}
			if ferr := finalize(rec, &out); ferr != nil {
				return out, errors.Join(err, ferr)
			}
			return out, err
		}

		boundary, err := rec.AcceptChunk(chunk)
		if err != nil {
			return out, abort(rec, err)
		}
		out.Chunks++
		out.Bytes += int64(len(chunk))

		if boundary {
			res, err := rec.Result()
			if err != nil {
				return out, abort(rec, err)
			}
			out.Utterances = append(out.Utterances, res)
		}
	}

	if err := finalize(rec, &out); err != nil {
		return out, err
	}
	return out, nil
}

func finalize(rec Recognizer, out *Outcome) error {
	final, err := rec.FinalResult()
	if err != nil {
		return err
	}
	out.Final = final
	all := append(append([]stt.Result{}, out.Utterances...), final)
	out.Text = stt.JoinText(all...)
	return nil
}

func abort(rec Recognizer, err error) error {
	if rerr := rec.Reset(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}
