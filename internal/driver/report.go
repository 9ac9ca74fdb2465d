package driver

import (
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reporter writes one report per file.
type Reporter interface {
	Report(rep Report) error
}

// NewReporter returns the reporter for output.format.
func NewReporter(format string, out, errOut io.Writer) (Reporter, error) {
	switch format {
	case "", "text":
		return &TextReporter{out: out, errOut: errOut}, nil
	case "json":
		return &JSONReporter{out: out}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// TextReporter prints the engine's result documents followed by the elapsed
// time. Failures go to errOut as "<path>: <kind>: <error>".
type TextReporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func (r *TextReporter) Report(rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.Err != nil {
		if _, err := fmt.Fprintf(r.errOut, "%s: %s: %v\n", rep.Path, ErrorKind(rep.Err), rep.Err); err != nil {
			return err
		}
		// a read error mid-stream still finalized what was accepted
		if rep.Result.Raw == "" {
			return nil
		}
	}
	for _, u := range rep.Utterances {
		if _, err := fmt.Fprintln(r.out, u.Raw); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(r.out, rep.Result.Raw); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.out, "Time Taken to execute = %.3f seconds\n", rep.Elapsed.Seconds())
	return err
}

// JSONReporter prints one JSON object per file.
type JSONReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func (r *JSONReporter) Report(rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, _ := sjson.Set("", "path", rep.Path)
	doc, _ = sjson.Set(doc, "run_id", rep.RunID)
	doc, _ = sjson.Set(doc, "text", rep.Text)
	if rep.Result.Raw != "" && gjson.Valid(rep.Result.Raw) {
		doc, _ = sjson.SetRaw(doc, "result", rep.Result.Raw)
	} else {
		doc, _ = sjson.SetRaw(doc, "result", "null")
	}
	doc, _ = sjson.Set(doc, "utterances", len(rep.Utterances))
	doc, _ = sjson.Set(doc, "audio_seconds", rep.AudioDuration.Seconds())
	doc, _ = sjson.Set(doc, "elapsed_seconds", rep.Elapsed.Seconds())
	if rep.Err != nil {
		doc, _ = sjson.Set(doc, "error", rep.Err.Error())
		doc, _ = sjson.Set(doc, "error_kind", ErrorKind(rep.Err))
	} else {
		doc, _ = sjson.SetRaw(doc, "error", "null")
		doc, _ = sjson.Set(doc, "error_kind", "")
	}
	_, err := fmt.Fprintln(r.out, doc)
	return err
}
