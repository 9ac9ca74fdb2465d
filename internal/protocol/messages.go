package protocol

import "time"

// Transcript is the final transcription of one file broadcast on the bus.
type Transcript struct {
	RunID      string    `json:"run_id"`
	Path       string    `json:"path"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Engine     string    `json:"engine,omitempty"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
)
