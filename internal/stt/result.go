package stt

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Word is one recognized word with timings in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf,omitempty"`
}

// Alternative is one n-best hypothesis.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// Result is a parsed transcription hypothesis. Raw keeps the engine's
// original document.
type Result struct {
	Text         string        `json:"text"`
	Partial      bool          `json:"partial,omitempty"`
	Words        []Word        `json:"words,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Raw          string        `json:"-"`
}

// ParseResult decodes the JSON layouts produced by the engines:
//
//	{"partial": "..."}
//	{"text": "...", "result": [{"word","start","end","conf"}...]}
//	{"alternatives": [{"text","confidence","result": [...]}...]}
//
// Invalid JSON yields a Result carrying only Raw.
func ParseResult(raw string) Result {
	res := Result{Raw: raw}
	if !gjson.Valid(raw) {
		return res
	}
	doc := gjson.Parse(raw)

	if partial := doc.Get("partial"); partial.Exists() {
		res.Partial = true
		res.Text = strings.TrimSpace(partial.String())
		return res
	}

	if alts := doc.Get("alternatives"); alts.IsArray() {
		for _, alt := range alts.Array() {
			res.Alternatives = append(res.Alternatives, Alternative{
				Text:       strings.TrimSpace(alt.Get("text").String()),
				Confidence: alt.Get("confidence").Float(),
				Words:      parseWords(alt.Get("result")),
			})
		}
		if len(res.Alternatives) > 0 {
			res.Text = res.Alternatives[0].Text
			res.Words = res.Alternatives[0].Words
		}
		return res
	}

	res.Text = strings.TrimSpace(doc.Get("text").String())
	res.Words = parseWords(doc.Get("result"))
	return res
}

func parseWords(list gjson.Result) []Word {
	if !list.IsArray() {
		return nil
	}
	var words []Word
	list.ForEach(func(_, w gjson.Result) bool {
		words = append(words, Word{
			Word:  w.Get("word").String(),
			Start: w.Get("start").Float(),
			End:   w.Get("end").Float(),
			Conf:  w.Get("conf").Float(),
		})
		return true
	})
	return words
}

// JoinText concatenates the non-empty texts of results in order.
func JoinText(results ...Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, " ")
}
