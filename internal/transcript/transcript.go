// Package transcript holds the persisted transcript document, the Builder
// that produces it from raw recognizer output, and its file formats.
//
// Token text is kept exactly as the recognizer emitted it. Whisper attaches
// the separating whitespace to the following token (" there"), so segment
// and document text are plain concatenations with no trimming or joining.
package transcript

import (
	"fmt"
	"math"
	"strings"
)

// UndeterminedLanguage is stored when the recognizer reports no language.
const UndeterminedLanguage = "und"

// Word is one aligned token.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is a contiguous span of transcript text.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Transcript is the root document. It is treated as immutable once built or
// loaded; re-transcription produces a new document.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Duration is the end of the last segment in seconds.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// WordCount returns the number of words across all segments.
func (t *Transcript) WordCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, s := range t.Segments {
		n += len(s.Words)
	}
	return n
}

// JoinText concatenates segment texts in order.
func JoinText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// JoinWords concatenates word tokens in order.
func JoinWords(words []Word) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w.Word)
	}
	return b.String()
}

// Validate checks every document invariant and reports the first violation.
func (t *Transcript) Validate() error {
	if t == nil {
		return fmt.Errorf("transcript is nil")
	}
	if t.Language == "" {
		return fmt.Errorf("language must not be empty")
	}
	prevStart := 0.0
	for i, s := range t.Segments {
		if s.ID != i {
			return fmt.Errorf("segment %d: id %d breaks the 0..n-1 sequence", i, s.ID)
		}
		if !finite(s.Start) || !finite(s.End) {
			return fmt.Errorf("segment %d: non-finite time", i)
		}
		if s.Start < 0 || s.Start > s.End {
			return fmt.Errorf("segment %d: invalid interval [%g, %g]", i, s.Start, s.End)
		}
		if s.Start < prevStart {
			return fmt.Errorf("segment %d: start %g precedes previous start %g", i, s.Start, prevStart)
		}
		prevStart = s.Start
		for j, w := range s.Words {
			if !finite(w.Start) || !finite(w.End) {
				return fmt.Errorf("segment %d, word %d: non-finite time", i, j)
			}
			if w.Start > w.End {
				return fmt.Errorf("segment %d, word %d: invalid interval [%g, %g]", i, j, w.Start, w.End)
			}
			if w.Start < s.Start || w.End > s.End {
				return fmt.Errorf("segment %d, word %d: [%g, %g] outside segment [%g, %g]", i, j, w.Start, w.End, s.Start, s.End)
			}
			if !(w.Probability >= 0 && w.Probability <= 1) {
				return fmt.Errorf("segment %d, word %d: probability %g outside [0, 1]", i, j, w.Probability)
			}
		}
	}
	if want := JoinText(t.Segments); t.Text != want {
		return fmt.Errorf("text does not match the concatenation of segment texts")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
