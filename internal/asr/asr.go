// Package asr defines the recognizer capability: an opaque function from an
// audio file (plus an optional initial prompt) to raw segments and words.
// Adapters live in subpackages; nothing here knows how recognition works.
package asr

import (
	"context"
	"time"
)

// RawWord is one word-alignment record as produced by a recognizer. Fields
// are pointers so that a missing value can be told apart from zero.
type RawWord struct {
	Word        *string  `json:"word"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

// RawSegment is one segment record as produced by a recognizer. ID is
// informational only; consumers re-number segments.
type RawSegment struct {
	ID    *int      `json:"id,omitempty"`
	Start *float64  `json:"start"`
	End   *float64  `json:"end"`
	Text  *string   `json:"text"`
	Words []RawWord `json:"words,omitempty"`
}

// Result is the raw, unvalidated outcome of one recognition call.
type Result struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Segments []RawSegment `json:"segments"`

	Model   string `json:"-"`
	Backend string `json:"-"`
}

// Options configures a recognition request.
type Options struct {
	Language       string // "" = auto-detect
	Model          string // backend-specific model name
	InitialPrompt  string // vocabulary bias, see transcript.InitialPrompt
	WordTimestamps bool
}

// HealthStatus reports backend health.
type HealthStatus struct {
	OK      bool
	Backend string
	Message string
	Latency time.Duration
}

// Recognizer is the interface that recognition backends must implement.
// Implementations own any model state; callers never initialize it.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, audioPath string, opts Options) (*Result, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// Float returns a pointer to v. Handy for building RawSegment literals.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
