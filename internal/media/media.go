// Package media turns an uploaded video or audio file into the mono PCM WAV
// the recognizers consume.
package media

import (
	"context"
	"fmt"
	"time"
)

// DefaultSampleRate is what whisper models expect.
const DefaultSampleRate = 16000

// Audio describes an extracted, verified WAV file.
type Audio struct {
	Path       string
	SampleRate int
	Channels   int
	Samples    int
	Duration   time.Duration
}

// Extractor produces mono PCM WAV at outPath from mediaPath.
type Extractor interface {
	Extract(ctx context.Context, mediaPath, outPath string) (*Audio, error)
}

// AudioExtractionError reports that no usable PCM could be produced: the
// tool is missing, the input is unreadable or unsupported, or the output is
// not the expected format.
type AudioExtractionError struct {
	Input  string
	Reason string
	Err    error
}

func (e *AudioExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio extraction failed for %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio extraction failed for %q: %s", e.Input, e.Reason)
}

func (e *AudioExtractionError) Unwrap() error { return e.Err }
