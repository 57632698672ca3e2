package transcript

import (
	"errors"
	"fmt"
)

// ErrEmptyMedia reports that the recognizer returned zero segments. Silent or
// empty input ends up here; callers treat it as a recoverable outcome rather
// than a crash.
var ErrEmptyMedia = errors.New("empty media: recognizer returned no segments")

// ErrMalformedRecognition matches any *MalformedRecognitionError via errors.Is.
var ErrMalformedRecognition = errors.New("malformed recognition result")

// MalformedRecognitionError reports recognizer output that cannot be
// normalized into a valid transcript. Word is -1 for segment-level problems.
type MalformedRecognitionError struct {
	Segment int
	Word    int
	Reason  string
}

func (e *MalformedRecognitionError) Error() string {
	if e.Word >= 0 {
		return fmt.Sprintf("%v: segment %d, word %d: %s", ErrMalformedRecognition, e.Segment, e.Word, e.Reason)
	}
	return fmt.Sprintf("%v: segment %d: %s", ErrMalformedRecognition, e.Segment, e.Reason)
}

func (e *MalformedRecognitionError) Is(target error) bool {
	return target == ErrMalformedRecognition
}

func malformed(seg, word int, format string, args ...interface{}) error {
	return &MalformedRecognitionError{Segment: seg, Word: word, Reason: fmt.Sprintf(format, args...)}
}
