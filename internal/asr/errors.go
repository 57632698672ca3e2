package asr

import (
	"errors"
	"fmt"
)

// RecognitionError wraps any failure raised by a recognizer so that callers
// see one stable error kind regardless of backend or backend version.
type RecognitionError struct {
	Backend string
	Err     error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed (backend=%s): %v", e.Backend, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Wrap returns err as a *RecognitionError attributed to backend. Nil stays
// nil and an error that already is a RecognitionError is returned as-is.
func Wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	var re *RecognitionError
	if errors.As(err, &re) {
		return err
	}
	return &RecognitionError{Backend: backend, Err: err}
}
