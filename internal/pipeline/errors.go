package pipeline

import (
	"context"
	"errors"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/media"
	"github.com/tiroq/vidscribe/internal/transcript"
)

// Error codes reported to CLI and HTTP callers.
const (
	CodeAudioExtraction      = "audio_extraction"
	CodeRecognition          = "recognition"
	CodeMalformedRecognition = "malformed_recognition"
	CodeEmptyMedia           = "empty_media"
	CodeCanceled             = "canceled"
	CodeInternal             = "internal"
)

// ErrorCode classifies a Run error. Run reports an abandoned job with the
// bare context error, so typed failures are matched first.
func ErrorCode(err error) string {
	var (
		ae *media.AudioExtractionError
		re *asr.RecognitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return CodeAudioExtraction
	case errors.Is(err, transcript.ErrEmptyMedia):
		return CodeEmptyMedia
	case errors.Is(err, transcript.ErrMalformedRecognition):
		return CodeMalformedRecognition
	case errors.As(err, &re):
		return CodeRecognition
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
