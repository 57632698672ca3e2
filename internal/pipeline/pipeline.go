// Package pipeline runs one transcription job end to end: extract audio,
// recognize, build the transcript, then publish it atomically. A job either
// publishes a complete transcript or leaves no output behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/media"
	"github.com/tiroq/vidscribe/internal/transcript"
)

// Stage names passed to Config.OnStage.
const (
	StageExtract   = "extract"
	StageRecognize = "recognize"
	StageBuild     = "build"
	StagePublish   = "publish"
)

// Config wires a Runner to its collaborators.
type Config struct {
	Extractor  media.Extractor
	Recognizer asr.Recognizer

	Language         string // recognizer hint; "" = auto-detect
	WordTimestamps   bool
	OverlapTolerance float64
	WorkDir          string // parent for per-job scratch dirs; "" = os.TempDir()

	Logger  *diaglog.Logger
	OnStage func(sessionID, stage string) // optional progress hook
}

// Request is one transcription job.
type Request struct {
	MediaPath  string
	Vocabulary []string

	// OutputPath, when set, receives the transcript JSON. Formats lists
	// extra subtitle files ("txt", "srt", "vtt") written beside it.
	OutputPath string
	Formats    []string
}

// Result is a finished job.
type Result struct {
	SessionID  string
	Transcript *transcript.Transcript
	Report     *transcript.Report
	Audio      *media.Audio
	Backend    string
	Elapsed    time.Duration
}

// Runner executes jobs. It holds no per-job state and may be shared.
type Runner struct {
	cfg Config
}

// New creates a Runner.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run executes req. Errors are *media.AudioExtractionError,
// *asr.RecognitionError, *transcript.MalformedRecognitionError,
// transcript.ErrEmptyMedia or the context error when the job was abandoned.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	sessionID := uuid.NewString()
	start := time.Now()
	r.log(sessionID, diaglog.EventJobStart, "", map[string]interface{}{
		"media":      req.MediaPath,
		"vocabulary": len(req.Vocabulary),
		"output":     req.OutputPath,
	})

	res, err := r.run(ctx, sessionID, req)
	if err != nil {
		if ctx.Err() != nil {
			r.log(sessionID, diaglog.EventJobAbandoned, ctx.Err().Error(), nil)
			return nil, ctx.Err()
		}
		r.log(sessionID, diaglog.EventJobFailed, err.Error(), map[string]interface{}{"code": ErrorCode(err)})
		return nil, err
	}

	res.Elapsed = time.Since(start)
	r.log(sessionID, diaglog.EventJobDone, "", map[string]interface{}{
		"segments":   len(res.Transcript.Segments),
		"words":      res.Report.Words,
		"language":   res.Transcript.Language,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context, sessionID string, req Request) (*Result, error) {
	if err := transcript.CheckFormats(req.Formats); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(r.cfg.WorkDir, "vidscribe-job-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	r.stage(sessionID, StageExtract)
	audio, err := r.cfg.Extractor.Extract(ctx, req.MediaPath, filepath.Join(workDir, "audio.wav"))
	if err != nil {
		return nil, err
	}

	r.stage(sessionID, StageRecognize)
	opts := asr.Options{
		Language:       r.cfg.Language,
		InitialPrompt:  transcript.InitialPrompt(req.Vocabulary),
		WordTimestamps: r.cfg.WordTimestamps,
	}
	raw, err := r.cfg.Recognizer.Recognize(ctx, audio.Path, opts)
	if err != nil {
		return nil, asr.Wrap(r.cfg.Recognizer.Name(), err)
	}
	if raw == nil {
		return nil, asr.Wrap(r.cfg.Recognizer.Name(), errors.New("recognizer returned no result"))
	}
	r.log(sessionID, diaglog.EventRecognizeDone, "", map[string]interface{}{
		"backend":  raw.Backend,
		"segments": len(raw.Segments),
		"language": raw.Language,
	})

	// The host may abandon the job while recognition runs.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.stage(sessionID, StageBuild)
	b := transcript.NewBuilder(transcript.Options{
		OverlapTolerance: r.cfg.OverlapTolerance,
		Logger:           r.cfg.Logger,
		SessionID:        sessionID,
	})
	t, rep, err := b.Build(raw)
	if err != nil {
		return nil, err
	}

	if req.OutputPath != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.stage(sessionID, StagePublish)
		if err := publish(req.OutputPath, t, req.Formats); err != nil {
			return nil, err
		}
		r.log(sessionID, diaglog.EventTranscriptPublished, "", map[string]interface{}{"path": req.OutputPath})
	}

	backend := raw.Backend
	if backend == "" {
		backend = r.cfg.Recognizer.Name()
	}
	return &Result{
		SessionID:  sessionID,
		Transcript: t,
		Report:     rep,
		Audio:      audio,
		Backend:    backend,
	}, nil
}

// publish writes subtitle files first and the JSON last, so a failure never
// leaves a transcript JSON without its requested companions. Companions
// already written are removed when the JSON cannot be saved.
func publish(path string, t *transcript.Transcript, formats []string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if len(formats) > 0 {
		if err := transcript.WriteAll(base, t, formats); err != nil {
			removeCompanions(base, formats)
			return err
		}
	}
	if err := transcript.Save(path, t); err != nil {
		removeCompanions(base, formats)
		return fmt.Errorf("saving transcript: %w", err)
	}
	return nil
}

func removeCompanions(base string, formats []string) {
	for _, f := range formats {
		os.Remove(base + "." + f)
	}
}

func (r *Runner) stage(sessionID, stage string) {
	if r.cfg.OnStage != nil {
		r.cfg.OnStage(sessionID, stage)
	}
}

func (r *Runner) log(sessionID, event, reason string, payload interface{}) {
	r.cfg.Logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentPipeline,
		Event:     event,
		SessionID: sessionID,
		Reason:    reason,
		Payload:   payload,
	})
}
