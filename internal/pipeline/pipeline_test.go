package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/media"
	"github.com/tiroq/vidscribe/internal/transcript"
)

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, mediaPath, outPath string) (*media.Audio, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(outPath, []byte("RIFF"), 0644); err != nil {
		return nil, err
	}
	return &media.Audio{Path: outPath, SampleRate: 16000, Channels: 1}, nil
}

type fakeRecognizer struct {
	result *asr.Result
	err    error
	// hook runs inside Recognize, after the audio path is checked.
	hook func()

	gotOpts  asr.Options
	gotAudio string
	calls    int
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Recognize(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	f.calls++
	f.gotOpts = opts
	f.gotAudio = audioPath
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio missing: %w", err)
	}
	if f.hook != nil {
		f.hook()
	}
	return f.result, f.err
}

func (f *fakeRecognizer) HealthCheck(context.Context) (*asr.HealthStatus, error) {
	return &asr.HealthStatus{OK: true, Backend: "fake"}, nil
}

func goodResult() *asr.Result {
	return &asr.Result{
		Language: "en",
		Backend:  "fake",
		Segments: []asr.RawSegment{
			{Start: asr.Float(0), End: asr.Float(2), Text: asr.String(" hi there"), Words: []asr.RawWord{
				{Word: asr.String(" hi"), Start: asr.Float(0), End: asr.Float(0.5), Probability: asr.Float(0.9)},
				{Word: asr.String(" there"), Start: asr.Float(0.5), End: asr.Float(2), Probability: asr.Float(0.8)},
			}},
			{Start: asr.Float(2), End: asr.Float(4), Text: asr.String(" bye")},
		},
	}
}

func newRunner(t *testing.T, ex media.Extractor, rec asr.Recognizer) *Runner {
	t.Helper()
	return New(Config{
		Extractor:      ex,
		Recognizer:     rec,
		WordTimestamps: true,
		WorkDir:        t.TempDir(),
	})
}

func TestRunPublishesTranscript(t *testing.T) {
	rec := &fakeRecognizer{result: goodResult()}
	var stages []string
	r := New(Config{
		Extractor:      &fakeExtractor{},
		Recognizer:     rec,
		WordTimestamps: true,
		WorkDir:        t.TempDir(),
		OnStage:        func(_, s string) { stages = append(stages, s) },
	})
	out := filepath.Join(t.TempDir(), "talk.json")

	res, err := r.Run(context.Background(), Request{
		MediaPath:  "talk.mp4",
		Vocabulary: []string{"Kubernetes", "gRPC"},
		OutputPath: out,
		Formats:    []string{"srt"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	require.Equal(t, "fake", res.Backend)
	require.Equal(t, " hi there bye", res.Transcript.Text)
	require.Equal(t, []string{StageExtract, StageRecognize, StageBuild, StagePublish}, stages)

	require.Equal(t, "The following words may appear in the audio: Kubernetes, gRPC", rec.gotOpts.InitialPrompt)
	require.True(t, rec.gotOpts.WordTimestamps)

	loaded, err := transcript.Load(out)
	require.NoError(t, err)
	require.Equal(t, res.Transcript, loaded)
	require.FileExists(t, filepath.Join(filepath.Dir(out), "talk.srt"))

	_, err = os.Stat(rec.gotAudio)
	require.True(t, os.IsNotExist(err), "scratch audio should be removed")
}

func TestRunWithoutOutputWritesNothing(t *testing.T) {
	work := t.TempDir()
	r := New(Config{Extractor: &fakeExtractor{}, Recognizer: &fakeRecognizer{result: goodResult()}, WorkDir: work})
	_, err := r.Run(context.Background(), Request{MediaPath: "a.mp4"})
	require.NoError(t, err)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunSessionIDsAreUnique(t *testing.T) {
	r := newRunner(t, &fakeExtractor{}, &fakeRecognizer{result: goodResult()})
	a, err := r.Run(context.Background(), Request{MediaPath: "a.mp4"})
	require.NoError(t, err)
	b, err := r.Run(context.Background(), Request{MediaPath: "a.mp4"})
	require.NoError(t, err)
	require.NotEqual(t, a.SessionID, b.SessionID)
}

func TestRunFailures(t *testing.T) {
	extractErr := &media.AudioExtractionError{Input: "a.mp4", Reason: "ffmpeg not found"}
	tests := []struct {
		name     string
		ex       *fakeExtractor
		rec      *fakeRecognizer
		wantCode string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "extraction",
			ex:       &fakeExtractor{err: extractErr},
			rec:      &fakeRecognizer{result: goodResult()},
			wantCode: CodeAudioExtraction,
			check: func(t *testing.T, err error) {
				var ae *media.AudioExtractionError
				require.True(t, errors.As(err, &ae))
			},
		},
		{
			name:     "recognition",
			ex:       &fakeExtractor{},
			rec:      &fakeRecognizer{err: errors.New("model crashed")},
			wantCode: CodeRecognition,
			check: func(t *testing.T, err error) {
				var re *asr.RecognitionError
				require.True(t, errors.As(err, &re))
				require.Equal(t, "fake", re.Backend)
				require.Contains(t, err.Error(), "model crashed")
			},
		},
		{
			name:     "nil result",
			ex:       &fakeExtractor{},
			rec:      &fakeRecognizer{},
			wantCode: CodeRecognition,
		},
		{
			name:     "empty media",
			ex:       &fakeExtractor{},
			rec:      &fakeRecognizer{result: &asr.Result{Language: "en"}},
			wantCode: CodeEmptyMedia,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, transcript.ErrEmptyMedia)
			},
		},
		{
			name: "malformed",
			ex:   &fakeExtractor{},
			rec: &fakeRecognizer{result: &asr.Result{Segments: []asr.RawSegment{
				{Start: asr.Float(0), Text: asr.String("x")},
			}}},
			wantCode: CodeMalformedRecognition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.json")
			_, err := newRunner(t, tt.ex, tt.rec).Run(context.Background(), Request{MediaPath: "a.mp4", OutputPath: out})
			require.Error(t, err)
			require.Equal(t, tt.wantCode, ErrorCode(err))
			if tt.check != nil {
				tt.check(t, err)
			}
			require.NoFileExists(t, out)
		})
	}
}

func TestRunExtractionFailureSkipsRecognition(t *testing.T) {
	rec := &fakeRecognizer{result: goodResult()}
	_, err := newRunner(t, &fakeExtractor{err: &media.AudioExtractionError{Reason: "x"}}, rec).
		Run(context.Background(), Request{MediaPath: "a.mp4"})
	require.Error(t, err)
	require.Zero(t, rec.calls)
}

func TestRunAbandonedAfterRecognition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &fakeRecognizer{result: goodResult(), hook: cancel}
	out := filepath.Join(t.TempDir(), "out.json")

	res, err := newRunner(t, &fakeExtractor{}, rec).Run(ctx, Request{MediaPath: "a.mp4", OutputPath: out, Formats: []string{"vtt"}})
	require.Nil(t, res)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, CodeCanceled, ErrorCode(err))
	require.NoFileExists(t, out)
	require.NoFileExists(t, filepath.Join(filepath.Dir(out), "out.vtt"))
}

func TestRunRecognizerFailsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &fakeRecognizer{err: errors.New("signal: killed"), hook: cancel}

	_, err := newRunner(t, &fakeExtractor{}, rec).Run(ctx, Request{MediaPath: "a.mp4"})
	require.ErrorIs(t, err, context.Canceled, "abandonment wins over the adapter error")
}

func TestRunUnknownFormatWritesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	ex, rec := &fakeExtractor{}, &fakeRecognizer{result: goodResult()}
	_, err := newRunner(t, ex, rec).
		Run(context.Background(), Request{MediaPath: "a.mp4", OutputPath: out, Formats: []string{"srt", "docx"}})
	require.ErrorContains(t, err, `unknown format "docx"`)
	require.Equal(t, CodeInternal, ErrorCode(err))
	require.Zero(t, ex.calls, "extraction must not start")
	require.Zero(t, rec.calls)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunSaveFailureRemovesCompanions(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	// A non-empty directory at the JSON path makes the final rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(out, "blocker"), 0755))

	_, err := newRunner(t, &fakeExtractor{}, &fakeRecognizer{result: goodResult()}).
		Run(context.Background(), Request{MediaPath: "a.mp4", OutputPath: out, Formats: []string{"srt", "vtt"}})
	require.ErrorContains(t, err, "saving transcript")
	require.NoFileExists(t, filepath.Join(dir, "out.srt"))
	require.NoFileExists(t, filepath.Join(dir, "out.vtt"))
	require.DirExists(t, out)
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, "", ErrorCode(nil))
	require.Equal(t, CodeCanceled, ErrorCode(fmt.Errorf("job: %w", context.DeadlineExceeded)))
	require.Equal(t, CodeAudioExtraction, ErrorCode(&media.AudioExtractionError{Reason: "timed out", Err: context.DeadlineExceeded}))
	require.Equal(t, CodeRecognition, ErrorCode(asr.Wrap("remote", context.DeadlineExceeded)))
	require.Equal(t, CodeInternal, ErrorCode(errors.New("disk full")))
}
