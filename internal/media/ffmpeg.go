package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tiroq/vidscribe/internal/diaglog"
)

var _ Extractor = (*FFmpeg)(nil)

// Config configures the ffmpeg extractor.
type Config struct {
	BinaryPath     string // default "ffmpeg", resolved on PATH
	SampleRate     int    // default 16000
	TimeoutSeconds int    // default 600
}

// FFmpeg extracts audio by running the ffmpeg binary.
type FFmpeg struct {
	cfg    Config
	logger *diaglog.Logger
}

// NewFFmpeg creates an ffmpeg extractor.
func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 600
	}
	return &FFmpeg{cfg: cfg}
}

// SetLogger attaches a diagnostic logger.
func (f *FFmpeg) SetLogger(l *diaglog.Logger) {
	f.logger = l
}

// Extract runs ffmpeg on mediaPath and verifies the WAV written to outPath.
func (f *FFmpeg) Extract(ctx context.Context, mediaPath, outPath string) (*Audio, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, &AudioExtractionError{Input: mediaPath, Reason: "input not readable", Err: err}
	}
	bin, err := exec.LookPath(f.cfg.BinaryPath)
	if err != nil {
		return nil, &AudioExtractionError{Input: mediaPath, Reason: "ffmpeg not found", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, f.buildArgs(mediaPath, outPath)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &AudioExtractionError{Input: mediaPath, Reason: fmt.Sprintf("timed out after %d seconds", f.cfg.TimeoutSeconds), Err: ctx.Err()}
		}
		if ctx.Err() != nil {
			// Caller went away; surface the context error untouched.
			return nil, ctx.Err()
		}
		reason := "ffmpeg failed"
		if msg := lastLine(stderr.String()); msg != "" {
			reason = "ffmpeg failed: " + msg
		}
		return nil, &AudioExtractionError{Input: mediaPath, Reason: reason, Err: err}
	}

	audio, err := Verify(outPath, f.cfg.SampleRate)
	if err != nil {
		os.Remove(outPath)
		return nil, &AudioExtractionError{Input: mediaPath, Reason: "unexpected output", Err: err}
	}

	f.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMedia,
		Event:     diaglog.EventExtractDone,
		Payload: map[string]interface{}{
			"input":       mediaPath,
			"sample_rate": audio.SampleRate,
			"duration_s":  audio.Duration.Seconds(),
			"elapsed_ms":  time.Since(start).Milliseconds(),
		},
	})
	return audio, nil
}

// HealthCheck runs "ffmpeg -version".
func (f *FFmpeg) HealthCheck(ctx context.Context) error {
	bin, err := exec.LookPath(f.cfg.BinaryPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg -version: %w", err)
	}
	return nil
}

// ffmpeg -y -i in -vn -acodec pcm_s16le -ac 1 -ar 16000 -f wav out
func (f *FFmpeg) buildArgs(in, out string) []string {
	return []string{
		"-y", "-i", in,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(f.cfg.SampleRate),
		"-f", "wav",
		out,
	}
}

// lastLine returns the final non-empty line of ffmpeg's stderr, which
// carries the actual error after the banner and stream dump.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
