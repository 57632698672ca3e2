// Package localwhisper runs a whisper CLI binary as a subprocess for local
// recognition. The binary must print a whisper-style verbose JSON document
// (text, language, segments with word timings) on stdout.
package localwhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tiroq/vidscribe/internal/asr"
)

var _ asr.Recognizer = (*Backend)(nil)

// Config configures the local whisper CLI backend.
type Config struct {
	BinaryPath     string // path to the whisper CLI (or a wrapper script)
	ModelPath      string // path to the model file, optional
	Model          string // model name (e.g., "large-v3")
	Threads        int    // CPU threads (0 = binary default)
	TimeoutSeconds int    // default 1800; recognition of long media is slow
}

// Backend shells out to a whisper CLI binary for local recognition.
type Backend struct {
	cfg Config
}

// NewBackend creates a new local whisper backend with the given config.
func NewBackend(cfg Config) *Backend {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 1800
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return "local_whisper"
}

// Recognize invokes the whisper CLI on audioPath and decodes its stdout.
// Cancelling ctx kills the whole process group.
func (b *Backend) Recognize(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	if _, err := os.Stat(b.cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("localwhisper: binary not found at %q: %w", b.cfg.BinaryPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.cfg.BinaryPath, b.buildArgs(audioPath, opts)...)
	// Own process group so a kill reaches helpers spawned by wrapper scripts.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("localwhisper: recognition timed out after %d seconds", b.cfg.TimeoutSeconds)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("localwhisper: recognition canceled: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("localwhisper: subprocess failed: %w: %s", err, truncate(msg, 300))
		}
		return nil, fmt.Errorf("localwhisper: subprocess failed: %w", err)
	}

	var res asr.Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("localwhisper: failed to parse JSON output: %w", err)
	}
	res.Model = b.resolveModel(opts)
	res.Backend = b.Name()
	return &res, nil
}

// HealthCheck verifies the whisper binary exists, is executable, and responds.
func (b *Backend) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	status := &asr.HealthStatus{
		Backend: b.Name(),
	}

	info, err := os.Stat(b.cfg.BinaryPath)
	if err != nil {
		status.Message = fmt.Sprintf("binary not found at %q: %v", b.cfg.BinaryPath, err)
		return status, nil
	}
	if info.Mode()&0111 == 0 {
		status.Message = fmt.Sprintf("binary at %q is not executable", b.cfg.BinaryPath)
		return status, nil
	}

	if b.cfg.ModelPath != "" {
		if _, err := os.Stat(b.cfg.ModelPath); err != nil {
			status.Message = fmt.Sprintf("model not found at %q: %v", b.cfg.ModelPath, err)
			return status, nil
		}
	}

	start := time.Now()
	err = exec.CommandContext(ctx, b.cfg.BinaryPath, "--help").Run()
	status.Latency = time.Since(start)

	// --help may exit non-zero on some binaries; we just need it to execute
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			status.Message = fmt.Sprintf("binary failed to execute: %v", err)
			return status, nil
		}
	}

	status.OK = true
	status.Message = "binary is available and executable"
	return status, nil
}

// buildArgs constructs the CLI arguments for the whisper binary.
func (b *Backend) buildArgs(audioPath string, opts asr.Options) []string {
	var args []string

	if b.cfg.ModelPath != "" {
		args = append(args, "--model", b.cfg.ModelPath)
	} else if m := b.resolveModel(opts); m != "" {
		args = append(args, "--model", m)
	}

	args = append(args, "--output-json")

	if opts.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.InitialPrompt != "" {
		args = append(args, "--prompt", opts.InitialPrompt)
	}
	if b.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.cfg.Threads))
	}

	args = append(args, audioPath)
	return args
}

// resolveModel returns the model name, preferring opts over config.
func (b *Backend) resolveModel(opts asr.Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return b.cfg.Model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
