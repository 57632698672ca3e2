// Command vidscribe transcribes video into time-synced transcripts and serves
// them for playback navigation.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/asr/localwhisper"
	"github.com/tiroq/vidscribe/internal/asr/remotewhisper"
	"github.com/tiroq/vidscribe/internal/config"
	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/media"
	"github.com/tiroq/vidscribe/internal/pipeline"
)

const logPrefix = "[vidscribe]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

// errUsage marks argument errors; they exit with status 2.
var errUsage = errors.New("usage")

const usage = `Usage:
  vidscribe transcribe <video|-> <out.json> [--vocab file] [--formats srt,vtt,txt] [--config file]
  vidscribe serve [--config file] [--listen addr] [--transcript file] [--watch]
  vidscribe locate <transcript.json> <seconds>
  vidscribe info <transcript.json>
  vidscribe --export-diag
  vidscribe version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	outLog = log.New(stderr, logPrefix+" ", log.LstdFlags)
	errLog = log.New(stderr, logPrefix+" ERROR: ", log.LstdFlags)
	diaglog.Version = Version

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "transcribe":
		err = runTranscribe(args[1:], stdout)
	case "serve":
		err = runServe(args[1:])
	case "locate":
		err = runLocate(args[1:], stdout)
	case "info":
		err = runInfo(args[1:], stdout)
	case "--export-diag", "export-diag":
		err = runExportDiag(stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "vidscribe %s\n", Version)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "Error:", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
		}
		fmt.Fprint(stderr, usage)
		return 2
	default:
		fmt.Fprintln(stderr, "Error:", err)
		if code := pipeline.ErrorCode(err); code != pipeline.CodeInternal {
			fmt.Fprintln(stderr, "Code:", code)
		}
		return 1
	}
}

// parseArgs parses fs allowing flags before, between and after positional
// arguments, and checks the positional count. "-" and negative numbers are
// positional; everything after "--" is too.
func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	fs.SetOutput(io.Discard)
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !isFlag(a) {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if err := fs.Parse(flags); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(positional) != want {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", errUsage, fs.Name(), want, len(positional))
	}
	return positional, nil
}

func isFlag(a string) bool {
	if len(a) < 2 || a[0] != '-' {
		return false
	}
	_, err := strconv.ParseFloat(a, 64)
	return err != nil
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// parseFormats splits a comma-separated format list.
func parseFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func openDiagLogger() *diaglog.Logger {
	path := diaglog.PathFromEnv()
	l, err := diaglog.New(path)
	if err != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", path, err)
		return diaglog.NewNoOp()
	}
	return l
}

// newRegistry registers both recognizers and selects the configured one.
func newRegistry(cfg *config.Config, logger *diaglog.Logger) (*asr.Registry, error) {
	reg := asr.NewRegistry()
	reg.Register(config.BackendLocalWhisper, localwhisper.NewBackend(localwhisper.Config{
		BinaryPath:     cfg.ASR.Local.BinaryPath,
		ModelPath:      cfg.ASR.Local.ModelPath,
		Model:          cfg.ASR.Local.Model,
		Threads:        cfg.ASR.Local.Threads,
		TimeoutSeconds: cfg.ASR.Local.TimeoutSeconds,
	}))
	remote := remotewhisper.NewClient(remotewhisper.Config{
		BaseURL:        cfg.ASR.Remote.BaseURL,
		Token:          cfg.ASR.Remote.Token,
		Model:          cfg.ASR.Remote.Model,
		TimeoutSeconds: cfg.ASR.Remote.TimeoutSeconds,
	})
	remote.SetLogger(logger)
	reg.Register(config.BackendRemoteWhisper, remote)

	if err := reg.SetPrimary(cfg.ASR.Backend); err != nil {
		return nil, err
	}
	return reg, nil
}

func newRunner(cfg *config.Config, logger *diaglog.Logger) (*pipeline.Runner, *asr.Registry, *media.FFmpeg, error) {
	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	ff := media.NewFFmpeg(media.Config{
		BinaryPath:     cfg.Media.FFmpegPath,
		SampleRate:     cfg.Media.SampleRate,
		TimeoutSeconds: cfg.Media.TimeoutSeconds,
	})
	ff.SetLogger(logger)

	runner := pipeline.New(pipeline.Config{
		Extractor:        ff,
		Recognizer:       reg,
		Language:         cfg.ASR.Language,
		WordTimestamps:   !cfg.ASR.DisableWordTimestamps,
		OverlapTolerance: cfg.Builder.OverlapTolerance,
		WorkDir:          cfg.Media.WorkDir,
		Logger:           logger,
		OnStage: func(sessionID, stage string) {
			outLog.Printf("[JOB] %s %s", shortID(sessionID), stage)
		},
	})
	return runner, reg, ff, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runExportDiag(stdout io.Writer) error {
	path, n, err := diaglog.Export(diaglog.PathFromEnv(), ".")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w (run with VIDSCRIBE_DEBUG=true to enable logging)", err)
		}
		return err
	}
	fmt.Fprintf(stdout, "Wrote: %s (%d lines)\n", path, n)
	return nil
}
