package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiroq/vidscribe/internal/config"
	"github.com/tiroq/vidscribe/internal/pipeline"
	"github.com/tiroq/vidscribe/internal/vocab"
)

func runTranscribe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	vocabPath := fs.String("vocab", "", "file with one vocabulary term per line")
	formats := fs.String("formats", "", "extra outputs: txt, srt, vtt (comma-separated)")
	cfgPath := fs.String("config", config.PathFromEnv(), "config file")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	input, output := pos[0], pos[1]
	var flagFormats []string
	if *formats != "" {
		flagFormats = parseFormats(*formats)
		if err := config.CheckOutputFormats(flagFormats); err != nil {
			return fmt.Errorf("%w: --formats: %v", errUsage, err)
		}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	terms, err := vocab.Load(*vocabPath)
	if err != nil {
		return fmt.Errorf("reading vocabulary: %w", err)
	}
	outFormats := cfg.Output.Formats
	if flagFormats != nil {
		outFormats = flagFormats
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if input == "-" {
		tmp, err := spoolStdin(cfg.Media.WorkDir)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		defer os.Remove(tmp)
		input = tmp
	}

	logger := openDiagLogger()
	defer func() { _ = logger.Close() }()

	runner, reg, _, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}
	outLog.Printf("[JOB] Transcribing %s with %s (%d vocabulary terms)", pos[0], reg.Name(), len(terms))

	res, err := runner.Run(ctx, pipeline.Request{
		MediaPath:  input,
		Vocabulary: terms,
		OutputPath: output,
		Formats:    outFormats,
	})
	if err != nil {
		return err
	}

	if res.Report.Anomalies() {
		outLog.Printf("[JOB] Corrected recognizer timings: %d segments adjusted, %d words clipped, %d collapsed, %d overlaps, %d out of order",
			res.Report.AdjustedSegments, res.Report.ClippedWords, res.Report.CollapsedWords,
			res.Report.ClippedOverlaps, res.Report.OutOfOrderWords)
	}
	if res.Report.DegradedSegments > 0 {
		outLog.Printf("[JOB] %d segments have no word timings", res.Report.DegradedSegments)
	}

	t := res.Transcript
	fmt.Fprintf(stdout, "Wrote %s\n", output)
	fmt.Fprintf(stdout, "Language: %s\n", t.Language)
	fmt.Fprintf(stdout, "Segments: %d\n", len(t.Segments))
	fmt.Fprintf(stdout, "Words: %d\n", t.WordCount())
	fmt.Fprintf(stdout, "Elapsed: %s\n", res.Elapsed.Round(time.Millisecond))
	return nil
}

// spoolStdin copies stdin to a temp file, since ffmpeg needs a seekable
// input for most containers.
func spoolStdin(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "vidscribe-stdin-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, os.Stdin); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
