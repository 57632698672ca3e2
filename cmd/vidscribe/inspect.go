package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tiroq/vidscribe/internal/playback"
	"github.com/tiroq/vidscribe/internal/transcript"
)

func runLocate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("locate", flag.ContinueOnError)
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	t, err := strconv.ParseFloat(pos[1], 64)
	if err != nil {
		return fmt.Errorf("%w: seconds must be a number, got %q", errUsage, pos[1])
	}
	tr, err := transcript.Load(pos[0])
	if err != nil {
		return err
	}

	ix := playback.New(tr)
	if seg, ok := ix.LocateSegment(t); ok {
		fmt.Fprintf(stdout, "segment %d [%.3f, %.3f] %s\n", seg.ID, seg.Start, seg.End, strings.TrimSpace(seg.Text))
	} else {
		fmt.Fprintln(stdout, "segment none")
	}
	if w, ok := ix.LocateWord(t); ok {
		fmt.Fprintf(stdout, "word %d [%.3f, %.3f] %s (segment %d)\n", w.ID, w.Start, w.End, strings.TrimSpace(w.Word.Word), w.Segment)
	} else {
		fmt.Fprintln(stdout, "word none")
	}
	return nil
}

func runInfo(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	tr, err := transcript.Load(pos[0])
	if err != nil {
		return err
	}

	degraded := 0
	for _, s := range tr.Segments {
		if len(s.Words) == 0 {
			degraded++
		}
	}
	fmt.Fprintf(stdout, "Language: %s\n", tr.Language)
	fmt.Fprintf(stdout, "Duration: %.3fs\n", tr.Duration())
	fmt.Fprintf(stdout, "Segments: %d\n", len(tr.Segments))
	fmt.Fprintf(stdout, "Words: %d\n", tr.WordCount())
	if degraded > 0 {
		fmt.Fprintf(stdout, "Segments without word timings: %d\n", degraded)
	}
	return nil
}
