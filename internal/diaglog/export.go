package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line written to the export file (valid NDJSON).
type DiagBundle struct {
	ExportedAt       string `json:"exported_at"`
	VidscribeVersion string `json:"vidscribe_version"`
	GoVersion        string `json:"go_version"`
	OS               string `json:"os"`
	Arch             string `json:"arch"`
	LogFile          string `json:"log_file"`
	EntryCount       int    `json:"entry_count"`
}

// Export collects the rotated generation (logPath+".1", when present) and
// logPath itself, oldest first, prepends a DiagBundle metadata line and
// writes the result to dest/vidscribe-diag-<ts>.ndjson. Returns the written
// file path and the number of log lines included.
func Export(logPath, dest string) (path string, lines int, err error) {
	var rawLines [][]byte

	if older, rerr := readLines(logPath + ".1"); rerr == nil {
		rawLines = append(rawLines, older...)
	}

	current, err := readLines(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	rawLines = append(rawLines, current...)

	tstamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "vidscribe-diag-"+tstamp+".ndjson")

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	bundle := DiagBundle{
		ExportedAt:       time.Now().UTC().Format(time.RFC3339),
		VidscribeVersion: Version,
		GoVersion:        runtime.Version(),
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
		LogFile:          logPath,
		EntryCount:       len(rawLines),
	}
	header, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range rawLines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}

	return outPath, len(rawLines), nil
}

// readLines buffers every line of path. Each generation is capped at
// maxLogSize so this stays bounded.
func readLines(path string) ([][]byte, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	var lines [][]byte
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLogSize)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
