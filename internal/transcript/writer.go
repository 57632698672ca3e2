package transcript

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// WriteText writes a plain text transcript with one segment per line, each
// prefixed by its timestamp in [HH:MM:SS] format.
func WriteText(path string, t *Transcript) error {
	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", formatTextTimestamp(seg.Start), strings.TrimSpace(seg.Text))
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteSRT writes a SubRip (.srt) subtitle file. Cues are numbered from 1
// with HH:MM:SS,mmm timestamps.
func WriteSRT(path string, t *Transcript) error {
	var b strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatCueTimestamp(seg.Start, ','), formatCueTimestamp(seg.End, ','))
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(seg.Text))
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteVTT writes a WebVTT (.vtt) subtitle file with HH:MM:SS.mmm timestamps.
func WriteVTT(path string, t *Transcript) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range t.Segments {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s --> %s\n", formatCueTimestamp(seg.Start, '.'), formatCueTimestamp(seg.End, '.'))
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(seg.Text))
	}
	return atomicWrite(path, []byte(b.String()))
}

// CheckFormats reports the first entry WriteAll cannot write.
func CheckFormats(formats []string) error {
	for _, f := range formats {
		switch f {
		case "json", "txt", "srt", "vtt":
		default:
			return fmt.Errorf("unknown format %q", f)
		}
	}
	return nil
}

// WriteAll writes the transcript in every requested format. basePath is the
// file path without extension. Supported formats: "json", "txt", "srt",
// "vtt"; nil or empty selects ["json"]. Unknown formats are rejected before
// any file is written; write failures are reported together.
func WriteAll(basePath string, t *Transcript, formats []string) error {
	if len(formats) == 0 {
		formats = []string{"json"}
	}
	if err := CheckFormats(formats); err != nil {
		return err
	}
	var errs []string
	for _, f := range formats {
		var err error
		switch f {
		case "json":
			err = Save(basePath+".json", t)
		case "txt":
			err = WriteText(basePath+".txt", t)
		case "srt":
			err = WriteSRT(basePath+".srt", t)
		case "vtt":
			err = WriteVTT(basePath+".vtt", t)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("transcript write errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitSeconds(sec float64) (h, m, s, ms int) {
	total := int64(math.Round(sec * 1000))
	if total < 0 {
		total = 0
	}
	ms = int(total % 1000)
	total /= 1000
	s = int(total % 60)
	total /= 60
	m = int(total % 60)
	h = int(total / 60)
	return
}

func formatTextTimestamp(sec float64) string {
	h, m, s, _ := splitSeconds(sec)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatCueTimestamp formats HH:MM:SS<sep>mmm; SRT uses ',' and WebVTT '.'.
func formatCueTimestamp(sec float64, sep byte) string {
	h, m, s, ms := splitSeconds(sec)
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

// atomicWrite writes data to path via a synced temp file and rename, so
// readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".vidscribe-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
