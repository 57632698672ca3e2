// Package vocab reads the vocabulary bias list: one term per line, read once
// before a transcription job starts.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineBytes bounds a single term line.
const maxLineBytes = 64 * 1024

// Read returns the trimmed, non-blank lines of r in order. Duplicates are
// kept; the prompt is positional.
func Read(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	terms := []string{}
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return terms, nil
}

// Parse is Read over a string, as received from a form field.
func Parse(text string) []string {
	terms, err := Read(strings.NewReader(text))
	if err != nil {
		// Only an over-long line can fail here; fall back to a plain split.
		terms = []string{}
		for _, l := range strings.Split(text, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				terms = append(terms, l)
			}
		}
	}
	return terms
}

// Load reads the vocabulary file at path. An empty path yields no terms.
func Load(path string) ([]string, error) {
	if path == "" {
		return []string{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	defer f.Close()
	return Read(f)
}
