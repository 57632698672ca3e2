package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Encode writes t as indented JSON. HTML escaping is disabled so tokens
// such as "<noise>" survive byte-for-byte.
func Encode(w io.Writer, t *Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(normalized(t))
}

// Marshal returns the JSON encoding of t.
func Marshal(t *Transcript) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a transcript document and validates it.
func Decode(r io.Reader) (*Transcript, error) {
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	for i := range t.Segments {
		if t.Segments[i].Words == nil {
			t.Segments[i].Words = []Word{}
		}
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return &t, nil
}

// Load reads and validates the transcript at path.
func Load(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Save atomically writes t to path as JSON.
func Save(path string, t *Transcript) error {
	data, err := Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	return atomicWrite(path, data)
}

// normalized returns t with nil word and segment slices replaced by empty
// ones, so they serialize as [] rather than null.
func normalized(t *Transcript) *Transcript {
	out := *t
	if out.Segments == nil {
		out.Segments = []Segment{}
	}
	segs := make([]Segment, len(out.Segments))
	copy(segs, out.Segments)
	for i := range segs {
		if segs[i].Words == nil {
			segs[i].Words = []Word{}
		}
	}
	out.Segments = segs
	return &out
}
