// Package playback answers time→element and element→time queries over a
// finalized transcript for a player loop that polls on every tick.
//
// A lookup returns the element whose [start, end) contains the position.
// Otherwise it falls back to "nearest preceding": in silence between segments
// the previous segment stays selected, and past the end of the media the last
// segment does. Only a position before the first element resolves to nothing.
package playback

import (
	"fmt"
	"math"
	"sort"

	"github.com/tiroq/vidscribe/internal/transcript"
)

// Kind selects segments or words.
type Kind int

const (
	// KindSegment addresses segments by segment id.
	KindSegment Kind = iota
	// KindWord addresses words by global word id.
	KindWord
)

// String returns the wire name used by ParseKind.
func (k Kind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindWord:
		return "word"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "segment" or "word".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "segment", "":
		return KindSegment, nil
	case "word":
		return KindWord, nil
	default:
		return 0, fmt.Errorf("unknown element kind %q", s)
	}
}

// Bounds is an element's time range in seconds.
type Bounds struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// WordRef is a word together with its position in the transcript. ID is the
// word's index in the flattened word sequence.
type WordRef struct {
	transcript.Word
	ID      int `json:"id"`
	Index   int `json:"index"`   // position within the owning segment
	Segment int `json:"segment"` // owning segment id
}

type wordPos struct {
	seg, idx int
}

// timeline holds the search arrays for one element kind. keys[i] is the
// running maximum of starts over 0..i and reach[i] the running maximum of
// ends, so both are sorted whatever order the spans arrive in.
type timeline struct {
	spans []Bounds
	keys  []float64
	reach []float64
}

func newTimeline(n int) timeline {
	return timeline{
		spans: make([]Bounds, 0, n),
		keys:  make([]float64, 0, n),
		reach: make([]float64, 0, n),
	}
}

func (tl *timeline) add(b Bounds) {
	key, reach := b.Start, b.End
	if n := len(tl.keys); n > 0 {
		key = math.Max(key, tl.keys[n-1])
		reach = math.Max(reach, tl.reach[n-1])
	}
	tl.spans = append(tl.spans, b)
	tl.keys = append(tl.keys, key)
	tl.reach = append(tl.reach, reach)
}

func (tl *timeline) contains(i int, t float64) bool {
	return tl.spans[i].Start <= t && t < tl.spans[i].End
}

// locate returns the element containing t, or the last one starting at or
// before t, or -1. When the binary-search hit does not contain t, earlier
// elements are scanned only while one of them can still reach past t.
func (tl *timeline) locate(t float64) int {
	if len(tl.keys) == 0 || math.IsNaN(t) {
		return -1
	}
	i := sort.Search(len(tl.keys), func(i int) bool { return tl.keys[i] > t }) - 1
	if i < 0 || tl.contains(i, t) {
		return i
	}
	for j := i - 1; j >= 0 && tl.reach[j] > t; j-- {
		if tl.contains(j, t) {
			return j
		}
	}
	return i
}

// Index is immutable after New and safe for concurrent readers.
type Index struct {
	doc *transcript.Transcript

	segs  timeline
	wrds  timeline
	words []wordPos
}

// New builds the index in one pass over t, which must already satisfy the
// transcript invariants. A nil transcript yields an empty index.
//
// Recognizers occasionally emit a word that starts before its predecessor,
// and segments may overlap within tolerance. Running-maximum keys keep the
// arrays sorted for binary search; the running maximum of ends bounds the
// backward scan that finds a containing element behind the hit.
func New(t *transcript.Transcript) *Index {
	ix := &Index{doc: t}
	if t == nil {
		return ix
	}

	ix.segs = newTimeline(len(t.Segments))
	ix.wrds = newTimeline(t.WordCount())
	ix.words = make([]wordPos, 0, t.WordCount())
	for si, seg := range t.Segments {
		ix.segs.add(Bounds{Start: seg.Start, End: seg.End})
		for wi, w := range seg.Words {
			ix.wrds.add(Bounds{Start: w.Start, End: w.End})
			ix.words = append(ix.words, wordPos{seg: si, idx: wi})
		}
	}
	return ix
}

// Transcript returns the indexed document. Callers must not modify it.
func (ix *Index) Transcript() *transcript.Transcript {
	return ix.doc
}

// Len returns the number of elements of kind k.
func (ix *Index) Len(k Kind) int {
	switch k {
	case KindSegment:
		return len(ix.segs.spans)
	case KindWord:
		return len(ix.words)
	default:
		return 0
	}
}

// LocateSegment returns the segment active at time t.
func (ix *Index) LocateSegment(t float64) (transcript.Segment, bool) {
	i := ix.segs.locate(t)
	if i < 0 {
		return transcript.Segment{}, false
	}
	return ix.doc.Segments[i], true
}

// LocateWord returns the word active at time t, with the owning segment.
func (ix *Index) LocateWord(t float64) (WordRef, bool) {
	i := ix.wrds.locate(t)
	if i < 0 {
		return WordRef{}, false
	}
	return ix.word(i), true
}

// Word returns the word with global id.
func (ix *Index) Word(id int) (WordRef, bool) {
	if id < 0 || id >= len(ix.words) {
		return WordRef{}, false
	}
	return ix.word(id), true
}

// Segment returns the segment with id.
func (ix *Index) Segment(id int) (transcript.Segment, bool) {
	if id < 0 || id >= len(ix.segs.spans) {
		return transcript.Segment{}, false
	}
	return ix.doc.Segments[id], true
}

func (ix *Index) word(id int) WordRef {
	p := ix.words[id]
	return WordRef{
		Word:    ix.doc.Segments[p.seg].Words[p.idx],
		ID:      id,
		Index:   p.idx,
		Segment: ix.doc.Segments[p.seg].ID,
	}
}

// BoundsOf returns the time range of the element for click-to-seek.
func (ix *Index) BoundsOf(k Kind, id int) (Bounds, bool) {
	switch k {
	case KindSegment:
		if s, ok := ix.Segment(id); ok {
			return Bounds{Start: s.Start, End: s.End}, true
		}
	case KindWord:
		if w, ok := ix.Word(id); ok {
			return Bounds{Start: w.Start, End: w.End}, true
		}
	}
	return Bounds{}, false
}

// Seek is BoundsOf for callers that want a reportable error.
func (ix *Index) Seek(k Kind, id int) (Bounds, error) {
	b, ok := ix.BoundsOf(k, id)
	if !ok {
		return Bounds{}, &InvalidQueryError{Kind: k, ID: id, Len: ix.Len(k)}
	}
	return b, nil
}

// Next returns the id after id, clamped to the last element. An out-of-range
// id is clamped into range first. ok is false only when there are no
// elements of kind k.
func (ix *Index) Next(k Kind, id int) (int, bool) {
	return ix.step(k, id, 1)
}

// Previous returns the id before id, clamped to the first element.
func (ix *Index) Previous(k Kind, id int) (int, bool) {
	return ix.step(k, id, -1)
}

func (ix *Index) step(k Kind, id, delta int) (int, bool) {
	n := ix.Len(k)
	if n == 0 {
		return 0, false
	}
	return clampID(clampID(id, n)+delta, n), true
}

func clampID(id, n int) int {
	if id < 0 {
		return 0
	}
	if id >= n {
		return n - 1
	}
	return id
}

// InvalidQueryError reports an element id outside the index.
type InvalidQueryError struct {
	Kind Kind
	ID   int
	Len  int
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid %s id %d (have %d)", e.Kind, e.ID, e.Len)
}
