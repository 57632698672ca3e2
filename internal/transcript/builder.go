package transcript

import (
	"math"

	"github.com/tiroq/vidscribe/internal/asr"
	"github.com/tiroq/vidscribe/internal/diaglog"
)

// DefaultOverlapTolerance is the slack, in seconds, granted to recognizer
// clock jitter before a timing anomaly is corrected or rejected.
const DefaultOverlapTolerance = 0.05

// Options configures a Builder.
type Options struct {
	// OverlapTolerance in seconds; <= 0 selects DefaultOverlapTolerance.
	OverlapTolerance float64
	Logger           *diaglog.Logger
	SessionID        string
}

// Report counts the corrections a Build applied.
type Report struct {
	Segments         int `json:"segments"`
	Words            int `json:"words"`
	AdjustedSegments int `json:"adjusted_segments"` // jitter-level bound fixes
	ClippedWords     int `json:"clipped_words"`     // clipped to segment bounds
	CollapsedWords   int `json:"collapsed_words"`   // start > end within tolerance
	ClippedOverlaps  int `json:"clipped_overlaps"`  // overlap with next word beyond tolerance
	OutOfOrderWords  int `json:"out_of_order_words"`
	RewrittenTexts   int `json:"rewritten_texts"` // raw text replaced by word text
	DegradedSegments int `json:"degraded_segments"`
}

// Anomalies reports whether any correction or data-quality issue was seen.
func (r *Report) Anomalies() bool {
	return r.AdjustedSegments+r.ClippedWords+r.CollapsedWords+r.ClippedOverlaps+r.OutOfOrderWords > 0
}

// Builder turns raw recognizer output into a validated Transcript. It is
// stateless between calls and safe for concurrent use.
type Builder struct {
	tol       float64
	logger    *diaglog.Logger
	sessionID string
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	tol := opts.OverlapTolerance
	if tol <= 0 {
		tol = DefaultOverlapTolerance
	}
	return &Builder{tol: tol, logger: opts.Logger, sessionID: opts.SessionID}
}

// Build normalizes res into a Transcript. Segment ids are re-numbered from
// 0, word bounds are clipped into their segment, and word-derived text
// replaces raw segment text when the two disagree. Zero segments yields
// ErrEmptyMedia; unrecoverable input yields *MalformedRecognitionError.
func (b *Builder) Build(res *asr.Result) (*Transcript, *Report, error) {
	if res == nil || len(res.Segments) == 0 {
		return nil, nil, ErrEmptyMedia
	}

	rep := &Report{Segments: len(res.Segments)}
	segments := make([]Segment, 0, len(res.Segments))
	prevStart := 0.0
	for i, raw := range res.Segments {
		seg, err := b.segment(i, raw, prevStart, rep)
		if err != nil {
			return nil, nil, err
		}
		segments = append(segments, seg)
		prevStart = seg.Start
		rep.Words += len(seg.Words)
	}

	lang := res.Language
	if lang == "" {
		lang = UndeterminedLanguage
	}
	t := &Transcript{
		Text:     JoinText(segments),
		Language: lang,
		Segments: segments,
	}
	if err := t.Validate(); err != nil {
		return nil, nil, malformed(-1, -1, "normalized transcript invalid: %v", err)
	}

	b.log(diaglog.EventBuildReport, "", rep)
	return t, rep, nil
}

func (b *Builder) segment(i int, raw asr.RawSegment, prevStart float64, rep *Report) (Segment, error) {
	if raw.Start == nil {
		return Segment{}, malformed(i, -1, "missing start")
	}
	if raw.End == nil {
		return Segment{}, malformed(i, -1, "missing end")
	}
	if raw.Text == nil {
		return Segment{}, malformed(i, -1, "missing text")
	}

	start, end := *raw.Start, *raw.End
	if !finite(start) || !finite(end) {
		return Segment{}, malformed(i, -1, "non-finite time")
	}

	adjusted := false
	if start < 0 {
		if -start > b.tol {
			return Segment{}, malformed(i, -1, "negative start %g", start)
		}
		start, adjusted = 0, true
	}
	if start > end {
		if start-end > b.tol {
			return Segment{}, malformed(i, -1, "start %g > end %g", start, end)
		}
		end, adjusted = start, true
	}
	if i > 0 && start < prevStart {
		if prevStart-start > b.tol {
			return Segment{}, malformed(i, -1, "start %g precedes previous segment start %g", start, prevStart)
		}
		start, adjusted = prevStart, true
		if end < start {
			end = start
		}
	}
	if adjusted {
		rep.AdjustedSegments++
	}

	words := make([]Word, 0, len(raw.Words))
	for j, rw := range raw.Words {
		w, err := b.word(i, j, rw, start, end, rep)
		if err != nil {
			return Segment{}, err
		}
		words = append(words, w)
	}
	b.resolveOverlaps(i, words, rep)

	text := *raw.Text
	if len(words) > 0 {
		if derived := JoinWords(words); derived != text {
			text = derived
			rep.RewrittenTexts++
		}
	} else {
		rep.DegradedSegments++
	}

	return Segment{
		ID:    i,
		Start: start,
		End:   end,
		Text:  text,
		Words: words,
	}, nil
}

func (b *Builder) word(i, j int, rw asr.RawWord, segStart, segEnd float64, rep *Report) (Word, error) {
	if rw.Word == nil {
		return Word{}, malformed(i, j, "missing word text")
	}
	if rw.Start == nil || rw.End == nil {
		return Word{}, malformed(i, j, "missing word timing")
	}
	start, end := *rw.Start, *rw.End
	if !finite(start) || !finite(end) {
		return Word{}, malformed(i, j, "non-finite time")
	}
	if start > end && start-end > b.tol {
		return Word{}, malformed(i, j, "start %g > end %g", start, end)
	}

	cs, ce := clamp(start, segStart, segEnd), clamp(end, segStart, segEnd)
	if cs != start || ce != end {
		rep.ClippedWords++
	}
	if cs > ce {
		ce = cs
		rep.CollapsedWords++
	}

	prob := 0.0
	if rw.Probability != nil && !math.IsNaN(*rw.Probability) {
		prob = clamp(*rw.Probability, 0, 1)
	}

	return Word{Word: *rw.Word, Start: cs, End: ce, Probability: prob}, nil
}

// resolveOverlaps clips word ends that run into the next word by more than
// the tolerance. Out-of-order words are left in place and reported: sorting
// them would hide an upstream defect.
func (b *Builder) resolveOverlaps(seg int, words []Word, rep *Report) {
	for j := 0; j+1 < len(words); j++ {
		cur, next := &words[j], words[j+1]
		if next.Start < cur.Start {
			rep.OutOfOrderWords++
			b.log(diaglog.EventWordsOutOfOrder, "word starts before its predecessor", map[string]interface{}{
				"segment":    seg,
				"word":       j + 1,
				"start":      next.Start,
				"prev_start": cur.Start,
			})
			continue
		}
		if cur.End-next.Start > b.tol {
			cur.End = next.Start
			rep.ClippedOverlaps++
		}
	}
}

func (b *Builder) log(event, reason string, payload interface{}) {
	b.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentBuilder,
		Event:     event,
		SessionID: b.sessionID,
		Reason:    reason,
		Payload:   payload,
	})
}

// Build normalizes res with default options.
func Build(res *asr.Result) (*Transcript, error) {
	t, _, err := NewBuilder(Options{}).Build(res)
	return t, err
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
