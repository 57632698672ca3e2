package playback

import (
	"sync/atomic"

	"github.com/tiroq/vidscribe/internal/transcript"
)

// Holder publishes the current Index. Readers always see a complete index;
// a reload builds a new one and swaps the pointer.
type Holder struct {
	p atomic.Pointer[Index]
}

// Load returns the current index, or nil before the first Swap.
func (h *Holder) Load() *Index {
	return h.p.Load()
}

// Swap installs ix and returns the previous index.
func (h *Holder) Swap(ix *Index) *Index {
	return h.p.Swap(ix)
}

// Publish builds an index over t and installs it.
func (h *Holder) Publish(t *transcript.Transcript) *Index {
	ix := New(t)
	h.p.Store(ix)
	return ix
}
