package schema

import (
	"strconv"
	"sync/atomic"
)

// Namer hands out fresh ids and names for one analysis run. Instance ids,
// `dtm_` nodes and `__temp_` variables all draw from it, so a run started
// from the same Namer state is reproducible.
//
// Namer is safe for concurrent use.
type Namer struct {
	seq atomic.Uint64
}

// NewNamer creates a namer starting at 0.
func NewNamer() *Namer {
	return &Namer{}
}

// NewNamerAt creates a namer whose next id is start+1.
func NewNamerAt(start uint64) *Namer {
	n := &Namer{}
	n.seq.Store(start)
	return n
}

// Next returns the next id.
func (n *Namer) Next() uint64 {
	return n.seq.Add(1)
}

// Current returns the last id handed out.
func (n *Namer) Current() uint64 {
	return n.seq.Load()
}

// Name returns prefix followed by a fresh id.
func (n *Namer) Name(prefix string) string {
	return prefix + strconv.FormatUint(n.Next(), 10)
}
