package query

import (
	"container/heap"
	"sort"
)

// candidate is one scored chunk awaiting a place in the bounded top-k set.
type candidate struct {
	chunkID string
	score   float64
}

// isWorse reports whether a ranks behind b: a lower score is worse; tied
// scores break by chunk_id, where the lexicographically greater id is the
// one considered worse (so the final, ascending-by-id tiebreak favors the
// lexicographically smaller id, per the documented determinism rule).
func isWorse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.chunkID > b.chunkID
}

// scoreHeap is a bounded min-heap of size k: the worst candidate currently
// held sits at the root, so a single comparison decides whether a new
// candidate displaces it.
type scoreHeap struct {
	items []candidate
	k     int
}

func newScoreHeap(k int) *scoreHeap {
	return &scoreHeap{k: k}
}

func (h *scoreHeap) Len() int            { return len(h.items) }
func (h *scoreHeap) Less(i, j int) bool  { return isWorse(h.items[i], h.items[j]) }
func (h *scoreHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *scoreHeap) Push(x any)          { h.items = append(h.items, x.(candidate)) }
func (h *scoreHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// consider offers c a place among the top-k. If the heap has room, c is
// always kept; otherwise c replaces the current worst candidate only if c
// ranks ahead of it.
func (h *scoreHeap) consider(c candidate) {
	if h.k <= 0 {
		return
	}
	if h.Len() < h.k {
		heap.Push(h, c)
		return
	}
	if isWorse(h.items[0], c) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

// sorted drains the heap into its final, caller-facing order: score
// descending, chunk_id ascending on ties.
func (h *scoreHeap) sorted() []candidate {
	out := make([]candidate, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// less orders two candidates for final output: higher score first, then
// lexicographically smaller chunk_id.
func less(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.chunkID < b.chunkID
}
