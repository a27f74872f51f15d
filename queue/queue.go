// Package queue provides the bounded top-k candidate heap used during
// vector search.
package queue

import (
	"container/heap"

	"github.com/hupe1980/vecdb/model"
)

// Item is a scored candidate in the heap.
type Item struct {
	RowID    model.RowID
	Distance float32
}

// worse reports whether a ranks after b: larger distance, with ties broken
// by later insertion order (higher row id).
func worse(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.RowID > b.RowID
}

// maxHeap keeps the current worst candidate on top so it can be evicted
// cheaply. Implements heap.Interface.
type maxHeap []Item

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(Item)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Compile time check to ensure maxHeap satisfies the heap interface.
var _ heap.Interface = (*maxHeap)(nil)

// TopK keeps the k best (lowest distance) candidates seen so far.
// Not safe for concurrent use.
type TopK struct {
	k int
	h maxHeap
}

// NewTopK creates a bounded candidate keeper for k results.
func NewTopK(k int) *TopK {
	return &TopK{
		k: k,
		h: make(maxHeap, 0, k),
	}
}

// Push offers a candidate. It is kept only while it ranks within the best k.
func (t *TopK) Push(item Item) {
	if t.k <= 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, item)
		return
	}
	if worse(t.h[0], item) {
		t.h[0] = item
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of kept candidates.
func (t *TopK) Len() int { return len(t.h) }

// Worst returns the currently worst kept candidate. Only valid if Len > 0.
func (t *TopK) Worst() Item { return t.h[0] }

// Drain empties the heap and returns candidates ordered best-first.
func (t *TopK) Drain() []Item {
	out := make([]Item, len(t.h))
	for i := len(t.h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Item)
	}
	return out
}
