package rating

import "container/heap"

// TopK returns the k highest-keyed candidates in descending key order, ties
// broken by ascending id. The result is identical to a full stable sort
// followed by truncation, regardless of the iteration order of candidates.
//
// A bounded min-heap keeps the cost at O(n log k); populations run into the
// hundreds while k is typically 1-32.
func TopK(candidates []Candidate, k int) []uint64 {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	h := make(minHeap, 0, k)
	for _, c := range candidates {
		if c.Key == nil {
			continue
		}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		// Replace the current worst only when the candidate outranks it.
		if outranks(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	out := make([]uint64, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Candidate).ID
	}
	return out
}

// outranks reports whether a ranks strictly ahead of b: higher key first,
// lower id on equal keys. Ids are unique so the order is total.
func outranks(a, b Candidate) bool {
	switch a.Key.Cmp(b.Key) {
	case 1:
		return true
	case -1:
		return false
	default:
		return a.ID < b.ID
	}
}

// minHeap keeps the worst-ranked candidate at the root.
type minHeap []Candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return outranks(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(Candidate)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
