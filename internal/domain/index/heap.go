package index

// candidate is a scored corpus slot; d2 is the squared distance.
type candidate struct {
	slot int
	d2   float64
}

// worse orders candidates by descending d2, then descending slot, so the heap
// root is the one to evict first.
func worse(a, b candidate) bool {
	if a.d2 != b.d2 {
		return a.d2 > b.d2
	}
	return a.slot > b.slot
}

// topK is a bounded max-heap for container/heap.
type topK []candidate

func (h topK) Len() int           { return len(h) }
func (h topK) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h topK) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *topK) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *topK) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
