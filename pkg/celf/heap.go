package celf

// candidate is one priority-queue entry: a node and its marginal-gain
// estimate, stamped with the seed count it was computed at.
//
// Candidates are immutable once pushed. Re-evaluating a stale candidate
// constructs a fresh record and pushes that (replace-on-reinsert) instead of
// mutating the popped one, so records never carry shared mutable state even
// if several stale candidates are ever recomputed side by side.
type candidate struct {
	node int32

	// gain is the estimated marginal spread from adding node, relative to
	// the seed set of size computedAt. Submodularity makes it an upper
	// bound on the true gain at any larger seed count.
	gain float64

	// computedAt is the seed-set size the gain was measured against. A
	// candidate is trustworthy only when computedAt equals the current
	// seed count.
	computedAt int

	// spreadIfAdded is the total spread measured with node added, stored so
	// acceptance does not need another solve.
	spreadIfAdded float64
}

// candidateHeap is a max-heap over gain with a deterministic tie-break on
// the dense node id (smaller id wins). Plain CELF leaves ties to arbitrary
// heap order; the explicit secondary key is what makes the selection
// sequence reproducible.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].gain != h[j].gain {
		return h[i].gain > h[j].gain
	}
	return h[i].node < h[j].node
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}
