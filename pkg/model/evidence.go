package model

// FreeLabel marks a node with no hard evidence attached.
const FreeLabel int8 = -1

// Evidence is a partial hard assignment of labels to nodes, passed explicitly
// into every solver call.
//
// Evidence is a value the caller owns, not state hidden inside the model.
// Two hypothetical seed sets evaluated back to back (or on separate solvers
// concurrently) each carry their own Evidence and cannot cross-contaminate.
//
// Example:
//
//	ev := model.NewEvidence(g.NodeCount())
//	ev.Set(seedIdx, model.Active)
//
//	converged, _ := solver.Solve(ctx, ev)
//
//	ev.Unset(seedIdx) // roll back a tentative clamp
type Evidence struct {
	labels []int8
	count  int
}

// NewEvidence returns evidence with every node free, sized for n nodes.
func NewEvidence(n int) *Evidence {
	ev := &Evidence{labels: make([]int8, n)}
	for i := range ev.labels {
		ev.labels[i] = FreeLabel
	}
	return ev
}

// Set clamps node to label, overwriting any previous clamp.
func (ev *Evidence) Set(node int32, label int8) {
	if ev.labels[node] == FreeLabel {
		ev.count++
	}
	ev.labels[node] = label
}

// Unset removes the clamp on node, if any.
func (ev *Evidence) Unset(node int32) {
	if ev.labels[node] != FreeLabel {
		ev.count--
	}
	ev.labels[node] = FreeLabel
}

// Clear removes every clamp.
func (ev *Evidence) Clear() {
	for i := range ev.labels {
		ev.labels[i] = FreeLabel
	}
	ev.count = 0
}

// Label returns the clamped label for node and whether one is set.
func (ev *Evidence) Label(node int32) (int8, bool) {
	l := ev.labels[node]
	return l, l != FreeLabel
}

// Len returns the number of clamped nodes.
func (ev *Evidence) Len() int { return ev.count }

// Clone returns an independent copy.
func (ev *Evidence) Clone() *Evidence {
	cp := &Evidence{labels: make([]int8, len(ev.labels)), count: ev.count}
	copy(cp.labels, ev.labels)
	return cp
}
