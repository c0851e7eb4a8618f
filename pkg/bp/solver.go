// Package bp implements loopy sum-product belief propagation over the binary
// influence model, estimating every node's marginal activation probability
// under a given evidence clamping.
//
// The solver iterates two phases until the beliefs stop moving:
//
//  1. Message phase: every directed edge u→v recomputes its outgoing message
//     by combining u's unary potential with all of u's incoming messages
//     except the one flowing back along v→u, pushed through the pairwise
//     potential table. Messages are normalized score pairs over {0, 1}.
//  2. Belief phase: every node's belief becomes the normalized product of
//     its unary potential and all incoming messages.
//
// Convergence is declared when the largest absolute belief change between
// consecutive iterations drops below Config.Tolerance; otherwise the solver
// stops at Config.MaxIterations and reports non-convergence. On a loopy
// graph the result is an approximation either way — non-convergence is a
// diagnostic, not a failure, and the last beliefs remain usable.
//
// Example:
//
//	solver := bp.New(m, bp.DefaultConfig())
//
//	ev := model.NewEvidence(g.NodeCount())
//	ev.Set(seed, model.Active)
//
//	converged, err := solver.Solve(ctx, ev)
//	if err != nil {
//		return err // context cancelled; beliefs are stale
//	}
//	if !converged {
//		log.Printf("solve hit iteration cap, using approximate beliefs")
//	}
//
//	fmt.Printf("expected spread: %.3f\n", solver.Spread())
//
// ELI12 (Explain Like I'm 12):
//
// Imagine every person in a friend network passing sticky notes. Each note
// says "here's how likely I think I am to buy the new game, ignoring what
// YOU told me." Everyone reads their incoming notes, updates their own
// guess, and sends fresh notes. After a few rounds of passing, the guesses
// barely change anymore — that's convergence, and the final guesses are
// each person's activation probability.
//
// The "ignoring what YOU told me" part matters: if Alice's confidence came
// partly from Bob's note, she must not feed it straight back to Bob, or the
// two of them would talk themselves into certainty over nothing.
//
// Concurrency: within one iteration every edge update is independent of
// every other (they all read the previous iteration's messages), so the
// solver splits edges and nodes into contiguous chunks across a fixed pool
// of Config.Workers goroutines with a barrier between phases. Iterations
// themselves are strictly sequential.
//
// A Solver's message and belief buffers are allocated once and reused across
// Solve calls. The solver is exclusively owned by one selection loop: at
// most one Solve may be in flight at a time, and Belief/Spread reads are
// only meaningful after the most recent Solve for the evidence it was given.
// Concurrent hypothesis evaluation needs one Solver per hypothesis.
package bp

import (
	"context"
	"runtime"
	"sync"

	"github.com/orneryd/influmax/pkg/graph"
	"github.com/orneryd/influmax/pkg/model"
)

// Config controls solver termination and parallelism.
type Config struct {
	// Tolerance is the max-absolute-belief-change threshold for convergence.
	// Default: 0.001
	Tolerance float64

	// MaxIterations caps message-passing rounds per Solve.
	// Default: 20
	MaxIterations int

	// Workers sizes the goroutine pool for intra-iteration updates.
	// Zero means runtime.NumCPU().
	Workers int
}

// DefaultConfig returns the reference solver settings.
func DefaultConfig() Config {
	return Config{
		Tolerance:     0.001,
		MaxIterations: 20,
		Workers:       0,
	}
}

// Stats reports what the most recent Solve calls did.
type Stats struct {
	// Solves is the total number of Solve calls on this solver.
	Solves int64

	// LastIterations is the iteration count of the most recent Solve.
	LastIterations int

	// LastConverged reports whether the most recent Solve met Tolerance.
	LastConverged bool

	// LastMaxDelta is the final max belief change of the most recent Solve.
	LastMaxDelta float64
}

// Solver runs belief propagation against one model. Create once per model
// with New; Solve many times with different evidence.
type Solver struct {
	pots    model.Potentials
	g       *graph.DiGraph
	cfg     Config
	workers int

	// Double-buffered per-edge messages over {Inactive, Active}.
	// msgCur holds iteration n, msgNext receives iteration n+1.
	msgCur  [][2]float64
	msgNext [][2]float64

	// Per-node beliefs over {Inactive, Active}, plus the previous
	// iteration's copy for the convergence delta.
	beliefs [][2]float64
	prev    [][2]float64

	stats Stats
}

// New allocates a solver with message and belief storage sized to the
// model's graph (O(V+E)). The buffers are reset, not reallocated, on every
// Solve.
func New(pots model.Potentials, cfg Config) *Solver {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	g := pots.Graph()
	return &Solver{
		pots:    pots,
		g:       g,
		cfg:     cfg,
		workers: workers,
		msgCur:  make([][2]float64, g.EdgeCount()),
		msgNext: make([][2]float64, g.EdgeCount()),
		beliefs: make([][2]float64, g.NodeCount()),
		prev:    make([][2]float64, g.NodeCount()),
	}
}

// Solve runs message passing under ev until convergence or the iteration
// cap. It returns whether Tolerance was met. The only error is context
// cancellation, checked between iterations; beliefs are then stale.
func (s *Solver) Solve(ctx context.Context, ev *model.Evidence) (bool, error) {
	s.reset(ev)

	converged := false
	iterations := 0
	maxDelta := 0.0

	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		s.updateMessages(ev)
		s.msgCur, s.msgNext = s.msgNext, s.msgCur

		maxDelta = s.updateBeliefs(ev)
		iterations = iter + 1

		if maxDelta < s.cfg.Tolerance {
			converged = true
			break
		}
	}

	s.stats.Solves++
	s.stats.LastIterations = iterations
	s.stats.LastConverged = converged
	s.stats.LastMaxDelta = maxDelta
	return converged, nil
}

// reset initializes messages to uniform and beliefs to the normalized
// unaries, so the first iteration's delta measures real propagation.
func (s *Solver) reset(ev *model.Evidence) {
	for e := range s.msgCur {
		s.msgCur[e] = [2]float64{0.5, 0.5}
	}
	s.parallelNodes(func(lo, hi int32) {
		for v := lo; v < hi; v++ {
			p0 := s.pots.Unary(ev, v, model.Inactive)
			p1 := s.pots.Unary(ev, v, model.Active)
			sum := p0 + p1
			if sum == 0 {
				p0, p1, sum = 0.5, 0.5, 1
			}
			s.beliefs[v] = [2]float64{p0 / sum, p1 / sum}
			s.prev[v] = s.beliefs[v]
		}
	})
}

// updateMessages recomputes every edge's outgoing message from msgCur into
// msgNext. All reads go to msgCur, so chunk updates are data-parallel.
func (s *Solver) updateMessages(ev *model.Evidence) {
	s.parallelEdges(func(lo, hi int32) {
		for e := lo; e < hi; e++ {
			src := s.g.Edge(e).From
			rev := s.g.Reverse(e)

			// Source-side evidence contribution for each source label:
			// unary times the product of incoming messages, excluding the
			// message flowing back along the reverse edge.
			var from [2]float64
			for _, l := range [2]int8{model.Inactive, model.Active} {
				p := s.pots.Unary(ev, src, l)
				for _, in := range s.g.In(src) {
					if in == rev {
						continue
					}
					p *= s.msgCur[in][l]
				}
				from[l] = p
			}

			// Push through the pairwise table and normalize.
			var out [2]float64
			for _, lt := range [2]int8{model.Inactive, model.Active} {
				out[lt] = s.pots.Pairwise(e, model.Inactive, lt)*from[model.Inactive] +
					s.pots.Pairwise(e, model.Active, lt)*from[model.Active]
			}
			sum := out[0] + out[1]
			if sum == 0 {
				out = [2]float64{0.5, 0.5}
			} else {
				out[0] /= sum
				out[1] /= sum
			}
			s.msgNext[e] = out
		}
	})
}

// updateBeliefs recomputes every node's belief from msgCur (the messages
// just produced this iteration) and returns the max absolute change.
func (s *Solver) updateBeliefs(ev *model.Evidence) float64 {
	deltas := make([]float64, s.workers)

	var wg sync.WaitGroup
	n := int32(s.g.NodeCount())
	chunk := (n + int32(s.workers) - 1) / int32(s.workers)
	for w := 0; w < s.workers; w++ {
		lo := int32(w) * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(w int, lo, hi int32) {
			defer wg.Done()
			maxDelta := 0.0
			for v := lo; v < hi; v++ {
				var b [2]float64
				for _, l := range [2]int8{model.Inactive, model.Active} {
					p := s.pots.Unary(ev, v, l)
					for _, in := range s.g.In(v) {
						p *= s.msgCur[in][l]
					}
					b[l] = p
				}
				sum := b[0] + b[1]
				if sum == 0 {
					b = [2]float64{0.5, 0.5}
				} else {
					b[0] /= sum
					b[1] /= sum
				}

				d := abs(b[model.Active] - s.prev[v][model.Active])
				if d2 := abs(b[model.Inactive] - s.prev[v][model.Inactive]); d2 > d {
					d = d2
				}
				if d > maxDelta {
					maxDelta = d
				}

				s.beliefs[v] = b
				s.prev[v] = b
			}
			deltas[w] = maxDelta
		}(w, lo, hi)
	}
	wg.Wait()

	maxDelta := 0.0
	for _, d := range deltas {
		if d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

// parallelEdges splits the edge range into contiguous chunks across the
// worker pool and blocks until all chunks finish (the iteration barrier).
func (s *Solver) parallelEdges(fn func(lo, hi int32)) {
	parallelRange(int32(s.g.EdgeCount()), s.workers, fn)
}

// parallelNodes is parallelEdges over the node range.
func (s *Solver) parallelNodes(fn func(lo, hi int32)) {
	parallelRange(int32(s.g.NodeCount()), s.workers, fn)
}

func parallelRange(n int32, workers int, fn func(lo, hi int32)) {
	if n == 0 {
		return
	}
	if workers > int(n) {
		workers = int(n)
	}
	var wg sync.WaitGroup
	chunk := (n + int32(workers) - 1) / int32(workers)
	for w := 0; w < workers; w++ {
		lo := int32(w) * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int32) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Belief returns the marginal probability of label at node from the most
// recent Solve. Reading before any Solve, or after the evidence changed
// without a new Solve, returns stale values; keeping that straight is the
// caller's contract.
func (s *Solver) Belief(node int32, label int8) float64 {
	return s.beliefs[node][label]
}

// Beliefs returns a fresh slice of per-node P(active) from the most recent
// Solve, indexed by dense node id.
func (s *Solver) Beliefs() []float64 {
	out := make([]float64, len(s.beliefs))
	for v := range s.beliefs {
		out[v] = s.beliefs[v][model.Active]
	}
	return out
}

// Spread returns Σ over all nodes of P(active) from the most recent Solve —
// the objective the selector maximizes.
func (s *Solver) Spread() float64 {
	total := 0.0
	for v := range s.beliefs {
		total += s.beliefs[v][model.Active]
	}
	return total
}

// Stats returns a snapshot of solver counters.
func (s *Solver) Stats() Stats { return s.stats }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
