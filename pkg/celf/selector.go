// Package celf implements Cost-Effective Lazy Forward selection: a greedy
// seed picker that exploits submodularity of the spread objective to skip
// most of the solver calls a naive greedy loop would make.
//
// The naive greedy algorithm re-evaluates every remaining node at every one
// of the k steps — O(k·N) solver calls. CELF instead keeps every node's last
// known marginal gain in a max-priority queue, stamped with the seed count
// it was computed at. Because spread is submodular, gains only shrink as the
// seed set grows, so a stale gain is an upper bound: when the queue's top
// entry is stale, its true gain can only be lower, and one re-evaluation
// re-files it fairly. When the top entry is fresh, no other node can beat
// it, and it is accepted with zero extra solves.
//
// Example:
//
//	solver := bp.New(m, bp.DefaultConfig())
//	sel := celf.New(solver, m, soloSource)
//
//	seeds, err := sel.Select(ctx, 5)
//	if err != nil {
//		return err
//	}
//	for _, s := range seeds {
//		fmt.Printf("%d. %s spread=%.3f (examined %d)\n",
//			s.Iteration+1, s.Node, s.Spread, s.Examined)
//	}
//
// ELI12 (Explain Like I'm 12):
//
// You're picking players for a team, and trying someone out is expensive.
// You keep a ranked list of "how much each kid helped last time you
// checked." Kids only get less useful as the team fills up (somebody else
// already covers their skills), so if the top kid's note is up to date,
// nobody below can secretly be better — take them without any tryouts. Only
// an out-of-date note at the top earns a single fresh tryout.
//
// The selection loop is strictly sequential: every acceptance changes the
// evidence that every later evaluation must see. The selector exclusively
// owns its solver for the duration of Select.
package celf

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/model"
)

// ErrMissingSoloSpread is returned when the solo-spread source has no value
// for a graph node. Like a missing prior, a silently skipped candidate would
// bias selection, so it is fatal.
var ErrMissingSoloSpread = errors.New("celf: node missing from solo-spread source")

// SoloSpreadSource supplies, per node, the total spread when that node alone
// is seeded. Computing it costs one solve per node, so it is treated as a
// preprocessing input: see pkg/spread for an in-process computation and a
// persistent cache.
type SoloSpreadSource interface {
	SoloSpread(node int32) (float64, bool)
}

// Seed is one accepted selection, frozen at acceptance time.
type Seed struct {
	// Node is the external node ID.
	Node string

	// Index is the dense node index.
	Index int32

	// Gain is the marginal spread this seed added.
	Gain float64

	// Spread is the cumulative expected spread with this and all earlier
	// seeds clamped.
	Spread float64

	// Examined is the running count of queue pops at acceptance — the CELF
	// audit number showing how much laziness saved.
	Examined int

	// Iteration is the selection step this seed was accepted at (0-based).
	Iteration int
}

// Diagnostics counts the work a Select call did. Purely for auditing; no
// control flow reads these.
type Diagnostics struct {
	// SolverCalls is the number of Solve invocations (base + re-evaluations;
	// solo-spread preprocessing is accounted by its own provider).
	SolverCalls int

	// Examined is the total number of queue pops.
	Examined int

	// Reevaluated is the number of stale candidates that needed a solve.
	Reevaluated int

	// NonConverged counts solves that hit the iteration cap. Reported, not
	// fatal: the approximate beliefs still rank candidates usefully.
	NonConverged int

	// BaseSpread is the spread with no seeds clamped.
	BaseSpread float64
}

// Selector drives a solver to pick seeds. The solver and its belief cache
// are exclusively owned by the selector while Select runs.
type Selector struct {
	solver *bp.Solver
	pots   model.Potentials
	solo   SoloSpreadSource
	diag   Diagnostics
}

// New creates a selector over a solver, its model, and a solo-spread source.
func New(solver *bp.Solver, pots model.Potentials, solo SoloSpreadSource) *Selector {
	return &Selector{solver: solver, pots: pots, solo: solo}
}

// Select picks up to k seeds. Fewer than k are returned (without error) when
// candidates run out first; k = 0 returns an empty set after the single base
// solve. The error paths are context cancellation and a solo-spread source
// that does not cover the graph.
func (s *Selector) Select(ctx context.Context, k int) ([]Seed, error) {
	g := s.pots.Graph()
	n := g.NodeCount()
	s.diag = Diagnostics{}

	ev := model.NewEvidence(n)

	// Base spread with nothing clamped.
	current, err := s.solve(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.diag.BaseSpread = current

	seeds := make([]Seed, 0, k)
	if k <= 0 {
		return seeds, nil
	}

	// Initial queue from precomputed solo spreads: gain relative to the
	// empty seed set, stamped computedAt=0.
	pq := make(candidateHeap, 0, n)
	for v := int32(0); v < int32(n); v++ {
		solo, ok := s.solo.SoloSpread(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSoloSpread, g.NodeID(v))
		}
		pq = append(pq, candidate{
			node:          v,
			gain:          solo - current,
			computedAt:    0,
			spreadIfAdded: solo,
		})
	}
	heap.Init(&pq)

	for len(seeds) < k && pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := heap.Pop(&pq).(candidate)
		s.diag.Examined++

		if top.computedAt == len(seeds) {
			// Fresh: submodularity says nothing below can beat it. Accept,
			// clamping it into the evidence every later solve will see.
			ev.Set(top.node, model.Active)
			current = top.spreadIfAdded
			seeds = append(seeds, Seed{
				Node:      g.NodeID(top.node),
				Index:     top.node,
				Gain:      top.gain,
				Spread:    current,
				Examined:  s.diag.Examined,
				Iteration: len(seeds),
			})
			continue
		}

		// Stale: measure the true gain against the current seed set and
		// re-file a fresh record. Not accepted yet — something else may
		// still rank higher.
		ev.Set(top.node, model.Active)
		spread, err := s.solve(ctx, ev)
		ev.Unset(top.node)
		if err != nil {
			return nil, err
		}
		s.diag.Reevaluated++

		heap.Push(&pq, candidate{
			node:          top.node,
			gain:          spread - current,
			computedAt:    len(seeds),
			spreadIfAdded: spread,
		})
	}

	return seeds, nil
}

// Diagnostics returns counters from the most recent Select.
func (s *Selector) Diagnostics() Diagnostics { return s.diag }

// solve runs the solver under ev and returns the resulting spread, tracking
// invocation and non-convergence counters.
func (s *Selector) solve(ctx context.Context, ev *model.Evidence) (float64, error) {
	converged, err := s.solver.Solve(ctx, ev)
	if err != nil {
		return 0, err
	}
	s.diag.SolverCalls++
	if !converged {
		s.diag.NonConverged++
	}
	return s.solver.Spread(), nil
}
