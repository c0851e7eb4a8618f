// Package spread provides the solo-spread preprocessing that seeds the CELF
// queue: for every node, the total expected spread when that node alone is
// clamped active.
//
// Computing the table costs one full belief propagation solve per node — by
// far the most expensive preprocessing step of the pipeline — so the package
// offers three ways to obtain one:
//
//   - ComputeSolo: parallel in-process computation, one private solver per
//     worker (hypotheses must never share a solver).
//   - NewMapSource: adapt precomputed values keyed by external node ID,
//     e.g. shipped alongside the graph files.
//   - Cache (cache.go): badger-backed memoization of ComputeSolo keyed by a
//     fingerprint of the model and solver settings, so repeated runs over
//     the same dataset skip the N solves entirely.
//
// Example:
//
//	table, stats, err := spread.ComputeSolo(ctx, m, spread.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	if stats.NonConverged > 0 {
//		log.Printf("%d/%d solo solves hit the iteration cap", stats.NonConverged, stats.Solves)
//	}
//
//	sel := celf.New(solver, m, table)
package spread

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/graph"
	"github.com/orneryd/influmax/pkg/model"
)

// Sentinel errors for precomputed-source validation.
var (
	// ErrMissingNode is returned when a precomputed map omits a graph node.
	ErrMissingNode = errors.New("spread: graph node missing from solo-spread map")

	// ErrUnknownNode is returned when a precomputed map names a node the
	// graph does not have.
	ErrUnknownNode = errors.New("spread: solo-spread value for unknown node")
)

// Table is a dense solo-spread vector indexed by node. It implements
// celf.SoloSpreadSource.
type Table []float64

// SoloSpread returns the solo spread for node.
func (t Table) SoloSpread(node int32) (float64, bool) {
	if node < 0 || int(node) >= len(t) {
		return 0, false
	}
	return t[node], true
}

// Config controls solo-spread computation.
type Config struct {
	// Workers sizes the computation pool. Each worker owns a private
	// solver, so memory scales with Workers · O(V+E).
	// Zero means runtime.NumCPU().
	Workers int

	// Solver configures the per-worker solvers.
	Solver bp.Config
}

// DefaultConfig returns NumCPU workers with default solver settings.
func DefaultConfig() Config {
	return Config{Workers: 0, Solver: bp.DefaultConfig()}
}

// Stats reports what a ComputeSolo call did.
type Stats struct {
	// Solves is the number of solver invocations (one per node).
	Solves int

	// NonConverged counts solves that hit the iteration cap.
	NonConverged int
}

// ComputeSolo measures, for every node, the spread with that node alone
// seeded. Nodes are fanned out over a fixed worker pool; each worker owns a
// private solver and evidence, writing results into its own slots of the
// shared table, so no locking is needed on the data path.
func ComputeSolo(ctx context.Context, pots model.Potentials, cfg Config) (Table, Stats, error) {
	g := pots.Graph()
	n := g.NodeCount()

	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	table := make(Table, n)
	nodes := make(chan int32, workers)
	var nonConverged int64

	var errOnce sync.Once
	var firstErr error

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			solver := bp.New(pots, cfg.Solver)
			ev := model.NewEvidence(n)
			for v := range nodes {
				ev.Set(v, model.Active)
				converged, err := solver.Solve(ctx, ev)
				ev.Unset(v)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				if !converged {
					atomic.AddInt64(&nonConverged, 1)
				}
				table[v] = solver.Spread()
			}
		}()
	}

feed:
	for v := int32(0); v < int32(n); v++ {
		select {
		case nodes <- v:
		case <-ctx.Done():
			break feed
		}
	}
	close(nodes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}
	if firstErr != nil {
		return nil, Stats{}, firstErr
	}

	return table, Stats{Solves: n, NonConverged: int(nonConverged)}, nil
}

// NewMapSource validates precomputed solo spreads keyed by external node ID
// and packs them into a Table. Coverage must be exact, same as priors: every
// graph node present, no strangers.
func NewMapSource(g *graph.DiGraph, values map[string]float64) (Table, error) {
	if len(values) != g.NodeCount() {
		for _, id := range g.NodeIDs() {
			if _, ok := values[id]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingNode, id)
			}
		}
	}

	table := make(Table, g.NodeCount())
	for id, v := range values {
		i, ok := g.Index(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		table[i] = v
	}
	return table, nil
}
