// Package influmax provides the main API for embedded influmax usage.
//
// This package wires the pipeline end to end: an immutable influence graph
// and its priors become a pairwise model, a belief propagation solver
// estimates expected spread, and a lazy greedy selector picks the seed set.
// Callers who want the pieces individually can use pkg/graph, pkg/model,
// pkg/bp, pkg/spread and pkg/celf directly; this package is the one-stop
// composition with caching and configuration handled.
//
// Example Usage:
//
//	ds, err := loader.LoadDataset("campaign.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := config.LoadFromEnv()
//	mx, err := influmax.FromDataset(ds, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mx.Close()
//
//	seeds, err := mx.Select(ctx, 10)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, s := range seeds {
//		fmt.Printf("%s gain=%.4f cumulative=%.4f\n", s.Node, s.Gain, s.Spread)
//	}
//
// ELI12:
//
// Imagine you have a limited number of free samples to hand out and you
// want the rumor about your product to travel as far as possible. This
// package reads your friendship map, simulates how talk spreads along it,
// and tells you which people to give the samples to so the most people end
// up hearing about it.
package influmax

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/celf"
	"github.com/orneryd/influmax/pkg/config"
	"github.com/orneryd/influmax/pkg/loader"
	"github.com/orneryd/influmax/pkg/model"
	"github.com/orneryd/influmax/pkg/spread"
)

// Errors returned by Maximizer operations.
var (
	ErrClosed      = errors.New("maximizer is closed")
	ErrUnknownSeed = errors.New("unknown seed node")
)

// Maximizer owns a model and everything needed to select seed sets from it.
//
// A Maximizer is safe for sequential reuse: Select and Spread may be called
// any number of times, with solver state reset per call. Concurrent calls
// are serialized internally.
type Maximizer struct {
	mu     sync.Mutex
	model  *model.InfluenceModel
	cfg    *config.Config
	solver *bp.Solver
	cache  *spread.Cache

	// solo is computed lazily on first Select and reused after.
	solo spread.Table

	diag     celf.Diagnostics
	preStat  spread.Stats
	cacheHit bool
	closed   bool
}

// Diagnostics reports what the last Select call cost.
type Diagnostics struct {
	// Selection is the lazy-greedy audit trail (solver calls, queue pops,
	// re-evaluations, base spread).
	Selection celf.Diagnostics

	// Precompute covers the per-node solo-spread pass, zero when the table
	// came from the cache or an earlier call.
	Precompute spread.Stats

	// CacheHit is true when the solo-spread table was served from badger.
	CacheHit bool
}

// New builds a Maximizer for an already-constructed model.
//
// The configuration is validated here. When cfg.Cache names a directory or
// requests in-memory mode, a badger cache is opened and owned by the
// Maximizer; Close releases it.
func New(m *model.InfluenceModel, cfg *config.Config) (*Maximizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mx := &Maximizer{
		model:  m,
		cfg:    cfg,
		solver: bp.New(m, cfg.SolverConfig()),
	}

	if cfg.Cache.Dir != "" || cfg.Cache.InMemory {
		c, err := spread.OpenCache(cfg.CacheOptions())
		if err != nil {
			return nil, fmt.Errorf("opening solo-spread cache: %w", err)
		}
		mx.cache = c
	}
	return mx, nil
}

// FromDataset builds the model from a loaded dataset and wraps it.
func FromDataset(ds *loader.Dataset, cfg *config.Config) (*Maximizer, error) {
	m, err := ds.Build(cfg.Model.MinPotential)
	if err != nil {
		return nil, err
	}
	return New(m, cfg)
}

// Model exposes the underlying influence model.
func (mx *Maximizer) Model() *model.InfluenceModel {
	return mx.model
}

// Select picks up to k seed nodes by lazy greedy marginal gain.
//
// The first call computes (or fetches from the cache) the per-node solo
// spread table; subsequent calls reuse it. Fewer than k seeds come back
// when the graph runs out of nodes first.
func (mx *Maximizer) Select(ctx context.Context, k int) ([]celf.Seed, error) {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.closed {
		return nil, ErrClosed
	}

	if err := mx.ensureSolo(ctx); err != nil {
		return nil, err
	}

	sel := celf.New(mx.solver, mx.model, mx.solo)
	seeds, err := sel.Select(ctx, k)
	if err != nil {
		return nil, err
	}
	mx.diag = sel.Diagnostics()
	return seeds, nil
}

// Spread evaluates the expected spread of a caller-chosen seed set. Seeds
// are external node IDs; an ID outside the graph fails with ErrUnknownSeed.
func (mx *Maximizer) Spread(ctx context.Context, seedIDs []string) (float64, error) {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.closed {
		return 0, ErrClosed
	}

	g := mx.model.Graph()
	ev := model.NewEvidence(g.NodeCount())
	for _, id := range seedIDs {
		idx, ok := g.Index(id)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownSeed, id)
		}
		ev.Set(idx, model.Active)
	}

	if _, err := mx.solver.Solve(ctx, ev); err != nil {
		return 0, err
	}
	return mx.solver.Spread(), nil
}

// Beliefs returns the per-node activation probability under a seed set,
// keyed by external node ID.
func (mx *Maximizer) Beliefs(ctx context.Context, seedIDs []string) (map[string]float64, error) {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.closed {
		return nil, ErrClosed
	}

	g := mx.model.Graph()
	ev := model.NewEvidence(g.NodeCount())
	for _, id := range seedIDs {
		idx, ok := g.Index(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSeed, id)
		}
		ev.Set(idx, model.Active)
	}

	if _, err := mx.solver.Solve(ctx, ev); err != nil {
		return nil, err
	}

	active := mx.solver.Beliefs()
	out := make(map[string]float64, len(active))
	for i, p := range active {
		out[g.NodeID(int32(i))] = p
	}
	return out, nil
}

// Diagnostics reports the cost of the most recent Select call.
func (mx *Maximizer) Diagnostics() Diagnostics {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	return Diagnostics{
		Selection:  mx.diag,
		Precompute: mx.preStat,
		CacheHit:   mx.cacheHit,
	}
}

// Close releases the cache, if any. The Maximizer is unusable afterwards.
func (mx *Maximizer) Close() error {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.closed {
		return nil
	}
	mx.closed = true
	if mx.cache != nil {
		return mx.cache.Close()
	}
	return nil
}

// ensureSolo populates the solo-spread table once, preferring the cache.
func (mx *Maximizer) ensureSolo(ctx context.Context) error {
	if mx.solo != nil {
		return nil
	}

	cfg := mx.cfg.SpreadConfig()
	if mx.cache != nil {
		table, stats, err := mx.cache.ComputeSolo(ctx, mx.model, cfg)
		if err != nil {
			return err
		}
		mx.solo = table
		mx.preStat = stats
		mx.cacheHit = stats.Solves == 0
		return nil
	}

	table, stats, err := spread.ComputeSolo(ctx, mx.model, cfg)
	if err != nil {
		return err
	}
	mx.solo = table
	mx.preStat = stats
	return nil
}
