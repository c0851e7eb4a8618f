// Package model defines the binary influence model that belief propagation
// runs against: per-node activation priors, per-edge transmission potentials,
// and explicit hard evidence for seed clamping.
//
// The label domain is fixed to two states:
//   - 0 (Inactive): the node has not adopted
//   - 1 (Active): the node has adopted
//
// Potentials:
//
//	Unary(ev, v, l)      — ev clamps v: 1.0 iff l matches, else 0.0
//	                       otherwise: rho(v) for Active, 1−rho(v) for Inactive
//	Pairwise(e, ls, lt)  — ls == Inactive: 0.5 for either target label
//	                       ls == Active:   max(floor, w(e)) for Active target,
//	                                       its complement for Inactive target
//
// The inactive-source rule is the heart of the diffusion semantics: a node
// that has not adopted exerts no pull either way on its neighbors, so its
// outgoing potential is uniform. Influence flows strictly from active
// sources. Do not "fix" this to a symmetric potential; it is deliberate.
//
// Example:
//
//	priors := map[string]float64{"a": 0.1, "b": 0.1}
//	m, err := model.NewInfluenceModel(g, priors, 0.001)
//	if err != nil {
//		log.Fatal(err) // e.g. a graph node missing from priors
//	}
//
//	ev := model.NewEvidence(g.NodeCount())
//	ev.Set(0, model.Active)
//	p := m.Unary(ev, 0, model.Active) // 1.0 — hard evidence
package model

import (
	"errors"
	"fmt"

	"github.com/orneryd/influmax/pkg/graph"
)

// Binary label values.
const (
	Inactive int8 = 0
	Active   int8 = 1
)

// Sentinel errors returned by NewInfluenceModel.
var (
	// ErrMissingPrior is returned when a graph node has no prior.
	ErrMissingPrior = errors.New("model: graph node missing from priors")

	// ErrUnknownPrior is returned when a prior names a node not in the graph.
	ErrUnknownPrior = errors.New("model: prior for unknown node")

	// ErrPriorRange is returned when a prior falls outside [0, 1].
	ErrPriorRange = errors.New("model: prior outside [0, 1]")

	// ErrFloorRange is returned when the potential floor is not in (0, 1).
	ErrFloorRange = errors.New("model: minimum potential outside (0, 1)")
)

// Potentials supplies the factor tables for a binary-label graphical model.
//
// It stays an interface even though InfluenceModel is the only concrete
// implementation today: the solver in pkg/bp depends only on this surface,
// so a future multi-label or learned-potential model slots in without
// touching the message-passing code.
type Potentials interface {
	// Graph returns the underlying graph the potentials are defined over.
	Graph() *graph.DiGraph

	// LabelDomain returns the number of labels per node (always 2 here).
	LabelDomain() int

	// Unary returns the node potential for label under the given evidence.
	Unary(ev *Evidence, node int32, label int8) float64

	// Pairwise returns the edge potential for (sourceLabel, targetLabel).
	// Evidence does not enter the pairwise table; clamping is purely unary.
	Pairwise(edge int32, sourceLabel, targetLabel int8) float64
}

// InfluenceModel is the binary independent-influence model: priors give each
// node a spontaneous activation probability, edge weights give transmission
// probabilities, and evidence clamps seeds to Active.
type InfluenceModel struct {
	g      *graph.DiGraph
	rho    []float64 // dense index -> prior P(active)
	onEdge []float64 // edge -> max(floor, weight), applied once at build
}

// NewInfluenceModel validates priors against the graph and precomputes the
// floor-clamped edge potentials.
//
// Every graph node must appear in priors exactly once; a missing or unknown
// entry is a construction error, not something to default away — a silently
// assumed prior would skew every spread estimate downstream.
//
// floor is the minimum pairwise potential (config option MinPotential).
// Raw zero-weight edges are floored rather than rejected so that degenerate
// message products cannot collapse to all-zero and break normalization.
func NewInfluenceModel(g *graph.DiGraph, priors map[string]float64, floor float64) (*InfluenceModel, error) {
	if floor <= 0 || floor >= 1 {
		return nil, fmt.Errorf("%w: %g", ErrFloorRange, floor)
	}

	n := g.NodeCount()
	if len(priors) != n {
		// Find the specific offender for a useful error message.
		for _, id := range g.NodeIDs() {
			if _, ok := priors[id]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingPrior, id)
			}
		}
		for id := range priors {
			if _, ok := g.Index(id); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPrior, id)
			}
		}
	}

	rho := make([]float64, n)
	for id, p := range priors {
		i, ok := g.Index(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPrior, id)
		}
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: %s rho=%g", ErrPriorRange, id, p)
		}
		rho[i] = p
	}

	onEdge := make([]float64, g.EdgeCount())
	for e := range onEdge {
		w := g.Edge(int32(e)).Weight
		if w < floor {
			w = floor
		}
		onEdge[e] = w
	}

	return &InfluenceModel{g: g, rho: rho, onEdge: onEdge}, nil
}

// Graph returns the graph the model is defined over.
func (m *InfluenceModel) Graph() *graph.DiGraph { return m.g }

// LabelDomain returns 2: {Inactive, Active}.
func (m *InfluenceModel) LabelDomain() int { return 2 }

// Unary returns the node potential for label under ev.
//
// Clamped nodes are hard evidence: probability mass 1.0 on the clamped label
// and 0.0 on the other, so a seed can never be inferred inactive.
func (m *InfluenceModel) Unary(ev *Evidence, node int32, label int8) float64 {
	if clamp, ok := ev.Label(node); ok {
		if label == clamp {
			return 1.0
		}
		return 0.0
	}
	if label == Active {
		return m.rho[node]
	}
	return 1.0 - m.rho[node]
}

// Pairwise returns the edge potential table entry for edge given the source
// and target labels.
//
// An inactive source transmits nothing: the row is uniform (0.5, 0.5). An
// active source pushes the target toward Active with the floor-clamped edge
// weight and toward Inactive with its complement.
func (m *InfluenceModel) Pairwise(edge int32, sourceLabel, targetLabel int8) float64 {
	if sourceLabel == Inactive {
		return 0.5
	}
	w := m.onEdge[edge]
	if targetLabel == Active {
		return w
	}
	return 1.0 - w
}

// Prior returns the activation prior for a node.
func (m *InfluenceModel) Prior(node int32) float64 { return m.rho[node] }
