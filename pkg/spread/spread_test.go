package spread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/graph"
	"github.com/orneryd/influmax/pkg/model"
)

// ringModel builds a small two-way ring with mildly varied priors so solo
// spreads differ per node.
func ringModel(t testing.TB, n int) *model.InfluenceModel {
	t.Helper()
	b := graph.NewBuilder()
	priors := make(map[string]float64, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = string(rune('a' + i))
		priors[ids[i]] = 0.05 + 0.01*float64(i)
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		b.AddEdge(ids[i], ids[j], 0.6)
		b.AddEdge(ids[j], ids[i], 0.4)
	}
	g, err := b.Build()
	require.NoError(t, err)
	m, err := model.NewInfluenceModel(g, priors, 0.001)
	require.NoError(t, err)
	return m
}

// TestComputeSoloMatchesSerial: the parallel table equals one-at-a-time
// solves on a single solver.
func TestComputeSoloMatchesSerial(t *testing.T) {
	m := ringModel(t, 6)
	g := m.Graph()

	table, stats, err := ComputeSolo(context.Background(), m, Config{Workers: 3, Solver: bp.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), stats.Solves)
	require.Len(t, table, g.NodeCount())

	solver := bp.New(m, bp.DefaultConfig())
	for v := int32(0); v < int32(g.NodeCount()); v++ {
		ev := model.NewEvidence(g.NodeCount())
		ev.Set(v, model.Active)
		_, err := solver.Solve(context.Background(), ev)
		require.NoError(t, err)

		got, ok := table.SoloSpread(v)
		require.True(t, ok)
		assert.Equal(t, solver.Spread(), got, "node %d", v)
	}

	// Out-of-range lookups miss instead of panicking.
	_, ok := table.SoloSpread(int32(g.NodeCount()))
	assert.False(t, ok)
	_, ok = table.SoloSpread(-1)
	assert.False(t, ok)
}

// TestComputeSoloWorkerCounts: pool size never changes the result.
func TestComputeSoloWorkerCounts(t *testing.T) {
	m := ringModel(t, 5)

	ref, _, err := ComputeSolo(context.Background(), m, Config{Workers: 1, Solver: bp.DefaultConfig()})
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 16} {
		table, _, err := ComputeSolo(context.Background(), m, Config{Workers: workers, Solver: bp.DefaultConfig()})
		require.NoError(t, err)
		assert.Equal(t, ref, table, "workers=%d", workers)
	}
}

// TestComputeSoloCancelled: cancellation surfaces as an error.
func TestComputeSoloCancelled(t *testing.T) {
	m := ringModel(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ComputeSolo(ctx, m, DefaultConfig())
	require.Error(t, err)
}

// TestMapSourceValidation: coverage must be exact.
func TestMapSourceValidation(t *testing.T) {
	m := ringModel(t, 3)
	g := m.Graph()

	values := map[string]float64{"a": 1.1, "b": 1.2, "c": 1.3}
	table, err := NewMapSource(g, values)
	require.NoError(t, err)
	for id, want := range values {
		i, _ := g.Index(id)
		got, ok := table.SoloSpread(i)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	delete(values, "b")
	_, err = NewMapSource(g, values)
	require.ErrorIs(t, err, ErrMissingNode)

	values["b"] = 1.2
	values["ghost"] = 9.9
	_, err = NewMapSource(g, values)
	require.ErrorIs(t, err, ErrUnknownNode)
}
