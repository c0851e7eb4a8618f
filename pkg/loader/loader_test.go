package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/influmax/pkg/graph"
)

const edgeList = `# follower graph, exported 2024-03-11
alice	bob	0.8
bob	carol	0.5

# reciprocal link added later
carol	alice	0.25
`

func TestParseEdges(t *testing.T) {
	edges, err := ParseEdges(strings.NewReader(edgeList))
	require.NoError(t, err)

	want := []Edge{
		{Source: "alice", Target: "bob", Weight: 0.8},
		{Source: "bob", Target: "carol", Weight: 0.5},
		{Source: "carol", Target: "alice", Weight: 0.25},
	}
	assert.Equal(t, want, edges)
}

func TestParseEdgesMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"missing field", "alice\tbob\n"},
		{"extra field", "alice\tbob\t0.5\textra\n"},
		{"bad weight", "alice\tbob\thigh\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEdges(strings.NewReader(tc.input))
			require.ErrorIs(t, err, ErrMalformedLine)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestParseEdgesEmpty(t *testing.T) {
	_, err := ParseEdges(strings.NewReader("# only comments\n\n"))
	require.ErrorIs(t, err, ErrNoEdges)
}

func TestLoadEdgesTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.tsv")
	require.NoError(t, os.WriteFile(path, []byte(edgeList), 0o644))

	edges, err := LoadEdgesTSV(path)
	require.NoError(t, err)
	assert.Len(t, edges, 3)

	_, err = LoadEdgesTSV(filepath.Join(t.TempDir(), "absent.tsv"))
	require.Error(t, err)
}

func TestParsePriors(t *testing.T) {
	priors, err := ParsePriors(strings.NewReader("alice: 0.1\nbob: 0.05\ncarol: 0.2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"alice": 0.1, "bob": 0.05, "carol": 0.2}, priors)

	_, err = ParsePriors(strings.NewReader("alice: [not a number\n"))
	require.Error(t, err)
}

const datasetYAML = `edges:
  - source: alice
    target: bob
    weight: 0.8
  - source: bob
    target: carol
    weight: 0.5
priors:
  alice: 0.1
  bob: 0.05
  carol: 0.2
`

func TestLoadDatasetAndBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(datasetYAML), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, ds.Edges, 2)
	assert.Equal(t, 0.05, ds.Priors["bob"])

	m, err := ds.Build(0.001)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Graph().NodeCount())
	assert.Equal(t, 2, m.Graph().EdgeCount())
}

func TestParseDatasetNoEdges(t *testing.T) {
	_, err := ParseDataset(strings.NewReader("priors:\n  alice: 0.1\n"))
	require.ErrorIs(t, err, ErrNoEdges)
}

func TestBuildGraphRejectsBadWeight(t *testing.T) {
	_, err := BuildGraph([]Edge{{Source: "a", Target: "b", Weight: 1.5}})
	require.ErrorIs(t, err, graph.ErrWeightRange)
}

func TestDatasetBuildRejectsMissingPrior(t *testing.T) {
	ds := &Dataset{
		Edges:  []Edge{{Source: "a", Target: "b", Weight: 0.5}},
		Priors: map[string]float64{"a": 0.1},
	}
	_, err := ds.Build(0.001)
	require.Error(t, err)
}
