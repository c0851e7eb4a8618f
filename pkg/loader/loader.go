// Package loader reads influence graphs from files.
//
// Two formats are supported:
//
//   - Tab-separated edge lists: one "source<TAB>target<TAB>weight" triple
//     per line, with blank lines and #-prefixed comments skipped. Node
//     priors must then be supplied separately.
//
//   - YAML datasets: a single document bundling the edge list and the
//     activation priors, convertible straight into a ready model.
//
// Example:
//
//	ds, err := loader.LoadDataset("campaign.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	m, err := ds.Build(0.001)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Malformed input is fatal: a bad weight or a truncated line fails the
// whole load with the offending line number rather than silently skipping
// records.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/influmax/pkg/graph"
	"github.com/orneryd/influmax/pkg/model"
)

var (
	// ErrMalformedLine indicates an edge-list line that is not a
	// source/target/weight triple.
	ErrMalformedLine = errors.New("malformed edge line")

	// ErrNoEdges indicates an input with no usable edge records.
	ErrNoEdges = errors.New("no edges in input")
)

// Edge is one weighted influence link as it appears on disk.
type Edge struct {
	Source string  `yaml:"source"`
	Target string  `yaml:"target"`
	Weight float64 `yaml:"weight"`
}

// Dataset bundles a graph and its activation priors.
type Dataset struct {
	Edges  []Edge             `yaml:"edges"`
	Priors map[string]float64 `yaml:"priors"`
}

// ParseEdges reads a tab-separated edge list.
//
// Each data line is "source<TAB>target<TAB>weight". Blank lines and lines
// starting with # are skipped. Any other malformation aborts the parse.
func ParseEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: %w: want 3 tab-separated fields, got %d",
				lineNo, ErrMalformedLine, len(fields))
		}

		source := strings.TrimSpace(fields[0])
		target := strings.TrimSpace(fields[1])
		weight, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: bad weight %q", lineNo, ErrMalformedLine, fields[2])
		}

		edges = append(edges, Edge{Source: source, Target: target, Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading edge list: %w", err)
	}
	if len(edges) == 0 {
		return nil, ErrNoEdges
	}
	return edges, nil
}

// LoadEdgesTSV reads a tab-separated edge list from a file.
func LoadEdgesTSV(path string) ([]Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening edge list: %w", err)
	}
	defer f.Close()

	edges, err := ParseEdges(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return edges, nil
}

// ParsePriors reads a YAML map of node id to activation prior.
func ParsePriors(r io.Reader) (map[string]float64, error) {
	var priors map[string]float64
	if err := yaml.NewDecoder(r).Decode(&priors); err != nil {
		return nil, fmt.Errorf("decoding priors: %w", err)
	}
	return priors, nil
}

// LoadPriorsYAML reads a YAML prior map from a file.
func LoadPriorsYAML(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening priors: %w", err)
	}
	defer f.Close()

	priors, err := ParsePriors(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return priors, nil
}

// ParseDataset reads a YAML dataset bundling edges and priors.
func ParseDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if len(ds.Edges) == 0 {
		return nil, ErrNoEdges
	}
	return &ds, nil
}

// LoadDataset reads a YAML dataset from a file.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	ds, err := ParseDataset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// BuildGraph converts parsed edges into an immutable graph. Weight range
// and duplicate-edge violations surface from the graph builder.
func BuildGraph(edges []Edge) (*graph.DiGraph, error) {
	b := graph.NewBuilder()
	for _, e := range edges {
		b.AddEdge(e.Source, e.Target, e.Weight)
	}
	return b.Build()
}

// Build converts the dataset into a ready influence model using the given
// potential floor.
func (ds *Dataset) Build(minPotential float64) (*model.InfluenceModel, error) {
	g, err := BuildGraph(ds.Edges)
	if err != nil {
		return nil, err
	}
	return model.NewInfluenceModel(g, ds.Priors, minPotential)
}
