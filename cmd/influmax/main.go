// Package main provides the influmax CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/influmax/pkg/config"
	"github.com/orneryd/influmax/pkg/influmax"
	"github.com/orneryd/influmax/pkg/loader"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "influmax",
		Short: "influmax - Influence Maximization over Weighted Networks",
		Long: `influmax picks the seed set that maximizes expected influence spread
over a weighted directed network.

Features:
  • Loopy belief propagation spread estimation
  • Lazy greedy (CELF) seed selection
  • Parallel solve with deterministic results
  • Persistent solo-spread caching via Badger
  • TSV edge lists and YAML datasets`,
	}

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("influmax v%s (%s)\n", version, commit)
		},
	})

	// Select command
	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Select the seed set with maximal expected spread",
		Long: `Select runs the full pipeline: load the network, estimate per-node
solo spreads, then pick seeds greedily by marginal gain until the budget
is spent.`,
		RunE: runSelect,
	}
	addInputFlags(selectCmd)
	addSolverFlags(selectCmd)
	selectCmd.Flags().Int("seeds", 10, "Seed budget (number of nodes to select)")
	selectCmd.Flags().String("cache-dir", "", "Badger directory for solo-spread caching")
	selectCmd.Flags().String("output", "text", "Output format: text or yaml")
	rootCmd.AddCommand(selectCmd)

	// Spread command
	spreadCmd := &cobra.Command{
		Use:   "spread [node...]",
		Short: "Evaluate the expected spread of a given seed set",
		RunE:  runSpread,
	}
	addInputFlags(spreadCmd)
	addSolverFlags(spreadCmd)
	spreadCmd.Flags().Bool("beliefs", false, "Also print per-node activation probabilities")
	spreadCmd.Flags().String("output", "text", "Output format: text or yaml")
	rootCmd.AddCommand(spreadCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", "", "YAML dataset bundling edges and priors")
	cmd.Flags().String("edges", "", "Tab-separated edge list (source, target, weight)")
	cmd.Flags().String("priors", "", "YAML map of node id to activation prior")
}

func addSolverFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("tolerance", 0.001, "Convergence tolerance for belief propagation")
	cmd.Flags().Int("max-iterations", 20, "Iteration cap per solve")
	cmd.Flags().Int("workers", 0, "Parallel workers (0 = all CPUs)")
	cmd.Flags().Float64("min-potential", 0.001, "Floor applied to edge transmission probabilities")
	cmd.Flags().Duration("timeout", 10*time.Minute, "Overall run timeout")
}

// loadConfig starts from the environment and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.LoadFromEnv()

	if cmd.Flags().Changed("tolerance") {
		cfg.Solver.Tolerance, _ = cmd.Flags().GetFloat64("tolerance")
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Solver.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Solver.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("min-potential") {
		cfg.Model.MinPotential, _ = cmd.Flags().GetFloat64("min-potential")
	}
	return cfg
}

// loadDataset reads the network from --dataset, or from --edges plus --priors.
func loadDataset(cmd *cobra.Command) (*loader.Dataset, error) {
	datasetPath, _ := cmd.Flags().GetString("dataset")
	edgesPath, _ := cmd.Flags().GetString("edges")
	priorsPath, _ := cmd.Flags().GetString("priors")

	if datasetPath != "" {
		if edgesPath != "" || priorsPath != "" {
			return nil, fmt.Errorf("--dataset conflicts with --edges/--priors")
		}
		return loader.LoadDataset(datasetPath)
	}

	if edgesPath == "" || priorsPath == "" {
		return nil, fmt.Errorf("need --dataset, or both --edges and --priors")
	}
	edges, err := loader.LoadEdgesTSV(edgesPath)
	if err != nil {
		return nil, err
	}
	priors, err := loader.LoadPriorsYAML(priorsPath)
	if err != nil {
		return nil, err
	}
	return &loader.Dataset{Edges: edges, Priors: priors}, nil
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	return ctx, func() { cancelTimeout(); cancel() }
}

type seedReport struct {
	Node   string  `yaml:"node"`
	Gain   float64 `yaml:"gain"`
	Spread float64 `yaml:"spread"`
}

type selectReport struct {
	Seeds       []seedReport `yaml:"seeds"`
	BaseSpread  float64      `yaml:"base_spread"`
	FinalSpread float64      `yaml:"final_spread"`
	SolverCalls int          `yaml:"solver_calls"`
	Examined    int          `yaml:"examined"`
	CacheHit    bool         `yaml:"cache_hit"`
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir, _ = cmd.Flags().GetString("cache-dir")
	}
	k, _ := cmd.Flags().GetInt("seeds")
	if cmd.Flags().Changed("seeds") {
		cfg.Selection.SeedCount = k
	}
	output, _ := cmd.Flags().GetString("output")

	ds, err := loadDataset(cmd)
	if err != nil {
		return err
	}

	mx, err := influmax.FromDataset(ds, cfg)
	if err != nil {
		return err
	}
	defer mx.Close()

	g := mx.Model().Graph()
	if output == "text" {
		fmt.Printf("🌐 Network: %d nodes, %d edges\n", g.NodeCount(), g.EdgeCount())
		fmt.Printf("🎯 Selecting %d seeds...\n", cfg.Selection.SeedCount)
	}

	ctx, cancel := runContext(cmd)
	defer cancel()

	start := time.Now()
	seeds, err := mx.Select(ctx, cfg.Selection.SeedCount)
	if err != nil {
		return fmt.Errorf("selecting seeds: %w", err)
	}
	elapsed := time.Since(start)

	d := mx.Diagnostics()
	report := selectReport{
		Seeds:       make([]seedReport, 0, len(seeds)),
		BaseSpread:  d.Selection.BaseSpread,
		FinalSpread: d.Selection.BaseSpread,
		SolverCalls: d.Selection.SolverCalls + d.Precompute.Solves,
		Examined:    d.Selection.Examined,
		CacheHit:    d.CacheHit,
	}
	for _, s := range seeds {
		report.Seeds = append(report.Seeds, seedReport{Node: s.Node, Gain: s.Gain, Spread: s.Spread})
		report.FinalSpread = s.Spread
	}

	if output == "yaml" {
		return yaml.NewEncoder(os.Stdout).Encode(report)
	}

	fmt.Println()
	for i, s := range seeds {
		fmt.Printf("  %2d. %-20s gain=%.4f  cumulative=%.4f\n", i+1, s.Node, s.Gain, s.Spread)
	}
	fmt.Println()
	fmt.Printf("✅ Spread %.4f → %.4f in %v\n", report.BaseSpread, report.FinalSpread, elapsed.Round(time.Millisecond))
	fmt.Printf("   Solver calls: %d (examined %d candidates", report.SolverCalls, report.Examined)
	if report.CacheHit {
		fmt.Printf(", solo spreads from cache")
	}
	fmt.Println(")")
	if nc := d.Selection.NonConverged + d.Precompute.NonConverged; nc > 0 {
		fmt.Printf("⚠️  %d solves hit the iteration cap; results are approximate\n", nc)
	}
	return nil
}

type spreadReport struct {
	Seeds   []string           `yaml:"seeds"`
	Spread  float64            `yaml:"spread"`
	Beliefs map[string]float64 `yaml:"beliefs,omitempty"`
}

func runSpread(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	output, _ := cmd.Flags().GetString("output")
	withBeliefs, _ := cmd.Flags().GetBool("beliefs")

	ds, err := loadDataset(cmd)
	if err != nil {
		return err
	}

	mx, err := influmax.FromDataset(ds, cfg)
	if err != nil {
		return err
	}
	defer mx.Close()

	ctx, cancel := runContext(cmd)
	defer cancel()

	report := spreadReport{Seeds: args}
	if withBeliefs {
		beliefs, err := mx.Beliefs(ctx, args)
		if err != nil {
			return err
		}
		report.Beliefs = beliefs
		for _, p := range beliefs {
			report.Spread += p
		}
	} else {
		report.Spread, err = mx.Spread(ctx, args)
		if err != nil {
			return err
		}
	}

	if output == "yaml" {
		return yaml.NewEncoder(os.Stdout).Encode(report)
	}

	fmt.Printf("✅ Expected spread with %d seeds: %.4f\n", len(args), report.Spread)
	if withBeliefs {
		ids := make([]string, 0, len(report.Beliefs))
		for id := range report.Beliefs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-20s %.4f\n", id, report.Beliefs[id])
		}
	}
	return nil
}
