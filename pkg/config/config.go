// Package config handles influmax configuration via environment variables.
//
// All settings are read from environment variables prefixed with INFLUMAX_,
// with sensible defaults so a bare LoadFromEnv() is always usable. There are
// no config files by design: environment variables keep deployment identical
// across shells, CI, and containers.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("selecting %d seeds with %d workers\n",
//		cfg.Selection.SeedCount, cfg.Solver.Workers)
//
// Environment Variables:
//
//   - INFLUMAX_SEED_COUNT=10
//   - INFLUMAX_SOLVER_TOLERANCE=0.001
//   - INFLUMAX_SOLVER_MAX_ITERATIONS=20
//   - INFLUMAX_SOLVER_WORKERS=0 (0 = all CPUs)
//   - INFLUMAX_MODEL_MIN_POTENTIAL=0.001
//   - INFLUMAX_CACHE_DIR="" (empty = no persistent cache)
//   - INFLUMAX_CACHE_SYNC_WRITES=false
//   - INFLUMAX_LOG_LEVEL=INFO
//
// For the complete list, see the Config struct field documentation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/spread"
)

// Config holds all influmax configuration loaded from environment variables.
//
// Configuration is organized into logical sections:
//   - Solver: belief propagation convergence and parallelism
//   - Selection: seed selection budget
//   - Model: potential construction
//   - Cache: solo-spread memoization
//   - Logging: logging configuration
//
// Use LoadFromEnv() to create a Config from environment variables.
type Config struct {
	// Solver settings for belief propagation
	Solver SolverConfig

	// Selection settings for the greedy seed picker
	Selection SelectionConfig

	// Model settings for potential construction
	Model ModelConfig

	// Cache settings for solo-spread memoization
	Cache CacheConfig

	// Logging
	Logging LoggingConfig
}

// SolverConfig holds belief propagation settings.
type SolverConfig struct {
	// Tolerance is the max belief change below which a solve has converged
	Tolerance float64
	// MaxIterations caps a single solve
	MaxIterations int
	// Workers for parallel message passing (0 = all CPUs)
	Workers int
}

// SelectionConfig holds seed selection settings.
type SelectionConfig struct {
	// SeedCount is the number of seeds to select (the budget k)
	SeedCount int
}

// ModelConfig holds potential construction settings.
type ModelConfig struct {
	// MinPotential is the floor applied to edge transmission probabilities,
	// keeping every pairwise potential strictly positive
	MinPotential float64
}

// CacheConfig holds solo-spread cache settings.
type CacheConfig struct {
	// Dir is the badger directory for persistent caching ("" = disabled)
	Dir string
	// InMemory runs badger without disk persistence (tests, one-shot runs)
	InMemory bool
	// SyncWrites forces fsync on every cache write
	SyncWrites bool
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string
	// Format (json, text)
	Format string
	// Output path (stdout, stderr, or file path)
	Output string
}

// LoadFromEnv loads configuration from environment variables.
//
// All values have sensible defaults, so LoadFromEnv() can be called without
// any environment variables set.
//
// Example:
//
//	// Minimal setup - uses all defaults
//	cfg := config.LoadFromEnv()
//
//	// With custom environment
//	os.Setenv("INFLUMAX_SEED_COUNT", "25")
//	os.Setenv("INFLUMAX_SOLVER_WORKERS", "8")
//	cfg = config.LoadFromEnv()
//
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// ELI12:
//
// Think of LoadFromEnv like reading a recipe from sticky notes on your
// fridge: each sticky note is an environment variable, and if a note is
// missing you cook with the default amount. The function reads ALL the
// sticky notes and builds one complete recipe.
//
// Configuration Priority:
//  1. Environment variables (highest)
//  2. Default values (if env var not set)
//  3. No config files (environment-only by design)
//
// Returns a fully populated Config with defaults applied where environment
// variables are not set.
func LoadFromEnv() *Config {
	cfg := &Config{}

	// Solver settings
	cfg.Solver.Tolerance = getEnvFloat("INFLUMAX_SOLVER_TOLERANCE", 0.001)
	cfg.Solver.MaxIterations = getEnvInt("INFLUMAX_SOLVER_MAX_ITERATIONS", 20)
	cfg.Solver.Workers = getEnvInt("INFLUMAX_SOLVER_WORKERS", 0)

	// Selection settings
	cfg.Selection.SeedCount = getEnvInt("INFLUMAX_SEED_COUNT", 10)

	// Model settings
	cfg.Model.MinPotential = getEnvFloat("INFLUMAX_MODEL_MIN_POTENTIAL", 0.001)

	// Cache settings
	cfg.Cache.Dir = getEnv("INFLUMAX_CACHE_DIR", "")
	cfg.Cache.InMemory = getEnvBool("INFLUMAX_CACHE_IN_MEMORY", false)
	cfg.Cache.SyncWrites = getEnvBool("INFLUMAX_CACHE_SYNC_WRITES", false)

	// Logging settings
	cfg.Logging.Level = getEnv("INFLUMAX_LOG_LEVEL", "INFO")
	cfg.Logging.Format = getEnv("INFLUMAX_LOG_FORMAT", "text")
	cfg.Logging.Output = getEnv("INFLUMAX_LOG_OUTPUT", "stderr")

	return cfg
}

// Validate checks the configuration for logical errors and invalid values.
//
// This method checks:
//   - Tolerance is positive
//   - Iteration cap is positive
//   - Worker count is not negative
//   - Seed budget is not negative
//   - MinPotential lies strictly inside (0, 1)
//
// Call Validate() after LoadFromEnv() and before using the Config.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("invalid solver tolerance: %g", c.Solver.Tolerance)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("invalid solver iteration cap: %d", c.Solver.MaxIterations)
	}
	if c.Solver.Workers < 0 {
		return fmt.Errorf("invalid solver worker count: %d", c.Solver.Workers)
	}
	if c.Selection.SeedCount < 0 {
		return fmt.Errorf("invalid seed count: %d", c.Selection.SeedCount)
	}
	if c.Model.MinPotential <= 0 || c.Model.MinPotential >= 1 {
		return fmt.Errorf("invalid potential floor: %g (must be in (0, 1))", c.Model.MinPotential)
	}
	if c.Cache.Dir != "" && c.Cache.InMemory {
		return fmt.Errorf("cache dir %q conflicts with in-memory cache", c.Cache.Dir)
	}
	return nil
}

// String returns a string representation of the Config, safe for logging.
//
// Example output:
//
//	Config{Seeds: 10, Tolerance: 0.001, MaxIter: 20, Workers: 0, Floor: 0.001, CacheDir: }
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Seeds: %d, Tolerance: %g, MaxIter: %d, Workers: %d, Floor: %g, CacheDir: %s}",
		c.Selection.SeedCount,
		c.Solver.Tolerance, c.Solver.MaxIterations, c.Solver.Workers,
		c.Model.MinPotential,
		c.Cache.Dir,
	)
}

// SolverConfig converts the solver section into the solver's own config type.
func (c *Config) SolverConfig() bp.Config {
	return bp.Config{
		Tolerance:     c.Solver.Tolerance,
		MaxIterations: c.Solver.MaxIterations,
		Workers:       c.Solver.Workers,
	}
}

// SpreadConfig converts the solver section into a solo-spread config.
func (c *Config) SpreadConfig() spread.Config {
	return spread.Config{
		Workers: c.Solver.Workers,
		Solver:  c.SolverConfig(),
	}
}

// CacheOptions converts the cache section into badger cache options.
func (c *Config) CacheOptions() spread.CacheOptions {
	return spread.CacheOptions{
		Dir:        c.Cache.Dir,
		InMemory:   c.Cache.InMemory,
		SyncWrites: c.Cache.SyncWrites,
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
