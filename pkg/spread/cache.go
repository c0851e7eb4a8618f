// Solo-spread memoization on BadgerDB.
//
// A solo-spread table is a pure function of the model (nodes, edges, priors,
// potential floor) and the solver settings (tolerance, iteration cap), so it
// can be keyed by a content fingerprint and reused across process restarts.
// A changed edge weight, prior, or solver knob changes the fingerprint and
// silently misses the cache — there is no explicit invalidation to forget.
package spread

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/influmax/pkg/bp"
	"github.com/orneryd/influmax/pkg/model"
)

// Key prefix for solo-spread tables. Single byte, same scheme BadgerDB
// deployments conventionally use for cheap key-space partitioning.
const prefixSoloTable = byte(0x01)

// CacheOptions configures the solo-spread cache.
type CacheOptions struct {
	// Dir is the directory for Badger's data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk. Useful for testing; the
	// cache then only survives for the process lifetime.
	InMemory bool

	// SyncWrites forces fsync after each write. A lost cache entry just
	// costs recomputation, so this defaults off.
	SyncWrites bool
}

// Cache memoizes solo-spread tables in BadgerDB.
//
// Example:
//
//	cache, err := spread.OpenCache(spread.CacheOptions{Dir: cfg.CacheDir})
//	if err != nil {
//		return err
//	}
//	defer cache.Close()
//
//	table, stats, err := cache.ComputeSolo(ctx, m, spread.DefaultConfig())
//	// First run: N solves, table persisted.
//	// Every later run on the same dataset: zero solves.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (creating if needed) a cache at opts.Dir.
func OpenCache(opts CacheOptions) (*Cache, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	badgerOpts = badgerOpts.
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("spread: opening cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached table for a fingerprint, with ok=false on a miss.
func (c *Cache) Get(fingerprint [sha256.Size]byte) (Table, bool, error) {
	var table Table
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &table)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("spread: cache read: %w", err)
	}
	return table, true, nil
}

// Put stores a table under a fingerprint.
func (c *Cache) Put(fingerprint [sha256.Size]byte, table Table) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("spread: cache encode: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(fingerprint), data)
	})
	if err != nil {
		return fmt.Errorf("spread: cache write: %w", err)
	}
	return nil
}

// ComputeSolo returns the memoized table for the model/config pair, running
// the real computation only on a cache miss.
func (c *Cache) ComputeSolo(ctx context.Context, m *model.InfluenceModel, cfg Config) (Table, Stats, error) {
	fp := Fingerprint(m, cfg.Solver)

	if table, ok, err := c.Get(fp); err != nil {
		return nil, Stats{}, err
	} else if ok {
		return table, Stats{}, nil
	}

	table, stats, err := ComputeSolo(ctx, m, cfg)
	if err != nil {
		return nil, Stats{}, err
	}
	if err := c.Put(fp, table); err != nil {
		return nil, Stats{}, err
	}
	return table, stats, nil
}

// Fingerprint hashes everything the solo-spread table depends on: node
// identities, directed edges with raw weights, priors, and the solver
// settings that shape the marginals.
func Fingerprint(m *model.InfluenceModel, solverCfg bp.Config) [sha256.Size]byte {
	g := m.Graph()
	h := sha256.New()

	writeF64 := func(v float64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	for _, id := range g.NodeIDs() {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	for i := int32(0); i < int32(g.NodeCount()); i++ {
		writeF64(m.Prior(i))
	}
	for e := int32(0); e < int32(g.EdgeCount()); e++ {
		edge := g.Edge(e)
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[:4], uint32(edge.From))
		binary.BigEndian.PutUint32(buf[4:], uint32(edge.To))
		h.Write(buf[:])
		writeF64(edge.Weight)
	}
	// Pairwise floors are baked into the model's potentials: hash one
	// representative entry per edge instead of the raw option so any floor
	// change shows up even without access to the original option value.
	for e := int32(0); e < int32(g.EdgeCount()); e++ {
		writeF64(m.Pairwise(e, model.Active, model.Active))
	}
	writeF64(solverCfg.Tolerance)
	var iterBuf [8]byte
	binary.BigEndian.PutUint64(iterBuf[:], uint64(solverCfg.MaxIterations))
	h.Write(iterBuf[:])

	var fp [sha256.Size]byte
	copy(fp[:], h.Sum(nil))
	return fp
}

func cacheKey(fingerprint [sha256.Size]byte) []byte {
	key := make([]byte, 1+len(fingerprint))
	key[0] = prefixSoloTable
	copy(key[1:], fingerprint[:])
	return key
}
