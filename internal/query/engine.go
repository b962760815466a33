// Package query is the facade over a built knowledge graph. One Engine owns
// the current snapshot (graph plus indices) and answers search, navigation
// and status questions; rebuilds construct a complete replacement snapshot
// and swap it in behind a lock, so queries never observe a half-built index.
package query

import (
	"path/filepath"
	"sync"
	"time"

	"locus/internal/builder"
	"locus/internal/config"
	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/logging"
	"locus/internal/parsers"
	"locus/internal/paths"
	"locus/internal/retrieval"
	"locus/internal/search"
	"locus/internal/store"
)

// Snapshot is one immutable generation of the indexed repository. Everything
// read through a snapshot is mutually consistent: the searcher and retriever
// are constructed over the exact graph the BM25 index scored.
type Snapshot struct {
	Graph     *kg.Graph
	Searcher  *search.Searcher
	BM25      *retrieval.BM25
	Retriever *retrieval.Retriever

	// Report is the build report of the last full index run, carried along
	// so incremental updates can re-persist it.
	Report *builder.Report

	BuildID    string
	ConfigHash string
	CreatedAt  time.Time
}

// Engine coordinates every locus query. It is safe for concurrent use:
// readers take the current snapshot under a read lock, and the only writers
// (Load, Rebuild, UpdateFiles) assemble a full replacement before swapping.
type Engine struct {
	repoRoot string
	cfg      *config.Config
	registry *parsers.Registry
	db       *store.DB
	log      *logging.Logger

	// writeMu serializes snapshot producers. Cross-process exclusion for
	// full rebuilds is the advisory index lock; this guards in-process
	// writers against clobbering each other's generation.
	writeMu sync.Mutex

	mu   sync.RWMutex
	snap *Snapshot

	cache *queryCache
}

// New creates an engine rooted at repoRoot. The engine starts empty: call
// Load to restore the persisted snapshot, or Rebuild to index from scratch.
func New(repoRoot string, cfg *config.Config, registry *parsers.Registry, db *store.DB, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		repoRoot: repoRoot,
		cfg:      cfg,
		registry: registry,
		db:       db,
		log:      log,
		cache:    newQueryCache(cfg.Cache.QueryCacheSize),
	}
}

// Load restores the last persisted snapshot into memory. A repository that
// was never indexed surfaces as SNAPSHOT_MISSING, which the CLI maps to a
// remediation hint rather than a stack trace.
func (e *Engine) Load() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	stored, err := e.db.LoadSnapshot()
	if err != nil {
		return err
	}
	snap := e.assemble(stored.Graph, stored.Index, stored.Report, stored.ConfigHash, stored.CreatedAt)
	e.install(snap)

	e.log.Info("snapshot loaded", map[string]interface{}{
		"entities":      stored.Graph.Len(),
		"relationships": stored.Graph.EdgeLen(),
		"buildId":       snap.BuildID,
	})
	return nil
}

// Loaded reports whether a snapshot is resident in memory.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap != nil
}

// Snapshot returns the live snapshot for direct graph access (path queries,
// ranking, statistics, export). Callers must treat it as read-only.
func (e *Engine) Snapshot() (*Snapshot, error) {
	return e.current()
}

// Close releases the underlying snapshot store.
func (e *Engine) Close() error {
	return e.db.Close()
}

// current returns the live snapshot, or SNAPSHOT_MISSING when nothing has
// been loaded or built yet.
func (e *Engine) current() (*Snapshot, error) {
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()
	if snap == nil {
		return nil, locuserrors.NewSnapshotMissing(e.db.Path())
	}
	return snap, nil
}

// install swaps in a new snapshot generation and drops every cached answer
// derived from the previous one.
func (e *Engine) install(snap *Snapshot) {
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
	e.cache.purge()
}

// assemble wires the read stack over a graph and text index: searcher,
// then retriever with the configured fusion weights.
func (e *Engine) assemble(g *kg.Graph, bm25 *retrieval.BM25, report *builder.Report, configHash string, createdAt time.Time) *Snapshot {
	searcher := search.New(g)
	retriever := retrieval.New(searcher, bm25, retrieval.Options{
		TopK: e.cfg.Search.TopK,
		Weights: retrieval.FusionWeights{
			Text:      e.cfg.Search.Fusion.TextWeight,
			Graph:     e.cfg.Search.Fusion.GraphWeight,
			Agreement: e.cfg.Search.Fusion.AgreementBonus,
		},
	}, e.log)

	buildID := ""
	if report != nil {
		buildID = report.BuildID
	}
	return &Snapshot{
		Graph:      g,
		Searcher:   searcher,
		BM25:       bm25,
		Retriever:  retriever,
		Report:     report,
		BuildID:    buildID,
		ConfigHash: configHash,
		CreatedAt:  createdAt,
	}
}

// repoRelative maps a caller-supplied path, absolute or repo-relative, onto
// the canonical repo-relative form entities are keyed by.
func (e *Engine) repoRelative(p string) (string, error) {
	if filepath.IsAbs(p) {
		return paths.Canonicalize(p, e.repoRoot)
	}
	return paths.Normalize(p), nil
}

// Provenance records which snapshot generation answered a query and how
// long the answer took. Age is measured from the snapshot's persist time.
type Provenance struct {
	BuildID         string `json:"buildId,omitempty"`
	SnapshotAgeMs   int64  `json:"snapshotAgeMs"`
	QueryDurationMs int64  `json:"queryDurationMs"`
	Cached          bool   `json:"cached,omitempty"`
}

func (e *Engine) buildProvenance(snap *Snapshot, start time.Time) Provenance {
	return Provenance{
		BuildID:         snap.BuildID,
		SnapshotAgeMs:   time.Since(snap.CreatedAt).Milliseconds(),
		QueryDurationMs: time.Since(start).Milliseconds(),
	}
}
