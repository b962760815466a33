package query

import (
	"context"
	"time"

	locuserrors "locus/internal/errors"
	"locus/internal/index"
	"locus/internal/paths"
	"locus/internal/project"
	"locus/internal/store"
)

// Status is the repository health summary behind `locus status`: detected
// project, persisted snapshot, freshness against the current configuration,
// and query cache counters.
type Status struct {
	RepoRoot        string        `json:"repoRoot"`
	DBPath          string        `json:"dbPath"`
	Project         *project.Info `json:"project,omitempty"`
	Snapshot        *store.Info   `json:"snapshot,omitempty"`
	Loaded          bool          `json:"loaded"`
	Fresh           bool          `json:"fresh"`
	FreshReason     string        `json:"freshReason,omitempty"`
	Cache           CacheStats    `json:"cache"`
	QueryDurationMs int64         `json:"queryDurationMs"`
}

// Status reports what locus knows about the repository. A repository that
// was never indexed is not an error here: the response says so and the
// freshness reason explains what to do.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := &Status{
		RepoRoot: e.repoRoot,
		DBPath:   e.db.Path(),
		Loaded:   e.Loaded(),
		Cache:    e.cache.stats(),
	}

	// Prefer the project info captured at index time; detect on the fly for
	// repositories that were never indexed.
	if info, err := project.LoadInfo(e.repoRoot); err == nil {
		st.Project = info
	} else {
		st.Project = project.Detect(e.repoRoot)
	}

	info, err := e.db.SnapshotInfo()
	switch {
	case err == nil:
		st.Snapshot = info
	case locuserrors.Is(err, locuserrors.SnapshotMissing):
		// never indexed; the freshness reason covers it
	default:
		return nil, err
	}

	meta, err := index.LoadMeta(paths.StateDir(e.repoRoot))
	if err != nil {
		return nil, err
	}
	freshness := meta.CheckFreshness(e.cfg.Hash())
	st.Fresh = freshness.Fresh
	st.FreshReason = freshness.Reason

	st.QueryDurationMs = time.Since(start).Milliseconds()
	return st, nil
}
