package query

import (
	"context"
	"fmt"
	"time"

	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/retrieval"
)

// SearchOptions selects what to search for and how.
type SearchOptions struct {
	Query string   `json:"query"`
	Mode  string   `json:"mode,omitempty"` // text, graph, structure or hybrid; empty means hybrid
	TopK  int      `json:"topK,omitempty"`
	Kinds []string `json:"kinds,omitempty"` // optional entity kind filter
}

// SearchResult is one ranked hit.
type SearchResult struct {
	EntityID string         `json:"entityId"`
	Score    float64        `json:"score"`
	Mode     retrieval.Mode `json:"mode"`
	Summary  kg.Summary     `json:"summary"`
}

// SearchResponse carries the ranked hits plus provenance.
type SearchResponse struct {
	Query      string         `json:"query"`
	Mode       retrieval.Mode `json:"mode"`
	Results    []SearchResult `json:"results"`
	Provenance Provenance     `json:"provenance"`
}

// Search runs one retrieval query against the current snapshot. Answers are
// memoized per snapshot generation; a cache hit is marked in the provenance
// and still reports fresh timings.
func (e *Engine) Search(ctx context.Context, opts SearchOptions) (*SearchResponse, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode, ok := retrieval.ParseMode(opts.Mode)
	if !ok {
		return nil, locuserrors.NewUnsupportedMode(opts.Mode)
	}
	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		return nil, err
	}
	snap, err := e.current()
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.Search.TopK
	}

	key := cacheKey(mode, opts.Query, topK, kinds)
	if hit, ok := e.cache.get(key); ok {
		prov := e.buildProvenance(snap, start)
		prov.Cached = true
		return &SearchResponse{Query: opts.Query, Mode: mode, Results: hit, Provenance: prov}, nil
	}

	raw, err := snap.Retriever.Search(opts.Query, mode, topK)
	if err != nil {
		return nil, err
	}
	results := toSearchResults(raw, kinds)
	e.cache.put(key, results)

	return &SearchResponse{
		Query:      opts.Query,
		Mode:       mode,
		Results:    results,
		Provenance: e.buildProvenance(snap, start),
	}, nil
}

func parseKinds(names []string) ([]kg.EntityKind, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make([]kg.EntityKind, 0, len(names))
	for _, name := range names {
		kind, ok := kg.ParseEntityKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown entity kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func toSearchResults(raw []retrieval.Result, kinds []kg.EntityKind) []SearchResult {
	out := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		if r.Entity == nil || !kindAllowed(r.Entity.Kind, kinds) {
			continue
		}
		out = append(out, SearchResult{
			EntityID: r.Entity.ID,
			Score:    r.Score,
			Mode:     r.Mode,
			Summary:  r.Entity.Summarize(),
		})
	}
	return out
}

func kindAllowed(kind kg.EntityKind, filter []kg.EntityKind) bool {
	if len(filter) == 0 {
		return true
	}
	for _, k := range filter {
		if k == kind {
			return true
		}
	}
	return false
}
