package kg

import (
	"fmt"
	"sort"
)

// RankOptions configures PageRank centrality computation.
type RankOptions struct {
	// Damping is the probability of following an edge vs teleporting (default: 0.85)
	Damping float64

	// MaxIterations is the maximum number of power iterations (default: 20)
	MaxIterations int

	// Tolerance for convergence detection (default: 1e-6)
	Tolerance float64

	// TopK is the number of top results to return (default: 20)
	TopK int

	// Seeds personalizes the teleport vector to these entity ids.
	// Empty seeds mean uniform teleport (plain PageRank).
	Seeds []string
}

// DefaultRankOptions returns sensible defaults.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		Damping:       0.85,
		MaxIterations: 20,
		Tolerance:     1e-6,
		TopK:          20,
	}
}

// RankResult is one ranked entity.
type RankResult struct {
	EntityID string  `json:"entityId"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Score    float64 `json:"score"`
}

// RankOutput carries the full centrality computation result.
type RankOutput struct {
	Results    []RankResult `json:"results"`
	Iterations int          `json:"iterations"`
	Converged  bool         `json:"converged"`
	TotalNodes int          `json:"totalNodes"`
	TotalEdges int          `json:"totalEdges"`
}

// edgeWeight biases the random walk toward semantic edges. Containment is
// structural scaffolding, so it contributes less than calls or imports.
func edgeWeight(kind RelationshipKind) float64 {
	switch kind {
	case RelContains:
		return 0.3
	case RelCalls, RelInherits, RelImplements:
		return 1.0
	case RelImports, RelDependsOn:
		return 0.8
	default:
		return 0.5
	}
}

// Rank computes (personalized) PageRank over the relationship set.
func (g *Graph) Rank(opts RankOptions) (*RankOutput, error) {
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}

	n := len(g.entities)
	if n == 0 {
		return &RankOutput{Results: []RankResult{}}, nil
	}

	// Dense index over a deterministic node order
	ids := g.EntityIDs()
	idx := make(map[string]int, n)
	for i, id := range ids {
		idx[id] = i
	}

	type edgeEntry struct {
		target int
		weight float64
	}
	out := make([][]edgeEntry, n)
	outDegree := make([]float64, n)
	edgeCount := 0
	for _, r := range g.relationships {
		si, ok1 := idx[r.SourceID]
		ti, ok2 := idx[r.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		w := edgeWeight(r.Kind) * r.Confidence
		if w <= 0 {
			continue
		}
		out[si] = append(out[si], edgeEntry{target: ti, weight: w})
		outDegree[si] += w
		edgeCount++
	}

	// Teleport vector: uniform over seeds, or over everything
	teleport := make([]float64, n)
	if len(opts.Seeds) > 0 {
		var valid []int
		for _, s := range opts.Seeds {
			if i, ok := idx[s]; ok {
				valid = append(valid, i)
			}
		}
		if len(valid) == 0 {
			return nil, fmt.Errorf("no seed entity exists in the graph")
		}
		w := 1.0 / float64(len(valid))
		for _, i := range valid {
			teleport[i] = w
		}
	} else {
		w := 1.0 / float64(n)
		for i := range teleport {
			teleport[i] = w
		}
	}

	scores := make([]float64, n)
	copy(scores, teleport)
	next := make([]float64, n)

	var iterations int
	var converged bool
	for iter := 0; iter < opts.MaxIterations; iter++ {
		iterations = iter + 1
		for i := range next {
			next[i] = 0
		}
		for i, edges := range out {
			if len(edges) == 0 || outDegree[i] == 0 {
				continue
			}
			contrib := scores[i] / outDegree[i]
			for _, e := range edges {
				next[e.target] += contrib * e.weight
			}
		}
		maxDiff := 0.0
		for i := range next {
			next[i] = opts.Damping*next[i] + (1-opts.Damping)*teleport[i]
			diff := next[i] - scores[i]
			if diff < 0 {
				diff = -diff
			}
			if diff > maxDiff {
				maxDiff = diff
			}
		}
		scores, next = next, scores
		if maxDiff < opts.Tolerance {
			converged = true
			break
		}
	}

	type scored struct {
		i int
		s float64
	}
	ranked := make([]scored, 0, n)
	for i, s := range scores {
		if s > 0 {
			ranked = append(ranked, scored{i: i, s: s})
		}
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].s != ranked[b].s {
			return ranked[a].s > ranked[b].s
		}
		return ids[ranked[a].i] < ids[ranked[b].i]
	})
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}

	results := make([]RankResult, len(ranked))
	for i, sn := range ranked {
		e := g.entities[ids[sn.i]]
		results[i] = RankResult{
			EntityID: e.ID,
			Name:     e.Name,
			Kind:     string(e.Kind),
			Score:    sn.s,
		}
	}

	return &RankOutput{
		Results:    results,
		Iterations: iterations,
		Converged:  converged,
		TotalNodes: n,
		TotalEdges: edgeCount,
	}, nil
}
