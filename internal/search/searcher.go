// Package search provides read-only lookup and traversal over a completed
// knowledge graph: exact, kind and path indices, fuzzy name matching,
// neighbor expansion, dependency grouping, shortest paths and subgraph
// extraction. A Searcher is built once from a materialized graph and never
// mutated, so any number of concurrent readers may share one instance
// without locking; rebuilding the graph means building a new Searcher and
// swapping the reference.
package search

import (
	"sort"
	"strings"

	"locus/internal/kg"
)

const (
	// defaultMaxPathHops bounds ShortestPath when the caller passes no limit.
	defaultMaxPathHops = 5

	// relatedFuzzyThreshold is the similarity floor for the fuzzy half of
	// RelatedByName. Substring hits always score full relevance.
	relatedFuzzyThreshold = 0.6

	defaultRelatedMax = 10
)

// Direction selects which edge set Neighbors follows.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// ParseDirection maps a string onto a Direction, defaulting to both.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in":
		return DirIn
	case "out":
		return DirOut
	default:
		return DirBoth
	}
}

// Match pairs an entity with a similarity or relevance score.
type Match struct {
	Entity *kg.Entity
	Score  float64
}

// Searcher indexes a completed graph for fast lookups.
type Searcher struct {
	g      *kg.Graph
	byName map[string][]string // exact, case-sensitive
	byKind map[kg.EntityKind][]string
	byPath map[string]string // file path -> FILE entity id
}

// New indexes the graph. The graph must not be mutated while the returned
// Searcher is in use. Index slices are built over sorted entity ids, so two
// Searchers over the same graph answer every query identically.
func New(g *kg.Graph) *Searcher {
	s := &Searcher{
		g:      g,
		byName: make(map[string][]string),
		byKind: make(map[kg.EntityKind][]string),
		byPath: make(map[string]string),
	}
	for _, id := range g.EntityIDs() {
		e, ok := g.Entity(id)
		if !ok {
			continue
		}
		s.byName[e.Name] = append(s.byName[e.Name], id)
		s.byKind[e.Kind] = append(s.byKind[e.Kind], id)
		if e.Kind == kg.KindFile {
			s.byPath[e.Path] = id
		}
	}
	return s
}

// Graph exposes the underlying graph for callers that need raw entity or
// relationship access alongside the indices.
func (s *Searcher) Graph() *kg.Graph { return s.g }

// ByName returns every entity whose name matches exactly. Matching is
// case-sensitive; use FuzzyByName or RelatedByName for loose lookup.
func (s *Searcher) ByName(name string) []*kg.Entity {
	return s.resolve(s.byName[name])
}

// ByKind returns every entity of one kind.
func (s *Searcher) ByKind(kind kg.EntityKind) []*kg.Entity {
	return s.resolve(s.byKind[kind])
}

// ByPath returns the FILE entity for a repository-relative path.
func (s *Searcher) ByPath(path string) (*kg.Entity, bool) {
	id, ok := s.byPath[path]
	if !ok {
		return nil, false
	}
	e, ok := s.g.Entity(id)
	return e, ok
}

// FuzzyByName returns entities whose name is similar to query at or above
// threshold, best first. Matching is case-insensitive; an exact name always
// scores 1.0, so it survives any threshold.
func (s *Searcher) FuzzyByName(query string, threshold float64) []Match {
	q := strings.ToLower(query)
	var out []Match
	for name, ids := range s.byName {
		score := ratio(q, strings.ToLower(name))
		if score < threshold {
			continue
		}
		for _, id := range ids {
			if e, ok := s.g.Entity(id); ok {
				out = append(out, Match{Entity: e, Score: score})
			}
		}
	}
	sortMatches(out)
	return out
}

// Neighbors returns the distinct entities adjacent to id, sorted by entity
// id. A non-empty kind keeps only edges of that relationship kind; direction
// selects incoming, outgoing or both edge sets.
func (s *Searcher) Neighbors(id string, kind kg.RelationshipKind, direction Direction) []*kg.Entity {
	seen := make(map[string]bool)
	var ids []string
	collect := func(rels []*kg.Relationship, in bool) {
		for _, r := range rels {
			if kind != "" && r.Kind != kind {
				continue
			}
			nid := r.TargetID
			if in {
				nid = r.SourceID
			}
			if !seen[nid] {
				seen[nid] = true
				ids = append(ids, nid)
			}
		}
	}
	if direction == DirOut || direction == DirBoth {
		collect(s.g.Outgoing(id), false)
	}
	if direction == DirIn || direction == DirBoth {
		collect(s.g.Incoming(id), true)
	}
	sort.Strings(ids)
	return s.resolve(ids)
}

// Dependencies groups the targets of every non-containment outgoing edge by
// relationship kind. Kinds with no edges are absent from the map.
func (s *Searcher) Dependencies(id string) map[kg.RelationshipKind][]*kg.Entity {
	return s.grouped(id, DirOut)
}

// Dependents groups the sources of every non-containment incoming edge by
// relationship kind.
func (s *Searcher) Dependents(id string) map[kg.RelationshipKind][]*kg.Entity {
	return s.grouped(id, DirIn)
}

func (s *Searcher) grouped(id string, direction Direction) map[kg.RelationshipKind][]*kg.Entity {
	out := make(map[kg.RelationshipKind][]*kg.Entity)
	for _, kind := range kg.AllRelationshipKinds {
		if kind == kg.RelContains {
			continue
		}
		if ns := s.Neighbors(id, kind, direction); len(ns) > 0 {
			out[kind] = ns
		}
	}
	return out
}

// ContainedBy returns the structural parent of id. Containment forms a
// forest, so an entity has at most one container; top-level entities and
// unknown ids have none.
func (s *Searcher) ContainedBy(id string) (*kg.Entity, bool) {
	parents := s.Neighbors(id, kg.RelContains, DirIn)
	if len(parents) == 0 {
		return nil, false
	}
	return parents[0], true
}

// Contains returns the entities directly contained by id, in file order.
func (s *Searcher) Contains(id string) []*kg.Entity {
	children := s.Neighbors(id, kg.RelContains, DirOut)
	sortByLocation(children)
	return children
}

// ShortestPath returns the entities along the shortest directed path from a
// to b, both endpoints included, or nil when no path of at most maxLen hops
// exists. maxLen values below 1 fall back to five hops. The breadth-first
// frontier tracks visited ids, so cycles terminate.
func (s *Searcher) ShortestPath(a, b string, maxLen int) []*kg.Entity {
	if maxLen <= 0 {
		maxLen = defaultMaxPathHops
	}
	if _, ok := s.g.Entity(a); !ok {
		return nil
	}
	if _, ok := s.g.Entity(b); !ok {
		return nil
	}
	if a == b {
		return s.resolve([]string{a})
	}

	// prev doubles as the visited set and the BFS tree for reconstruction.
	prev := map[string]string{a: ""}
	frontier := []string{a}
	for depth := 0; depth < maxLen && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, nid := range s.successors(id) {
				if _, visited := prev[nid]; visited {
					continue
				}
				prev[nid] = id
				if nid == b {
					return s.resolve(walkBack(prev, b))
				}
				next = append(next, nid)
			}
		}
		frontier = next
	}
	return nil
}

// successors returns the distinct targets of id's outgoing edges in sorted
// order, which keeps the BFS tree deterministic.
func (s *Searcher) successors(id string) []string {
	rels := s.g.Outgoing(id)
	if len(rels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(rels))
	ids := make([]string, 0, len(rels))
	for _, r := range rels {
		if !seen[r.TargetID] {
			seen[r.TargetID] = true
			ids = append(ids, r.TargetID)
		}
	}
	sort.Strings(ids)
	return ids
}

func walkBack(prev map[string]string, end string) []string {
	var rev []string
	for id := end; id != ""; id = prev[id] {
		rev = append(rev, id)
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// Subgraph copies the induced subgraph over ids into a fresh graph. With
// includeNeighbors the id set is first expanded by one hop in both
// directions. Unknown ids are ignored, and an edge is kept only when both
// endpoints made it into the set, so the result always satisfies
// relationship integrity. The returned graph shares entity and relationship
// values with the source and must be treated as read-only.
func (s *Searcher) Subgraph(ids []string, includeNeighbors bool) *kg.Graph {
	include := make(map[string]bool)
	for _, id := range ids {
		if _, ok := s.g.Entity(id); ok {
			include[id] = true
		}
	}
	if includeNeighbors {
		for _, id := range ids {
			for _, n := range s.Neighbors(id, "", DirBoth) {
				include[n.ID] = true
			}
		}
	}

	ordered := make([]string, 0, len(include))
	for id := range include {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	sub := kg.NewGraph()
	for _, id := range ordered {
		if e, ok := s.g.Entity(id); ok {
			_ = sub.AddEntity(e)
		}
	}
	for _, id := range ordered {
		for _, r := range s.g.Outgoing(id) {
			if include[r.TargetID] {
				_ = sub.AddRelationship(r)
			}
		}
	}
	return sub
}

// RelatedByName finds entities relevant to a free-form name query. A
// case-insensitive substring hit scores 1.0; fuzzy matches contribute their
// similarity when it reaches 0.6; an entity matched both ways keeps its best
// score. Returns at most max entries, best first. This is the structural
// signal hybrid retrieval fuses with lexical scores.
func (s *Searcher) RelatedByName(query string, max int) []Match {
	if max <= 0 {
		max = defaultRelatedMax
	}
	q := strings.ToLower(query)

	best := make(map[string]float64)
	for name, ids := range s.byName {
		if strings.Contains(strings.ToLower(name), q) {
			for _, id := range ids {
				best[id] = 1.0
			}
		}
	}
	for _, m := range s.FuzzyByName(query, relatedFuzzyThreshold) {
		if m.Score > best[m.Entity.ID] {
			best[m.Entity.ID] = m.Score
		}
	}

	out := make([]Match, 0, len(best))
	for id, score := range best {
		if e, ok := s.g.Entity(id); ok {
			out = append(out, Match{Entity: e, Score: score})
		}
	}
	sortMatches(out)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// FileEntities lists the code structure of one file: classes, interfaces and
// enums in declaration order, each immediately followed by its methods, plus
// top-level functions. Markup and import entities are not part of the
// outline. Unknown paths yield nil.
func (s *Searcher) FileEntities(path string) []*kg.Entity {
	file, ok := s.ByPath(path)
	if !ok {
		return nil
	}
	var out []*kg.Entity
	for _, e := range s.Contains(file.ID) {
		switch e.Kind {
		case kg.KindClass, kg.KindInterface, kg.KindEnum:
			out = append(out, e)
			out = append(out, s.Contains(e.ID)...)
		case kg.KindFunction, kg.KindMethod:
			out = append(out, e)
		}
	}
	return out
}

func (s *Searcher) resolve(ids []string) []*kg.Entity {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*kg.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.g.Entity(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// sortMatches orders by score descending, entity id ascending on ties.
func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].Entity.ID < m[j].Entity.ID
	})
}

func sortByLocation(es []*kg.Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Path != es[j].Path {
			return es[i].Path < es[j].Path
		}
		if es[i].StartLine != es[j].StartLine {
			return es[i].StartLine < es[j].StartLine
		}
		return es[i].ID < es[j].ID
	})
}
