package retrieval

import (
	"sort"
	"strings"

	"locus/internal/kg"
	"locus/internal/logging"
	"locus/internal/search"
)

// Mode selects which ranking signal a search runs on.
type Mode string

const (
	ModeText      Mode = "text"
	ModeGraph     Mode = "graph"
	ModeStructure Mode = "structure"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode maps a string onto a Mode. The empty string selects hybrid, the
// default; anything else unknown reports false so the caller can answer
// with a diagnostic instead of guessing.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeHybrid, true
	case ModeText:
		return ModeText, true
	case ModeGraph:
		return ModeGraph, true
	case ModeStructure:
		return ModeStructure, true
	case ModeHybrid:
		return ModeHybrid, true
	}
	return "", false
}

// Relation names one slice of an entity's neighborhood.
type Relation string

const (
	RelationAll          Relation = "all"
	RelationDependencies Relation = "dependencies"
	RelationDependents   Relation = "dependents"
	RelationContained    Relation = "contained"
	RelationContainer    Relation = "container"
)

// ParseRelation maps a string onto a Relation, defaulting to all.
func ParseRelation(s string) (Relation, bool) {
	switch Relation(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return RelationAll, true
	case RelationAll:
		return RelationAll, true
	case RelationDependencies:
		return RelationDependencies, true
	case RelationDependents:
		return RelationDependents, true
	case RelationContained:
		return RelationContained, true
	case RelationContainer:
		return RelationContainer, true
	}
	return "", false
}

// FusionWeights tune how hybrid mode combines its two signals. They are a
// configuration surface, not constants: corpora with sparse docstrings lean
// harder on the graph signal and vice versa.
type FusionWeights struct {
	Text      float64 // multiplies the BM25 score
	Graph     float64 // multiplies the name-relevance score
	Agreement float64 // flat bonus when both signals find the same entity
}

// DefaultFusionWeights returns the stock 0.6 / 0.4 / 0.2 split.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Text: 0.6, Graph: 0.4, Agreement: 0.2}
}

// Result is one ranked entity. Mode records which signal produced it: a
// hybrid search tags entities found by both signals as hybrid and
// single-signal hits with that signal's own mode.
type Result struct {
	Entity     *kg.Entity
	Score      float64
	Mode       Mode
	TextScore  float64
	GraphScore float64
}

// Options configures a Retriever.
type Options struct {
	TopK    int // default result budget when a query passes none
	Weights FusionWeights
}

// Retriever answers entity queries over one immutable graph snapshot. It is
// safe for concurrent use; swapping in a rebuilt graph means constructing a
// new Retriever over the new Searcher and BM25 index.
type Retriever struct {
	searcher *search.Searcher
	index    *BM25
	topK     int
	weights  FusionWeights
	log      *logging.Logger
}

// New wires a retriever over a built graph index and BM25 index.
func New(searcher *search.Searcher, index *BM25, opts Options, log *logging.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Weights == (FusionWeights{}) {
		opts.Weights = DefaultFusionWeights()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Retriever{
		searcher: searcher,
		index:    index,
		topK:     opts.TopK,
		weights:  opts.Weights,
		log:      log,
	}
}

// Search runs one query in the given mode. Unknown modes yield an empty
// result with a logged diagnostic, never an error, so callers can probe
// modes freely; the only error path is querying an unbuilt text index.
func (r *Retriever) Search(query string, mode Mode, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.topK
	}
	switch mode {
	case ModeText:
		return r.textSearch(query, topK)
	case ModeGraph:
		return r.graphSearch(query, topK), nil
	case ModeStructure:
		return r.structureSearch(query, topK), nil
	case ModeHybrid, "":
		return r.hybridSearch(query, topK)
	}
	r.log.Warn("unsupported search mode", map[string]interface{}{
		"mode":  string(mode),
		"query": query,
	})
	return nil, nil
}

// textSearch is pure BM25.
func (r *Retriever) textSearch(query string, topK int) ([]Result, error) {
	scored, err := r.index.Query(query, topK)
	if err != nil {
		return nil, err
	}
	g := r.searcher.Graph()
	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		e, ok := g.Entity(s.EntityID)
		if !ok {
			// Stale snapshot entry; the entity left the graph.
			continue
		}
		out = append(out, Result{
			Entity:    e,
			Score:     s.Score,
			Mode:      ModeText,
			TextScore: s.Score,
		})
	}
	return out, nil
}

// graphSearch ranks entities by name relevance: substring and fuzzy
// similarity over the graph index.
func (r *Retriever) graphSearch(query string, topK int) []Result {
	matches := r.searcher.RelatedByName(query, topK)
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		out = append(out, Result{
			Entity:     m.Entity,
			Score:      m.Score,
			Mode:       ModeGraph,
			GraphScore: m.Score,
		})
	}
	return out
}

// structureHint maps a query keyword onto the entity kinds it implies.
type structureHint struct {
	word  string
	kinds []kg.EntityKind
}

var structureHints = []structureHint{
	{"file", []kg.EntityKind{kg.KindFile}},
	{"module", []kg.EntityKind{kg.KindFile}},
	{"script", []kg.EntityKind{kg.KindFile}},
	{"class", []kg.EntityKind{kg.KindClass}},
	{"object", []kg.EntityKind{kg.KindClass}},
	{"type", []kg.EntityKind{kg.KindClass}},
	{"function", []kg.EntityKind{kg.KindFunction, kg.KindMethod}},
	{"method", []kg.EntityKind{kg.KindFunction, kg.KindMethod}},
	{"def", []kg.EntityKind{kg.KindFunction, kg.KindMethod}},
}

// structureSearch interprets kind keywords in the query ("class", "file",
// "function", ...) and matches the remaining terms against names of
// entities of the hinted kinds. A query with no kind keyword yields
// nothing; a bare keyword lists every entity of that kind.
func (r *Retriever) structureSearch(query string, topK int) []Result {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}

	hinted := make(map[string]bool, len(structureHints))
	for _, h := range structureHints {
		hinted[h.word] = true
	}

	var kinds []kg.EntityKind
	seenKind := make(map[kg.EntityKind]bool)
	var remaining []string
	for _, w := range words {
		if !hinted[w] {
			remaining = append(remaining, w)
			continue
		}
		for _, h := range structureHints {
			if h.word != w {
				continue
			}
			for _, k := range h.kinds {
				if !seenKind[k] {
					seenKind[k] = true
					kinds = append(kinds, k)
				}
			}
		}
	}
	if len(kinds) == 0 {
		return nil
	}

	var out []Result
	for _, kind := range kinds {
		for _, e := range r.searcher.ByKind(kind) {
			if !nameContainsAll(e.Name, remaining) {
				continue
			}
			out = append(out, Result{Entity: e, Score: 1.0, Mode: ModeStructure})
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// hybridSearch fuses text and graph rankings. Each signal runs over twice
// the requested budget so that entities strong in only one signal still
// compete; agreement between the two independent signals earns a flat
// bonus on top of the weighted sum.
func (r *Retriever) hybridSearch(query string, topK int) ([]Result, error) {
	textResults, err := r.textSearch(query, topK*2)
	if err != nil {
		return nil, err
	}
	graphResults := r.graphSearch(query, topK*2)

	combined := make(map[string]*Result, len(textResults)+len(graphResults))
	for i := range textResults {
		tr := textResults[i]
		combined[tr.Entity.ID] = &Result{
			Entity:    tr.Entity,
			Score:     tr.TextScore * r.weights.Text,
			Mode:      ModeText,
			TextScore: tr.TextScore,
		}
	}
	for _, gr := range graphResults {
		if hit, ok := combined[gr.Entity.ID]; ok {
			hit.Score += gr.GraphScore*r.weights.Graph + r.weights.Agreement
			hit.GraphScore = gr.GraphScore
			hit.Mode = ModeHybrid
			continue
		}
		combined[gr.Entity.ID] = &Result{
			Entity:     gr.Entity,
			Score:      gr.GraphScore * r.weights.Graph,
			Mode:       ModeGraph,
			GraphScore: gr.GraphScore,
		}
	}

	out := make([]Result, 0, len(combined))
	for _, res := range combined {
		out = append(out, *res)
	}
	sortResults(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchByKind lists entities of one kind, optionally ranked by a name
// filter: a filter term contained in the name scores 1.0, a name word
// contained in the term scores 0.5. Without a filter every entity of the
// kind qualifies at full score.
func (r *Retriever) SearchByKind(kind kg.EntityKind, nameFilter string, topK int) []Result {
	if topK <= 0 {
		topK = r.topK
	}
	entities := r.searcher.ByKind(kind)
	terms := strings.Fields(strings.ToLower(nameFilter))

	var out []Result
	for _, e := range entities {
		score := 1.0
		if len(terms) > 0 {
			score = scoreName(e.Name, terms)
			if score == 0 {
				continue
			}
		}
		out = append(out, Result{Entity: e, Score: score, Mode: ModeStructure})
	}
	sortResults(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// scoreName scores a name against filter terms: +1.0 per term found inside
// the name, else +0.5 when one of the name's underscore-separated words is
// itself contained in the term (so "userprofile" still credits a name like
// "user_profile_view").
func scoreName(name string, terms []string) float64 {
	lower := strings.ToLower(name)
	words := strings.Split(lower, "_")

	score := 0.0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score += 1.0
			continue
		}
		for _, w := range words {
			if w != "" && strings.Contains(term, w) {
				score += 0.5
				break
			}
		}
	}
	return score
}

// RelatedEntities returns the neighborhood slice named by relation, sorted
// by entity id and capped at max. Unknown relations produce an empty
// result with a logged diagnostic.
func (r *Retriever) RelatedEntities(id string, relation Relation, max int) []Result {
	if max <= 0 {
		max = r.topK
	}

	related := make(map[string]*kg.Entity)
	add := func(es []*kg.Entity) {
		for _, e := range es {
			related[e.ID] = e
		}
	}

	switch relation {
	case RelationAll, RelationDependencies, RelationDependents, RelationContained, RelationContainer:
	default:
		r.log.Warn("unsupported relation", map[string]interface{}{
			"relation": string(relation),
			"entity":   id,
		})
		return nil
	}

	if relation == RelationAll || relation == RelationDependencies {
		for _, es := range r.searcher.Dependencies(id) {
			add(es)
		}
	}
	if relation == RelationAll || relation == RelationDependents {
		for _, es := range r.searcher.Dependents(id) {
			add(es)
		}
	}
	if relation == RelationAll || relation == RelationContained {
		add(r.searcher.Contains(id))
	}
	if relation == RelationAll || relation == RelationContainer {
		if parent, ok := r.searcher.ContainedBy(id); ok {
			add([]*kg.Entity{parent})
		}
	}

	ids := make([]string, 0, len(related))
	for rid := range related {
		ids = append(ids, rid)
	}
	sort.Strings(ids)
	if len(ids) > max {
		ids = ids[:max]
	}

	out := make([]Result, 0, len(ids))
	for _, rid := range ids {
		out = append(out, Result{Entity: related[rid], Score: 1.0, Mode: ModeGraph})
	}
	return out
}

// sortResults orders by score descending, entity id ascending on ties.
func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].Entity.ID < rs[j].Entity.ID
	})
}

// nameContainsAll reports whether every term appears in the name,
// case-insensitively. No terms means an unconditional match.
func nameContainsAll(name string, terms []string) bool {
	lower := strings.ToLower(name)
	for _, t := range terms {
		if !strings.Contains(lower, t) {
			return false
		}
	}
	return true
}
