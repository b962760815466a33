// Package retrieval ranks knowledge-graph entities against free-form
// queries. It carries two independent signals: an Okapi BM25 index over
// per-entity document text (the lexical signal) and name-based relevance
// over the graph index (the structural signal), fused by the hybrid
// retriever. Both indices are built once after a graph build and shared
// read-only by concurrent queries.
package retrieval

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	locuserrors "locus/internal/errors"
	"locus/internal/kg"
)

const (
	// DefaultK1 and DefaultB are the standard Okapi BM25 parameters.
	DefaultK1 = 1.2
	DefaultB  = 0.75

	// DefaultTopK bounds result sets when the caller passes no limit.
	DefaultTopK = 10

	// filePrefixLines caps how much file content feeds a FILE entity's
	// document. Names and docstrings carry most of the signal; the prefix
	// only picks up imports and top-level declarations.
	filePrefixLines = 50
)

// Scored pairs an entity id with its BM25 score.
type Scored struct {
	EntityID string
	Score    float64
}

// BM25 is a serializable lexical index over entity documents. Build it once
// from a completed graph; afterwards it is read-only and safe for concurrent
// queries. Querying before Build (or a snapshot load) fails loudly so an
// uninitialized index can never masquerade as an empty corpus.
type BM25 struct {
	k1 float64
	b  float64

	documents  map[string]string         // entity id -> synthesized text
	docLengths map[string]int            // entity id -> token count
	docTerms   map[string]map[string]int // entity id -> term frequencies
	df         map[string]int            // term -> document frequency
	idf        map[string]float64
	avgDocLen  float64
	built      bool
}

// NewBM25 creates an empty index. Non-positive parameters fall back to the
// standard k1 = 1.2 and b = 0.75.
func NewBM25(k1, b float64) *BM25 {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b <= 0 {
		b = DefaultB
	}
	return &BM25{k1: k1, b: b}
}

// Build synthesizes one document per entity and computes the corpus
// statistics in a single pass: per-document length, document frequency,
// average length and IDF. root locates the repository for FILE content
// prefixes; with an empty root only names, docstrings and metadata are
// indexed. Entities whose document comes out empty are not indexed.
func (x *BM25) Build(g *kg.Graph, root string) {
	x.documents = make(map[string]string)
	x.docLengths = make(map[string]int)
	x.docTerms = make(map[string]map[string]int)
	x.df = make(map[string]int)
	x.idf = make(map[string]float64)
	x.avgDocLen = 0

	for _, id := range g.EntityIDs() {
		e, ok := g.Entity(id)
		if !ok {
			continue
		}
		if text := documentText(e, root); text != "" {
			x.documents[id] = text
		}
	}
	x.recompute()
	x.built = true
}

// recompute derives lengths, frequencies and IDF from x.documents.
func (x *BM25) recompute() {
	total := 0
	for id, text := range x.documents {
		tokens := tokenize(text)
		x.docLengths[id] = len(tokens)
		total += len(tokens)

		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok]++
		}
		x.docTerms[id] = counts
		for term := range counts {
			x.df[term]++
		}
	}
	if len(x.documents) > 0 {
		x.avgDocLen = float64(total) / float64(len(x.documents))
	}

	n := float64(len(x.documents))
	for term, df := range x.df {
		x.idf[term] = math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
	}
}

// Query scores every document against the tokenized query and returns the
// topK strongest, best first. Documents scoring zero or below are excluded,
// so a query with no lexical overlap yields an empty result. Returns
// IndexNotBuilt when called before Build.
func (x *BM25) Query(query string, topK int) ([]Scored, error) {
	if !x.built {
		return nil, locuserrors.NewIndexNotBuilt("bm25")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var scored []Scored
	for id := range x.documents {
		if s := x.score(terms, id); s > 0 {
			scored = append(scored, Scored{EntityID: id, Score: s})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].EntityID < scored[j].EntityID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// score sums the per-term BM25 contribution over terms present in doc id.
func (x *BM25) score(terms []string, id string) float64 {
	counts := x.docTerms[id]
	if len(counts) == 0 {
		return 0
	}
	docLen := float64(x.docLengths[id])

	total := 0.0
	for _, term := range terms {
		tf := float64(counts[term])
		if tf == 0 {
			continue
		}
		idf := x.idf[term]
		numerator := tf * (x.k1 + 1)
		denominator := tf + x.k1*(1-x.b+x.b*(docLen/x.avgDocLen))
		total += idf * (numerator / denominator)
	}
	return total
}

// Built reports whether the index is queryable.
func (x *BM25) Built() bool { return x.built }

// DocCount returns the number of indexed documents.
func (x *BM25) DocCount() int { return len(x.documents) }

// AvgDocLength returns the mean token count across documents.
func (x *BM25) AvgDocLength() float64 { return x.avgDocLen }

// DocumentText returns the synthesized text indexed for an entity.
func (x *BM25) DocumentText(id string) (string, bool) {
	text, ok := x.documents[id]
	return text, ok
}

// IndexSnapshot is the serialized form of a built index: raw documents plus
// the corpus statistics. Term frequencies are recomputed from the documents
// on restore, which reproduces identical scores because tokenization is
// deterministic.
type IndexSnapshot struct {
	K1           float64            `json:"k1"`
	B            float64            `json:"b"`
	Documents    map[string]string  `json:"documents"`
	DocLengths   map[string]int     `json:"docLengths"`
	DocFrequency map[string]int     `json:"docFrequency"`
	IDF          map[string]float64 `json:"idf"`
	AvgDocLength float64            `json:"avgDocLength"`
}

// Snapshot exports the state of a built index for persistence.
func (x *BM25) Snapshot() (*IndexSnapshot, error) {
	if !x.built {
		return nil, locuserrors.NewIndexNotBuilt("bm25")
	}
	return &IndexSnapshot{
		K1:           x.k1,
		B:            x.b,
		Documents:    x.documents,
		DocLengths:   x.docLengths,
		DocFrequency: x.df,
		IDF:          x.idf,
		AvgDocLength: x.avgDocLen,
	}, nil
}

// Restore rebuilds an index from a persisted snapshot without touching the
// repository. The returned index is immediately queryable.
func Restore(snap *IndexSnapshot) *BM25 {
	x := &BM25{}
	x.restore(snap)
	return x
}

func (x *BM25) restore(snap *IndexSnapshot) {
	x.k1 = snap.K1
	x.b = snap.B
	if x.k1 <= 0 {
		x.k1 = DefaultK1
	}
	if x.b <= 0 {
		x.b = DefaultB
	}
	x.documents = snap.Documents
	if x.documents == nil {
		x.documents = make(map[string]string)
	}
	x.docLengths = snap.DocLengths
	if x.docLengths == nil {
		x.docLengths = make(map[string]int)
	}
	x.df = snap.DocFrequency
	if x.df == nil {
		x.df = make(map[string]int)
	}
	x.idf = snap.IDF
	if x.idf == nil {
		x.idf = make(map[string]float64)
	}
	x.avgDocLen = snap.AvgDocLength

	x.docTerms = make(map[string]map[string]int, len(x.documents))
	for id, text := range x.documents {
		tokens := tokenize(text)
		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok]++
		}
		x.docTerms[id] = counts
	}
	x.built = true
}

// MarshalJSON serializes the built index.
func (x *BM25) MarshalJSON() ([]byte, error) {
	snap, err := x.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// UnmarshalJSON restores a serialized index.
func (x *BM25) UnmarshalJSON(data []byte) error {
	var snap IndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	x.restore(&snap)
	return nil
}

// documentText synthesizes the searchable text for one entity: its name,
// its docstring, its declared parameters and, for FILE entities, a comment
// stripped prefix of the file itself.
func documentText(e *kg.Entity, root string) string {
	var parts []string
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	if e.Docstring != "" {
		parts = append(parts, e.Docstring)
	}
	if params, ok := e.Meta("parameters"); ok && params != "" {
		parts = append(parts, params)
	}
	if e.Kind == kg.KindFile && root != "" {
		if prefix := filePrefix(filepath.Join(root, filepath.FromSlash(e.Path))); prefix != "" {
			parts = append(parts, prefix)
		}
	}
	return strings.Join(parts, " ")
}

// filePrefix reads the first filePrefixLines lines of a file, drops blank
// and comment lines, and joins the rest with spaces. Unreadable files
// contribute nothing; indexing is best-effort.
func filePrefix(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > filePrefixLines {
		lines = lines[:filePrefixLines]
	}
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// tokenize lower-cases text, splits on every non-alphanumeric rune and
// drops single-character tokens. Identifiers therefore decompose at
// underscores and dots, so "render_user" matches a query for "user".
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			kept = append(kept, f)
		}
	}
	return kept
}
