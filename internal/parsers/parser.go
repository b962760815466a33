// Package parsers turns source files into knowledge-graph entities and
// relationships. Code languages go through tree-sitter grammars and require
// cgo; the markup parsers (markdown, HTML) are pure Go and register in every
// build.
package parsers

import (
	"context"

	"locus/internal/kg"
)

// ParseResult carries everything a parser found in one file. Relationships
// may only reference entities present in the same result; cross-file edges
// are the connector's job.
type ParseResult struct {
	Entities      []*kg.Entity
	Relationships []*kg.Relationship
}

// Parser extracts entities from a single source file.
//
// Parse receives the repo-relative path (used verbatim in entity ids) and the
// file content. Implementations must not read from disk and must not panic;
// the registry recovers panics at the boundary, but a panic is still a bug.
type Parser interface {
	// CanParse reports whether this parser understands the file at path.
	CanParse(path string) bool

	// Parse extracts entities and intra-file relationships.
	Parse(ctx context.Context, path string, source []byte) (*ParseResult, error)

	// SupportedKinds lists every entity kind this parser may emit.
	SupportedKinds() []kg.EntityKind
}

func emptyResult() *ParseResult {
	return &ParseResult{}
}

// countLines returns the 1-indexed number of the last line in source.
// An empty file still has one line so file-level entities stay valid.
func countLines(source []byte) int {
	if len(source) == 0 {
		return 1
	}
	n := 1
	for _, b := range source {
		if b == '\n' {
			n++
		}
	}
	if source[len(source)-1] == '\n' {
		n--
		if n < 1 {
			n = 1
		}
	}
	return n
}
