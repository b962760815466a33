// Package kg defines the knowledge-graph data model: typed, located entities,
// directed relationships between them, and the arena graph that owns both.
package kg

import (
	"fmt"
	"strings"
)

// EntityKind classifies a unit of source structure.
type EntityKind string

const (
	KindDirectory EntityKind = "directory"
	KindFile      EntityKind = "file"
	KindModule    EntityKind = "module"
	KindClass     EntityKind = "class"
	KindFunction  EntityKind = "function"
	KindMethod    EntityKind = "method"
	KindVariable  EntityKind = "variable"
	KindConstant  EntityKind = "constant"
	KindImport    EntityKind = "import"
	KindInterface EntityKind = "interface"
	KindEnum      EntityKind = "enum"

	// Markup kinds for non-code file types
	KindHeading     EntityKind = "heading"
	KindLink        EntityKind = "link"
	KindCodeBlock   EntityKind = "code_block"
	KindTextSection EntityKind = "text_section"
	KindCSSRule     EntityKind = "css_rule"
	KindCSSSelector EntityKind = "css_selector"
	KindCSSProperty EntityKind = "css_property"
	KindHTMLElement EntityKind = "html_element"
)

// AllEntityKinds lists every kind. Order is stable for serialization and stats.
var AllEntityKinds = []EntityKind{
	KindDirectory, KindFile, KindModule, KindClass, KindFunction, KindMethod,
	KindVariable, KindConstant, KindImport, KindInterface, KindEnum,
	KindHeading, KindLink, KindCodeBlock, KindTextSection,
	KindCSSRule, KindCSSSelector, KindCSSProperty, KindHTMLElement,
}

// ParseEntityKind maps a string to an EntityKind.
func ParseEntityKind(s string) (EntityKind, bool) {
	k := EntityKind(strings.ToLower(s))
	for _, known := range AllEntityKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Entity is a located, typed piece of source structure.
type Entity struct {
	ID        string            `json:"id"`
	Kind      EntityKind        `json:"kind"`
	Name      string            `json:"name"`
	Path      string            `json:"path"` // repo-relative, forward slashes
	StartLine int               `json:"startLine"`
	EndLine   int               `json:"endLine"`
	Docstring string            `json:"docstring,omitempty"`
	Snippet   string            `json:"snippet,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float64         `json:"embedding,omitempty"` // opaque to this engine
}

// EntityID derives the stable identifier for an entity. Re-parsing the same
// unchanged file reproduces the same identifier.
func EntityID(kind EntityKind, path, name string, startLine int) string {
	return fmt.Sprintf("%s:%s:%s:%d", kind, path, name, startLine)
}

// NewEntity constructs an entity with its derived identifier.
func NewEntity(kind EntityKind, path, name string, startLine, endLine int) *Entity {
	return &Entity{
		ID:        EntityID(kind, path, name, startLine),
		Kind:      kind,
		Name:      name,
		Path:      path,
		StartLine: startLine,
		EndLine:   endLine,
	}
}

// Validate applies the parser post-condition: non-empty name and path,
// end line not before start line. Invalid entities are dropped by callers,
// never corrected.
func (e *Entity) Validate() error {
	if e == nil {
		return fmt.Errorf("nil entity")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity %s has empty name", e.ID)
	}
	if strings.TrimSpace(e.Path) == "" {
		return fmt.Errorf("entity %s has empty path", e.ID)
	}
	if e.EndLine < e.StartLine {
		return fmt.Errorf("entity %s has endLine %d before startLine %d", e.ID, e.EndLine, e.StartLine)
	}
	return nil
}

// SetMeta attaches a metadata key, allocating the map on first use.
func (e *Entity) SetMeta(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}

// Meta returns a metadata value and whether it was set.
func (e *Entity) Meta(key string) (string, bool) {
	if e.Metadata == nil {
		return "", false
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// IsCode reports whether the entity kind comes from a programming language
// rather than markup.
func (k EntityKind) IsCode() bool {
	switch k {
	case KindHeading, KindLink, KindCodeBlock, KindTextSection,
		KindCSSRule, KindCSSSelector, KindCSSProperty, KindHTMLElement:
		return false
	}
	return true
}

// Summary is the compact entity view returned in search results.
type Summary struct {
	ID        string     `json:"id"`
	Kind      EntityKind `json:"kind"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	StartLine int        `json:"startLine"`
	EndLine   int        `json:"endLine"`
	Docstring string     `json:"docstring,omitempty"`
}

// Summarize produces the compact view of an entity.
func (e *Entity) Summarize() Summary {
	doc := e.Docstring
	if len(doc) > 200 {
		doc = doc[:200]
	}
	return Summary{
		ID:        e.ID,
		Kind:      e.Kind,
		Name:      e.Name,
		Path:      e.Path,
		StartLine: e.StartLine,
		EndLine:   e.EndLine,
		Docstring: doc,
	}
}
