package kg

import (
	"fmt"
	"strings"
)

// RelationshipKind classifies a directed edge between two entities.
type RelationshipKind string

const (
	RelContains   RelationshipKind = "CONTAINS"
	RelImports    RelationshipKind = "IMPORTS"
	RelInherits   RelationshipKind = "INHERITS"
	RelImplements RelationshipKind = "IMPLEMENTS"
	RelCalls      RelationshipKind = "CALLS"
	RelUses       RelationshipKind = "USES"
	RelReferences RelationshipKind = "REFERENCES"
	RelStyles     RelationshipKind = "STYLES"
	RelScripts    RelationshipKind = "SCRIPTS"
	RelDocuments  RelationshipKind = "DOCUMENTS"
	RelDependsOn  RelationshipKind = "DEPENDS_ON"
)

// AllRelationshipKinds lists every kind in stable order.
var AllRelationshipKinds = []RelationshipKind{
	RelContains, RelImports, RelInherits, RelImplements, RelCalls,
	RelUses, RelReferences, RelStyles, RelScripts, RelDocuments, RelDependsOn,
}

// ParseRelationshipKind maps a string to a RelationshipKind.
func ParseRelationshipKind(s string) (RelationshipKind, bool) {
	k := RelationshipKind(strings.ToUpper(s))
	for _, known := range AllRelationshipKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Relationship is a directed, typed edge between two entity identifiers.
type Relationship struct {
	ID         string            `json:"id"`
	Kind       RelationshipKind  `json:"kind"`
	SourceID   string            `json:"sourceId"`
	TargetID   string            `json:"targetId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Confidence float64           `json:"confidence"`
}

// RelationshipID derives the stable identifier for an edge. Duplicate
// discovery of the same edge is idempotent because the identifier repeats.
func RelationshipID(kind RelationshipKind, sourceID, targetID string) string {
	return fmt.Sprintf("%s->%s->%s", sourceID, kind, targetID)
}

// NewRelationship constructs an edge with its derived identifier and the
// default confidence of 1.0.
func NewRelationship(kind RelationshipKind, sourceID, targetID string) *Relationship {
	return &Relationship{
		ID:         RelationshipID(kind, sourceID, targetID),
		Kind:       kind,
		SourceID:   sourceID,
		TargetID:   targetID,
		Confidence: 1.0,
	}
}

// WithConfidence sets a confidence score, clamped into [0,1].
func (r *Relationship) WithConfidence(c float64) *Relationship {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	r.Confidence = c
	return r
}

// Validate checks structural integrity of the edge itself (endpoint existence
// is the graph's concern at insertion time).
func (r *Relationship) Validate() error {
	if r == nil {
		return fmt.Errorf("nil relationship")
	}
	if r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("relationship %s has empty endpoint", r.ID)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("relationship %s confidence %f outside [0,1]", r.ID, r.Confidence)
	}
	return nil
}

// SetMeta attaches a metadata key, allocating the map on first use.
func (r *Relationship) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}
