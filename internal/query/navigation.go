package query

import (
	"context"
	"time"

	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/retrieval"
)

// EntityDetails is the full dossier for one entity: the entity itself plus
// its immediate neighborhood. Dependencies and dependents group the
// non-containment edges by relationship kind; containment is reported
// separately because it forms the structural tree.
type EntityDetails struct {
	Entity       *kg.Entity                           `json:"entity"`
	Dependencies map[kg.RelationshipKind][]kg.Summary `json:"dependencies,omitempty"`
	Dependents   map[kg.RelationshipKind][]kg.Summary `json:"dependents,omitempty"`
	Contained    []kg.Summary                         `json:"contained,omitempty"`
	Container    *kg.Summary                          `json:"container,omitempty"`
	Provenance   Provenance                           `json:"provenance"`
}

// EntityDetails looks up one entity by id and assembles its neighborhood.
// Unknown ids surface as ENTITY_NOT_FOUND.
func (e *Engine) EntityDetails(ctx context.Context, id string) (*EntityDetails, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	entity, ok := snap.Graph.Entity(id)
	if !ok {
		return nil, locuserrors.NewEntityNotFound(id)
	}

	details := &EntityDetails{
		Entity:       entity,
		Dependencies: summarizeGrouped(snap.Searcher.Dependencies(id)),
		Dependents:   summarizeGrouped(snap.Searcher.Dependents(id)),
		Contained:    summarizeAll(snap.Searcher.Contains(id)),
	}
	if container, ok := snap.Searcher.ContainedBy(id); ok {
		s := container.Summarize()
		details.Container = &s
	}
	details.Provenance = e.buildProvenance(snap, start)
	return details, nil
}

// FileEntitiesResponse lists every entity located in one file.
type FileEntitiesResponse struct {
	Path       string       `json:"path"`
	Entities   []kg.Summary `json:"entities"`
	Provenance Provenance   `json:"provenance"`
}

// EntitiesInFile returns the entities in a file ordered by start line. The
// path may be absolute or repo-relative; a file the index does not know
// yields an empty list, not an error.
func (e *Engine) EntitiesInFile(ctx context.Context, path string) (*FileEntitiesResponse, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := e.repoRelative(path)
	if err != nil {
		return nil, err
	}
	snap, err := e.current()
	if err != nil {
		return nil, err
	}

	return &FileEntitiesResponse{
		Path:       rel,
		Entities:   summarizeAll(snap.Searcher.FileEntities(rel)),
		Provenance: e.buildProvenance(snap, start),
	}, nil
}

// RelatedResponse carries one slice of an entity's neighborhood.
type RelatedResponse struct {
	EntityID   string             `json:"entityId"`
	Relation   retrieval.Relation `json:"relation"`
	Results    []SearchResult     `json:"results"`
	Provenance Provenance         `json:"provenance"`
}

// RelatedEntities returns entities connected to id, filtered to one
// relation slice. max caps the result; values at or below zero fall back
// to the configured topK.
func (e *Engine) RelatedEntities(ctx context.Context, id, relation string, max int) (*RelatedResponse, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, ok := retrieval.ParseRelation(relation)
	if !ok {
		return nil, locuserrors.NewUnsupportedMode(relation)
	}
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	if _, found := snap.Graph.Entity(id); !found {
		return nil, locuserrors.NewEntityNotFound(id)
	}

	return &RelatedResponse{
		EntityID:   id,
		Relation:   rel,
		Results:    toSearchResults(snap.Retriever.RelatedEntities(id, rel, max), nil),
		Provenance: e.buildProvenance(snap, start),
	}, nil
}

func summarizeGrouped(groups map[kg.RelationshipKind][]*kg.Entity) map[kg.RelationshipKind][]kg.Summary {
	if len(groups) == 0 {
		return nil
	}
	out := make(map[kg.RelationshipKind][]kg.Summary, len(groups))
	for kind, entities := range groups {
		out[kind] = summarizeAll(entities)
	}
	return out
}

func summarizeAll(entities []*kg.Entity) []kg.Summary {
	if len(entities) == 0 {
		return nil
	}
	out := make([]kg.Summary, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Summarize())
	}
	return out
}
