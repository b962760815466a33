package kg

import (
	"encoding/json"
	"sort"

	locuserrors "locus/internal/errors"
)

// Graph owns the full entity and relationship set for one repository
// snapshot. It is a directed multigraph: two entities may be connected by
// several relationships of different kinds. Construction is single-writer;
// once a build materializes the graph it is treated as immutable by readers
// (exception: RemoveFileEntities, used only by whole-file re-analysis before
// indices are rebuilt).
type Graph struct {
	entities      map[string]*Entity
	relationships map[string]*Relationship
	outgoing      map[string][]string // entity id -> relationship ids
	incoming      map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
		outgoing:      make(map[string][]string),
		incoming:      make(map[string][]string),
	}
}

// AddEntity inserts or replaces an entity. Invalid entities are rejected.
func (g *Graph) AddEntity(e *Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	g.entities[e.ID] = e
	return nil
}

// AddRelationship inserts an edge. Both endpoints must already exist;
// an edge referencing a missing entity is rejected outright, never
// partially applied. Re-adding an edge with the same derived identifier
// replaces the stored edge without duplicating it, which makes repeated
// discovery idempotent.
func (g *Graph) AddRelationship(r *Relationship) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := g.entities[r.SourceID]; !ok {
		return locuserrors.NewRelationshipIntegrity(r.ID, r.SourceID)
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return locuserrors.NewRelationshipIntegrity(r.ID, r.TargetID)
	}
	if _, exists := g.relationships[r.ID]; exists {
		g.relationships[r.ID] = r
		return nil
	}
	g.relationships[r.ID] = r
	g.outgoing[r.SourceID] = append(g.outgoing[r.SourceID], r.ID)
	g.incoming[r.TargetID] = append(g.incoming[r.TargetID], r.ID)
	return nil
}

// Entity returns the entity for an id.
func (g *Graph) Entity(id string) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Relationship returns the relationship for an id.
func (g *Graph) Relationship(id string) (*Relationship, bool) {
	r, ok := g.relationships[id]
	return r, ok
}

// Outgoing returns all edges whose source is id.
func (g *Graph) Outgoing(id string) []*Relationship {
	return g.edges(g.outgoing[id])
}

// Incoming returns all edges whose target is id.
func (g *Graph) Incoming(id string) []*Relationship {
	return g.edges(g.incoming[id])
}

func (g *Graph) edges(ids []string) []*Relationship {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Relationship, 0, len(ids))
	for _, id := range ids {
		if r, ok := g.relationships[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of entities.
func (g *Graph) Len() int { return len(g.entities) }

// EdgeLen returns the number of relationships.
func (g *Graph) EdgeLen() int { return len(g.relationships) }

// EntityIDs returns all entity ids sorted, for deterministic iteration.
func (g *Graph) EntityIDs() []string {
	ids := make([]string, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RelationshipIDs returns all relationship ids sorted.
func (g *Graph) RelationshipIDs() []string {
	ids := make([]string, 0, len(g.relationships))
	for id := range g.relationships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entities iterates every entity in unspecified order.
func (g *Graph) Entities() map[string]*Entity { return g.entities }

// Relationships iterates every relationship in unspecified order.
func (g *Graph) Relationships() map[string]*Relationship { return g.relationships }

// EntitiesByPath returns all entities located in the given file path.
func (g *Graph) EntitiesByPath(path string) []*Entity {
	var out []*Entity
	for _, e := range g.entities {
		if e.Path == path {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RemoveFileEntities removes every non-directory entity located at path
// together with all incident relationships. This is the only supported
// partial mutation: whole-file removal before re-parsing that file.
// Returns the number of removed entities.
func (g *Graph) RemoveFileEntities(path string) int {
	var doomed []string
	for id, e := range g.entities {
		if e.Path == path && e.Kind != KindDirectory {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		g.removeEntity(id)
	}
	return len(doomed)
}

func (g *Graph) removeEntity(id string) {
	relIDs := make([]string, 0, len(g.outgoing[id])+len(g.incoming[id]))
	relIDs = append(relIDs, g.outgoing[id]...)
	relIDs = append(relIDs, g.incoming[id]...)
	for _, rid := range relIDs {
		g.removeRelationship(rid)
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)
	delete(g.entities, id)
}

func (g *Graph) removeRelationship(id string) {
	r, ok := g.relationships[id]
	if !ok {
		return
	}
	g.outgoing[r.SourceID] = removeString(g.outgoing[r.SourceID], id)
	g.incoming[r.TargetID] = removeString(g.incoming[r.TargetID], id)
	delete(g.relationships, id)
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Clone copies the graph's topology. Entity and relationship values are
// shared, not copied: they are never mutated in place after construction,
// so a clone may be edited with RemoveFileEntities and AddEntity without
// touching the original. This is what makes whole-file re-analysis safe
// while readers hold the previous snapshot.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		entities:      make(map[string]*Entity, len(g.entities)),
		relationships: make(map[string]*Relationship, len(g.relationships)),
		outgoing:      make(map[string][]string, len(g.outgoing)),
		incoming:      make(map[string][]string, len(g.incoming)),
	}
	for id, e := range g.entities {
		c.entities[id] = e
	}
	for id, r := range g.relationships {
		c.relationships[id] = r
	}
	for id, rels := range g.outgoing {
		c.outgoing[id] = append([]string(nil), rels...)
	}
	for id, rels := range g.incoming {
		c.incoming[id] = append([]string(nil), rels...)
	}
	return c
}

// graphJSON is the serialized snapshot form: flat sorted slices, so the
// round-trip is byte-stable for an unchanged graph.
type graphJSON struct {
	Entities      []*Entity       `json:"entities"`
	Relationships []*Relationship `json:"relationships"`
}

// MarshalJSON serializes the graph deterministically.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{
		Entities:      make([]*Entity, 0, len(g.entities)),
		Relationships: make([]*Relationship, 0, len(g.relationships)),
	}
	for _, id := range g.EntityIDs() {
		out.Entities = append(out.Entities, g.entities[id])
	}
	for _, id := range g.RelationshipIDs() {
		out.Relationships = append(out.Relationships, g.relationships[id])
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the arena and adjacency maps from the flat form.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var in graphJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	g.entities = make(map[string]*Entity, len(in.Entities))
	g.relationships = make(map[string]*Relationship, len(in.Relationships))
	g.outgoing = make(map[string][]string)
	g.incoming = make(map[string][]string)
	for _, e := range in.Entities {
		if err := g.AddEntity(e); err != nil {
			return err
		}
	}
	for _, r := range in.Relationships {
		if err := g.AddRelationship(r); err != nil {
			return err
		}
	}
	return nil
}
