package kg

import (
	"sort"

	"github.com/gobwas/glob"
)

// Stats summarizes a graph for status output and build reports.
type Stats struct {
	EntityCount       int                      `json:"entityCount"`
	RelationshipCount int                      `json:"relationshipCount"`
	FileCount         int                      `json:"fileCount"`
	EntitiesByKind    map[EntityKind]int       `json:"entitiesByKind"`
	EdgesByKind       map[RelationshipKind]int `json:"edgesByKind"`
	MostConnected     []DegreeEntry            `json:"mostConnected,omitempty"`
}

// DegreeEntry pairs an entity with its total degree.
type DegreeEntry struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
	Degree   int    `json:"degree"`
}

// ComputeStats walks the graph once and aggregates counts. topConnected
// bounds the MostConnected list (0 disables it).
func (g *Graph) ComputeStats(topConnected int) Stats {
	s := Stats{
		EntityCount:       len(g.entities),
		RelationshipCount: len(g.relationships),
		EntitiesByKind:    make(map[EntityKind]int),
		EdgesByKind:       make(map[RelationshipKind]int),
	}
	for _, e := range g.entities {
		s.EntitiesByKind[e.Kind]++
		if e.Kind == KindFile {
			s.FileCount++
		}
	}
	for _, r := range g.relationships {
		s.EdgesByKind[r.Kind]++
	}

	if topConnected > 0 {
		entries := make([]DegreeEntry, 0, len(g.entities))
		for id, e := range g.entities {
			deg := len(g.outgoing[id]) + len(g.incoming[id])
			if deg == 0 {
				continue
			}
			entries = append(entries, DegreeEntry{EntityID: id, Name: e.Name, Degree: deg})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Degree != entries[j].Degree {
				return entries[i].Degree > entries[j].Degree
			}
			return entries[i].EntityID < entries[j].EntityID
		})
		if len(entries) > topConnected {
			entries = entries[:topConnected]
		}
		s.MostConnected = entries
	}
	return s
}

// CircularDependencies finds strongly connected components of size > 1 over
// dependency-bearing edges (IMPORTS, DEPENDS_ON). Each component is returned
// as a sorted id slice; components themselves are sorted by first member.
func (g *Graph) CircularDependencies() [][]string {
	adj := make(map[string][]string)
	for _, r := range g.relationships {
		if r.Kind != RelImports && r.Kind != RelDependsOn {
			continue
		}
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
	}

	// Iterative Tarjan; recursion depth on large repos is not acceptable.
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var components [][]string

	type frame struct {
		node  string
		child int
	}

	var strongConnect func(start string)
	strongConnect = func(start string) {
		frames := []frame{{node: start}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.node
			if f.child == 0 {
				indices[v] = index
				lowlink[v] = index
				index++
				stack = append(stack, v)
				onStack[v] = true
			}
			advanced := false
			for f.child < len(adj[v]) {
				w := adj[v][f.child]
				f.child++
				if _, seen := indices[w]; !seen {
					frames = append(frames, frame{node: w})
					advanced = true
					break
				} else if onStack[w] {
					if indices[w] < lowlink[v] {
						lowlink[v] = indices[w]
					}
				}
			}
			if advanced {
				continue
			}
			// v finished
			if lowlink[v] == indices[v] {
				var comp []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				if len(comp) > 1 {
					sort.Strings(comp)
					components = append(components, comp)
				}
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}

	nodes := make([]string, 0, len(adj))
	for v := range adj {
		nodes = append(nodes, v)
	}
	sort.Strings(nodes)
	for _, v := range nodes {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}

// FindEntities returns entities whose name matches the glob pattern,
// sorted by id. An invalid pattern yields no matches and the error.
func (g *Graph) FindEntities(pattern string) ([]*Entity, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []*Entity
	for _, e := range g.entities {
		if matcher.Match(e.Name) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
