package kg

import "testing"

func statsFixture(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()

	files := []string{"src/a.py", "src/b.py", "src/c.py"}
	for _, p := range files {
		f := NewEntity(KindFile, p, p[len("src/"):], 1, 50)
		if err := g.AddEntity(f); err != nil {
			t.Fatal(err)
		}
	}
	fn := NewEntity(KindFunction, "src/a.py", "run", 5, 20)
	if err := g.AddEntity(fn); err != nil {
		t.Fatal(err)
	}
	return g
}

func fileID(p string) string {
	return EntityID(KindFile, p, p[len("src/"):], 1)
}

func TestComputeStats(t *testing.T) {
	g := statsFixture(t)

	edges := []*Relationship{
		NewRelationship(RelImports, fileID("src/a.py"), fileID("src/b.py")),
		NewRelationship(RelImports, fileID("src/b.py"), fileID("src/c.py")),
		NewRelationship(RelContains, fileID("src/a.py"), EntityID(KindFunction, "src/a.py", "run", 5)),
	}
	for _, r := range edges {
		if err := g.AddRelationship(r); err != nil {
			t.Fatal(err)
		}
	}

	s := g.ComputeStats(2)
	if s.EntityCount != 4 {
		t.Errorf("EntityCount = %d, want 4", s.EntityCount)
	}
	if s.RelationshipCount != 3 {
		t.Errorf("RelationshipCount = %d, want 3", s.RelationshipCount)
	}
	if s.FileCount != 3 {
		t.Errorf("FileCount = %d, want 3", s.FileCount)
	}
	if s.EntitiesByKind["file"] != 3 || s.EntitiesByKind["function"] != 1 {
		t.Errorf("EntitiesByKind = %v", s.EntitiesByKind)
	}
	if s.EdgesByKind["IMPORTS"] != 2 || s.EdgesByKind["CONTAINS"] != 1 {
		t.Errorf("EdgesByKind = %v", s.EdgesByKind)
	}

	if len(s.MostConnected) != 2 {
		t.Fatalf("MostConnected truncation failed: %d entries", len(s.MostConnected))
	}
	if s.MostConnected[0].Degree < s.MostConnected[1].Degree {
		t.Error("MostConnected not sorted by degree")
	}
}

func TestCircularDependencies(t *testing.T) {
	g := statsFixture(t)

	// a -> b -> c -> a forms a cycle; the CONTAINS edge must not count
	edges := []*Relationship{
		NewRelationship(RelImports, fileID("src/a.py"), fileID("src/b.py")),
		NewRelationship(RelImports, fileID("src/b.py"), fileID("src/c.py")),
		NewRelationship(RelImports, fileID("src/c.py"), fileID("src/a.py")),
		NewRelationship(RelContains, fileID("src/a.py"), EntityID(KindFunction, "src/a.py", "run", 5)),
	}
	for _, r := range edges {
		if err := g.AddRelationship(r); err != nil {
			t.Fatal(err)
		}
	}

	cycles := g.CircularDependencies()
	if len(cycles) != 1 {
		t.Fatalf("found %d cycles, want 1: %v", len(cycles), cycles)
	}
	if len(cycles[0]) != 3 {
		t.Errorf("cycle has %d members, want 3", len(cycles[0]))
	}
	for i := 1; i < len(cycles[0]); i++ {
		if cycles[0][i-1] >= cycles[0][i] {
			t.Error("cycle members should be sorted for stable output")
		}
	}
}

func TestCircularDependenciesNone(t *testing.T) {
	g := statsFixture(t)

	// Straight chain, no cycle
	edges := []*Relationship{
		NewRelationship(RelImports, fileID("src/a.py"), fileID("src/b.py")),
		NewRelationship(RelImports, fileID("src/b.py"), fileID("src/c.py")),
	}
	for _, r := range edges {
		if err := g.AddRelationship(r); err != nil {
			t.Fatal(err)
		}
	}

	if cycles := g.CircularDependencies(); len(cycles) != 0 {
		t.Errorf("chain reported cycles: %v", cycles)
	}
}

func TestCircularDependenciesSelfLoop(t *testing.T) {
	g := statsFixture(t)

	// A self import is real in some ecosystems but is not a multi-node cycle
	r := NewRelationship(RelImports, fileID("src/a.py"), fileID("src/a.py"))
	if err := g.AddRelationship(r); err != nil {
		t.Fatal(err)
	}

	if cycles := g.CircularDependencies(); len(cycles) != 0 {
		t.Errorf("self loop should not be reported as a component: %v", cycles)
	}
}

func TestFindEntities(t *testing.T) {
	g := statsFixture(t)

	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{"suffix glob", "*.py", 3},
		{"prefix glob", "a*", 1},
		{"exact name", "run", 1},
		{"no match", "*.md", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.FindEntities(tt.pattern)
			if err != nil {
				t.Fatalf("FindEntities(%q): %v", tt.pattern, err)
			}
			if len(got) != tt.want {
				t.Errorf("FindEntities(%q) returned %d, want %d", tt.pattern, len(got), tt.want)
			}
		})
	}

	if _, err := g.FindEntities("[unclosed"); err == nil {
		t.Error("malformed pattern should return an error")
	}
}
