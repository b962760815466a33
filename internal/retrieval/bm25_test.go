package retrieval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	locuserrors "locus/internal/errors"
	"locus/internal/kg"
)

// corpusGraph builds a small graph with docstrings: a user model class with
// one method, a connection helper, and a render function in a second file.
func corpusGraph(t *testing.T) *kg.Graph {
	t.Helper()
	g := kg.NewGraph()

	fileA := kg.NewEntity(kg.KindFile, "app/models.py", "models.py", 1, 40)
	cls := kg.NewEntity(kg.KindClass, "app/models.py", "User", 5, 20)
	cls.Docstring = "Represents an account holder"
	method := kg.NewEntity(kg.KindMethod, "app/models.py", "save", 8, 12)
	method.Docstring = "Persist the user record to the database"
	fn := kg.NewEntity(kg.KindFunction, "app/models.py", "connect", 25, 32)
	fn.Docstring = "Open a database connection"
	fnB := kg.NewEntity(kg.KindFunction, "app/views.py", "render_page", 3, 15)
	fnB.Docstring = "Render the profile page"

	for _, e := range []*kg.Entity{fileA, cls, method, fn, fnB} {
		if err := g.AddEntity(e); err != nil {
			t.Fatalf("AddEntity(%s): %v", e.ID, err)
		}
	}
	return g
}

func TestBM25QueryBeforeBuild(t *testing.T) {
	x := NewBM25(0, 0)
	if _, err := x.Query("anything", 5); !locuserrors.Is(err, locuserrors.IndexNotBuilt) {
		t.Fatalf("expected IndexNotBuilt, got %v", err)
	}
}

func TestBM25SingleDocumentMatch(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	// Only render_page carries the term "profile".
	got, err := x.Query("profile", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query(profile) = %v, want exactly one document", got)
	}
	if got[0].EntityID != kg.EntityID(kg.KindFunction, "app/views.py", "render_page", 3) {
		t.Errorf("matched %s", got[0].EntityID)
	}
	if got[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", got[0].Score)
	}
}

func TestBM25LengthNormalization(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	// "user" occurs once in the class (name) and once in the method
	// (docstring); the shorter class document must rank first.
	got, err := x.Query("user", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("Query(user) = %v, want at least two documents", got)
	}
	if got[0].EntityID != kg.EntityID(kg.KindClass, "app/models.py", "User", 5) {
		t.Errorf("best match = %s, want the User class", got[0].EntityID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, got[i].Score, got[i-1].Score)
		}
	}
}

func TestBM25QueryIdempotent(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	first, err := x.Query("database connection", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	second, err := x.Query("database connection", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated query diverged:\n%v\n%v", first, second)
	}
}

func TestBM25NoOverlap(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	if got, err := x.Query("xylophone", 10); err != nil || len(got) != 0 {
		t.Errorf("Query(xylophone) = %v, %v; want empty", got, err)
	}
	// A query that tokenizes to nothing is empty, not an error.
	if got, err := x.Query("a ! ?", 10); err != nil || got != nil {
		t.Errorf("Query(a ! ?) = %v, %v; want nil", got, err)
	}
}

func TestBM25TopKTruncation(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	// Both the save method and render_page contain "the".
	got, err := x.Query("the", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("topK ignored, got %d results", len(got))
	}
}

func TestBM25RoundTrip(t *testing.T) {
	x := NewBM25(0, 0)
	x.Build(corpusGraph(t), "")

	data, err := json.Marshal(x)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := &BM25{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !restored.Built() {
		t.Fatal("restored index must be queryable")
	}
	if restored.DocCount() != x.DocCount() {
		t.Errorf("DocCount = %d, want %d", restored.DocCount(), x.DocCount())
	}

	for _, q := range []string{"user", "database connection", "profile", "render"} {
		want, err := x.Query(q, 10)
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		got, err := restored.Query(q, 10)
		if err != nil {
			t.Fatalf("restored Query(%q): %v", q, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Query(%q) after round-trip:\n got %v\nwant %v", q, got, want)
		}
	}
}

func TestBM25MarshalUnbuilt(t *testing.T) {
	if _, err := json.Marshal(NewBM25(0, 0)); err == nil {
		t.Error("marshaling an unbuilt index should fail")
	}
}

func TestBM25SnapshotRestore(t *testing.T) {
	x := NewBM25(1.5, 0.5)
	x.Build(corpusGraph(t), "")

	snap, err := x.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.K1 != 1.5 || snap.B != 0.5 {
		t.Errorf("snapshot parameters = (%v, %v), want (1.5, 0.5)", snap.K1, snap.B)
	}

	restored := Restore(snap)
	if !restored.Built() {
		t.Fatal("restored index must be queryable")
	}
	want, _ := x.Query("user", 10)
	got, err := restored.Query("user", 10)
	if err != nil {
		t.Fatalf("restored Query: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("restored scores:\n got %v\nwant %v", got, want)
	}
}

func TestBM25SnapshotUnbuilt(t *testing.T) {
	if _, err := NewBM25(0, 0).Snapshot(); !locuserrors.Is(err, locuserrors.IndexNotBuilt) {
		t.Errorf("Snapshot on unbuilt index: err = %v, want INDEX_NOT_BUILT", err)
	}
}

func TestBM25FileContentPrefix(t *testing.T) {
	root := t.TempDir()
	src := "# configuration loader\n" +
		"\n" +
		"import tomllib\n" +
		"// legacy note\n" +
		"def load_settings():\n" +
		"    return tomllib.loads(SETTINGS)\n"
	if err := os.WriteFile(filepath.Join(root, "settings.py"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	g := kg.NewGraph()
	file := kg.NewEntity(kg.KindFile, "settings.py", "settings.py", 1, 6)
	if err := g.AddEntity(file); err != nil {
		t.Fatal(err)
	}

	x := NewBM25(0, 0)
	x.Build(g, root)

	// Code lines are indexed.
	got, err := x.Query("tomllib", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != file.ID {
		t.Fatalf("Query(tomllib) = %v, want the file entity", got)
	}

	// Comment lines are not.
	if got, _ := x.Query("configuration legacy", 5); len(got) != 0 {
		t.Errorf("comment terms leaked into the index: %v", got)
	}
}

func TestBM25ParametersIndexed(t *testing.T) {
	g := kg.NewGraph()
	fn := kg.NewEntity(kg.KindFunction, "app/api.py", "fetch", 10, 20)
	fn.SetMeta("parameters", "timeout_seconds, retries")
	if err := g.AddEntity(fn); err != nil {
		t.Fatal(err)
	}

	x := NewBM25(0, 0)
	x.Build(g, "")

	got, err := x.Query("retries", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != fn.ID {
		t.Errorf("Query(retries) = %v, want the function", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"render_user", []string{"render", "user"}},
		{"a b c", nil},
		{"HTTPServer.listen(port=8080)", []string{"httpserver", "listen", "port", "8080"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
