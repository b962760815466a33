package store

import (
	"reflect"
	"testing"
	"time"

	"locus/internal/builder"
	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/retrieval"
)

// testSnapshot builds a three-entity graph with docstrings, metadata, and a
// non-default edge confidence, plus a built index and a report, so the
// round-trip exercises every persisted field.
func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	g := kg.NewGraph()

	file := kg.NewEntity(kg.KindFile, "app/models.py", "models.py", 1, 40)
	file.Docstring = "Data models."
	cls := kg.NewEntity(kg.KindClass, "app/models.py", "User", 5, 30)
	cls.Docstring = "Represents an account holder."
	cls.SetMeta("bases", "Model")
	fn := kg.NewEntity(kg.KindFunction, "app/models.py", "connect", 32, 40)
	fn.Docstring = "Open a database connection."

	for _, e := range []*kg.Entity{file, cls, fn} {
		if err := g.AddEntity(e); err != nil {
			t.Fatalf("AddEntity(%s): %v", e.ID, err)
		}
	}

	contains := kg.NewRelationship(kg.RelContains, file.ID, cls.ID)
	calls := kg.NewRelationship(kg.RelCalls, cls.ID, fn.ID).WithConfidence(0.8)
	calls.SetMeta("via", "save")
	for _, r := range []*kg.Relationship{contains, calls} {
		if err := g.AddRelationship(r); err != nil {
			t.Fatalf("AddRelationship(%s): %v", r.ID, err)
		}
	}

	index := retrieval.NewBM25(0, 0)
	index.Build(g, "")

	report := &builder.Report{
		BuildID:       "build-1",
		RepoRoot:      "/tmp/app",
		StartedAt:     time.Now().UTC(),
		DurationMs:    42,
		FilesScanned:  1,
		FilesParsed:   1,
		Entities:      3,
		Relationships: 2,
	}

	return &Snapshot{Graph: g, Index: index, Report: report, ConfigHash: "abc123"}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	snap := testSnapshot(t)

	if err := db.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if snap.CreatedAt.IsZero() {
		t.Error("SaveSnapshot should stamp CreatedAt")
	}

	loaded, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if got, want := loaded.Graph.EntityIDs(), snap.Graph.EntityIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("entity ids:\n got %v\nwant %v", got, want)
	}
	if got, want := loaded.Graph.RelationshipIDs(), snap.Graph.RelationshipIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("relationship ids:\n got %v\nwant %v", got, want)
	}

	clsID := kg.EntityID(kg.KindClass, "app/models.py", "User", 5)
	cls, ok := loaded.Graph.Entity(clsID)
	if !ok {
		t.Fatalf("class %s missing after reload", clsID)
	}
	if cls.Docstring != "Represents an account holder." {
		t.Errorf("docstring = %q", cls.Docstring)
	}
	if bases, _ := cls.Meta("bases"); bases != "Model" {
		t.Errorf("metadata bases = %q, want %q", bases, "Model")
	}
	if cls.StartLine != 5 || cls.EndLine != 30 {
		t.Errorf("line range = (%d, %d), want (5, 30)", cls.StartLine, cls.EndLine)
	}

	fnID := kg.EntityID(kg.KindFunction, "app/models.py", "connect", 32)
	callsID := kg.RelationshipID(kg.RelCalls, clsID, fnID)
	calls, ok := loaded.Graph.Relationship(callsID)
	if !ok {
		t.Fatalf("edge %s missing after reload", callsID)
	}
	if calls.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", calls.Confidence)
	}
	if via, _ := calls.Metadata["via"]; via != "save" {
		t.Errorf("edge metadata via = %q, want %q", via, "save")
	}

	for _, q := range []string{"user", "database connection", "account"} {
		want, err := snap.Index.Query(q, 10)
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		got, err := loaded.Index.Query(q, 10)
		if err != nil {
			t.Fatalf("reloaded Query(%q): %v", q, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Query(%q) after reload:\n got %v\nwant %v", q, got, want)
		}
	}

	if loaded.Report == nil || loaded.Report.BuildID != "build-1" {
		t.Errorf("report = %+v, want BuildID build-1", loaded.Report)
	}
	if loaded.ConfigHash != "abc123" {
		t.Errorf("config hash = %q, want %q", loaded.ConfigHash, "abc123")
	}
	if !loaded.CreatedAt.Equal(snap.CreatedAt) {
		t.Errorf("created at = %v, want %v", loaded.CreatedAt, snap.CreatedAt)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.LoadSnapshot(); !locuserrors.Is(err, locuserrors.SnapshotMissing) {
		t.Errorf("LoadSnapshot on empty store: err = %v, want SNAPSHOT_MISSING", err)
	}

	has, err := db.HasSnapshot()
	if err != nil {
		t.Fatalf("HasSnapshot: %v", err)
	}
	if has {
		t.Error("HasSnapshot should be false before any save")
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveSnapshot(testSnapshot(t)); err != nil {
		t.Fatalf("first SaveSnapshot: %v", err)
	}

	g := kg.NewGraph()
	only := kg.NewEntity(kg.KindFile, "lib/util.js", "util.js", 1, 8)
	if err := g.AddEntity(only); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	index := retrieval.NewBM25(0, 0)
	index.Build(g, "")

	if err := db.SaveSnapshot(&Snapshot{Graph: g, Index: index, ConfigHash: "def456"}); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	loaded, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Graph.Len() != 1 {
		t.Errorf("entities = %d, want 1 (old snapshot should be gone)", loaded.Graph.Len())
	}
	if loaded.Graph.EdgeLen() != 0 {
		t.Errorf("relationships = %d, want 0", loaded.Graph.EdgeLen())
	}
	if loaded.Report != nil {
		t.Errorf("report = %+v, want nil for a save without one", loaded.Report)
	}
	if loaded.ConfigHash != "def456" {
		t.Errorf("config hash = %q, want %q", loaded.ConfigHash, "def456")
	}

	results, err := loaded.Index.Query("user", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("old documents still searchable: %v", results)
	}
}

func TestSaveSnapshotUnbuiltIndex(t *testing.T) {
	db := openTestDB(t)

	g := kg.NewGraph()
	if err := g.AddEntity(kg.NewEntity(kg.KindFile, "a.py", "a.py", 1, 1)); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	err := db.SaveSnapshot(&Snapshot{Graph: g, Index: retrieval.NewBM25(0, 0)})
	if !locuserrors.Is(err, locuserrors.IndexNotBuilt) {
		t.Fatalf("err = %v, want INDEX_NOT_BUILT", err)
	}

	has, err := db.HasSnapshot()
	if err != nil {
		t.Fatalf("HasSnapshot: %v", err)
	}
	if has {
		t.Error("a rejected save must not leave a partial snapshot")
	}
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveSnapshot(testSnapshot(t)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Stomp one payload with bytes that are not a zstd frame.
	if _, err := db.Exec("UPDATE entities SET payload = ?", []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	if _, err := db.LoadSnapshot(); !locuserrors.Is(err, locuserrors.SnapshotCorrupt) {
		t.Errorf("LoadSnapshot on corrupt rows: err = %v, want SNAPSHOT_CORRUPT", err)
	}
}

func TestSnapshotInfo(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.SnapshotInfo(); !locuserrors.Is(err, locuserrors.SnapshotMissing) {
		t.Errorf("SnapshotInfo before save: err = %v, want SNAPSHOT_MISSING", err)
	}

	snap := testSnapshot(t)
	if err := db.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	info, err := db.SnapshotInfo()
	if err != nil {
		t.Fatalf("SnapshotInfo: %v", err)
	}
	if info.BuildID != "build-1" {
		t.Errorf("build id = %q, want %q", info.BuildID, "build-1")
	}
	if info.Entities != 3 || info.Relationships != 2 {
		t.Errorf("counts = (%d, %d), want (3, 2)", info.Entities, info.Relationships)
	}
	if info.ConfigHash != "abc123" {
		t.Errorf("config hash = %q", info.ConfigHash)
	}
	if !info.CreatedAt.Equal(snap.CreatedAt) {
		t.Errorf("created at = %v, want %v", info.CreatedAt, snap.CreatedAt)
	}

	has, err := db.HasSnapshot()
	if err != nil {
		t.Fatalf("HasSnapshot: %v", err)
	}
	if !has {
		t.Error("HasSnapshot should be true after save")
	}
}
