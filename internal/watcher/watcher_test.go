package watcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"locus/internal/config"
	"locus/internal/logging"
	"locus/internal/parsers"
	"locus/internal/query"
	"locus/internal/store"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.eventType.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUniquePaths(t *testing.T) {
	events := []Event{
		{Type: EventModify, Path: "docs/guide.md"},
		{Type: EventModify, Path: "README.md"},
		{Type: EventDelete, Path: "docs/guide.md"},
		{Type: EventCreate, Path: "docs/api.md"},
	}

	got := uniquePaths(events)
	want := []string{"README.md", "docs/api.md", "docs/guide.md"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uniquePaths() = %v, want %v", got, want)
	}
}

func TestDiffTrees(t *testing.T) {
	base := time.Now()
	prev := map[string]fileStamp{
		"kept.md":    {mod: base, size: 10},
		"touched.md": {mod: base, size: 10},
		"grown.md":   {mod: base, size: 10},
		"gone.md":    {mod: base, size: 10},
	}
	next := map[string]fileStamp{
		"kept.md":    {mod: base, size: 10},
		"touched.md": {mod: base.Add(time.Second), size: 10},
		"grown.md":   {mod: base, size: 20},
		"new.md":     {mod: base, size: 5},
	}

	got := make(map[string]EventType)
	for _, ev := range diffTrees(prev, next) {
		got[ev.Path] = ev.Type
	}

	want := map[string]EventType{
		"touched.md": EventModify,
		"grown.md":   EventModify,
		"new.md":     EventCreate,
		"gone.md":    EventDelete,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("diffTrees() = %v, want %v", got, want)
	}
}

func TestRelPath(t *testing.T) {
	root := t.TempDir()
	w := &Watcher{root: root}

	tests := []struct {
		name string
		abs  string
		rel  string
		ok   bool
	}{
		{"file", filepath.Join(root, "docs", "guide.md"), "docs/guide.md", true},
		{"root itself", root, "", false},
		{"outside root", filepath.Join(root, "..", "elsewhere.md"), "", false},
		{"state dir", filepath.Join(root, ".locus"), "", false},
		{"inside state dir", filepath.Join(root, ".locus", "snapshot.db"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok := w.relPath(tt.abs)
			if ok != tt.ok || rel != tt.rel {
				t.Errorf("relPath(%q) = %q, %v, want %q, %v", tt.abs, rel, ok, tt.rel, tt.ok)
			}
		})
	}
}

func TestHandleNativeAdmission(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Scan.SkipPatterns = append(cfg.Scan.SkipPatterns, "*.generated.md")

	w, err := New(root, cfg, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.batch = NewBatchDebouncer(time.Hour, nil)

	tests := []struct {
		name string
		rel  string
		want int // pending events after the call
	}{
		{"admitted markdown file", "docs/guide.md", 1},
		{"unknown extension", "assets/logo.png", 0},
		{"skip pattern match", "docs/types.generated.md", 0},
		{"state directory", ".locus/snapshot.db", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.batch.Cancel()
			abs := filepath.Join(root, filepath.FromSlash(tt.rel))
			w.handleNative(nil, fsnotify.Event{Name: abs, Op: fsnotify.Write})
			if got := w.batch.EventCount(); got != tt.want {
				t.Errorf("EventCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

// BatchDebouncer tests

func TestBatchDebouncerAdd(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)

	b.Add(Event{Type: EventCreate, Path: "file1.md"})
	b.Add(Event{Type: EventModify, Path: "file2.md"})
	b.Add(Event{Type: EventDelete, Path: "file3.md"})

	if b.EventCount() != 3 {
		t.Errorf("EventCount() = %d, want 3", b.EventCount())
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if len(received) != 3 {
		t.Errorf("should have received 3 events, got %d", len(received))
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after emission", b.EventCount())
	}
}

func TestBatchDebouncerCancel(t *testing.T) {
	var called bool
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)
	b.Add(Event{Type: EventCreate, Path: "file.md"})
	b.Cancel()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if called {
		t.Error("emit should not run after cancel")
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after cancel", b.EventCount())
	}
}

func TestBatchDebouncerFlush(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(time.Hour, emit)
	b.Add(Event{Type: EventCreate, Path: "file.md"})
	b.Flush()

	mu.Lock()
	if len(received) != 1 {
		t.Errorf("should have received 1 event, got %d", len(received))
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after flush", b.EventCount())
	}
}

func TestBatchDebouncerNoEmitWithNoEvents(t *testing.T) {
	var called bool
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	}

	b := NewBatchDebouncer(10*time.Millisecond, emit)
	b.Flush()

	mu.Lock()
	if called {
		t.Error("emit should not run with no events")
	}
	mu.Unlock()
}

// Integration tests. These drive a real engine over a small markdown tree
// and wait for the watcher to apply changes end to end.

func writeTreeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newWatchedEngine(t *testing.T) (*query.Engine, *config.Config, string) {
	t.Helper()
	root := t.TempDir()
	writeTreeFile(t, root, "README.md", "# Overview\n\nA small documentation set.\n")
	writeTreeFile(t, root, "docs/guide.md",
		"# User Authentication\n\nHow sessions and tokens are issued.\n")

	reg := parsers.NewRegistry(logging.Nop())
	reg.Register("markdown", parsers.NewMarkdownParser(), ".md", ".markdown")

	db, err := store.Open(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Watch.DebounceMs = 50
	cfg.Watch.PollIntervalMs = 50

	eng := query.New(root, cfg, reg, db, logging.Nop())
	t.Cleanup(func() { eng.Close() })

	if _, err := eng.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return eng, cfg, root
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, deadline time.Duration, cond func() bool) bool {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func searchHits(t *testing.T, eng *query.Engine, term string) int {
	t.Helper()
	resp, err := eng.Search(context.Background(), query.SearchOptions{Query: term, Mode: "text"})
	if err != nil {
		t.Fatalf("Search(%q): %v", term, err)
	}
	return len(resp.Results)
}

func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop after cancellation")
		}
	})
}

func TestWatcherPollingAppliesChanges(t *testing.T) {
	eng, cfg, root := newWatchedEngine(t)

	w, err := New(root, cfg, eng, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.forcePoll = true
	runWatcher(t, w)

	// Let the baseline sweep finish before changing anything, or the change
	// is part of the baseline and never diffs.
	time.Sleep(200 * time.Millisecond)

	if n := searchHits(t, eng, "password"); n != 0 {
		t.Fatalf("unexpected hits before change: %d", n)
	}
	writeTreeFile(t, root, "docs/guide.md",
		"# User Authentication\n\n## Password Reset\n\nSend a reset link by mail.\n")

	if !eventually(t, 5*time.Second, func() bool {
		return searchHits(t, eng, "password") > 0
	}) {
		t.Fatal("modified file was not reindexed")
	}

	writeTreeFile(t, root, "docs/faq.md", "# FAQ\n\nInvoices are sent monthly.\n")
	if !eventually(t, 5*time.Second, func() bool {
		return searchHits(t, eng, "invoices") > 0
	}) {
		t.Fatal("created file was not indexed")
	}

	if err := os.Remove(filepath.Join(root, "docs", "faq.md")); err != nil {
		t.Fatal(err)
	}
	if !eventually(t, 5*time.Second, func() bool {
		return searchHits(t, eng, "invoices") == 0
	}) {
		t.Fatal("deleted file was not removed from the index")
	}
}

func TestWatcherNativeAppliesChanges(t *testing.T) {
	eng, cfg, root := newWatchedEngine(t)

	w, err := New(root, cfg, eng, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runWatcher(t, w)

	// Give the watcher time to register the tree before changing it.
	time.Sleep(200 * time.Millisecond)

	writeTreeFile(t, root, "docs/guide.md",
		"# User Authentication\n\n## Passkeys\n\nRegister a passkey per device.\n")
	if !eventually(t, 5*time.Second, func() bool {
		return searchHits(t, eng, "passkey") > 0
	}) {
		t.Fatal("modified file was not reindexed")
	}

	// A directory created after the watch starts is picked up recursively.
	writeTreeFile(t, root, "notes/releases.md", "# Releases\n\nChangelog for every release.\n")
	indexed := func() bool { return searchHits(t, eng, "changelog") > 0 }
	if !eventually(t, 2*time.Second, indexed) {
		// One rewrite covers the window between the directory appearing and
		// its watch being added.
		writeTreeFile(t, root, "notes/releases.md", "# Releases\n\nChangelog for every release.\n")
		if !eventually(t, 5*time.Second, indexed) {
			t.Fatal("file in new directory was not indexed")
		}
	}
}
