// Package watcher keeps an engine's snapshot in step with the working tree.
// It watches the repository with native file system events where available,
// falls back to modification-time polling where not, and feeds debounced
// batches of changed paths into incremental updates.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"locus/internal/builder"
	"locus/internal/config"
	"locus/internal/logging"
	"locus/internal/paths"
	"locus/internal/query"
)

// EventType classifies a file system event.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

// String returns the event type's wire name.
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one observed change. Path is repo-relative with forward slashes,
// matching entity paths in the graph.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// Watcher observes one repository and applies its changes to an engine.
// Admission mirrors a full build: the same skip patterns, extension list and
// gitignore rules decide which events matter.
type Watcher struct {
	root     string
	engine   *query.Engine
	filter   *builder.Filter
	log      *logging.Logger
	debounce time.Duration
	poll     time.Duration

	batch *BatchDebouncer

	forcePoll bool // skip the native watcher, used in tests
}

// New creates a watcher for the repository at root. The engine must already
// hold a snapshot of that repository.
func New(root string, cfg *config.Config, engine *query.Engine, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	filter, err := builder.NewFilter(root, cfg.Scan)
	if err != nil {
		return nil, err
	}
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	poll := time.Duration(cfg.Watch.PollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Watcher{
		root:     root,
		engine:   engine,
		filter:   filter,
		log:      log,
		debounce: debounce,
		poll:     poll,
	}, nil
}

// Run watches until ctx is cancelled and returns nil on cancellation.
// Changes that are still pending when the watcher stops are dropped; the
// next run or a full rebuild catches the tree up.
func (w *Watcher) Run(ctx context.Context) error {
	batches := make(chan []Event, 1)
	w.batch = NewBatchDebouncer(w.debounce, func(events []Event) {
		select {
		case batches <- events:
		case <-ctx.Done():
		}
	})
	defer w.batch.Cancel()

	if !w.forcePoll {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			defer fsw.Close()
			if err := w.addTree(fsw); err != nil {
				return err
			}
			w.log.Info("watching repository", map[string]interface{}{
				"root":       w.root,
				"mode":       "native",
				"debounceMs": w.debounce.Milliseconds(),
			})
			return w.runNative(ctx, fsw, batches)
		}
		w.log.Warn("native file watching unavailable, polling instead", map[string]interface{}{
			"error": err.Error(),
		})
	}

	w.log.Info("watching repository", map[string]interface{}{
		"root":           w.root,
		"mode":           "poll",
		"debounceMs":     w.debounce.Milliseconds(),
		"pollIntervalMs": w.poll.Milliseconds(),
	})
	return w.runPoll(ctx, batches)
}

func (w *Watcher) runNative(ctx context.Context, fsw *fsnotify.Watcher, batches chan []Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case events := <-batches:
			w.apply(ctx, events)
		case e, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleNative(fsw, e)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// handleNative translates one native event into batch entries. Renames and
// removes of whole directories arrive as a single event for the directory;
// the files beneath it surface on the next full rebuild.
func (w *Watcher) handleNative(fsw *fsnotify.Watcher, e fsnotify.Event) {
	rel, ok := w.relPath(e.Name)
	if !ok {
		return
	}

	switch {
	case e.Op.Has(fsnotify.Create):
		if w.isDir(e.Name) {
			if !w.filter.SkipDir(rel) {
				w.addDir(fsw, e.Name)
			}
			return
		}
		if w.filter.AdmitFile(rel) {
			w.batch.Add(Event{Type: EventCreate, Path: rel, Timestamp: time.Now()})
		}
	case e.Op.Has(fsnotify.Write):
		if w.filter.AdmitFile(rel) {
			w.batch.Add(Event{Type: EventModify, Path: rel, Timestamp: time.Now()})
		}
	case e.Op.Has(fsnotify.Remove), e.Op.Has(fsnotify.Rename):
		if w.filter.AdmitFile(rel) {
			w.batch.Add(Event{Type: EventDelete, Path: rel, Timestamp: time.Now()})
		}
	}
	// Chmod-only events carry no content change and are dropped.
}

// addTree registers every admitted directory under the root. Unreadable
// subtrees are skipped, not fatal; only a failure on the root itself aborts.
func (w *Watcher) addTree(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == w.root {
				return walkErr
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, ok := w.relPath(path)
		if path != w.root && !ok {
			return filepath.SkipDir
		}
		if ok && w.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.log.Warn("cannot watch directory", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return nil
	})
}

// addDir registers a directory created after the watch started and batches
// create events for admitted files already inside it. A directory populated
// before its create event arrives, as git checkout does, is fully picked up.
func (w *Watcher) addDir(fsw *fsnotify.Watcher, abs string) {
	_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, ok := w.relPath(path)
		if !ok {
			return filepath.SkipDir
		}
		if d.IsDir() {
			if w.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				w.log.Debug("cannot watch directory", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
			return nil
		}
		if d.Type().IsRegular() && w.filter.AdmitFile(rel) {
			w.batch.Add(Event{Type: EventCreate, Path: rel, Timestamp: time.Now()})
		}
		return nil
	})
}

// fileStamp is what polling remembers about a file between sweeps.
type fileStamp struct {
	mod  time.Time
	size int64
}

func (w *Watcher) runPoll(ctx context.Context, batches chan []Event) error {
	last, err := w.snapshotTree()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case events := <-batches:
			w.apply(ctx, events)
		case <-ticker.C:
			next, err := w.snapshotTree()
			if err != nil {
				w.log.Warn("poll sweep failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			for _, ev := range diffTrees(last, next) {
				w.batch.Add(ev)
			}
			last = next
		}
	}
}

// snapshotTree records the stamp of every admitted file under the root.
func (w *Watcher) snapshotTree() (map[string]fileStamp, error) {
	stamps := make(map[string]fileStamp)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == w.root {
				return walkErr
			}
			return nil
		}
		rel, ok := w.relPath(path)
		if d.IsDir() {
			if path != w.root && !ok {
				return filepath.SkipDir
			}
			if ok && w.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !ok || !d.Type().IsRegular() || !w.filter.AdmitFile(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stamps[rel] = fileStamp{mod: info.ModTime(), size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stamps, nil
}

// diffTrees turns two sweeps into events: new paths are creates, changed
// stamps are modifies, vanished paths are deletes.
func diffTrees(prev, next map[string]fileStamp) []Event {
	now := time.Now()
	var events []Event
	for rel, stamp := range next {
		before, existed := prev[rel]
		switch {
		case !existed:
			events = append(events, Event{Type: EventCreate, Path: rel, Timestamp: now})
		case !stamp.mod.Equal(before.mod) || stamp.size != before.size:
			events = append(events, Event{Type: EventModify, Path: rel, Timestamp: now})
		}
	}
	for rel := range prev {
		if _, still := next[rel]; !still {
			events = append(events, Event{Type: EventDelete, Path: rel, Timestamp: now})
		}
	}
	return events
}

// apply feeds one debounced batch into the engine. Failures are logged and
// the watcher keeps running; a later full rebuild repairs any drift.
func (w *Watcher) apply(ctx context.Context, events []Event) {
	changed := uniquePaths(events)
	if len(changed) == 0 {
		return
	}
	report, err := w.engine.UpdateFiles(ctx, changed)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Warn("incremental update failed", map[string]interface{}{
			"files": len(changed),
			"error": err.Error(),
		})
		return
	}
	w.log.Info("snapshot updated", map[string]interface{}{
		"files":      len(report.Files),
		"added":      report.EntitiesAdded,
		"removed":    report.EntitiesRemoved,
		"durationMs": report.DurationMs,
	})
}

// relPath converts an absolute path into a repo-relative slash path. Paths
// outside the root and the state directory are rejected; snapshot writes
// must never feed back into the batch.
func (w *Watcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if rel == paths.DotDir || strings.HasPrefix(rel, paths.DotDir+"/") {
		return "", false
	}
	return rel, true
}

func (w *Watcher) isDir(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

// uniquePaths dedups a batch into a sorted list of changed paths.
func uniquePaths(events []Event) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.Path]; dup {
			continue
		}
		seen[ev.Path] = struct{}{}
		out = append(out, ev.Path)
	}
	sort.Strings(out)
	return out
}
