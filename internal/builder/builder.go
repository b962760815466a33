// Package builder turns a repository tree into a knowledge graph. A build
// moves through fixed stages: scan the tree, parse files with a bounded
// worker pool, discover cross-file relationships, then materialize the
// immutable graph. Partial state never escapes; callers get the finished
// graph and a report, or an error.
package builder

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"locus/internal/config"
	"locus/internal/connector"
	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/logging"
	"locus/internal/parsers"
)

// State identifies the stage a build is in.
type State int

const (
	// StateScan walks the repository and records directories and files.
	StateScan State = iota
	// StateParse extracts entities from file contents.
	StateParse
	// StateDiscover resolves cross-file references into relationships.
	StateDiscover
	// StateMaterialize assembles the immutable graph.
	StateMaterialize
	// StateDone means the last build completed.
	StateDone
)

// String returns the stage name.
func (s State) String() string {
	switch s {
	case StateScan:
		return "scan"
	case StateParse:
		return "parse"
	case StateDiscover:
		return "discover"
	case StateMaterialize:
		return "materialize"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Builder accumulates entities and relationships across the build stages.
// A Builder is reusable (Build resets all accumulated state) but must not
// be shared across concurrent builds: only the parse workers run in
// parallel, and they never touch the builder maps.
type Builder struct {
	root     string
	cfg      *config.Config
	registry *parsers.Registry
	log      *logging.Logger

	state         State
	entities      map[string]*kg.Entity
	relationships map[string]*kg.Relationship
	files         []scannedFile
	report        *Report
}

// New creates a builder for the repository rooted at root.
func New(root string, cfg *config.Config, registry *parsers.Registry, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.Nop()
	}
	return &Builder{
		root:     root,
		cfg:      cfg,
		registry: registry,
		log:      log,
		state:    StateScan,
	}
}

// State returns the stage the builder is currently in.
func (b *Builder) State() State { return b.state }

// Build runs every stage and returns the materialized graph with its report.
// Calling Build again discards all prior state and starts over. Context
// cancellation aborts the build; the builder's partial state is discarded
// on the next Build, never exposed.
func (b *Builder) Build(ctx context.Context) (*kg.Graph, *Report, error) {
	b.reset()
	b.log.Info("build started", map[string]interface{}{
		"buildId": b.report.BuildID,
		"root":    b.root,
	})

	start := time.Now()
	if err := b.runScan(); err != nil {
		return nil, b.report, err
	}
	b.report.recordStage(StateScan, start)

	if err := ctx.Err(); err != nil {
		return nil, b.report, locuserrors.New(locuserrors.BuildFailure, "build aborted", err)
	}
	b.state = StateParse
	start = time.Now()
	if err := b.runParse(ctx); err != nil {
		return nil, b.report, locuserrors.New(locuserrors.BuildFailure, "parse stage aborted", err)
	}
	b.report.recordStage(StateParse, start)

	if err := ctx.Err(); err != nil {
		return nil, b.report, locuserrors.New(locuserrors.BuildFailure, "build aborted", err)
	}
	b.state = StateDiscover
	start = time.Now()
	b.runDiscover()
	b.report.recordStage(StateDiscover, start)

	b.state = StateMaterialize
	start = time.Now()
	g := b.materialize()
	b.report.recordStage(StateMaterialize, start)

	b.state = StateDone
	b.report.finish()
	b.log.Info("build complete", map[string]interface{}{
		"buildId":       b.report.BuildID,
		"entities":      b.report.Entities,
		"relationships": b.report.Relationships,
		"files":         b.report.FilesScanned,
		"durationMs":    b.report.DurationMs,
	})
	return g, b.report, nil
}

func (b *Builder) reset() {
	b.state = StateScan
	b.entities = make(map[string]*kg.Entity)
	b.relationships = make(map[string]*kg.Relationship)
	b.files = nil
	b.report = newReport(b.root)
}

func (b *Builder) runScan() error {
	s, err := newScanner(b.root, b.cfg.Scan, b.log)
	if err != nil {
		return err
	}
	res, err := s.scan()
	if err != nil {
		return err
	}
	for _, e := range res.Entities {
		b.entities[e.ID] = e
		if e.Kind == kg.KindDirectory {
			b.report.Directories++
		}
	}
	for _, rel := range res.Relationships {
		b.addRelationship(rel)
	}
	b.files = res.Files
	b.report.FilesScanned = len(res.Files)
	b.report.FilesSkipped = res.Skipped
	return nil
}

// parseOutcome is what one worker hands back for one file.
type parseOutcome struct {
	file      scannedFile
	language  string
	lineCount int
	result    *parsers.ParseResult
	err       error
}

// runParse fans the scanned files out to a bounded worker pool. Workers only
// read and parse; every merge into the builder maps happens here, on the
// orchestrating goroutine, so the maps need no locking.
func (b *Builder) runParse(ctx context.Context) error {
	if len(b.files) == 0 {
		return nil
	}
	workers := b.cfg.Scan.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(b.files) {
		workers = len(b.files)
	}

	outcomes := make(chan parseOutcome, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	go func() {
		for _, f := range b.files {
			f := f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcomes <- b.parseFile(gctx, f)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	for oc := range outcomes {
		b.merge(oc)
	}
	return g.Wait()
}

// parseFile runs on a worker goroutine. It touches no builder state.
func (b *Builder) parseFile(ctx context.Context, f scannedFile) parseOutcome {
	oc := parseOutcome{file: f}
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		oc.err = err
		return oc
	}
	oc.lineCount = lineCount(data)
	oc.language = b.registry.LanguageFor(f.RelPath)
	if oc.language == "" {
		return oc
	}
	oc.result = b.registry.Parse(ctx, f.RelPath, data)
	return oc
}

// merge folds one parse outcome into the builder maps. Runs only on the
// orchestrating goroutine.
func (b *Builder) merge(oc parseOutcome) {
	fileID := kg.EntityID(kg.KindFile, oc.file.RelPath, lastSegment(oc.file.RelPath), 1)
	if fe, ok := b.entities[fileID]; ok && oc.lineCount > 0 {
		fe.EndLine = oc.lineCount
	}

	if oc.err != nil {
		b.report.ParseFailures++
		b.log.Warn("file unreadable, skipping", map[string]interface{}{
			"path":  oc.file.RelPath,
			"error": oc.err.Error(),
		})
		return
	}
	if oc.language == "" {
		b.report.FilesUncovered++
		return
	}
	b.report.ParserCoverage[oc.language]++
	if oc.result == nil || len(oc.result.Entities) == 0 {
		// Every parser emits at least the file-level entity, so an empty
		// result means the parse itself failed.
		b.report.ParseFailures++
		return
	}
	b.report.FilesParsed++

	classByName := make(map[string]string)
	for _, e := range oc.result.Entities {
		b.entities[e.ID] = e
		if e.Kind == kg.KindClass || e.Kind == kg.KindInterface {
			classByName[e.Name] = e.ID
		}
	}

	// Containment: the file contains each parsed entity, except methods
	// whose declared parent class exists in the same file; those hang off
	// the class. An unresolved parent falls back to the file.
	for _, e := range oc.result.Entities {
		parentID := fileID
		if e.Kind == kg.KindMethod {
			if cls, ok := e.Meta("parentClass"); ok {
				if classID, found := classByName[cls]; found {
					parentID = classID
				}
			}
		}
		b.addRelationship(kg.NewRelationship(kg.RelContains, parentID, e.ID))
	}

	for _, rel := range oc.result.Relationships {
		b.addRelationship(rel)
	}
}

// runDiscover resolves raw references recorded by the parsers into
// file-to-file relationships.
func (b *Builder) runDiscover() {
	conn := connector.New(b.log, b.registry.SupportedExtensions())
	for _, rel := range conn.Discover(entityView{b.entities}) {
		if _, exists := b.relationships[rel.ID]; exists {
			continue
		}
		b.relationships[rel.ID] = rel
		b.report.DiscoveredEdges++
	}
}

// materialize is the single point where accumulated state becomes a graph.
// Insertion order is sorted, so identical inputs produce an identical graph.
func (b *Builder) materialize() *kg.Graph {
	g := kg.NewGraph()

	entityIDs := make([]string, 0, len(b.entities))
	for id := range b.entities {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)
	for _, id := range entityIDs {
		if err := g.AddEntity(b.entities[id]); err != nil {
			b.log.Debug("dropping entity at materialize", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
	}

	relIDs := make([]string, 0, len(b.relationships))
	for id := range b.relationships {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		if err := g.AddRelationship(b.relationships[id]); err != nil {
			b.report.DroppedEdges++
			b.log.Debug("dropping relationship at materialize", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
	}

	b.report.Entities = g.Len()
	b.report.Relationships = g.EdgeLen()
	return g
}

func (b *Builder) addRelationship(rel *kg.Relationship) {
	if _, exists := b.relationships[rel.ID]; exists {
		return
	}
	b.relationships[rel.ID] = rel
}

// entityView adapts the in-progress entity map to the connector's read
// interface.
type entityView struct {
	entities map[string]*kg.Entity
}

func (v entityView) EntityIDs() []string {
	ids := make([]string, 0, len(v.entities))
	for id := range v.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v entityView) Entity(id string) (*kg.Entity, bool) {
	e, ok := v.entities[id]
	return e, ok
}

func lineCount(data []byte) int {
	if len(data) == 0 {
		return 1
	}
	n := bytes.Count(data, []byte{'\n'}) + 1
	if data[len(data)-1] == '\n' {
		n--
	}
	return n
}
