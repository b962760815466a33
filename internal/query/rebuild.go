package query

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"locus/internal/builder"
	"locus/internal/connector"
	"locus/internal/index"
	"locus/internal/kg"
	"locus/internal/paths"
	"locus/internal/project"
	"locus/internal/retrieval"
	"locus/internal/store"
)

// Rebuild indexes the repository from scratch: scan, parse, connect, score,
// persist, swap. The previous snapshot keeps serving queries until the new
// one is installed. Concurrent rebuilds across processes are excluded by the
// advisory lock on the state directory.
func (e *Engine) Rebuild(ctx context.Context) (*builder.Report, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	stateDir := paths.StateDir(e.repoRoot)
	lock, err := index.AcquireLock(stateDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	graph, report, err := builder.New(e.repoRoot, e.cfg, e.registry, e.log).Build(ctx)
	if err != nil {
		return nil, err
	}

	bm25 := retrieval.NewBM25(e.cfg.Index.BM25.K1, e.cfg.Index.BM25.B)
	bm25.Build(graph, e.repoRoot)

	configHash := e.cfg.Hash()
	stored := &store.Snapshot{
		Graph:      graph,
		Index:      bm25,
		Report:     report,
		ConfigHash: configHash,
	}
	if err := e.db.SaveSnapshot(stored); err != nil {
		return nil, err
	}

	meta := &index.Meta{
		Version:       index.MetadataVersion,
		BuildID:       report.BuildID,
		CreatedAt:     stored.CreatedAt,
		ConfigHash:    configHash,
		Files:         report.FilesScanned,
		Entities:      report.Entities,
		Relationships: report.Relationships,
		DurationMs:    report.DurationMs,
	}
	if err := meta.Save(stateDir); err != nil {
		return nil, err
	}

	if err := project.SaveInfo(e.repoRoot, project.Detect(e.repoRoot)); err != nil {
		e.log.Warn("project info not saved", map[string]interface{}{
			"error": err.Error(),
		})
	}

	e.install(e.assemble(graph, bm25, report, configHash, stored.CreatedAt))
	return report, nil
}

// UpdateReport summarizes one incremental re-analysis pass.
type UpdateReport struct {
	Files           []string `json:"files"`
	EntitiesRemoved int      `json:"entitiesRemoved"`
	EntitiesAdded   int      `json:"entitiesAdded"`
	EdgesDropped    int      `json:"edgesDropped"`
	DurationMs      int64    `json:"durationMs"`
}

// UpdateFile re-analyzes a single changed file. See UpdateFiles.
func (e *Engine) UpdateFile(ctx context.Context, p string) (*UpdateReport, error) {
	return e.UpdateFiles(ctx, []string{p})
}

// UpdateFiles applies whole-file re-analysis for a batch of changed paths.
// Each file's entities are removed from a copy of the live graph; files that
// still exist on disk are re-parsed and merged back, files that vanished
// stay removed. Cross-file references are then re-resolved over the whole
// graph and the text index rebuilt, so edges into the changed files reappear
// and scores stay consistent with the corpus. The finished snapshot is
// persisted and swapped in as one generation.
func (e *Engine) UpdateFiles(ctx context.Context, changed []string) (*UpdateReport, error) {
	start := time.Now()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap, err := e.current()
	if err != nil {
		return nil, err
	}

	g := snap.Graph.Clone()
	rep := &UpdateReport{}

	for _, p := range changed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := e.repoRelative(p)
		if err != nil {
			return nil, err
		}
		rep.Files = append(rep.Files, rel)
		rep.EntitiesRemoved += g.RemoveFileEntities(rel)

		data, err := os.ReadFile(filepath.Join(e.repoRoot, filepath.FromSlash(rel)))
		if err != nil {
			if os.IsNotExist(err) {
				e.log.Debug("file removed from graph", map[string]interface{}{"path": rel})
				continue
			}
			return nil, err
		}
		rep.EntitiesAdded += e.mergeFile(ctx, g, rel, data)
	}

	e.rediscover(g, rep)

	bm25 := retrieval.NewBM25(e.cfg.Index.BM25.K1, e.cfg.Index.BM25.B)
	bm25.Build(g, e.repoRoot)

	// The last full build's report and config hash carry over: an
	// incremental update refreshes the snapshot, not its build identity.
	stored := &store.Snapshot{
		Graph:      g,
		Index:      bm25,
		Report:     snap.Report,
		ConfigHash: snap.ConfigHash,
	}
	if err := e.db.SaveSnapshot(stored); err != nil {
		return nil, err
	}
	e.install(e.assemble(g, bm25, snap.Report, snap.ConfigHash, stored.CreatedAt))

	rep.DurationMs = time.Since(start).Milliseconds()
	e.log.Info("incremental update applied", map[string]interface{}{
		"files":   len(rep.Files),
		"removed": rep.EntitiesRemoved,
		"added":   rep.EntitiesAdded,
	})
	return rep, nil
}

// mergeFile reproduces for one file what a full build does across the
// repository: the FILE entity, the parser's entities, containment edges
// with method-to-class attachment, and the link from the parent directory.
// Returns the number of entities added.
func (e *Engine) mergeFile(ctx context.Context, g *kg.Graph, rel string, data []byte) int {
	file := kg.NewEntity(kg.KindFile, rel, path.Base(rel), 1, countLines(data))
	file.SetMeta("extension", strings.ToLower(path.Ext(rel)))
	if err := g.AddEntity(file); err != nil {
		e.log.Warn("file entity rejected during update", map[string]interface{}{
			"path":  rel,
			"error": err.Error(),
		})
		return 0
	}
	added := 1

	// A directory created since the last full index has no entity yet; the
	// file still indexes and the link appears on the next rebuild.
	if parent := parentDirEntityID(rel); parent != "" {
		if _, ok := g.Entity(parent); ok {
			_ = g.AddRelationship(kg.NewRelationship(kg.RelContains, parent, file.ID))
		}
	}

	if e.registry.LanguageFor(rel) == "" {
		return added // scanned but not parsed, same as a full build
	}
	result := e.registry.Parse(ctx, rel, data)
	if result == nil {
		return added
	}

	classByName := make(map[string]string)
	for _, ent := range result.Entities {
		if err := g.AddEntity(ent); err != nil {
			e.log.Debug("entity rejected during update", map[string]interface{}{
				"id":    ent.ID,
				"error": err.Error(),
			})
			continue
		}
		added++
		if ent.Kind == kg.KindClass || ent.Kind == kg.KindInterface {
			classByName[ent.Name] = ent.ID
		}
	}

	for _, ent := range result.Entities {
		parentID := file.ID
		if ent.Kind == kg.KindMethod {
			if cls, ok := ent.Meta("parentClass"); ok {
				if classID, found := classByName[cls]; found {
					parentID = classID
				}
			}
		}
		_ = g.AddRelationship(kg.NewRelationship(kg.RelContains, parentID, ent.ID))
	}

	for _, r := range result.Relationships {
		if err := g.AddRelationship(r); err != nil {
			// Parser-emitted edges may reference entities the update did
			// not bring back; dropping them matches full-build assembly.
			e.log.Debug("relationship dropped during update", map[string]interface{}{
				"id":    r.ID,
				"error": err.Error(),
			})
		}
	}
	return added
}

// rediscover re-resolves cross-file references over the updated graph.
// Discovery is deterministic and never touches the filesystem, so edges
// that survived the update are re-added as no-ops while edges into the
// re-parsed files reappear.
func (e *Engine) rediscover(g *kg.Graph, rep *UpdateReport) {
	conn := connector.New(e.log, e.registry.SupportedExtensions())
	for _, r := range conn.Discover(g) {
		if err := g.AddRelationship(r); err != nil {
			rep.EdgesDropped++
		}
	}
}

// parentDirEntityID returns the DIRECTORY entity id owning rel, or "" for
// top-level entries.
func parentDirEntityID(rel string) string {
	parent := path.Dir(rel)
	if parent == "." || parent == "/" {
		return ""
	}
	return kg.EntityID(kg.KindDirectory, parent, path.Base(parent), 1)
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 1
	}
	n := bytes.Count(data, []byte{'\n'}) + 1
	if data[len(data)-1] == '\n' {
		n--
	}
	return n
}
