package builder

import (
	"io/fs"
	"path/filepath"
	"strings"

	"locus/internal/config"
	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/logging"
)

// scannedFile is a file the scanner admitted for parsing.
type scannedFile struct {
	RelPath string // repo-relative, forward slashes
	AbsPath string
	Size    int64
}

// scanResult is everything one walk of the repository produced. Entities are
// ordered parent-first, so CONTAINS targets always follow their source.
type scanResult struct {
	Entities      []*kg.Entity
	Relationships []*kg.Relationship
	Files         []scannedFile
	Skipped       int
}

// scanner walks the repository tree and produces DIRECTORY and FILE entities
// with their containment edges. Admission rules live in Filter; the scanner
// adds only what needs a stat: the size limit.
type scanner struct {
	root   string
	cfg    config.ScanConfig
	log    *logging.Logger
	filter *Filter
}

func newScanner(root string, cfg config.ScanConfig, log *logging.Logger) (*scanner, error) {
	filter, err := NewFilter(root, cfg)
	if err != nil {
		return nil, err
	}
	return &scanner{root: root, cfg: cfg, log: log, filter: filter}, nil
}

// scan walks the tree rooted at s.root. Unreadable entries are skipped, not
// fatal; only a failure to walk the root itself aborts.
func (s *scanner) scan() (*scanResult, error) {
	res := &scanResult{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			s.log.Debug("skipping unreadable entry", map[string]interface{}{
				"path":  path,
				"error": walkErr.Error(),
			})
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil // the repo root itself is not an entity
		}

		if d.IsDir() {
			if s.filter.SkipDir(rel) {
				res.Skipped++
				return filepath.SkipDir
			}
			dir := kg.NewEntity(kg.KindDirectory, rel, d.Name(), 1, 1)
			res.Entities = append(res.Entities, dir)
			res.Relationships = appendContains(res.Relationships, parentDirID(rel), dir.ID)
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		keep, size := s.keepFile(rel, d)
		if !keep {
			res.Skipped++
			return nil
		}

		file := kg.NewEntity(kg.KindFile, rel, d.Name(), 1, 1)
		file.SetMeta("extension", strings.ToLower(filepath.Ext(rel)))
		res.Entities = append(res.Entities, file)
		res.Relationships = appendContains(res.Relationships, parentDirID(rel), file.ID)
		res.Files = append(res.Files, scannedFile{RelPath: rel, AbsPath: path, Size: size})
		return nil
	})
	if err != nil {
		return nil, locuserrors.New(locuserrors.BuildFailure, "repository walk failed", err)
	}
	return res, nil
}

func (s *scanner) keepFile(rel string, d fs.DirEntry) (bool, int64) {
	if !s.filter.AdmitFile(rel) {
		return false, 0
	}
	info, err := d.Info()
	if err != nil {
		return false, 0
	}
	if s.cfg.MaxFileSizeBytes > 0 && info.Size() > s.cfg.MaxFileSizeBytes {
		s.log.Debug("file exceeds size limit", map[string]interface{}{
			"path": rel,
			"size": info.Size(),
		})
		return false, 0
	}
	return true, info.Size()
}

// parentDirID returns the DIRECTORY entity id owning rel, or "" for
// top-level entries (the repo root is not an entity).
func parentDirID(rel string) string {
	parent := filepath.ToSlash(filepath.Dir(rel))
	if parent == "." || parent == "/" {
		return ""
	}
	return kg.EntityID(kg.KindDirectory, parent, lastSegment(parent), 1)
}

func appendContains(rels []*kg.Relationship, parentID, childID string) []*kg.Relationship {
	if parentID == "" {
		return rels
	}
	return append(rels, kg.NewRelationship(kg.RelContains, parentID, childID))
}

func pathDepth(rel string) int {
	return strings.Count(rel, "/") + 1
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
