// Package connector discovers cross-file relationships. Parsers record raw
// references (imports, hrefs, script sources, documentation paths) as entity
// metadata; the connector resolves them against the indexed file set and
// emits file-to-file edges. Resolution never touches the filesystem, so a
// re-run over the same graph produces the identical relationship set.
package connector

import (
	"path"
	"strings"

	"locus/internal/kg"
	"locus/internal/logging"
)

// Connector resolves raw references into relationships.
type Connector struct {
	log        *logging.Logger
	extensions []string
}

// New creates a connector. extensions is the registry's supported set, used
// when probing reference candidates that omit their extension.
func New(log *logging.Logger, extensions []string) *Connector {
	if log == nil {
		log = logging.Nop()
	}
	return &Connector{log: log, extensions: extensions}
}

// EntitySource is the read view Discover works from: a deterministic id
// order plus lookup. Both *kg.Graph and the builder's in-progress entity
// set satisfy it.
type EntitySource interface {
	EntityIDs() []string
	Entity(id string) (*kg.Entity, bool)
}

// Discover extracts references from every entity in the source and returns
// the cross-file relationships that resolve. Unresolvable references are
// dropped silently; they are expected (stdlib imports, external URLs).
func (c *Connector) Discover(src EntitySource) []*kg.Relationship {
	files := make(map[string]string)       // repo path -> FILE entity id
	directories := make(map[string]string) // repo path -> DIRECTORY entity id
	for _, id := range src.EntityIDs() {
		e, _ := src.Entity(id)
		switch e.Kind {
		case kg.KindFile:
			files[e.Path] = e.ID
		case kg.KindDirectory:
			directories[e.Path] = e.ID
		}
	}

	var out []*kg.Relationship
	emit := func(kind kg.RelationshipKind, sourceFile, targetID, ref string) {
		sourceID, ok := files[sourceFile]
		if !ok || sourceID == targetID {
			return
		}
		rel := kg.NewRelationship(kind, sourceID, targetID)
		rel.SetMeta("reference", ref)
		out = append(out, rel)
	}

	for _, id := range src.EntityIDs() {
		e, _ := src.Entity(id)
		switch {
		case e.Kind == kg.KindImport:
			ref, ok := e.Meta("module")
			if !ok {
				continue
			}
			if target, found := c.resolveImport(ref, e.Path, files); found {
				emit(kg.RelImports, e.Path, target, ref)
			} else if dirID, found := resolvePackageDir(ref, directories); found {
				// Imports naming a package directory (Go-style) still carry
				// a dependency signal even without a single target file.
				emit(kg.RelDependsOn, e.Path, dirID, ref)
			}

		case e.Kind == kg.KindLink:
			ref, ok := e.Meta("href")
			if !ok || isExternalRef(ref) {
				continue
			}
			if target, found := c.resolvePath(ref, e.Path, files); found {
				emit(kg.RelDocuments, e.Path, target, ref)
			}

		case e.Kind == kg.KindHTMLElement:
			refType, _ := e.Meta("refType")
			switch refType {
			case "stylesheet":
				ref, _ := e.Meta("href")
				if isExternalRef(ref) {
					continue
				}
				if target, found := c.resolvePath(ref, e.Path, files); found {
					emit(kg.RelStyles, e.Path, target, ref)
				}
			case "script":
				ref, _ := e.Meta("src")
				if isExternalRef(ref) {
					continue
				}
				if target, found := c.resolvePath(ref, e.Path, files); found {
					emit(kg.RelScripts, e.Path, target, ref)
				}
			}
		}
	}

	c.log.Debug("connector pass complete", map[string]interface{}{
		"relationships": len(out),
	})
	return out
}

// resolveImport resolves an import specifier from a source file. Language
// conventions are inferred from the source extension.
func (c *Connector) resolveImport(ref, sourcePath string, files map[string]string) (string, bool) {
	switch strings.ToLower(path.Ext(sourcePath)) {
	case ".py":
		return c.resolvePython(ref, sourcePath, files)
	case ".js", ".jsx", ".ts", ".tsx":
		return c.resolveScript(ref, sourcePath, files)
	default:
		return c.resolvePath(ref, sourcePath, files)
	}
}

// resolvePackageDir matches an import specifier against known directories,
// trying the full reference and then progressively shorter suffixes so a
// module-qualified path like locus/internal/kg can match internal/kg.
func resolvePackageDir(ref string, directories map[string]string) (string, bool) {
	ref = strings.Trim(path.Clean(ref), "/")
	if ref == "" || ref == "." {
		return "", false
	}
	parts := strings.Split(ref, "/")
	for i := 0; i < len(parts); i++ {
		candidate := strings.Join(parts[i:], "/")
		if id, ok := directories[candidate]; ok {
			return id, true
		}
	}
	return "", false
}

// isExternalRef filters references that can never name a repo file.
func isExternalRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	for _, prefix := range []string{"http://", "https://", "mailto:", "//", "data:"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}
