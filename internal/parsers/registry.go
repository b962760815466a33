package parsers

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"locus/internal/kg"
	"locus/internal/logging"
)

// Registry routes files to parsers. Construct one per process; there is no
// package-level instance.
type Registry struct {
	log     *logging.Logger
	byName  map[string]Parser
	byExt   map[string]Parser
	ordered []string // registration order, for the CanParse probe
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		log:    log,
		byName: make(map[string]Parser),
		byExt:  make(map[string]Parser),
	}
}

// Register adds a parser under a language name and claims the given
// extensions. A later registration for an already-claimed extension wins and
// logs a warning; ambiguous ownership is resolved by registration order.
func (r *Registry) Register(name string, p Parser, extensions ...string) {
	if _, exists := r.byName[name]; !exists {
		r.ordered = append(r.ordered, name)
	}
	r.byName[name] = p

	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if prev, taken := r.byExt[ext]; taken && prev != p {
			r.log.Warn("extension re-registered, last parser wins", map[string]interface{}{
				"extension": ext,
				"parser":    name,
			})
		}
		r.byExt[ext] = p
	}
}

// ParserFor resolves the parser for a path: exact extension match first, then
// a CanParse probe in registration order. Returns nil when nothing claims it.
func (r *Registry) ParserFor(path string) Parser {
	ext := strings.ToLower(filepath.Ext(path))
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	for _, name := range r.ordered {
		if p := r.byName[name]; p.CanParse(path) {
			return p
		}
	}
	return nil
}

// Parse runs the matching parser over one file. Per-file failures never
// propagate: unparseable files, parser errors, and parser panics all log and
// yield an empty result so a single bad file cannot abort a scan.
func (r *Registry) Parse(ctx context.Context, path string, source []byte) (result *ParseResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("parser panic recovered", map[string]interface{}{
				"path":  path,
				"panic": rec,
			})
			result = emptyResult()
		}
	}()

	p := r.ParserFor(path)
	if p == nil {
		r.log.Debug("no parser for file", map[string]interface{}{"path": path})
		return emptyResult()
	}

	res, err := p.Parse(ctx, path, source)
	if err != nil {
		r.log.Warn("parse failed, skipping file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return emptyResult()
	}
	if res == nil {
		return emptyResult()
	}
	return r.validate(path, res)
}

// validate drops entities that violate the output contract and any
// relationship left with a missing endpoint. Entities are dropped, never
// repaired.
func (r *Registry) validate(path string, res *ParseResult) *ParseResult {
	kept := res.Entities[:0]
	valid := make(map[string]bool, len(res.Entities))
	for _, e := range res.Entities {
		if err := e.Validate(); err != nil {
			r.log.Debug("dropping invalid entity", map[string]interface{}{
				"path":  path,
				"id":    e.ID,
				"error": err.Error(),
			})
			continue
		}
		kept = append(kept, e)
		valid[e.ID] = true
	}
	res.Entities = kept

	keptRels := res.Relationships[:0]
	for _, rel := range res.Relationships {
		if err := rel.Validate(); err != nil {
			continue
		}
		if !valid[rel.SourceID] || !valid[rel.TargetID] {
			continue
		}
		keptRels = append(keptRels, rel)
	}
	res.Relationships = keptRels
	return res
}

// LanguageFor returns the name the matching parser was registered under, or
// the empty string when no parser claims the path.
func (r *Registry) LanguageFor(path string) string {
	p := r.ParserFor(path)
	if p == nil {
		return ""
	}
	for _, name := range r.ordered {
		if r.byName[name] == p {
			return name
		}
	}
	return ""
}

// SupportedExtensions returns the sorted set of claimed extensions.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Languages returns the registered language names in registration order.
func (r *Registry) Languages() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// KindsFor returns the entity kinds the parser registered under name may
// emit, or nil for an unknown name.
func (r *Registry) KindsFor(name string) []kg.EntityKind {
	p, ok := r.byName[name]
	if !ok {
		return nil
	}
	return p.SupportedKinds()
}
