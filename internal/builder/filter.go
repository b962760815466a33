package builder

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"locus/internal/config"
	locuserrors "locus/internal/errors"
)

// Filter is the scanner's admission rule set, usable outside a build. Watch
// mode applies it to event paths so a watched tree and a full build admit
// exactly the same directories and files.
type Filter struct {
	cfg        config.ScanConfig
	skip       []glob.Glob
	matcher    *ignore.GitIgnore // nil when absent or disabled
	extensions map[string]bool
}

// NewFilter compiles the scan configuration into a reusable filter. An
// invalid skip pattern is a configuration error.
func NewFilter(root string, cfg config.ScanConfig) (*Filter, error) {
	f := &Filter{
		cfg:        cfg,
		extensions: make(map[string]bool, len(cfg.Extensions)),
	}
	for _, ext := range cfg.Extensions {
		f.extensions[strings.ToLower(ext)] = true
	}
	for _, pattern := range cfg.SkipPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, locuserrors.New(locuserrors.ConfigInvalid,
				"invalid skip pattern "+pattern, err)
		}
		f.skip = append(f.skip, g)
	}
	if cfg.RespectGitignore {
		matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
		if err == nil {
			f.matcher = matcher
		}
	}
	return f, nil
}

// SkipDir reports whether a directory is excluded. rel is repo-relative
// with forward slashes.
func (f *Filter) SkipDir(rel string) bool {
	if f.matchesSkip(rel, lastSegment(rel)) {
		return true
	}
	if f.cfg.MaxDepth > 0 && pathDepth(rel) > f.cfg.MaxDepth {
		return true
	}
	if f.matcher != nil && f.matcher.MatchesPath(rel+"/") {
		return true
	}
	return false
}

// AdmitFile reports whether a file passes the skip, extension and gitignore
// rules. The size limit is enforced separately, where the file is read.
func (f *Filter) AdmitFile(rel string) bool {
	if f.matchesSkip(rel, lastSegment(rel)) {
		return false
	}
	if !f.extensions[strings.ToLower(filepath.Ext(rel))] {
		return false
	}
	if f.matcher != nil && f.matcher.MatchesPath(rel) {
		return false
	}
	return true
}

// matchesSkip tests a skip pattern against both the entry name and the full
// relative path, so ".git" hits at any depth and "docs/generated" hits the
// one place it names.
func (f *Filter) matchesSkip(rel, name string) bool {
	for _, g := range f.skip {
		if g.Match(name) || g.Match(rel) {
			return true
		}
	}
	return false
}
