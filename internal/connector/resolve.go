package connector

import (
	"path"
	"strings"
)

// resolvePath resolves a plain path reference: relative to the source file's
// directory first, then from the repo root, then both again with each
// supported extension appended. First hit wins.
func (c *Connector) resolvePath(ref, sourcePath string, files map[string]string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	// Strip query strings and fragments from web-style references
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return "", false
	}

	rooted := strings.HasPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, "/")

	var bases []string
	if !rooted {
		bases = append(bases, path.Join(path.Dir(sourcePath), ref))
	}
	bases = append(bases, path.Clean(ref))

	for _, base := range bases {
		if id, ok := files[base]; ok {
			return id, true
		}
	}
	for _, base := range bases {
		for _, ext := range c.extensions {
			if id, ok := files[base+ext]; ok {
				return id, true
			}
		}
	}
	return "", false
}

// resolvePython resolves a dotted module specifier. a.b is tried as a/b.py
// and a/b/__init__.py, relative to the source directory and from the repo
// root. Leading dots walk up from the source directory, one level per dot
// past the first.
func (c *Connector) resolvePython(ref, sourcePath string, files map[string]string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	dir := path.Dir(sourcePath)
	var bases []string

	if strings.HasPrefix(ref, ".") {
		rest := strings.TrimLeft(ref, ".")
		up := len(ref) - len(rest) - 1
		base := dir
		for i := 0; i < up; i++ {
			base = path.Dir(base)
		}
		if rest == "" {
			return "", false
		}
		bases = append(bases, path.Join(base, dottedToPath(rest)))
	} else {
		rel := dottedToPath(ref)
		bases = append(bases, path.Join(dir, rel), rel)
	}

	for _, base := range bases {
		if id, ok := files[base+".py"]; ok {
			return id, true
		}
		if id, ok := files[path.Join(base, "__init__.py")]; ok {
			return id, true
		}
	}
	return "", false
}

func dottedToPath(ref string) string {
	return strings.ReplaceAll(ref, ".", "/")
}

// resolveScript resolves a JavaScript/TypeScript import specifier. Only
// relative specifiers can name repo files; bare specifiers are package
// imports and fall through to the generic resolver (which handles the rare
// repo-rooted form).
func (c *Connector) resolveScript(ref, sourcePath string, files map[string]string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	scriptExts := []string{".js", ".ts", ".jsx", ".tsx"}

	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		base := path.Join(path.Dir(sourcePath), ref)
		if id, ok := files[base]; ok {
			return id, true
		}
		for _, ext := range scriptExts {
			if id, ok := files[base+ext]; ok {
				return id, true
			}
		}
		for _, ext := range scriptExts {
			if id, ok := files[path.Join(base, "index"+ext)]; ok {
				return id, true
			}
		}
		return "", false
	}

	return c.resolvePath(ref, sourcePath, files)
}
