//go:build !cgo

package parsers

// RegisterDefaults installs the pure-Go markup parsers. The tree-sitter code
// parsers need cgo; without it indexing still works for docs and markup.
func RegisterDefaults(reg *Registry) {
	reg.Register("markdown", NewMarkdownParser(), ".md", ".markdown")
	reg.Register("html", NewHTMLParser(), ".html", ".htm")
}

// CodeAvailable reports whether the tree-sitter code parsers are compiled in.
func CodeAvailable() bool {
	return false
}
