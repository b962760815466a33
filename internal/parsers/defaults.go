//go:build cgo

package parsers

// RegisterDefaults installs every built-in parser. Registration order
// doubles as probe order for files matched by CanParse instead of extension.
func RegisterDefaults(reg *Registry) {
	reg.Register("python", NewPythonParser(), ".py")
	reg.Register("javascript", NewJavaScriptParser(), ".js", ".jsx")
	reg.Register("typescript", NewTypeScriptParser(), ".ts", ".tsx")
	reg.Register("go", NewGoParser(), ".go")
	reg.Register("css", NewCSSParser(), ".css")
	reg.Register("markdown", NewMarkdownParser(), ".md", ".markdown")
	reg.Register("html", NewHTMLParser(), ".html", ".htm")
}

// CodeAvailable reports whether the tree-sitter code parsers are compiled in.
func CodeAvailable() bool {
	return true
}
