//go:build cgo

package parsers

import (
	"context"
	"path/filepath"
	"strings"

	"locus/internal/kg"
)

// TypeScriptParser handles .ts via the typescript grammar and .tsx via the
// tsx grammar; everything else rides on the shared script extraction.
type TypeScriptParser struct {
	scriptParser
}

func NewTypeScriptParser() *TypeScriptParser {
	return &TypeScriptParser{}
}

func (p *TypeScriptParser) CanParse(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx":
		return true
	}
	return false
}

func (p *TypeScriptParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindClass, kg.KindInterface, kg.KindEnum,
		kg.KindFunction, kg.KindMethod, kg.KindImport,
	}
}

func (p *TypeScriptParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	lang := langTypeScript
	if strings.ToLower(filepath.Ext(path)) == ".tsx" {
		lang = langTSX
	}
	return p.parseScript(ctx, path, source, lang, true)
}
