//go:build cgo

package parsers

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language identifies a tree-sitter grammar.
type language string

const (
	langPython     language = "python"
	langJavaScript language = "javascript"
	langTypeScript language = "typescript"
	langTSX        language = "tsx"
	langGo         language = "go"
	langCSS        language = "css"
)

func grammarFor(lang language) (*sitter.Language, error) {
	switch lang {
	case langPython:
		return python.GetLanguage(), nil
	case langJavaScript:
		return javascript.GetLanguage(), nil
	case langTypeScript:
		return typescript.GetLanguage(), nil
	case langTSX:
		return tsx.GetLanguage(), nil
	case langGo:
		return golang.GetLanguage(), nil
	case langCSS:
		return css.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// parseTree parses source and returns the AST root. A fresh sitter.Parser is
// allocated per call; the underlying parser is not safe for concurrent reuse
// and the build pool parses many files at once.
func parseTree(ctx context.Context, source []byte, lang language) (*sitter.Node, error) {
	tsLang, err := grammarFor(lang)
	if err != nil {
		return nil, err
	}

	p := sitter.NewParser()
	p.SetLanguage(tsLang)
	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return tree.RootNode(), nil
}

// findNodes collects all descendants (and the root itself) whose type is in
// types, in document order.
func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}

	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if containsString(types, node.Type()) {
			result = append(result, node)
		}
		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}
	walk(root)
	return result
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) || start > end {
		return ""
	}
	return string(source[start:end])
}

func nodeStartLine(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

func nodeEndLine(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}

// signatureOf returns the first line of a declaration, cut at the body
// opener, as a compact human-readable signature.
func signatureOf(node *sitter.Node, source []byte) string {
	text := nodeText(node, source)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' || text[i] == '{' {
			return strings.TrimSpace(text[:i])
		}
	}
	if len(text) > 200 {
		return strings.TrimSpace(text[:200]) + "..."
	}
	return strings.TrimSpace(text)
}

// childIdentifier returns the node's "name" field, falling back to the first
// child of any of the given identifier types.
func childIdentifier(node *sitter.Node, source []byte, fallbackTypes ...string) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nodeText(nameNode, source)
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child != nil && containsString(fallbackTypes, child.Type()) {
			return nodeText(child, source)
		}
	}
	return ""
}

// stripQuotes removes one layer of matching string quotes.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
