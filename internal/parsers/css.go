//go:build cgo

package parsers

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"locus/internal/kg"
)

// CSSParser extracts rule sets, selectors, and declarations from stylesheets
// via the tree-sitter css grammar.
type CSSParser struct{}

func NewCSSParser() *CSSParser {
	return &CSSParser{}
}

func (p *CSSParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".css"
}

func (p *CSSParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindCSSRule, kg.KindCSSSelector,
		kg.KindCSSProperty, kg.KindImport,
	}
}

func (p *CSSParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	root, err := parseTree(ctx, source, langCSS)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, countLines(source))
	res.Entities = append(res.Entities, module)

	for _, node := range findNodes(root, []string{"rule_set"}) {
		selectorsNode := firstChildOfType(node, "selectors")
		name := collapseWhitespace(nodeText(selectorsNode, source))
		if name == "" {
			continue
		}
		if len(name) > 100 {
			name = name[:100]
		}
		rule := kg.NewEntity(kg.KindCSSRule, path, name, nodeStartLine(node), nodeEndLine(node))
		res.Entities = append(res.Entities, rule)

		if selectorsNode != nil {
			for i := 0; i < int(selectorsNode.NamedChildCount()); i++ {
				sel := selectorsNode.NamedChild(i)
				selName := collapseWhitespace(nodeText(sel, source))
				if selName == "" {
					continue
				}
				selector := kg.NewEntity(kg.KindCSSSelector, path, selName, nodeStartLine(sel), nodeEndLine(sel))
				res.Entities = append(res.Entities, selector)
			}
		}

		if block := firstChildOfType(node, "block"); block != nil {
			for i := 0; i < int(block.NamedChildCount()); i++ {
				decl := block.NamedChild(i)
				if decl == nil || decl.Type() != "declaration" {
					continue
				}
				propName := nodeText(firstChildOfType(decl, "property_name"), source)
				if propName == "" {
					continue
				}
				prop := kg.NewEntity(kg.KindCSSProperty, path, propName, nodeStartLine(decl), nodeEndLine(decl))
				prop.SetMeta("selector", name)
				if value := declarationValue(decl, source); value != "" {
					prop.SetMeta("value", value)
				}
				res.Entities = append(res.Entities, prop)
			}
		}
	}

	// At-rules keep their own entities so @media and @keyframes blocks are
	// addressable; @import feeds the cross-file connector.
	for _, node := range findNodes(root, []string{"media_statement"}) {
		name := collapseWhitespace(signatureOf(node, source))
		if name == "" {
			continue
		}
		rule := kg.NewEntity(kg.KindCSSRule, path, name, nodeStartLine(node), nodeEndLine(node))
		rule.SetMeta("atRule", "media")
		res.Entities = append(res.Entities, rule)
	}
	for _, node := range findNodes(root, []string{"keyframes_statement"}) {
		name := collapseWhitespace(signatureOf(node, source))
		if name == "" {
			continue
		}
		rule := kg.NewEntity(kg.KindCSSRule, path, name, nodeStartLine(node), nodeEndLine(node))
		rule.SetMeta("atRule", "keyframes")
		res.Entities = append(res.Entities, rule)
	}
	for _, node := range findNodes(root, []string{"import_statement"}) {
		target := cssImportTarget(node, source)
		if target == "" {
			continue
		}
		imp := kg.NewEntity(kg.KindImport, path, target, nodeStartLine(node), nodeEndLine(node))
		imp.SetMeta("module", target)
		res.Entities = append(res.Entities, imp)
	}

	return res, nil
}

func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child != nil && child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func declarationValue(decl *sitter.Node, source []byte) string {
	var parts []string
	seenProp := false
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "property_name" {
			seenProp = true
			continue
		}
		if seenProp {
			parts = append(parts, nodeText(child, source))
		}
	}
	value := collapseWhitespace(strings.Join(parts, " "))
	if len(value) > 100 {
		value = value[:100]
	}
	return value
}

// cssImportTarget pulls the stylesheet path out of @import "x.css" or
// @import url(x.css).
func cssImportTarget(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "string_value":
			return stripQuotes(nodeText(child, source))
		case "call_expression":
			text := nodeText(child, source)
			if open := strings.Index(text, "("); open >= 0 && strings.HasSuffix(text, ")") {
				return stripQuotes(strings.TrimSpace(text[open+1 : len(text)-1]))
			}
		}
	}
	return ""
}
