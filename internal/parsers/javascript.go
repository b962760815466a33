//go:build cgo

package parsers

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"locus/internal/kg"
)

// scriptParser holds the extraction shared by the JavaScript and TypeScript
// parsers. The grammars differ, the node shapes mostly do not.
type scriptParser struct{}

// JavaScriptParser handles .js and .jsx files.
type JavaScriptParser struct {
	scriptParser
}

func NewJavaScriptParser() *JavaScriptParser {
	return &JavaScriptParser{}
}

func (p *JavaScriptParser) CanParse(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx":
		return true
	}
	return false
}

func (p *JavaScriptParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindClass, kg.KindFunction,
		kg.KindMethod, kg.KindImport,
	}
}

func (p *JavaScriptParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	return p.parseScript(ctx, path, source, langJavaScript, false)
}

func (s *scriptParser) parseScript(ctx context.Context, path string, source []byte, lang language, typed bool) (*ParseResult, error) {
	root, err := parseTree(ctx, source, lang)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, countLines(source))
	res.Entities = append(res.Entities, module)

	classByName := make(map[string]*kg.Entity)

	classNodes := findNodes(root, []string{"class_declaration", "class"})
	for _, node := range classNodes {
		name := childIdentifier(node, source, "identifier", "type_identifier")
		if name == "" {
			continue
		}
		cls := kg.NewEntity(kg.KindClass, path, name, nodeStartLine(node), nodeEndLine(node))
		cls.Snippet = signatureOf(node, source)
		res.Entities = append(res.Entities, cls)
		if _, dup := classByName[name]; !dup {
			classByName[name] = cls
		}
	}

	if typed {
		for _, node := range findNodes(root, []string{"interface_declaration"}) {
			name := childIdentifier(node, source, "type_identifier", "identifier")
			if name == "" {
				continue
			}
			iface := kg.NewEntity(kg.KindInterface, path, name, nodeStartLine(node), nodeEndLine(node))
			iface.Snippet = signatureOf(node, source)
			res.Entities = append(res.Entities, iface)
		}
		for _, node := range findNodes(root, []string{"enum_declaration"}) {
			name := childIdentifier(node, source, "identifier")
			if name == "" {
				continue
			}
			enum := kg.NewEntity(kg.KindEnum, path, name, nodeStartLine(node), nodeEndLine(node))
			res.Entities = append(res.Entities, enum)
		}
	}

	funcTypes := []string{"function_declaration", "generator_function_declaration"}
	for _, node := range findNodes(root, funcTypes) {
		name := childIdentifier(node, source, "identifier")
		if name == "" {
			continue
		}
		fn := kg.NewEntity(kg.KindFunction, path, name, nodeStartLine(node), nodeEndLine(node))
		fn.Snippet = signatureOf(node, source)
		res.Entities = append(res.Entities, fn)
	}

	// const f = () => {} and const f = function() {} count as functions
	for _, node := range findNodes(root, []string{"variable_declarator"}) {
		value := node.ChildByFieldName("value")
		if value == nil {
			continue
		}
		switch value.Type() {
		case "arrow_function", "function_expression", "function":
		default:
			continue
		}
		name := nodeText(node.ChildByFieldName("name"), source)
		if name == "" {
			continue
		}
		fn := kg.NewEntity(kg.KindFunction, path, name, nodeStartLine(node), nodeEndLine(value))
		fn.Snippet = signatureOf(node, source)
		res.Entities = append(res.Entities, fn)
	}

	for _, node := range findNodes(root, []string{"method_definition"}) {
		name := nodeText(node.ChildByFieldName("name"), source)
		if name == "" {
			continue
		}
		method := kg.NewEntity(kg.KindMethod, path, name, nodeStartLine(node), nodeEndLine(node))
		method.Snippet = signatureOf(node, source)
		if owner := enclosingScriptClass(node, source); owner != "" {
			method.SetMeta("parentClass", owner)
		}
		res.Entities = append(res.Entities, method)
	}

	res.Entities = append(res.Entities, scriptImports(root, source, path)...)

	// extends resolved against classes declared in the same file
	for _, node := range classNodes {
		name := childIdentifier(node, source, "identifier", "type_identifier")
		child, ok := classByName[name]
		if !ok {
			continue
		}
		superName := extendsTarget(node, source)
		if parent, ok := classByName[superName]; ok && parent != child {
			res.Relationships = append(res.Relationships,
				kg.NewRelationship(kg.RelInherits, child.ID, parent.ID))
		}
	}

	return res, nil
}

func enclosingScriptClass(node *sitter.Node, source []byte) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() == "class_declaration" || cur.Type() == "class" {
			return childIdentifier(cur, source, "identifier", "type_identifier")
		}
	}
	return ""
}

func extendsTarget(classNode *sitter.Node, source []byte) string {
	for i := uint32(0); i < classNode.ChildCount(); i++ {
		child := classNode.Child(int(i))
		if child == nil || child.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			expr := child.NamedChild(j)
			if expr.Type() == "identifier" || expr.Type() == "type_identifier" {
				return nodeText(expr, source)
			}
		}
	}
	return ""
}

// scriptImports covers ES module imports and CommonJS require calls.
func scriptImports(root *sitter.Node, source []byte, path string) []*kg.Entity {
	var out []*kg.Entity
	emit := func(module string, node *sitter.Node) {
		module = strings.TrimSpace(module)
		if module == "" {
			return
		}
		imp := kg.NewEntity(kg.KindImport, path, module, nodeStartLine(node), nodeEndLine(node))
		imp.SetMeta("module", module)
		out = append(out, imp)
	}

	for _, node := range findNodes(root, []string{"import_statement"}) {
		if src := node.ChildByFieldName("source"); src != nil {
			emit(stripQuotes(nodeText(src, source)), node)
		}
	}
	for _, node := range findNodes(root, []string{"call_expression"}) {
		fn := node.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" || nodeText(fn, source) != "require" {
			continue
		}
		args := node.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() == 0 {
			continue
		}
		arg := args.NamedChild(0)
		if arg.Type() == "string" {
			emit(stripQuotes(nodeText(arg, source)), node)
		}
	}
	return out
}
