//go:build cgo

package parsers

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"locus/internal/kg"
)

// PythonParser extracts modules, classes, functions, methods, and imports
// from .py files via the tree-sitter python grammar.
type PythonParser struct{}

func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

func (p *PythonParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".py"
}

func (p *PythonParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindClass, kg.KindFunction,
		kg.KindMethod, kg.KindImport,
	}
}

func (p *PythonParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	root, err := parseTree(ctx, source, langPython)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, countLines(source))
	module.Docstring = blockDocstring(root, source)
	res.Entities = append(res.Entities, module)

	classByName := make(map[string]*kg.Entity)
	funcByName := make(map[string]*kg.Entity)
	funcBodies := make(map[string]*sitter.Node)

	for _, node := range findNodes(root, []string{"class_definition"}) {
		name := childIdentifier(node, source, "identifier")
		if name == "" {
			continue
		}
		cls := kg.NewEntity(kg.KindClass, path, name, nodeStartLine(node), nodeEndLine(node))
		cls.Docstring = bodyDocstring(node, source)
		cls.Snippet = signatureOf(node, source)
		if deco := decoratorList(node, source); deco != "" {
			cls.SetMeta("decorators", deco)
		}
		res.Entities = append(res.Entities, cls)
		if _, dup := classByName[name]; !dup {
			classByName[name] = cls
		}
	}

	for _, node := range findNodes(root, []string{"function_definition"}) {
		name := childIdentifier(node, source, "identifier")
		if name == "" {
			continue
		}

		kind := kg.KindFunction
		parentClass := enclosingPythonClass(node, source)
		if parentClass != "" {
			kind = kg.KindMethod
		}

		fn := kg.NewEntity(kind, path, name, nodeStartLine(node), nodeEndLine(node))
		fn.Docstring = bodyDocstring(node, source)
		fn.Snippet = signatureOf(node, source)
		if params := nodeText(node.ChildByFieldName("parameters"), source); params != "" {
			fn.SetMeta("parameters", params)
		}
		if parentClass != "" {
			fn.SetMeta("parentClass", parentClass)
		}
		if deco := decoratorList(node, source); deco != "" {
			fn.SetMeta("decorators", deco)
		}
		res.Entities = append(res.Entities, fn)
		if _, dup := funcByName[name]; !dup {
			funcByName[name] = fn
			funcBodies[name] = node.ChildByFieldName("body")
		}
	}

	res.Entities = append(res.Entities, pythonImports(root, source, path)...)

	// INHERITS against classes declared in the same file
	for _, node := range findNodes(root, []string{"class_definition"}) {
		name := childIdentifier(node, source, "identifier")
		child, ok := classByName[name]
		if !ok {
			continue
		}
		supers := node.ChildByFieldName("superclasses")
		if supers == nil {
			continue
		}
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			superName := nodeText(supers.NamedChild(i), source)
			if parent, ok := classByName[superName]; ok && parent != child {
				res.Relationships = append(res.Relationships,
					kg.NewRelationship(kg.RelInherits, child.ID, parent.ID))
			}
		}
	}

	// CALLS resolved by name against functions declared in the same file.
	// Name resolution is a heuristic, so these edges carry reduced confidence.
	for name, body := range funcBodies {
		caller := funcByName[name]
		if body == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, call := range findNodes(body, []string{"call"}) {
			calleeName := pythonCalleeName(call, source)
			callee, ok := funcByName[calleeName]
			if !ok || seen[callee.ID] {
				continue
			}
			seen[callee.ID] = true
			rel := kg.NewRelationship(kg.RelCalls, caller.ID, callee.ID)
			rel.WithConfidence(0.8)
			res.Relationships = append(res.Relationships, rel)
		}
	}

	return res, nil
}

// enclosingPythonClass climbs the ancestor chain; a function whose nearest
// enclosing definition is a class is a method of that class. Functions nested
// inside other functions stay plain functions.
func enclosingPythonClass(node *sitter.Node, source []byte) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "class_definition":
			return childIdentifier(cur, source, "identifier")
		case "function_definition":
			return ""
		}
	}
	return ""
}

// blockDocstring returns the docstring when the first statement of block is a
// bare string expression.
func blockDocstring(block *sitter.Node, source []byte) string {
	if block == nil || block.NamedChildCount() == 0 {
		return ""
	}
	first := block.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	return cleanPythonString(nodeText(str, source))
}

func bodyDocstring(def *sitter.Node, source []byte) string {
	return blockDocstring(def.ChildByFieldName("body"), source)
}

func cleanPythonString(s string) string {
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(stripQuotes(s))
}

// decoratorList joins the decorators of a decorated definition.
func decoratorList(def *sitter.Node, source []byte) string {
	parent := def.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return ""
	}
	var decos []string
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)
		if child != nil && child.Type() == "decorator" {
			decos = append(decos, strings.TrimPrefix(nodeText(child, source), "@"))
		}
	}
	return strings.Join(decos, ",")
}

// pythonImports emits one IMPORT entity per imported module. The raw module
// path lands in metadata for the connector to resolve across files.
func pythonImports(root *sitter.Node, source []byte, path string) []*kg.Entity {
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
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				emit(nodeText(child, source), node)
			case "aliased_import":
				if nameNode := child.ChildByFieldName("name"); nameNode != nil {
					emit(nodeText(nameNode, source), node)
				}
			}
		}
	}
	for _, node := range findNodes(root, []string{"import_from_statement"}) {
		if moduleNode := node.ChildByFieldName("module_name"); moduleNode != nil {
			emit(nodeText(moduleNode, source), node)
		}
	}
	return out
}

// pythonCalleeName returns the called name: the identifier itself, or the
// final attribute of a dotted call like obj.save().
func pythonCalleeName(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return nodeText(fn, source)
	case "attribute":
		return nodeText(fn.ChildByFieldName("attribute"), source)
	}
	return ""
}
