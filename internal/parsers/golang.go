//go:build cgo

package parsers

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"locus/internal/kg"
)

// GoParser extracts declarations from .go files. Struct types map to the
// class kind and interface types to the interface kind so cross-language
// queries stay uniform.
type GoParser struct{}

func NewGoParser() *GoParser {
	return &GoParser{}
}

func (p *GoParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".go"
}

func (p *GoParser) SupportedKinds() []kg.EntityKind {
	return []kg.EntityKind{
		kg.KindModule, kg.KindClass, kg.KindInterface, kg.KindFunction,
		kg.KindMethod, kg.KindVariable, kg.KindConstant, kg.KindImport,
	}
}

func (p *GoParser) Parse(ctx context.Context, path string, source []byte) (*ParseResult, error) {
	root, err := parseTree(ctx, source, langGo)
	if err != nil {
		return nil, err
	}

	res := &ParseResult{}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if pkg := goPackageName(root, source); pkg != "" {
		moduleName = pkg
	}
	module := kg.NewEntity(kg.KindModule, path, moduleName, 1, countLines(source))
	res.Entities = append(res.Entities, module)

	for _, node := range findNodes(root, []string{"type_declaration"}) {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			spec := node.NamedChild(i)
			if spec == nil || spec.Type() != "type_spec" {
				continue
			}
			name := nodeText(spec.ChildByFieldName("name"), source)
			if name == "" {
				continue
			}
			kind := kg.KindClass
			if typeNode := spec.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "interface_type" {
				kind = kg.KindInterface
			}
			ent := kg.NewEntity(kind, path, name, nodeStartLine(node), nodeEndLine(node))
			ent.Snippet = signatureOf(node, source)
			res.Entities = append(res.Entities, ent)
		}
	}

	for _, node := range findNodes(root, []string{"function_declaration"}) {
		name := childIdentifier(node, source, "identifier")
		if name == "" {
			continue
		}
		fn := kg.NewEntity(kg.KindFunction, path, name, nodeStartLine(node), nodeEndLine(node))
		fn.Snippet = signatureOf(node, source)
		res.Entities = append(res.Entities, fn)
	}

	for _, node := range findNodes(root, []string{"method_declaration"}) {
		name := nodeText(node.ChildByFieldName("name"), source)
		if name == "" {
			continue
		}
		method := kg.NewEntity(kg.KindMethod, path, name, nodeStartLine(node), nodeEndLine(node))
		method.Snippet = signatureOf(node, source)
		if recv := goReceiverType(node, source); recv != "" {
			method.SetMeta("parentClass", recv)
		}
		res.Entities = append(res.Entities, method)
	}

	for _, node := range findNodes(root, []string{"const_declaration"}) {
		res.Entities = append(res.Entities, goSpecNames(node, "const_spec", kg.KindConstant, path, source)...)
	}
	for _, node := range findNodes(root, []string{"var_declaration"}) {
		res.Entities = append(res.Entities, goSpecNames(node, "var_spec", kg.KindVariable, path, source)...)
	}

	for _, node := range findNodes(root, []string{"import_spec"}) {
		pathNode := node.ChildByFieldName("path")
		if pathNode == nil {
			continue
		}
		module := stripQuotes(nodeText(pathNode, source))
		if module == "" {
			continue
		}
		imp := kg.NewEntity(kg.KindImport, path, module, nodeStartLine(node), nodeEndLine(node))
		imp.SetMeta("module", module)
		res.Entities = append(res.Entities, imp)
	}

	return res, nil
}

func goPackageName(root *sitter.Node, source []byte) string {
	for _, node := range findNodes(root, []string{"package_clause"}) {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child != nil && child.Type() == "package_identifier" {
				return nodeText(child, source)
			}
		}
	}
	return ""
}

// goReceiverType returns the bare receiver type name, unwrapping pointers
// and type parameters: (s *Store[T]) yields Store.
func goReceiverType(method *sitter.Node, source []byte) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param == nil || param.Type() != "parameter_declaration" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		for typeNode != nil {
			switch typeNode.Type() {
			case "pointer_type":
				typeNode = typeNode.NamedChild(0)
			case "generic_type":
				typeNode = typeNode.ChildByFieldName("type")
			case "type_identifier":
				return nodeText(typeNode, source)
			default:
				return ""
			}
		}
	}
	return ""
}

// goSpecNames collects the declared identifiers of const/var specs. A single
// declaration can bind several names; each becomes its own entity.
func goSpecNames(decl *sitter.Node, specType string, kind kg.EntityKind, path string, source []byte) []*kg.Entity {
	var out []*kg.Entity
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		if spec == nil || spec.Type() != specType {
			continue
		}
		for j := uint32(0); j < spec.ChildCount(); j++ {
			child := spec.Child(int(j))
			if child == nil || child.Type() != "identifier" {
				continue
			}
			name := nodeText(child, source)
			if name == "" || name == "_" {
				continue
			}
			out = append(out, kg.NewEntity(kind, path, name, nodeStartLine(spec), nodeEndLine(spec)))
		}
	}
	return out
}
