//go:build cgo

package scan

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Scanner = (*TreeSitter)(nil)

// TreeSitter is the accelerated scanner backed by the tree-sitter JavaScript
// grammar.
type TreeSitter struct {
	parsers sync.Pool
}

// NewTreeSitter creates a new TreeSitter scanner.
func NewTreeSitter() *TreeSitter {
	ts := &TreeSitter{}
	ts.parsers.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(javascript.GetLanguage())
		return p
	}
	return ts
}

// Scan extracts imports, exports and syntax flags from content.
func (ts *TreeSitter) Scan(content []byte) (*domain.ScanResult, error) {
	parser := ts.parsers.Get().(*sitter.Parser) //nolint:forcetypeassert // pool only holds parsers
	defer ts.parsers.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrScanFailed.Error())
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, zerr.With(domain.ErrScanFailed, "reason", "syntax error")
	}

	w := &walker{src: content}
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		w.visit(n)
	}
	return w.c.result(), nil
}

type walker struct {
	src []byte
	c   collector
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) visit(n *sitter.Node) {
	switch n.Type() {
	case "import_statement":
		w.importStatement(n)
	case "export_statement":
		w.exportStatement(n)
	case "meta_property", "member_expression":
		if chainOf(w.text(n)) == "import.meta" {
			w.c.esm = true
		}
	case "call_expression":
		w.callExpression(n)
	case "assignment_expression":
		w.assignment(n)
	}
}

func (w *walker) importStatement(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	w.c.esm = true
	ref := domain.ImportRef{Specifier: unquote(w.text(source)), Kind: domain.ImportStatic}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				ref.Default = true
			case "namespace_import":
				ref.Namespace = true
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					if name := spec.ChildByFieldName("name"); name != nil {
						importName(&ref, unquote(w.text(name)))
					}
				}
			}
		}
	}
	w.c.addImport(ref)
}

func (w *walker) exportStatement(n *sitter.Node) {
	w.c.esm = true
	source := n.ChildByFieldName("source")
	spec := ""
	if source != nil {
		spec = unquote(w.text(source))
	}

	isDefault := false
	hasStar := false
	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "default":
			isDefault = true
		case "*":
			hasStar = true
		}
	}
	if isDefault {
		w.c.exportName("default")
		return
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		w.declaration(decl)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "export_clause":
			w.exportClause(child, spec)
			return
		case "namespace_export":
			if spec == "" || child.NamedChildCount() == 0 {
				return
			}
			alias := unquote(w.text(child.NamedChild(int(child.NamedChildCount()) - 1)))
			w.c.reexport(alias, spec)
			w.c.addImport(domain.ImportRef{Specifier: spec, Kind: domain.ImportStatic, Namespace: true})
			return
		}
	}
	if hasStar && spec != "" {
		w.c.star(spec)
	}
}

func (w *walker) exportClause(clause *sitter.Node, spec string) {
	ref := domain.ImportRef{Specifier: spec, Kind: domain.ImportStatic}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		s := clause.NamedChild(i)
		if s.Type() != "export_specifier" {
			continue
		}
		nameNode := s.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := unquote(w.text(nameNode))
		alias := name
		if aliasNode := s.ChildByFieldName("alias"); aliasNode != nil {
			alias = unquote(w.text(aliasNode))
		}
		if spec == "" {
			w.c.exportName(alias)
			continue
		}
		importName(&ref, name)
		w.c.reexport(alias, spec)
	}
	if spec != "" {
		w.c.addImport(ref)
	}
}

func (w *walker) declaration(decl *sitter.Node) {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration":
		if name := decl.ChildByFieldName("name"); name != nil {
			w.c.exportName(w.text(name))
		}
	case "lexical_declaration", "variable_declaration":
		live := decl.Type() == "variable_declaration" || (decl.ChildCount() > 0 && decl.Child(0).Type() == "let")
		if live {
			w.c.exports.LiveBindings = true
		}
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			declarator := decl.NamedChild(i)
			if declarator.Type() != "variable_declarator" {
				continue
			}
			if name := declarator.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				w.c.exportName(w.text(name))
			}
		}
	}
}

func (w *walker) callExpression(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "import":
		if args != nil && args.NamedChildCount() > 0 && args.NamedChild(0).Type() == "string" {
			w.c.addImport(domain.ImportRef{Specifier: unquote(w.text(args.NamedChild(0))), Kind: domain.ImportDynamic})
		}
	case "identifier":
		if w.text(fn) == "require" && args != nil && args.NamedChildCount() == 1 && args.NamedChild(0).Type() == "string" {
			w.c.cjs = true
			w.c.addImport(domain.ImportRef{Specifier: unquote(w.text(args.NamedChild(0))), Kind: domain.ImportRequire})
		}
	case "member_expression":
		w.c.call(chainOf(w.text(fn)))
	}
}

func (w *walker) assignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left == nil {
		return
	}
	switch left.Type() {
	case "member_expression":
		w.c.assign(chainOf(w.text(left)))
	case "subscript_expression":
		if obj := left.ChildByFieldName("object"); obj != nil {
			w.c.assignComputed(chainOf(w.text(obj)))
		}
	}
}
