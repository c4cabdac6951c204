package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/QTest-hq/callwithmax/internal/macro"
)

// ErrSyntax is returned when an expression does not parse cleanly
var ErrSyntax = errors.New("syntax error")

// exprWrapper is the function an expression is parsed inside of
const exprWrapper = "__expr"

// Parser parses C++ source using tree-sitter
type Parser struct {
	cppParser *sitter.Parser
}

// NewParser creates a new C++ parser
func NewParser() *Parser {
	cppParser := sitter.NewParser()
	cppParser.SetLanguage(cpp.GetLanguage())

	return &Parser{cppParser: cppParser}
}

// ParseFile parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*ParsedFile, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if lang := DetectLanguage(filePath); lang != LanguageCPP {
		return nil, fmt.Errorf("unsupported language for file: %s", filePath)
	}

	return p.ParseContent(ctx, filePath, string(content))
}

// ParseContent parses C++ source content
func (p *Parser) ParseContent(ctx context.Context, filePath, content string) (*ParsedFile, error) {
	source := []byte(content)

	tree, err := p.cppParser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	parsed := &ParsedFile{
		Path:      filePath,
		Language:  LanguageCPP,
		Includes:  make([]string, 0),
		Macros:    make([]Macro, 0),
		Globals:   make([]Global, 0),
		Functions: make([]Function, 0),
		HasErrors: root.HasError(),
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "preproc_include":
			if pathNode := child.ChildByFieldName("path"); pathNode != nil {
				parsed.Includes = append(parsed.Includes, pathNode.Content(source))
			}
		case "preproc_function_def":
			if m := p.parseMacro(child, source); m != nil {
				parsed.Macros = append(parsed.Macros, *m)
			}
		case "declaration":
			parsed.Globals = append(parsed.Globals, p.parseDeclaration(child, source)...)
		case "function_definition":
			p.addFunction(parsed, child, source, false)
		case "template_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if inner := child.NamedChild(j); inner.Type() == "function_definition" {
					p.addFunction(parsed, inner, source, true)
				}
			}
		}
	}

	return parsed, nil
}

func (p *Parser) addFunction(parsed *ParsedFile, node *sitter.Node, source []byte, template bool) {
	fn := p.parseFunction(node, source)
	if fn == nil {
		return
	}
	fn.Template = template
	fn.ID = fmt.Sprintf("%s:%d:%s", parsed.Path, fn.StartLine, fn.Name)
	parsed.Functions = append(parsed.Functions, *fn)
}

func (p *Parser) parseMacro(node *sitter.Node, source []byte) *Macro {
	nameNode := node.ChildByFieldName("name")
	paramsNode := node.ChildByFieldName("parameters")
	if nameNode == nil || paramsNode == nil {
		return nil
	}

	def := &macro.Definition{
		Name:   nameNode.Content(source),
		Params: make([]string, 0),
	}
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		if param := paramsNode.NamedChild(i); param.Type() == "identifier" {
			def.Params = append(def.Params, param.Content(source))
		}
	}
	if valueNode := node.ChildByFieldName("value"); valueNode != nil {
		def.Body = strings.TrimSpace(valueNode.Content(source))
	}

	return &Macro{
		Definition: def,
		Text:       strings.TrimSpace(node.Content(source)),
		StartLine:  int(node.StartPoint().Row) + 1,
	}
}

// parseDeclaration extracts the variables declared by a declaration node
func (p *Parser) parseDeclaration(node *sitter.Node, source []byte) []Global {
	globals := make([]Global, 0)

	var typ string
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		typ = typeNode.Content(source)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		g := Global{Type: typ, StartLine: int(child.StartPoint().Row) + 1}
		switch child.Type() {
		case "identifier":
			g.Name = child.Content(source)
		case "init_declarator":
			if decl := child.ChildByFieldName("declarator"); decl != nil && decl.Type() == "identifier" {
				g.Name = decl.Content(source)
			}
			if value := child.ChildByFieldName("value"); value != nil {
				g.Init = value.Content(source)
			}
		}
		if g.Name != "" {
			globals = append(globals, g)
		}
	}

	return globals
}

func (p *Parser) parseFunction(node *sitter.Node, source []byte) *Function {
	fn := &Function{
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
		Parameters: make([]Parameter, 0),
		Body:       make([]Statement, 0),
	}

	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		fn.ReturnType = typeNode.Content(source)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "storage_class_specifier" && child.Content(source) == "inline" {
			fn.Inline = true
		}
	}

	// The function declarator may be wrapped, e.g. int& f() or int* f()
	decl := node.ChildByFieldName("declarator")
	for decl != nil && decl.Type() != "function_declarator" {
		decl = decl.ChildByFieldName("declarator")
	}
	if decl == nil {
		return nil
	}

	if nameNode := decl.ChildByFieldName("declarator"); nameNode != nil {
		fn.Name = nameNode.Content(source)
	}
	if paramsNode := decl.ChildByFieldName("parameters"); paramsNode != nil {
		fn.Parameters = p.parseParameters(paramsNode, source)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		fn.Body = p.parseBody(body, source)
	}

	return fn
}

func (p *Parser) parseParameters(node *sitter.Node, source []byte) []Parameter {
	params := make([]Parameter, 0)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "parameter_declaration" {
			continue
		}

		var param Parameter
		if typeNode := child.ChildByFieldName("type"); typeNode != nil {
			param.Type = typeNode.Content(source)
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if q := child.NamedChild(j); q.Type() == "type_qualifier" && q.Content(source) == "const" {
				param.Const = true
			}
		}
		if declNode := child.ChildByFieldName("declarator"); declNode != nil {
			param.Reference = declNode.Type() == "reference_declarator"
			param.Name = firstIdentifier(declNode, source)
		}

		if param.Name != "" {
			params = append(params, param)
		}
	}

	return params
}

func (p *Parser) parseBody(node *sitter.Node, source []byte) []Statement {
	stmts := make([]Statement, 0)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}

		stmt := Statement{
			Kind: StatementOther,
			Text: child.Content(source),
			Line: int(child.StartPoint().Row) + 1,
		}

		switch child.Type() {
		case "return_statement":
			stmt.Kind = StatementReturn
			if child.NamedChildCount() > 0 {
				stmt.Expr = child.NamedChild(0).Content(source)
			}
		case "expression_statement":
			stmt.Kind = StatementExpression
			if child.NamedChildCount() > 0 {
				stmt.Expr = child.NamedChild(0).Content(source)
			}
		case "declaration":
			// Only single-variable declarations are understood
			if vars := p.parseDeclaration(child, source); len(vars) == 1 {
				stmt.Kind = StatementDeclaration
				stmt.Name = vars[0].Name
				stmt.Expr = vars[0].Init
			}
		}

		stmts = append(stmts, stmt)
	}

	return stmts
}

func firstIdentifier(node *sitter.Node, source []byte) string {
	if node.Type() == "identifier" {
		return node.Content(source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if name := firstIdentifier(node.NamedChild(i), source); name != "" {
			return name
		}
	}
	return ""
}

// Expression is a parsed C++ expression. Close releases the tree.
type Expression struct {
	Node   *sitter.Node
	Source []byte

	tree *sitter.Tree
}

// Close releases the underlying syntax tree
func (e *Expression) Close() {
	if e.tree != nil {
		e.tree.Close()
		e.tree = nil
	}
}

// Text returns the source text of n
func (e *Expression) Text(n *sitter.Node) string {
	return n.Content(e.Source)
}

// ParseExpression parses a single C++ expression. The caller must Close the
// result.
func (p *Parser) ParseExpression(ctx context.Context, expr string) (*Expression, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	// The expression is parenthesised in a return so that forms like x * y
	// are not read as declarations.
	prefix := "int " + exprWrapper + "() {\nreturn "
	source := []byte(prefix + "(" + expr + ");\n}\n")
	tree, err := p.cppParser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		tree.Close()
		return nil, fmt.Errorf("%w: %q", ErrSyntax, expr)
	}

	inner := unwrapExpression(root, uint32(len(prefix)), uint32(len(prefix)+len(expr)+2))
	if inner == nil {
		tree.Close()
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrSyntax, expr)
	}

	return &Expression{Node: inner, Source: source, tree: tree}, nil
}

// unwrapExpression returns the expression inside the wrapper's return
// parentheses, or nil when the parentheses parsed as anything but the pair
// spanning [start, end).
func unwrapExpression(root *sitter.Node, start, end uint32) *sitter.Node {
	fn := root.NamedChild(0)
	if fn == nil {
		return nil
	}
	body := fn.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() != 1 {
		return nil
	}
	ret := body.NamedChild(0)
	if ret.Type() != "return_statement" || ret.NamedChildCount() != 1 {
		return nil
	}
	paren := ret.NamedChild(0)
	if paren.Type() != "parenthesized_expression" || paren.NamedChildCount() != 1 {
		return nil
	}
	if paren.StartByte() != start || paren.EndByte() != end {
		return nil
	}
	return paren.NamedChild(0)
}

// DetectLanguage detects language from file extension
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".cpp", ".cc", ".cxx", ".c++", ".hpp", ".hh", ".h":
		return LanguageCPP
	default:
		return LanguageUnknown
	}
}
