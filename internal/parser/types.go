package parser

import "github.com/QTest-hq/callwithmax/internal/macro"

// Language represents a programming language
type Language string

const (
	LanguageCPP     Language = "cpp"
	LanguageUnknown Language = "unknown"
)

// ParsedFile represents a parsed source file
type ParsedFile struct {
	Path      string
	Language  Language
	Includes  []string
	Macros    []Macro
	Globals   []Global
	Functions []Function
	HasErrors bool // tree-sitter recovered from syntax errors
}

// Macro represents a function-like #define
type Macro struct {
	Definition *macro.Definition
	Text       string // Directive as written
	StartLine  int
}

// Global represents a file-scope variable
type Global struct {
	Name      string
	Type      string
	Init      string // Initializer expression, empty if none
	StartLine int
}

// Function represents a parsed function definition
type Function struct {
	ID         string // Unique identifier: file:line:name
	Name       string
	ReturnType string
	StartLine  int
	EndLine    int
	Parameters []Parameter
	Body       []Statement
	Template   bool // Declared inside a template
	Inline     bool
}

// HasReturn reports whether any top-level statement of the body is a return
func (f *Function) HasReturn() bool {
	for _, s := range f.Body {
		if s.Kind == StatementReturn {
			return true
		}
	}
	return false
}

// Parameter represents a function parameter
type Parameter struct {
	Name      string
	Type      string
	Const     bool
	Reference bool
}

// StatementKind classifies the statements the interpreter understands
type StatementKind string

const (
	StatementReturn      StatementKind = "return"
	StatementExpression  StatementKind = "expression"
	StatementDeclaration StatementKind = "declaration"
	StatementOther       StatementKind = "other"
)

// Statement is a top-level statement of a function body
type Statement struct {
	Kind StatementKind
	Name string // Declared variable for declarations
	Expr string // Expression text; empty for a bare return
	Text string
	Line int
}

// FindMacro returns the macro with the given name
func (p *ParsedFile) FindMacro(name string) (*macro.Definition, bool) {
	for _, m := range p.Macros {
		if m.Definition.Name == name {
			return m.Definition, true
		}
	}
	return nil, false
}

// FindFunction returns the last definition of the named function
func (p *ParsedFile) FindFunction(name string) (*Function, bool) {
	for i := len(p.Functions) - 1; i >= 0; i-- {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}
