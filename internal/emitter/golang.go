package emitter

import (
	"context"
	"fmt"
	"go/format"
	"path/filepath"
	"strings"

	"github.com/QTest-hq/callwithmax/internal/parser"
)

// GoEmitter generates a standalone Go program that performs the calls and
// prints the counters after each one
type GoEmitter struct {
	parser *parser.Parser
}

// NewGoEmitter creates a Go program emitter
func NewGoEmitter(p *parser.Parser) *GoEmitter {
	return &GoEmitter{parser: p}
}

func (e *GoEmitter) Name() string          { return "go" }
func (e *GoEmitter) Language() string      { return "go" }
func (e *GoEmitter) Framework() string     { return "" }
func (e *GoEmitter) FileExtension() string { return ".go" }

// Emit generates package main for the program
func (e *GoEmitter) Emit(ctx context.Context, p Program) (string, error) {
	u, err := newUnit(ctx, e.parser, p)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	u.header(&sb, `"fmt"`)
	sb.WriteString("func main() {\n")
	for i, call := range u.calls {
		fmt.Fprintf(&sb, "// %s\n", p.Calls[i])
		fmt.Fprintf(&sb, "c%d := %s\n", i+1, call)
		fmt.Fprintf(&sb, "fmt.Println(\"a:\", %s)\n", u.a)
		fmt.Fprintf(&sb, "fmt.Println(\"b:\", %s)\n", u.b)
		fmt.Fprintf(&sb, "fmt.Println(\"c:\", c%d)\n", i+1)
		if i < len(u.calls)-1 {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")

	return gofmt(sb.String())
}

// GoTestEmitter generates a Go test asserting the counters after each call
type GoTestEmitter struct {
	parser *parser.Parser
}

// NewGoTestEmitter creates a Go test emitter
func NewGoTestEmitter(p *parser.Parser) *GoTestEmitter {
	return &GoTestEmitter{parser: p}
}

func (e *GoTestEmitter) Name() string          { return "go-test" }
func (e *GoTestEmitter) Language() string      { return "go" }
func (e *GoTestEmitter) Framework() string     { return "testing" }
func (e *GoTestEmitter) FileExtension() string { return "_test.go" }

// Emit generates a test file. p.Expected must hold one entry per call.
func (e *GoTestEmitter) Emit(ctx context.Context, p Program) (string, error) {
	if len(p.Expected) != len(p.Calls) {
		return "", fmt.Errorf("have %d expectations for %d calls", len(p.Expected), len(p.Calls))
	}

	u, err := newUnit(ctx, e.parser, p)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	u.header(&sb, `"testing"`)
	fmt.Fprintf(&sb, "func Test%s(t *testing.T) {\n", testName(p.File.Path))
	for i, call := range u.calls {
		want := p.Expected[i]
		c := fmt.Sprintf("c%d", i+1)
		fmt.Fprintf(&sb, "// %s\n", p.Calls[i])
		if want.Indeterminate {
			fmt.Fprintf(&sb, "_ = %s\n", call)
		} else {
			fmt.Fprintf(&sb, "%s := %s\n", c, call)
		}
		fmt.Fprintf(&sb, "if %s != %d {\nt.Errorf(\"step %d: a = %%d, want %d\", %s)\n}\n", u.a, want.A, i+1, want.A, u.a)
		fmt.Fprintf(&sb, "if %s != %d {\nt.Errorf(\"step %d: b = %%d, want %d\", %s)\n}\n", u.b, want.B, i+1, want.B, u.b)
		if !want.Indeterminate {
			fmt.Fprintf(&sb, "if %s != %d {\nt.Errorf(\"step %d: c = %%d, want %d\", %s)\n}\n", c, want.C, i+1, want.C, c)
		}
	}
	sb.WriteString("}\n")

	return gofmt(sb.String())
}

// unit holds the translated parts shared by both emitters
type unit struct {
	source  string
	globals []string
	funcs   []string
	calls   []string
	a, b    string
}

func newUnit(ctx context.Context, p *parser.Parser, prog Program) (*unit, error) {
	if prog.File == nil {
		return nil, fmt.Errorf("no program to emit")
	}
	if len(prog.Calls) == 0 {
		return nil, fmt.Errorf("%s: no calls to emit", prog.File.Path)
	}

	u := &unit{source: filepath.Base(prog.File.Path)}
	t := newTranslator(p, prog.File)

	for _, g := range prog.File.Globals {
		if g.Name == "a" {
			u.a = goIdent(g.Name)
		}
		if g.Name == "b" {
			u.b = goIdent(g.Name)
		}
		if v, ok := prog.Initial[g.Name]; ok {
			u.globals = append(u.globals, fmt.Sprintf("var %s int = %d", goIdent(g.Name), v))
			continue
		}
		if g.Init == "" {
			u.globals = append(u.globals, fmt.Sprintf("var %s int", goIdent(g.Name)))
			continue
		}
		init, err := t.expr(ctx, g.Init)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name, err)
		}
		u.globals = append(u.globals, fmt.Sprintf("var %s int = %s", goIdent(g.Name), unparen(init.code)))
	}
	if u.a == "" || u.b == "" {
		return nil, fmt.Errorf("%s must declare globals a and b", prog.File.Path)
	}

	for i := range prog.File.Functions {
		fn := &prog.File.Functions[i]
		if fn.Name == "main" {
			continue
		}
		code, err := t.function(ctx, fn)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		u.funcs = append(u.funcs, code)
	}

	for _, call := range prog.Calls {
		v, err := t.expr(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", call, err)
		}
		u.calls = append(u.calls, unparen(v.code))
	}

	return u, nil
}

func (u *unit) header(sb *strings.Builder, imports ...string) {
	fmt.Fprintf(sb, "// Code generated by callwithmax from %s. DO NOT EDIT.\n\n", u.source)
	sb.WriteString("package main\n\n")
	for _, imp := range imports {
		fmt.Fprintf(sb, "import %s\n", imp)
	}
	sb.WriteString("\n")
	for _, g := range u.globals {
		sb.WriteString(g + "\n")
	}
	sb.WriteString("\n")
	for _, f := range u.funcs {
		sb.WriteString(f + "\n")
	}
	sb.WriteString("func b2i(v bool) int {\nif v {\nreturn 1\n}\nreturn 0\n}\n\n")
}

// function translates a function definition. Every parameter and the result
// become int; a body that ends without a return yields 0.
func (t *translator) function(ctx context.Context, fn *parser.Function) (string, error) {
	saved := t.vars
	t.vars = make(map[string]bool, len(saved)+len(fn.Parameters))
	for k := range saved {
		t.vars[k] = true
	}
	defer func() { t.vars = saved }()

	params := make([]string, len(fn.Parameters))
	for i, p := range fn.Parameters {
		params[i] = goIdent(p.Name) + " int"
		t.vars[p.Name] = true
	}

	var sb strings.Builder
	if fn.Template {
		fmt.Fprintf(&sb, "// %s is instantiated with T = int\n", goIdent(fn.Name))
	}
	fmt.Fprintf(&sb, "func %s(%s) int {\n", goIdent(fn.Name), strings.Join(params, ", "))

	returned := false
	for _, s := range fn.Body {
		switch s.Kind {
		case parser.StatementReturn:
			if s.Expr == "" {
				sb.WriteString("return 0\n")
			} else {
				v, err := t.expr(ctx, s.Expr)
				if err != nil {
					return "", err
				}
				fmt.Fprintf(&sb, "return %s\n", unparen(v.code))
			}
			returned = true
		case parser.StatementExpression:
			v, err := t.expr(ctx, s.Expr)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "_ = %s\n", unparen(v.code))
		case parser.StatementDeclaration:
			name := goIdent(s.Name)
			t.vars[s.Name] = true
			if s.Expr == "" {
				fmt.Fprintf(&sb, "var %s int\n", name)
			} else {
				v, err := t.expr(ctx, s.Expr)
				if err != nil {
					return "", err
				}
				fmt.Fprintf(&sb, "%s := %s\n", name, unparen(v.code))
			}
			fmt.Fprintf(&sb, "_ = %s\n", name)
		default:
			return "", fmt.Errorf("%w: statement %q on line %d", ErrUnsupported, s.Text, s.Line)
		}
		if returned {
			break
		}
	}
	if !returned {
		sb.WriteString("return 0\n")
	}
	sb.WriteString("}\n")

	return sb.String(), nil
}

// unparen strips one pair of parentheses enclosing all of code
func unparen(code string) string {
	if len(code) < 2 || code[0] != '(' || code[len(code)-1] != ')' {
		return code
	}
	depth := 0
	for i, r := range code {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(code)-1 {
				return code
			}
		}
	}
	return code[1 : len(code)-1]
}

// testName turns a file path into a Go test name suffix
func testName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	upper := true
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			sb.WriteRune(r)
			upper = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	if sb.Len() == 0 {
		return "Program"
	}
	return sb.String()
}

func gofmt(src string) (string, error) {
	out, err := format.Source([]byte(src))
	if err != nil {
		return "", fmt.Errorf("formatting generated code: %w", err)
	}
	return string(out), nil
}
