package emitter

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/QTest-hq/callwithmax/internal/macro"
	"github.com/QTest-hq/callwithmax/internal/parser"
)

// ErrUnsupported is returned for C++ the translator has no Go form for
var ErrUnsupported = errors.New("cannot translate")

// translator turns C++ integer expressions into Go expressions. Side effects
// are kept where the C++ text puts them: every textual occurrence of ++x
// becomes its own Go closure call, so macro expansions duplicate them.
type translator struct {
	parser *parser.Parser
	macros macro.Table
	vars   map[string]bool
	temps  int
}

func newTranslator(p *parser.Parser, file *parser.ParsedFile) *translator {
	defs := make([]*macro.Definition, 0, len(file.Macros))
	for _, m := range file.Macros {
		defs = append(defs, m.Definition)
	}

	vars := make(map[string]bool)
	for _, g := range file.Globals {
		vars[g.Name] = true
	}

	return &translator{parser: p, macros: macro.NewTable(defs...), vars: vars}
}

// goExpr is a translated expression. pure is false when evaluating it can
// write a variable.
type goExpr struct {
	code string
	pure bool
}

// expr expands macros in text and translates the result to a Go int
// expression.
func (t *translator) expr(ctx context.Context, text string) (goExpr, error) {
	expanded, err := t.macros.ExpandAll(text)
	if err != nil {
		return goExpr{}, err
	}

	e, err := t.parser.ParseExpression(ctx, expanded)
	if err != nil {
		return goExpr{}, err
	}
	defer e.Close()

	return t.intExpr(e, e.Node)
}

func (t *translator) tmp() string {
	t.temps++
	return fmt.Sprintf("_t%d", t.temps)
}

func (t *translator) intExpr(e *parser.Expression, n *sitter.Node) (goExpr, error) {
	switch n.Type() {
	case "number_literal":
		return goExpr{code: strings.TrimRight(strings.ReplaceAll(e.Text(n), "'", "_"), "uUlL"), pure: true}, nil

	case "true":
		return goExpr{code: "1", pure: true}, nil

	case "false":
		return goExpr{code: "0", pure: true}, nil

	case "identifier":
		return goExpr{code: goIdent(e.Text(n)), pure: true}, nil

	case "parenthesized_expression":
		if n.NamedChildCount() != 1 {
			break
		}
		inner, err := t.intExpr(e, n.NamedChild(0))
		if err != nil {
			return goExpr{}, err
		}
		return goExpr{code: "(" + inner.code + ")", pure: inner.pure}, nil

	case "update_expression":
		name, err := t.lvalue(e, n.ChildByFieldName("argument"))
		if err != nil {
			return goExpr{}, err
		}
		op := n.ChildByFieldName("operator").Type()
		result := name
		if n.Child(0).Type() != op {
			// postfix yields the old value
			if op == "++" {
				result = name + " - 1"
			} else {
				result = name + " + 1"
			}
		}
		return goExpr{code: fmt.Sprintf("func() int { %s%s; return %s }()", name, op, result)}, nil

	case "unary_expression":
		op := n.ChildByFieldName("operator").Type()
		if op == "!" {
			b, err := t.boolExpr(e, n)
			if err != nil {
				return goExpr{}, err
			}
			return goExpr{code: "b2i(" + unparen(b.code) + ")", pure: b.pure}, nil
		}
		arg, err := t.intExpr(e, n.ChildByFieldName("argument"))
		if err != nil {
			return goExpr{}, err
		}
		switch op {
		case "-", "+":
			if strings.HasPrefix(arg.code, "-") || strings.HasPrefix(arg.code, "+") {
				arg.code = "(" + arg.code + ")"
			}
			return goExpr{code: op + arg.code, pure: arg.pure}, nil
		case "~":
			return goExpr{code: "^" + arg.code, pure: arg.pure}, nil
		}

	case "binary_expression":
		op := n.ChildByFieldName("operator").Type()
		if isBoolOp(op) {
			b, err := t.boolExpr(e, n)
			if err != nil {
				return goExpr{}, err
			}
			return goExpr{code: "b2i(" + unparen(b.code) + ")", pure: b.pure}, nil
		}
		return t.binary(e, n.ChildByFieldName("left"), op, n.ChildByFieldName("right"), "int")

	case "conditional_expression":
		cond, err := t.boolExpr(e, n.ChildByFieldName("condition"))
		if err != nil {
			return goExpr{}, err
		}
		yes, err := t.intExpr(e, n.ChildByFieldName("consequence"))
		if err != nil {
			return goExpr{}, err
		}
		no, err := t.intExpr(e, n.ChildByFieldName("alternative"))
		if err != nil {
			return goExpr{}, err
		}
		return goExpr{
			code: fmt.Sprintf("func() int {\nif %s {\nreturn %s\n}\nreturn %s\n}()", unparen(cond.code), unparen(yes.code), unparen(no.code)),
			pure: cond.pure && yes.pure && no.pure,
		}, nil

	case "assignment_expression":
		name, err := t.lvalue(e, n.ChildByFieldName("left"))
		if err != nil {
			return goExpr{}, err
		}
		right, err := t.intExpr(e, n.ChildByFieldName("right"))
		if err != nil {
			return goExpr{}, err
		}
		op := n.ChildByFieldName("operator").Type()
		return goExpr{code: fmt.Sprintf("func() int {\n%s %s %s\nreturn %s\n}()", name, op, right.code, name)}, nil

	case "comma_expression":
		left, err := t.intExpr(e, n.ChildByFieldName("left"))
		if err != nil {
			return goExpr{}, err
		}
		right, err := t.intExpr(e, n.ChildByFieldName("right"))
		if err != nil {
			return goExpr{}, err
		}
		return goExpr{
			code: fmt.Sprintf("func() int {\n_ = %s\nreturn %s\n}()", left.code, right.code),
			pure: left.pure && right.pure,
		}, nil

	case "call_expression":
		return t.call(e, n)

	case "cast_expression":
		// (x)*(y) read as a cast of *(y) to type x
		typeName := strings.TrimSpace(e.Text(n.ChildByFieldName("type")))
		value := n.ChildByFieldName("value")
		if !t.vars[typeName] || (value.Type() != "pointer_expression" && value.Type() != "unary_expression") {
			break
		}
		op := value.ChildByFieldName("operator").Type()
		if op != "*" && op != "-" && op != "+" && op != "&" {
			break
		}
		left := goExpr{code: goIdent(typeName), pure: true}
		right, err := t.intExpr(e, value.ChildByFieldName("argument"))
		if err != nil {
			return goExpr{}, err
		}
		return t.combine(left, op, right, "int"), nil
	}

	return goExpr{}, fmt.Errorf("%w: %s %q", ErrUnsupported, n.Type(), e.Text(n))
}

// boolExpr translates n for use as a Go condition
func (t *translator) boolExpr(e *parser.Expression, n *sitter.Node) (goExpr, error) {
	switch n.Type() {
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			inner, err := t.boolExpr(e, n.NamedChild(0))
			if err != nil {
				return goExpr{}, err
			}
			return goExpr{code: "(" + inner.code + ")", pure: inner.pure}, nil
		}

	case "unary_expression":
		if n.ChildByFieldName("operator").Type() == "!" {
			inner, err := t.boolExpr(e, n.ChildByFieldName("argument"))
			if err != nil {
				return goExpr{}, err
			}
			return goExpr{code: "!(" + unparen(inner.code) + ")", pure: inner.pure}, nil
		}

	case "binary_expression":
		op := n.ChildByFieldName("operator").Type()
		switch op {
		case "&&", "||":
			left, err := t.boolExpr(e, n.ChildByFieldName("left"))
			if err != nil {
				return goExpr{}, err
			}
			right, err := t.boolExpr(e, n.ChildByFieldName("right"))
			if err != nil {
				return goExpr{}, err
			}
			// Go short-circuits the same way
			return goExpr{code: "(" + left.code + " " + op + " " + right.code + ")", pure: left.pure && right.pure}, nil
		case "<", ">", "<=", ">=", "==", "!=":
			return t.binary(e, n.ChildByFieldName("left"), op, n.ChildByFieldName("right"), "bool")
		}

	case "true":
		return goExpr{code: "true", pure: true}, nil

	case "false":
		return goExpr{code: "false", pure: true}, nil
	}

	v, err := t.intExpr(e, n)
	if err != nil {
		return goExpr{}, err
	}
	return goExpr{code: v.code + " != 0", pure: v.pure}, nil
}

func (t *translator) binary(e *parser.Expression, l *sitter.Node, op string, r *sitter.Node, typ string) (goExpr, error) {
	left, err := t.intExpr(e, l)
	if err != nil {
		return goExpr{}, err
	}
	right, err := t.intExpr(e, r)
	if err != nil {
		return goExpr{}, err
	}
	return t.combine(left, op, right, typ), nil
}

// combine joins two operands. Go leaves the order of a variable read and a
// function call in one expression unspecified, so impure operands are bound
// to temporaries first to keep C++'s left-to-right reading.
func (t *translator) combine(left goExpr, op string, right goExpr, typ string) goExpr {
	if left.pure && right.pure {
		return goExpr{code: "(" + left.code + " " + op + " " + right.code + ")", pure: true}
	}
	l, r := t.tmp(), t.tmp()
	return goExpr{code: fmt.Sprintf("func() %s {\n%s := %s\n%s := %s\nreturn %s %s %s\n}()",
		typ, l, left.code, r, right.code, l, op, r)}
}

func (t *translator) call(e *parser.Expression, n *sitter.Node) (goExpr, error) {
	fnNode := n.ChildByFieldName("function")
	if fnNode.Type() != "identifier" {
		return goExpr{}, fmt.Errorf("%w: call through %q", ErrUnsupported, e.Text(fnNode))
	}
	name := goIdent(e.Text(fnNode))

	argsNode := n.ChildByFieldName("arguments")
	args := make([]goExpr, 0, argsNode.NamedChildCount())
	pure := true
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		arg := argsNode.NamedChild(i)
		if arg.Type() == "comment" {
			continue
		}
		v, err := t.intExpr(e, arg)
		if err != nil {
			return goExpr{}, err
		}
		pure = pure && v.pure
		args = append(args, v)
	}

	codes := make([]string, len(args))
	if pure || len(args) == 1 {
		for i, a := range args {
			codes[i] = a.code
		}
		return goExpr{code: name + "(" + strings.Join(codes, ", ") + ")"}, nil
	}

	// bind arguments in order so each is evaluated once, left to right
	var sb strings.Builder
	sb.WriteString("func() int {\n")
	for i, a := range args {
		codes[i] = t.tmp()
		fmt.Fprintf(&sb, "%s := %s\n", codes[i], a.code)
	}
	fmt.Fprintf(&sb, "return %s(%s)\n}()", name, strings.Join(codes, ", "))
	return goExpr{code: sb.String()}, nil
}

func (t *translator) lvalue(e *parser.Expression, n *sitter.Node) (string, error) {
	for n.Type() == "parenthesized_expression" && n.NamedChildCount() == 1 {
		n = n.NamedChild(0)
	}
	if n.Type() != "identifier" {
		return "", fmt.Errorf("%w: %q is not assignable", ErrUnsupported, e.Text(n))
	}
	return goIdent(e.Text(n)), nil
}

func isBoolOp(op string) bool {
	switch op {
	case "<", ">", "<=", ">=", "==", "!=", "&&", "||":
		return true
	}
	return false
}

// goIdent renames C++ identifiers that are Go keywords or predeclared names
// the generated code relies on
func goIdent(name string) string {
	if token.IsKeyword(name) {
		return name + "_"
	}
	switch name {
	case "b2i", "fmt", "int", "bool", "true", "false", "nil", "main":
		return name + "_"
	}
	return name
}
