// Package interp evaluates C++ expressions against a parsed program.
//
// Only the integer subset the call-with-max demonstration needs is
// supported: globals, function-like macros, functions whose bodies are
// declarations, expression statements and returns, and the usual arithmetic,
// comparison, conditional and increment operators. Every value is an int.
package interp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/QTest-hq/callwithmax/internal/macro"
	"github.com/QTest-hq/callwithmax/internal/parser"
)

var (
	// ErrUnknownIdentifier is returned for names that are neither locals,
	// globals nor functions
	ErrUnknownIdentifier = errors.New("unknown identifier")

	// ErrUnsupported is returned for syntax outside the supported subset
	ErrUnsupported = errors.New("unsupported construct")

	// ErrDivideByZero is returned for integer division or modulo by zero
	ErrDivideByZero = errors.New("integer divide by zero")

	// ErrCallDepth is returned when calls nest deeper than MaxCallDepth
	ErrCallDepth = errors.New("call depth exceeded")
)

// MaxCallDepth bounds recursion in interpreted functions
const MaxCallDepth = 256

// Value is the result of an evaluation. Indeterminate is set when the value
// came from a function that finished without returning one.
type Value struct {
	Int           int
	Indeterminate bool
}

func (v Value) String() string {
	if v.Indeterminate {
		return "indeterminate"
	}
	return strconv.Itoa(v.Int)
}

type frame struct {
	locals map[string]Value
}

// Interpreter holds program state across evaluations
type Interpreter struct {
	parser  *parser.Parser
	file    *parser.ParsedFile
	macros  macro.Table
	globals map[string]Value
	writes  map[string]int
	frames  []*frame
}

// New creates an interpreter for file and runs the global initializers in
// declaration order.
func New(ctx context.Context, p *parser.Parser, file *parser.ParsedFile) (*Interpreter, error) {
	defs := make([]*macro.Definition, 0, len(file.Macros))
	for _, m := range file.Macros {
		defs = append(defs, m.Definition)
	}

	in := &Interpreter{
		parser:  p,
		file:    file,
		macros:  macro.NewTable(defs...),
		globals: make(map[string]Value),
		writes:  make(map[string]int),
	}

	for _, g := range file.Globals {
		v := Value{}
		if g.Init != "" {
			var err error
			if v, err = in.Eval(ctx, g.Init); err != nil {
				return nil, fmt.Errorf("initializing %s: %w", g.Name, err)
			}
		}
		in.globals[g.Name] = v
	}
	// initializers are not counted as writes
	clear(in.writes)

	return in, nil
}

// Get returns the value of a global
func (in *Interpreter) Get(name string) (Value, bool) {
	v, ok := in.globals[name]
	return v, ok
}

// Set assigns a global without counting it as a write
func (in *Interpreter) Set(name string, v int) {
	in.globals[name] = Value{Int: v}
}

// Writes reports how many times the program has written a global
func (in *Interpreter) Writes(name string) int {
	return in.writes[name]
}

// Expand returns expr with every macro call expanded
func (in *Interpreter) Expand(expr string) (string, error) {
	return in.macros.ExpandAll(expr)
}

// Eval expands macros in expr, then evaluates it.
func (in *Interpreter) Eval(ctx context.Context, expr string) (Value, error) {
	expanded, err := in.Expand(expr)
	if err != nil {
		return Value{}, fmt.Errorf("expanding %q: %w", expr, err)
	}
	if expanded != expr {
		log.Debug().Str("expr", expr).Str("expanded", expanded).Msg("macro expansion")
	}

	e, err := in.parser.ParseExpression(ctx, expanded)
	if err != nil {
		return Value{}, err
	}
	defer e.Close()

	return in.eval(ctx, e, e.Node)
}

func (in *Interpreter) eval(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	switch n.Type() {
	case "number_literal":
		return parseNumber(e.Text(n))

	case "true":
		return Value{Int: 1}, nil

	case "false":
		return Value{Int: 0}, nil

	case "identifier":
		return in.lookup(e.Text(n))

	case "parenthesized_expression":
		if n.NamedChildCount() != 1 {
			return Value{}, fmt.Errorf("%w: %s", ErrUnsupported, e.Text(n))
		}
		return in.eval(ctx, e, n.NamedChild(0))

	case "update_expression":
		return in.evalUpdate(e, n)

	case "unary_expression":
		return in.evalUnary(ctx, e, n)

	case "binary_expression":
		return in.evalBinary(ctx, e, n)

	case "conditional_expression":
		cond, err := in.eval(ctx, e, n.ChildByFieldName("condition"))
		if err != nil {
			return Value{}, err
		}
		if cond.Int != 0 {
			return in.eval(ctx, e, n.ChildByFieldName("consequence"))
		}
		return in.eval(ctx, e, n.ChildByFieldName("alternative"))

	case "assignment_expression":
		return in.evalAssignment(ctx, e, n)

	case "comma_expression":
		if _, err := in.eval(ctx, e, n.ChildByFieldName("left")); err != nil {
			return Value{}, err
		}
		return in.eval(ctx, e, n.ChildByFieldName("right"))

	case "call_expression":
		return in.evalCall(ctx, e, n)

	case "cast_expression":
		return in.evalCast(ctx, e, n)
	}

	return Value{}, fmt.Errorf("%w: %s %q", ErrUnsupported, n.Type(), e.Text(n))
}

func parseNumber(text string) (Value, error) {
	digits := strings.TrimRight(strings.ReplaceAll(text, "'", ""), "uUlL")
	i, err := strconv.ParseInt(digits, 0, 0)
	if err != nil {
		return Value{}, fmt.Errorf("%w: number literal %q", ErrUnsupported, text)
	}
	return Value{Int: int(i)}, nil
}

func (in *Interpreter) lookup(name string) (Value, error) {
	if len(in.frames) > 0 {
		if v, ok := in.frames[len(in.frames)-1].locals[name]; ok {
			return v, nil
		}
	}
	if v, ok := in.globals[name]; ok {
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, name)
}

func (in *Interpreter) store(name string, v Value) error {
	if len(in.frames) > 0 {
		locals := in.frames[len(in.frames)-1].locals
		if _, ok := locals[name]; ok {
			locals[name] = v
			return nil
		}
	}
	if _, ok := in.globals[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, name)
	}
	in.globals[name] = v
	in.writes[name]++
	return nil
}

func (in *Interpreter) lvalue(e *parser.Expression, n *sitter.Node) (string, error) {
	for n.Type() == "parenthesized_expression" && n.NamedChildCount() == 1 {
		n = n.NamedChild(0)
	}
	if n.Type() != "identifier" {
		return "", fmt.Errorf("%w: %q is not assignable", ErrUnsupported, e.Text(n))
	}
	return e.Text(n), nil
}

func (in *Interpreter) evalUpdate(e *parser.Expression, n *sitter.Node) (Value, error) {
	name, err := in.lvalue(e, n.ChildByFieldName("argument"))
	if err != nil {
		return Value{}, err
	}
	old, err := in.lookup(name)
	if err != nil {
		return Value{}, err
	}

	op := n.ChildByFieldName("operator").Type()
	updated := old
	switch op {
	case "++":
		updated.Int++
	case "--":
		updated.Int--
	default:
		return Value{}, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
	}
	if err := in.store(name, updated); err != nil {
		return Value{}, err
	}

	// prefix forms yield the new value
	if n.Child(0).Type() == op {
		return updated, nil
	}
	return old, nil
}

func (in *Interpreter) evalUnary(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	v, err := in.eval(ctx, e, n.ChildByFieldName("argument"))
	if err != nil {
		return Value{}, err
	}

	switch op := n.ChildByFieldName("operator").Type(); op {
	case "-":
		v.Int = -v.Int
	case "+":
	case "!":
		v.Int = boolInt(v.Int == 0)
	case "~":
		v.Int = ^v.Int
	default:
		return Value{}, fmt.Errorf("%w: unary %s", ErrUnsupported, op)
	}
	return v, nil
}

func (in *Interpreter) evalBinary(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	op := n.ChildByFieldName("operator").Type()

	left, err := in.eval(ctx, e, n.ChildByFieldName("left"))
	if err != nil {
		return Value{}, err
	}

	// short-circuit
	switch {
	case op == "&&" && left.Int == 0:
		return Value{Int: 0, Indeterminate: left.Indeterminate}, nil
	case op == "||" && left.Int != 0:
		return Value{Int: 1, Indeterminate: left.Indeterminate}, nil
	}

	right, err := in.eval(ctx, e, n.ChildByFieldName("right"))
	if err != nil {
		return Value{}, err
	}

	v, err := arith(op, left.Int, right.Int)
	if err != nil {
		return Value{}, err
	}
	return Value{Int: v, Indeterminate: left.Indeterminate || right.Indeterminate}, nil
}

func arith(op string, l, r int) (int, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/", "%":
		if r == 0 {
			return 0, ErrDivideByZero
		}
		if op == "/" {
			return l / r, nil
		}
		return l % r, nil
	case "<":
		return boolInt(l < r), nil
	case ">":
		return boolInt(l > r), nil
	case "<=":
		return boolInt(l <= r), nil
	case ">=":
		return boolInt(l >= r), nil
	case "==":
		return boolInt(l == r), nil
	case "!=":
		return boolInt(l != r), nil
	case "&&":
		return boolInt(l != 0 && r != 0), nil
	case "||":
		return boolInt(l != 0 || r != 0), nil
	case "&":
		return l & r, nil
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "<<", ">>":
		if r < 0 {
			return 0, fmt.Errorf("%w: negative shift count %d", ErrUnsupported, r)
		}
		if op == "<<" {
			return l << r, nil
		}
		return l >> r, nil
	}
	return 0, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
}

func (in *Interpreter) evalAssignment(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	name, err := in.lvalue(e, n.ChildByFieldName("left"))
	if err != nil {
		return Value{}, err
	}
	right, err := in.eval(ctx, e, n.ChildByFieldName("right"))
	if err != nil {
		return Value{}, err
	}

	op := n.ChildByFieldName("operator").Type()
	if op != "=" {
		old, err := in.lookup(name)
		if err != nil {
			return Value{}, err
		}
		v, err := arith(strings.TrimSuffix(op, "="), old.Int, right.Int)
		if err != nil {
			return Value{}, err
		}
		right = Value{Int: v, Indeterminate: old.Indeterminate || right.Indeterminate}
	}

	if err := in.store(name, right); err != nil {
		return Value{}, err
	}
	return right, nil
}

// evalCast handles the one cast form that arises from macro bodies like
// (x)*(y) or (x)-(y), which the grammar reads as a cast when x could be a
// type name. A variable in the type position turns it back into arithmetic.
func (in *Interpreter) evalCast(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	typeName := strings.TrimSpace(e.Text(n.ChildByFieldName("type")))
	left, err := in.lookup(typeName)
	if err != nil {
		return Value{}, fmt.Errorf("%w: cast to %s", ErrUnsupported, typeName)
	}

	value := n.ChildByFieldName("value")
	var op string
	switch value.Type() {
	case "pointer_expression", "unary_expression":
		op = value.ChildByFieldName("operator").Type()
	}
	if op != "*" && op != "-" && op != "+" && op != "&" {
		return Value{}, fmt.Errorf("%w: cast to %s", ErrUnsupported, typeName)
	}

	right, err := in.eval(ctx, e, value.ChildByFieldName("argument"))
	if err != nil {
		return Value{}, err
	}
	v, err := arith(op, left.Int, right.Int)
	if err != nil {
		return Value{}, err
	}
	return Value{Int: v, Indeterminate: left.Indeterminate || right.Indeterminate}, nil
}

func (in *Interpreter) evalCall(ctx context.Context, e *parser.Expression, n *sitter.Node) (Value, error) {
	name := e.Text(n.ChildByFieldName("function"))
	fn, ok := in.file.FindFunction(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: function %s", ErrUnknownIdentifier, name)
	}

	argsNode := n.ChildByFieldName("arguments")
	args := make([]Value, 0, argsNode.NamedChildCount())
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		arg := argsNode.NamedChild(i)
		if arg.Type() == "comment" {
			continue
		}
		v, err := in.eval(ctx, e, arg)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v)
	}

	return in.Call(ctx, fn, args...)
}

// Call runs fn with already evaluated arguments. Each argument is bound to
// its parameter once. A body that ends without a return statement yields an
// indeterminate value.
func (in *Interpreter) Call(ctx context.Context, fn *parser.Function, args ...Value) (Value, error) {
	if len(args) != len(fn.Parameters) {
		return Value{}, fmt.Errorf("%s: want %d arguments, got %d", fn.Name, len(fn.Parameters), len(args))
	}
	if len(in.frames) >= MaxCallDepth {
		return Value{}, fmt.Errorf("%w: %s", ErrCallDepth, fn.Name)
	}
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}

	f := &frame{locals: make(map[string]Value, len(args))}
	for i, p := range fn.Parameters {
		f.locals[p.Name] = args[i]
	}
	in.frames = append(in.frames, f)
	defer func() { in.frames = in.frames[:len(in.frames)-1] }()

	for _, stmt := range fn.Body {
		switch stmt.Kind {
		case parser.StatementReturn:
			if stmt.Expr == "" {
				return Value{Indeterminate: true}, nil
			}
			return in.Eval(ctx, stmt.Expr)

		case parser.StatementExpression:
			if _, err := in.Eval(ctx, stmt.Expr); err != nil {
				return Value{}, fmt.Errorf("%s line %d: %w", fn.Name, stmt.Line, err)
			}

		case parser.StatementDeclaration:
			v := Value{Indeterminate: true}
			if stmt.Expr != "" {
				var err error
				if v, err = in.Eval(ctx, stmt.Expr); err != nil {
					return Value{}, fmt.Errorf("%s line %d: %w", fn.Name, stmt.Line, err)
				}
			}
			f.locals[stmt.Name] = v

		default:
			return Value{}, fmt.Errorf("%w: %s line %d: %s", ErrUnsupported, fn.Name, stmt.Line, stmt.Text)
		}
	}

	log.Debug().Str("function", fn.Name).Msg("function ended without return")
	return Value{Indeterminate: true}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
