package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/QTest-hq/callwithmax/internal/config"
	"github.com/QTest-hq/callwithmax/internal/interp"
	"github.com/QTest-hq/callwithmax/internal/macro"
	"github.com/QTest-hq/callwithmax/internal/parser"
	"github.com/QTest-hq/callwithmax/pkg/callmax"
)

// Engine evaluates scenario steps against its own copy of counters A and B
type Engine interface {
	// Name returns the engine name (native or source)
	Name() string

	// Start resets the counters to the scenario's initial values
	Start(ctx context.Context, s *config.Scenario) error

	// Step runs one call and reports the counters afterwards
	Step(ctx context.Context, s *config.Scenario, step config.Step) (Step, error)
}

// NativeEngine runs steps through package callmax
type NativeEngine struct {
	mode  callmax.ResultMode
	state *callmax.State
}

// NewNativeEngine creates a native engine. mode selects how generic steps
// report their result.
func NewNativeEngine(mode callmax.ResultMode) *NativeEngine {
	if !mode.Valid() {
		mode = callmax.ResultReturn
	}
	return &NativeEngine{mode: mode, state: callmax.NewState()}
}

func (e *NativeEngine) Name() string { return config.EngineNative }

func (e *NativeEngine) Start(_ context.Context, s *config.Scenario) error {
	if !s.Native() {
		return fmt.Errorf("native engine needs a form on every step")
	}
	e.state = &callmax.State{A: s.Initial.A, B: s.Initial.B}
	return nil
}

func (e *NativeEngine) Step(_ context.Context, s *config.Scenario, step config.Step) (Step, error) {
	st := e.state
	before := st.Increments()

	first := st.ReadA()
	if step.IncrementA {
		first = st.IncA()
	}
	second := st.BPlus(step.BOffset)

	result := Step{Form: step.Form, Call: s.CallText(step)}
	switch step.Form {
	case config.FormMacro:
		result.C = callmax.CallWithMaxMacro(first, second)
	case config.FormGeneric:
		// Go evaluates call arguments once, left to right
		result.C = callmax.Generic[int](e.mode)(first(), second())
		result.Indeterminate = e.mode == callmax.ResultLiteral
	default:
		return Step{}, fmt.Errorf("native engine cannot run %q", result.Call)
	}

	result.A = st.A
	result.B = st.B
	result.Increments = st.Increments() - before
	return result, nil
}

// SourceEngine runs steps by interpreting a C++ program
type SourceEngine struct {
	parser *parser.Parser
	file   *parser.ParsedFile
	in     *interp.Interpreter
}

// NewSourceEngine creates an engine over a parsed program. The program must
// declare globals a and b.
func NewSourceEngine(p *parser.Parser, file *parser.ParsedFile) *SourceEngine {
	return &SourceEngine{parser: p, file: file}
}

func (e *SourceEngine) Name() string { return config.EngineSource }

func (e *SourceEngine) Start(ctx context.Context, s *config.Scenario) error {
	in, err := interp.New(ctx, e.parser, e.file)
	if err != nil {
		return fmt.Errorf("loading %s: %w", e.file.Path, err)
	}
	for _, name := range []string{"a", "b"} {
		if _, ok := in.Get(name); !ok {
			return fmt.Errorf("%s declares no global %s", e.file.Path, name)
		}
	}
	in.Set("a", s.Initial.A)
	in.Set("b", s.Initial.B)

	e.in = in
	return nil
}

func (e *SourceEngine) Step(ctx context.Context, s *config.Scenario, step config.Step) (Step, error) {
	if e.in == nil {
		return Step{}, fmt.Errorf("source engine not started")
	}

	call := s.CallText(step)
	before := e.in.Writes("a")

	v, err := e.in.Eval(ctx, call)
	if err != nil {
		return Step{}, fmt.Errorf("evaluating %s: %w", call, err)
	}

	a, _ := e.in.Get("a")
	b, _ := e.in.Get("b")

	form := step.Form
	if form == "" {
		form = e.classify(call)
	}

	return Step{
		Form:          form,
		Call:          call,
		A:             a.Int,
		B:             b.Int,
		C:             v.Int,
		Indeterminate: v.Indeterminate || a.Indeterminate || b.Indeterminate,
		Increments:    e.in.Writes("a") - before,
	}, nil
}

// classify names the form of a call by its callee
func (e *SourceEngine) classify(call string) string {
	name, _, ok := strings.Cut(call, "(")
	if !ok {
		return ""
	}
	name = strings.TrimSpace(name)
	if _, ok := e.file.FindMacro(name); ok {
		return config.FormMacro
	}
	if fn, ok := e.file.FindFunction(name); ok && fn.Template {
		return config.FormGeneric
	}
	return "function"
}

// ScenarioFromSource builds a scenario from the declarations in the
// program's main function, e.g. int c1 = CALL_WITH_MAX(++a,b);
func ScenarioFromSource(ctx context.Context, p *parser.Parser, file *parser.ParsedFile) (*config.Scenario, error) {
	mainFn, ok := file.FindFunction("main")
	if !ok {
		return nil, fmt.Errorf("%s has no main function", file.Path)
	}

	in, err := interp.New(ctx, p, file)
	if err != nil {
		return nil, err
	}
	a, okA := in.Get("a")
	b, okB := in.Get("b")
	if !okA || !okB {
		return nil, fmt.Errorf("%s must declare globals a and b", file.Path)
	}

	s := config.DefaultScenario()
	s.Initial = config.InitialState{A: a.Int, B: b.Int}
	s.Steps = nil
	for _, stmt := range mainFn.Body {
		if stmt.Kind != parser.StatementDeclaration || stmt.Expr == "" {
			continue
		}
		if name, _, ok := strings.Cut(stmt.Expr, "("); !ok || !isCallee(file, strings.TrimSpace(name)) {
			continue
		}
		s.Steps = append(s.Steps, s.StepFor(stmt.Expr))
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file.Path, err)
	}
	return s, nil
}

func isCallee(file *parser.ParsedFile, name string) bool {
	if _, ok := file.FindMacro(name); ok {
		return true
	}
	_, ok := file.FindFunction(name)
	return ok
}

// Expansion describes how a step's call text expands
type Expansion struct {
	Call        string
	Expanded    string
	Occurrences map[string]int
	Macro       *macro.Definition
}

// Expand expands call against the macros of file. Calls that do not name a
// macro come back unchanged with a nil Macro.
func Expand(file *parser.ParsedFile, call string) (*Expansion, error) {
	defs := make([]*macro.Definition, 0, len(file.Macros))
	for _, m := range file.Macros {
		defs = append(defs, m.Definition)
	}

	expanded, err := macro.NewTable(defs...).ExpandAll(call)
	if err != nil {
		return nil, err
	}

	exp := &Expansion{Call: call, Expanded: expanded}
	if name, _, ok := strings.Cut(call, "("); ok {
		if def, ok := file.FindMacro(strings.TrimSpace(name)); ok {
			exp.Macro = def
			exp.Occurrences = def.Occurrences()
		}
	}
	return exp, nil
}
