package driver

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrExpectation is returned when a step's expect expression is false
var ErrExpectation = errors.New("expectation failed")

// expectations compiles and caches step expect expressions
type expectations struct {
	programs map[string]*vm.Program
}

func newExpectations() *expectations {
	return &expectations{programs: make(map[string]*vm.Program)}
}

func expectEnv(s Step) map[string]any {
	return map[string]any{
		"a":             s.A,
		"b":             s.B,
		"c":             s.C,
		"increments":    s.Increments,
		"indeterminate": s.Indeterminate,
		"form":          s.Form,
	}
}

// Check evaluates code against the outcome of s
func (e *expectations) Check(code string, s Step) error {
	program, ok := e.programs[code]
	if !ok {
		var err error
		program, err = expr.Compile(code, expr.Env(expectEnv(Step{})), expr.AsBool())
		if err != nil {
			return fmt.Errorf("compiling expectation %q: %w", code, err)
		}
		e.programs[code] = program
	}

	out, err := expr.Run(program, expectEnv(s))
	if err != nil {
		return fmt.Errorf("evaluating expectation %q: %w", code, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("%w: %s (a=%d b=%d c=%d increments=%d)", ErrExpectation, code, s.A, s.B, s.C, s.Increments)
	}
	return nil
}
