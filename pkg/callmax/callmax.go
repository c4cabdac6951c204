// Package callmax contrasts a textual "call with max" macro against a generic
// function that does the same job.
//
// The macro form
//
//	#define CALL_WITH_MAX(a, b) f((a) > (b) ? (a) : (b))
//
// substitutes argument expressions, so whichever argument wins the comparison
// is evaluated a second time as the argument to f. The generic form binds each
// argument to a parameter exactly once.
package callmax

import "golang.org/x/exp/constraints"

// Number is the set of types the generic form accepts.
type Number interface {
	constraints.Integer | constraints.Float
}

// Expr is an unevaluated argument expression. Each call evaluates it again,
// including any side effect.
type Expr func() int

// Const returns an expression without side effects.
func Const(v int) Expr {
	return func() int { return v }
}

// Double returns twice x.
func Double[T Number](x T) T {
	return 2 * x
}

// CallWithMaxMacro evaluates the expansion Double((a) > (b) ? (a) : (b)).
// The expression selected by the comparison is evaluated once more for the
// call, so its side effects happen twice.
func CallWithMaxMacro(a, b Expr) int {
	if a() > b() {
		return Double(a())
	}
	return Double(b())
}

// CallWithMax doubles the larger of a and b. Both arguments were evaluated
// exactly once by the caller.
func CallWithMax[T Number](a, b T) T {
	if a > b {
		return Double(a)
	}
	return Double(b)
}

// CallWithMaxDiscard computes Double of the larger argument and throws the
// result away, returning the zero value of T. It mirrors a function whose
// declared result is never produced.
func CallWithMaxDiscard[T Number](a, b T) T {
	var zero T
	if a > b {
		_ = Double(a)
	} else {
		_ = Double(b)
	}
	return zero
}

// ResultMode selects how the generic form reports its result.
type ResultMode string

const (
	// ResultReturn returns the doubled value.
	ResultReturn ResultMode = "return"
	// ResultLiteral discards the doubled value.
	ResultLiteral ResultMode = "literal"
)

// Valid reports whether m is a known mode.
func (m ResultMode) Valid() bool {
	return m == ResultReturn || m == ResultLiteral
}

// Generic returns the generic form for the given mode.
func Generic[T Number](mode ResultMode) func(a, b T) T {
	if mode == ResultLiteral {
		return CallWithMaxDiscard[T]
	}
	return CallWithMax[T]
}
