package callmax

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDouble(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 2},
		{-1, -2},
		{7, 14},
		{-21, -42},
		{1 << 20, 1 << 21},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Double(tt.in))
		// deterministic
		assert.Equal(t, Double(tt.in), Double(tt.in))
	}

	assert.Equal(t, 3.0, Double(1.5))
	assert.Equal(t, int8(-8), Double(int8(-4)))
}

func TestCallWithMaxMacro_FirstArgumentWins(t *testing.T) {
	s := NewState()

	c := CallWithMaxMacro(s.IncA(), s.BPlus(0))

	// ++a appears twice in the expansion and both occurrences run.
	assert.Equal(t, 7, s.A)
	assert.Equal(t, 0, s.B)
	assert.Equal(t, 2, s.Increments())
	assert.Equal(t, 14, c)
}

func TestCallWithMaxMacro_SecondArgumentWins(t *testing.T) {
	s := &State{A: 7, B: 0}

	c := CallWithMaxMacro(s.IncA(), s.BPlus(10))

	assert.Equal(t, 8, s.A)
	assert.Equal(t, 1, s.Increments())
	assert.Equal(t, 20, c)
}

func TestCallWithMaxMacro_SecondArgumentEvaluatedTwice(t *testing.T) {
	var evals int
	b := func() int {
		evals++
		return 100
	}

	c := CallWithMaxMacro(Const(1), b)

	assert.Equal(t, 2, evals)
	assert.Equal(t, 200, c)
}

func TestCallWithMax_EvaluatesOnce(t *testing.T) {
	s := &State{A: 8, B: 0}

	c := CallWithMax(s.IncA()(), s.BPlus(0)())
	assert.Equal(t, 9, s.A)
	assert.Equal(t, 1, s.Increments())
	assert.Equal(t, 18, c)

	c = CallWithMax(s.IncA()(), s.BPlus(10)())
	assert.Equal(t, 10, s.A)
	assert.Equal(t, 2, s.Increments())
	// 10 > 10 is false, so b+10 is selected
	assert.Equal(t, 20, c)
}

func TestCallWithMaxDiscard(t *testing.T) {
	assert.Equal(t, 0, CallWithMaxDiscard(9, 0))
	assert.Equal(t, 0, CallWithMaxDiscard(3, 10))
	assert.Equal(t, 0.0, CallWithMaxDiscard(2.5, 1.0))

	// the two interpretations disagree whenever the max is non-zero
	assert.NotEqual(t, CallWithMax(9, 0), CallWithMaxDiscard(9, 0))
	assert.Equal(t, CallWithMax(0, 0), CallWithMaxDiscard(0, 0))
}

func TestGeneric(t *testing.T) {
	tests := []struct {
		mode ResultMode
		want int
	}{
		{ResultReturn, 18},
		{ResultLiteral, 0},
		{ResultMode(""), 18},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, Generic[int](tt.mode)(9, 0))
		})
	}
}

func TestResultMode_Valid(t *testing.T) {
	assert.True(t, ResultReturn.Valid())
	assert.True(t, ResultLiteral.Valid())
	assert.False(t, ResultMode("indeterminate").Valid())
	assert.False(t, ResultMode("").Valid())
}

func TestMacroAndGenericAgreeWithoutSideEffects(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		x := rng.Intn(2001) - 1000
		y := rng.Intn(2001) - 1000

		macro := CallWithMaxMacro(Const(x), Const(y))
		generic := CallWithMax(x, y)

		require.Equal(t, generic, macro, "x=%d y=%d", x, y)
		require.Equal(t, 2*max(x, y), macro, "x=%d y=%d", x, y)
	}
}

func TestMacroAndGenericDifferOnlyInEvaluationCount(t *testing.T) {
	pairs := []struct{ a, b int }{
		{5, 0}, {0, 5}, {3, 3}, {-4, -9}, {-9, -4},
	}

	for _, p := range pairs {
		ms := &State{A: p.a, B: p.b}
		CallWithMaxMacro(ms.IncA(), ms.BPlus(0))

		gs := &State{A: p.a, B: p.b}
		CallWithMax(gs.IncA()(), gs.BPlus(0)())

		assert.Equal(t, 1, gs.Increments())
		if p.a+1 > p.b {
			assert.Equal(t, 2, ms.Increments(), "a=%d b=%d", p.a, p.b)
		} else {
			assert.Equal(t, 1, ms.Increments(), "a=%d b=%d", p.a, p.b)
		}
	}
}

func TestNewState(t *testing.T) {
	s := NewState()
	assert.Equal(t, InitialA, s.A)
	assert.Equal(t, InitialB, s.B)
	assert.Zero(t, s.Increments())

	assert.Equal(t, 10, s.BPlus(10)())
	assert.Equal(t, 0, s.B)
}
