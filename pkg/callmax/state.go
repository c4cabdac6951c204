package callmax

const (
	// InitialA is the starting value of counter A.
	InitialA = 5
	// InitialB is the starting value of counter B.
	InitialB = 0
)

// State holds the two shared counters that call expressions read and write.
type State struct {
	A int
	B int

	incs int
}

// NewState returns a State with the canonical starting values.
func NewState() *State {
	return &State{A: InitialA, B: InitialB}
}

// IncA returns the expression ++a.
func (s *State) IncA() Expr {
	return func() int {
		s.A++
		s.incs++
		return s.A
	}
}

// ReadA returns the expression a.
func (s *State) ReadA() Expr {
	return func() int { return s.A }
}

// BPlus returns the expression b+k. BPlus(0) is plain b.
func (s *State) BPlus(k int) Expr {
	return func() int { return s.B + k }
}

// Increments reports how many times A has been incremented.
func (s *State) Increments() int {
	return s.incs
}
