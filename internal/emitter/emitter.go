// Package emitter converts a parsed call-with-max program to Go source
package emitter

import (
	"context"
	"fmt"
	"sort"

	"github.com/QTest-hq/callwithmax/internal/parser"
)

// Program is the input to an emitter
type Program struct {
	File     *parser.ParsedFile
	Calls    []string       // call expressions in order, e.g. CALL_WITH_MAX(++a,b)
	Expected []Expectation  // counters after each call; used by test emitters
	Initial  map[string]int // replaces the initializers of the named globals
}

// Expectation is the observed outcome of one call
type Expectation struct {
	A, B, C       int
	Indeterminate bool // C is not checked
}

// Emitter converts a program to source code for a specific target
type Emitter interface {
	// Name returns the emitter name (e.g., "go", "go-test")
	Name() string

	// Language returns the target language
	Language() string

	// Framework returns the test framework name, empty for plain programs
	Framework() string

	// FileExtension returns the output file extension (e.g., ".go", "_test.go")
	FileExtension() string

	// Emit generates source for the whole program
	Emit(ctx context.Context, p Program) (string, error)
}

// Registry holds all available emitters
type Registry struct {
	emitters map[string]Emitter
}

// NewRegistry creates a new emitter registry with all built-in emitters
func NewRegistry(p *parser.Parser) *Registry {
	r := &Registry{
		emitters: make(map[string]Emitter),
	}

	r.Register(NewGoEmitter(p))
	r.Register(NewGoTestEmitter(p))

	return r
}

// Register adds an emitter to the registry
func (r *Registry) Register(e Emitter) {
	r.emitters[e.Name()] = e
}

// Get returns an emitter by name
func (r *Registry) Get(name string) (Emitter, error) {
	e, ok := r.emitters[name]
	if !ok {
		return nil, fmt.Errorf("emitter not found: %s", name)
	}
	return e, nil
}

// List returns all registered emitter names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.emitters))
	for name := range r.emitters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
