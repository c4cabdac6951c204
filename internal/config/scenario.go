package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/QTest-hq/callwithmax/pkg/callmax"
)

// Call forms
const (
	FormMacro   = "macro"
	FormGeneric = "generic"
)

// Names the canonical C++ program uses for the two forms
const (
	DefaultMacroName    = "CALL_WITH_MAX"
	DefaultFunctionName = "callWithMax"
)

// Scenario is an ordered list of calls run against counters A and B
type Scenario struct {
	Version string `yaml:"version"`

	// Starting counter values
	Initial InitialState `yaml:"initial"`

	// Identifiers used when rendering steps as C++ calls
	MacroName    string `yaml:"macro_name,omitempty"`
	FunctionName string `yaml:"function_name,omitempty"`

	Steps []Step `yaml:"steps"`
}

// InitialState holds the starting counter values
type InitialState struct {
	A int `yaml:"a"`
	B int `yaml:"b"`
}

// Step is a single call
type Step struct {
	// macro or generic
	Form string `yaml:"form,omitempty"`

	// Pass ++a instead of a as the first argument
	IncrementA bool `yaml:"increment_a,omitempty"`

	// Second argument is b+BOffset
	BOffset int `yaml:"b_offset,omitempty"`

	// Raw C++ call; only the source engine can run a step that has no form
	Call string `yaml:"call,omitempty"`

	// Boolean expression over a, b, c, increments and indeterminate checked
	// after the call, e.g. "c == 14 && increments == 2"
	Expect string `yaml:"expect,omitempty"`
}

// DefaultScenario returns the canonical four-call sequence
func DefaultScenario() *Scenario {
	return &Scenario{
		Version:      "1.0",
		Initial:      InitialState{A: callmax.InitialA, B: callmax.InitialB},
		MacroName:    DefaultMacroName,
		FunctionName: DefaultFunctionName,
		Steps: []Step{
			{Form: FormMacro, IncrementA: true},
			{Form: FormMacro, IncrementA: true, BOffset: 10},
			{Form: FormGeneric, IncrementA: true},
			{Form: FormGeneric, IncrementA: true, BOffset: 10},
		},
	}
}

// CallText renders the step as a C++ call expression
func (s *Scenario) CallText(step Step) string {
	if step.Call != "" {
		return step.Call
	}

	name := s.FunctionName
	if step.Form == FormMacro {
		name = s.MacroName
	}

	first := "a"
	if step.IncrementA {
		first = "++a"
	}
	second := "b"
	switch {
	case step.BOffset > 0:
		second = fmt.Sprintf("b+%d", step.BOffset)
	case step.BOffset < 0:
		second = fmt.Sprintf("b-%d", -step.BOffset)
	}

	return fmt.Sprintf("%s(%s,%s)", name, first, second)
}

// StepFor returns a step for raw call text. Calls of the shape CallText
// renders, such as CALL_WITH_MAX(++a,b+10), also get a form so the native
// engine can run them.
func (s *Scenario) StepFor(call string) Step {
	step := Step{Call: call}

	name, rest, ok := strings.Cut(strings.Join(strings.Fields(call), ""), "(")
	if !ok {
		return step
	}
	args, ok := strings.CutSuffix(rest, ")")
	if !ok {
		return step
	}
	first, second, ok := strings.Cut(args, ",")
	if !ok {
		return step
	}

	var form string
	switch name {
	case s.MacroName:
		form = FormMacro
	case s.FunctionName:
		form = FormGeneric
	default:
		return step
	}

	var inc bool
	switch first {
	case "a":
	case "++a":
		inc = true
	default:
		return step
	}

	offset := 0
	if second != "b" {
		n, ok := strings.CutPrefix(second, "b")
		if !ok {
			return step
		}
		v, err := strconv.Atoi(n)
		if err != nil {
			return step
		}
		offset = v
	}

	step.Form = form
	step.IncrementA = inc
	step.BOffset = offset
	return step
}

// Validate checks the scenario can be run
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}

	for i, step := range s.Steps {
		switch step.Form {
		case FormMacro, FormGeneric:
		case "":
			if step.Call == "" {
				return fmt.Errorf("step %d: needs a form or a call", i+1)
			}
		default:
			return fmt.Errorf("step %d: unknown form %q", i+1, step.Form)
		}
	}

	return nil
}

// Native reports whether every step has a form the native engine can run
func (s *Scenario) Native() bool {
	for _, step := range s.Steps {
		if step.Form == "" {
			return false
		}
	}
	return true
}

// LoadScenario loads a scenario file on top of the defaults
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultScenario()
	cfg.Steps = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// SaveScenario writes the scenario as YAML
func SaveScenario(path string, s *Scenario) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Merge applies overrides from another scenario (e.g., CLI flags). Zero
// values mean "not set", so an override cannot reset Initial.A or
// Initial.B to 0; use a scenario file for that.
func (s *Scenario) Merge(other *Scenario) {
	if other == nil {
		return
	}

	if other.Initial.A != 0 {
		s.Initial.A = other.Initial.A
	}

	if other.Initial.B != 0 {
		s.Initial.B = other.Initial.B
	}

	if other.MacroName != "" {
		s.MacroName = other.MacroName
	}

	if other.FunctionName != "" {
		s.FunctionName = other.FunctionName
	}

	if len(other.Steps) > 0 {
		s.Steps = other.Steps
	}
}
