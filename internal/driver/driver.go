// Package driver runs a scenario of call-with-max invocations and prints the
// counters after each one.
package driver

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/callwithmax/internal/config"
)

// Step is the observed outcome of one call
type Step struct {
	Index         int
	Form          string
	Call          string
	A             int
	B             int
	C             int
	Indeterminate bool // C is not a value the call produced
	Increments    int  // times A was incremented during the call
}

// Driver runs a scenario on an engine
type Driver struct {
	engine   Engine
	scenario *config.Scenario
	expect   *expectations
	logger   zerolog.Logger
}

// New creates a driver. A nil scenario runs the default sequence.
func New(engine Engine, scenario *config.Scenario) *Driver {
	if scenario == nil {
		scenario = config.DefaultScenario()
	}
	return &Driver{
		engine:   engine,
		scenario: scenario,
		expect:   newExpectations(),
		logger: log.With().
			Str("run_id", uuid.NewString()).
			Str("engine", engine.Name()).
			Logger(),
	}
}

// Run executes every step in order, writing a block of three lines after
// each: "a: <A>", "b: <B>", "c: <C>". A step whose expect expression is
// false stops the run with ErrExpectation once its block is written.
func (d *Driver) Run(ctx context.Context, w io.Writer) ([]Step, error) {
	if err := d.scenario.Validate(); err != nil {
		return nil, err
	}
	if err := d.engine.Start(ctx, d.scenario); err != nil {
		return nil, err
	}

	d.logger.Info().
		Int("a", d.scenario.Initial.A).
		Int("b", d.scenario.Initial.B).
		Int("steps", len(d.scenario.Steps)).
		Msg("running scenario")

	steps := make([]Step, 0, len(d.scenario.Steps))
	for i, s := range d.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		step, err := d.engine.Step(ctx, d.scenario, s)
		if err != nil {
			return steps, fmt.Errorf("step %d: %w", i+1, err)
		}
		step.Index = i + 1

		d.logger.Debug().
			Int("step", step.Index).
			Str("form", step.Form).
			Str("call", step.Call).
			Int("increments", step.Increments).
			Msg("step complete")
		if step.Indeterminate {
			d.logger.Warn().
				Int("step", step.Index).
				Str("call", step.Call).
				Msg("call produced no value; printing zero")
		}

		if err := WriteBlock(w, step); err != nil {
			return steps, fmt.Errorf("writing step %d: %w", step.Index, err)
		}
		steps = append(steps, step)

		if s.Expect != "" {
			if err := d.expect.Check(s.Expect, step); err != nil {
				return steps, fmt.Errorf("step %d: %w", step.Index, err)
			}
		}
	}

	return steps, nil
}

// WriteBlock writes the three output lines for a step
func WriteBlock(w io.Writer, s Step) error {
	_, err := fmt.Fprintf(w, "a: %d\nb: %d\nc: %d\n", s.A, s.B, s.C)
	return err
}
