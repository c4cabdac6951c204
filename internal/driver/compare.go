package driver

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/callwithmax/internal/config"
)

// Comparison lines up the steps several engines produced for one scenario
type Comparison struct {
	Scenario *config.Scenario
	Engines  []string // engine names in argument order
	Runs     [][]Step // Runs[i] holds the steps of Engines[i]
}

// Compare runs the scenario on every engine concurrently. Engines keep their
// own counters, so runs do not interfere.
func Compare(ctx context.Context, scenario *config.Scenario, engines ...Engine) (*Comparison, error) {
	if len(engines) < 2 {
		return nil, fmt.Errorf("compare needs at least two engines, got %d", len(engines))
	}
	if scenario == nil {
		scenario = config.DefaultScenario()
	}

	cmp := &Comparison{
		Scenario: scenario,
		Engines:  make([]string, len(engines)),
		Runs:     make([][]Step, len(engines)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range engines {
		i, e := i, e
		cmp.Engines[i] = e.Name()
		g.Go(func() error {
			steps, err := New(e, scenario).Run(gctx, io.Discard)
			if err != nil {
				return fmt.Errorf("%s engine: %w", e.Name(), err)
			}
			cmp.Runs[i] = steps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return cmp, nil
}

// Len returns the number of steps every engine completed
func (c *Comparison) Len() int {
	n := -1
	for _, run := range c.Runs {
		if n < 0 || len(run) < n {
			n = len(run)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// Differences names the fields on which the engines disagree at step i.
// C is only compared between engines that produced a value.
func (c *Comparison) Differences(i int) []string {
	var diffs []string
	first := c.Runs[0][i]

	field := func(name string, get func(Step) int) {
		for _, run := range c.Runs[1:] {
			if get(run[i]) != get(first) {
				diffs = append(diffs, name)
				return
			}
		}
	}
	field("a", func(s Step) int { return s.A })
	field("b", func(s Step) int { return s.B })
	field("increments", func(s Step) int { return s.Increments })

	var ref *Step
	for j := range c.Runs {
		s := c.Runs[j][i]
		if s.Indeterminate {
			continue
		}
		if ref == nil {
			ref = &s
			continue
		}
		if s.C != ref.C {
			diffs = append(diffs, "c")
			break
		}
	}

	return diffs
}

// Agree reports whether the engines agree on every step
func (c *Comparison) Agree() bool {
	for i := 0; i < c.Len(); i++ {
		if len(c.Differences(i)) > 0 {
			return false
		}
	}
	return true
}
