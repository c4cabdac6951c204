package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/callwithmax/internal/config"
	"github.com/QTest-hq/callwithmax/internal/driver"
	"github.com/QTest-hq/callwithmax/internal/emitter"
	"github.com/QTest-hq/callwithmax/internal/parser"
)

func emitCmd(cfg **config.Config) *cobra.Command {
	var (
		sourcePath   string
		scenarioPath string
		emitterName  string
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Generate Go code that performs the program's calls",
		Long: `Translates the C++ program to Go. Macro calls are expanded first, so a
side effect written once in a macro argument appears as often in the Go code
as the macro body names the parameter.

Supported emitters:
  - go: a standalone program printing a, b and c after each call
  - go-test: a Go test asserting the values the interpreter observed

Example:
  callwithmax emit --emitter go-test -o callwithmax_test.go`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source, scenario := sourcePath, scenarioPath
			if source == "" {
				source = (*cfg).SourcePath
			}
			if scenario == "" {
				scenario = (*cfg).ScenarioPath
			}

			p := parser.NewParser()
			registry := emitter.NewRegistry(p)
			em, err := registry.Get(emitterName)
			if err != nil {
				return fmt.Errorf("emitter not found: %s\nAvailable: %v", emitterName, registry.List())
			}

			file, err := loadSource(ctx, p, source)
			if err != nil {
				return err
			}

			prog, err := buildProgram(ctx, p, file, scenario)
			if err != nil {
				return err
			}

			code, err := em.Emit(ctx, *prog)
			if err != nil {
				return fmt.Errorf("failed to emit %s: %w", em.Name(), err)
			}

			if outputFile == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), code)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(code), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			log.Info().
				Str("emitter", em.Name()).
				Str("file", outputFile).
				Int("calls", len(prog.Calls)).
				Msg("wrote generated code")
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "C++ source (default: embedded example)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (default: the calls in main)")
	cmd.Flags().StringVar(&emitterName, "emitter", "go", "Emitter (go, go-test)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// buildProgram collects the calls to emit and the values the interpreter
// observes for them
func buildProgram(ctx context.Context, p *parser.Parser, file *parser.ParsedFile, scenarioPath string) (*emitter.Program, error) {
	var (
		scenario *config.Scenario
		err      error
	)
	if scenarioPath != "" {
		if scenario, err = config.LoadScenario(scenarioPath); err != nil {
			return nil, fmt.Errorf("failed to load scenario: %w", err)
		}
	} else if scenario, err = driver.ScenarioFromSource(ctx, p, file); err != nil {
		return nil, err
	}

	steps, err := driver.New(driver.NewSourceEngine(p, file), scenario).Run(ctx, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate calls: %w", err)
	}

	prog := &emitter.Program{
		File:    file,
		Initial: map[string]int{"a": scenario.Initial.A, "b": scenario.Initial.B},
	}
	for i, s := range steps {
		prog.Calls = append(prog.Calls, scenario.CallText(scenario.Steps[i]))
		prog.Expected = append(prog.Expected, emitter.Expectation{
			A:             s.A,
			B:             s.B,
			C:             s.C,
			Indeterminate: s.Indeterminate,
		})
	}
	return prog, nil
}
