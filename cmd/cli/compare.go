package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/callwithmax/internal/config"
	"github.com/QTest-hq/callwithmax/internal/driver"
	"github.com/QTest-hq/callwithmax/internal/parser"
	"github.com/QTest-hq/callwithmax/internal/report"
	"github.com/QTest-hq/callwithmax/pkg/callmax"
)

func compareCmd(cfg **config.Config) *cobra.Command {
	var (
		sourcePath   string
		scenarioPath string
		resultMode   string
		format       string
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run a scenario on the native and source engines side by side",
		Long: `Runs the same scenario on both engines concurrently and reports, step by
step, whether they agree on a, b, c and the number of increments of a.

Formats: ` + strings.Join(report.Formats, ", ") + `

Example:
  callwithmax compare --format html > report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c := **cfg
			if sourcePath != "" {
				c.SourcePath = sourcePath
			}
			if scenarioPath != "" {
				c.ScenarioPath = scenarioPath
			}
			if resultMode != "" {
				c.ResultMode = callmax.ResultMode(resultMode)
			}
			if err := c.Validate(); err != nil {
				return err
			}

			p := parser.NewParser()
			file, err := loadSource(ctx, p, c.SourcePath)
			if err != nil {
				return err
			}

			var scenario *config.Scenario
			if c.ScenarioPath != "" {
				if scenario, err = config.LoadScenario(c.ScenarioPath); err != nil {
					return fmt.Errorf("failed to load scenario: %w", err)
				}
			} else if scenario, err = sourceScenario(ctx, p, file, c.SourcePath); err != nil {
				return err
			}

			cmp, err := driver.Compare(ctx, scenario, driver.NewNativeEngine(c.ResultMode), driver.NewSourceEngine(p, file))
			if err != nil {
				return err
			}

			if err := report.Render(cmd.OutOrStdout(), cmp, format); err != nil {
				return err
			}
			if strict && !cmp.Agree() {
				return fmt.Errorf("engines disagree")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "C++ source for the source engine (default: embedded example)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (default: the calls in the source's main)")
	cmd.Flags().StringVarP(&resultMode, "result-mode", "m", "", "Generic result mode for the native engine (return, literal)")
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText, "Output format")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when the engines disagree")

	return cmd
}
