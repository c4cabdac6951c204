package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/callwithmax/examples"
	"github.com/QTest-hq/callwithmax/internal/config"
	"github.com/QTest-hq/callwithmax/internal/driver"
	"github.com/QTest-hq/callwithmax/internal/parser"
	"github.com/QTest-hq/callwithmax/pkg/callmax"
)

var version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "callwithmax",
		Short: "callwithmax - macro vs generic call-with-max",
		Long: `callwithmax contrasts a textual CALL_WITH_MAX macro with a generic function.

Run without arguments it performs the four canonical calls and prints the
counters after each one.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = loadConfig(); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), cmd.OutOrStdout(), cfg, nil)
		},
	}

	rootCmd.AddCommand(runCmd(&cfg))
	rootCmd.AddCommand(expandCmd(&cfg))
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(emitCmd(&cfg))
	rootCmd.AddCommand(compareCmd(&cfg))

	return rootCmd
}

// loadConfig reads the environment and applies the log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := cfg.Level()
	zerolog.SetGlobalLevel(level)

	return cfg, nil
}

// runScenario runs the configured scenario on the configured engine.
// overrides, when set, is merged over the scenario.
func runScenario(ctx context.Context, w io.Writer, cfg *config.Config, overrides *config.Scenario) error {
	var scenario *config.Scenario
	if cfg.ScenarioPath != "" {
		s, err := config.LoadScenario(cfg.ScenarioPath)
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
		scenario = s
	}

	var engine driver.Engine
	switch cfg.Engine {
	case config.EngineSource:
		p := parser.NewParser()
		file, err := loadSource(ctx, p, cfg.SourcePath)
		if err != nil {
			return err
		}
		if scenario == nil {
			if scenario, err = sourceScenario(ctx, p, file, cfg.SourcePath); err != nil {
				return err
			}
		}
		engine = driver.NewSourceEngine(p, file)
	default:
		engine = driver.NewNativeEngine(cfg.ResultMode)
	}

	if overrides != nil {
		if scenario == nil {
			scenario = config.DefaultScenario()
		}
		scenario.Merge(overrides)
	}

	_, err := driver.New(engine, scenario).Run(ctx, w)
	return err
}

// sourceScenario reads the calls in main of a user-supplied program. It
// returns nil for the embedded example, whose calls are the default scenario.
func sourceScenario(ctx context.Context, p *parser.Parser, file *parser.ParsedFile, path string) (*config.Scenario, error) {
	if path == "" {
		return nil, nil
	}
	return driver.ScenarioFromSource(ctx, p, file)
}

// loadSource parses the C++ program at path, or the embedded example when
// path is empty
func loadSource(ctx context.Context, p *parser.Parser, path string) (*parser.ParsedFile, error) {
	if path == "" {
		file, err := p.ParseContent(ctx, examples.CallWithMaxName, examples.CallWithMax)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded example: %w", err)
		}
		return file, nil
	}

	file, err := p.ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if file.HasErrors {
		log.Warn().Str("file", path).Msg("source has syntax errors; results may be incomplete")
	}
	return file, nil
}

func runCmd(cfg **config.Config) *cobra.Command {
	var (
		engine       string
		resultMode   string
		scenarioPath string
		sourcePath   string
		macroName    string
		functionName string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario of call-with-max calls",
		Long: `Runs a scenario and prints a, b and c after each call.

Engines:
  - native: Go implementations of the macro and generic forms
  - source: interprets the C++ program (embedded example or --source)

Example:
  callwithmax run --engine source --source testcallwithmax.cpp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := **cfg
			if engine != "" {
				c.Engine = engine
			}
			if resultMode != "" {
				c.ResultMode = callmax.ResultMode(resultMode)
			}
			if scenarioPath != "" {
				c.ScenarioPath = scenarioPath
			}
			if sourcePath != "" {
				c.SourcePath = sourcePath
			}
			if err := c.Validate(); err != nil {
				return err
			}

			var overrides *config.Scenario
			if macroName != "" || functionName != "" {
				overrides = &config.Scenario{MacroName: macroName, FunctionName: functionName}
			}

			return runScenario(cmd.Context(), cmd.OutOrStdout(), &c, overrides)
		},
	}

	cmd.Flags().StringVarP(&engine, "engine", "e", "", "Engine (native, source)")
	cmd.Flags().StringVarP(&resultMode, "result-mode", "m", "", "Generic result mode (return, literal)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file")
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "C++ source for the source engine")
	cmd.Flags().StringVar(&macroName, "macro", "", "Macro name used by macro steps")
	cmd.Flags().StringVar(&functionName, "function", "", "Function name used by generic steps")

	return cmd
}
