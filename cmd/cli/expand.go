package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/callwithmax/internal/config"
	"github.com/QTest-hq/callwithmax/internal/driver"
	"github.com/QTest-hq/callwithmax/internal/parser"
)

func expandCmd(cfg **config.Config) *cobra.Command {
	var sourcePath string

	cmd := &cobra.Command{
		Use:   "expand CALL",
		Short: "Show how a call expands against the program's macros",
		Long: `Expands a call the way the preprocessor would and counts how many times
each macro parameter appears in the body.

Example:
  callwithmax expand 'CALL_WITH_MAX(++a,b)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sourcePath
			if path == "" {
				path = (*cfg).SourcePath
			}

			file, err := loadSource(cmd.Context(), parser.NewParser(), path)
			if err != nil {
				return err
			}

			exp, err := driver.Expand(file, args[0])
			if err != nil {
				return fmt.Errorf("failed to expand %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", exp.Expanded)
			if exp.Macro == nil {
				fmt.Fprintf(out, "(no macro named in %s)\n", exp.Call)
				return nil
			}

			fmt.Fprintf(out, "\nMacro %s\n", exp.Macro.Signature())
			names := make([]string, 0, len(exp.Occurrences))
			for name := range exp.Occurrences {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: evaluated up to %d times\n", name, exp.Occurrences[name])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "C++ source defining the macros (default: embedded example)")

	return cmd
}
