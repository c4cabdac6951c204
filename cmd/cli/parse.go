package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/callwithmax/internal/parser"
)

func parseCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a C++ source file and show extracted macros, globals and functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := parser.NewParser()
			parsed, err := p.ParseFile(cmd.Context(), filePath)
			if err != nil {
				return fmt.Errorf("failed to parse file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📄 File: %s\n", parsed.Path)
			fmt.Fprintf(out, "🔤 Language: %s\n", parsed.Language)
			if parsed.HasErrors {
				fmt.Fprintln(out, "⚠️  Syntax errors present")
			}
			fmt.Fprintf(out, "📥 Includes: %s\n", strings.Join(parsed.Includes, ", "))

			fmt.Fprintf(out, "🔁 Macros: %d\n", len(parsed.Macros))
			for _, m := range parsed.Macros {
				fmt.Fprintf(out, "   %s [line %d] -> %s\n", m.Definition.Signature(), m.StartLine, m.Definition.Body)
			}

			fmt.Fprintf(out, "🌐 Globals: %d\n", len(parsed.Globals))
			for _, g := range parsed.Globals {
				if g.Init != "" {
					fmt.Fprintf(out, "   %s %s = %s [line %d]\n", g.Type, g.Name, g.Init, g.StartLine)
				} else {
					fmt.Fprintf(out, "   %s %s [line %d]\n", g.Type, g.Name, g.StartLine)
				}
			}

			fmt.Fprintf(out, "📦 Functions: %d\n\n", len(parsed.Functions))
			for i, fn := range parsed.Functions {
				var tags []string
				if fn.Template {
					tags = append(tags, "template")
				}
				if fn.Inline {
					tags = append(tags, "inline")
				}
				if !fn.HasReturn() && fn.ReturnType != "void" {
					tags = append(tags, "no return")
				}
				tag := ""
				if len(tags) > 0 {
					tag = " (" + strings.Join(tags, ", ") + ")"
				}

				fmt.Fprintf(out, "%d. %s %s%s [lines %d-%d]\n", i+1, fn.ReturnType, fn.Name, tag, fn.StartLine, fn.EndLine)
				if len(fn.Parameters) > 0 {
					params := make([]string, len(fn.Parameters))
					for j, p := range fn.Parameters {
						params[j] = p.Type + " " + p.Name
						if p.Reference {
							params[j] = p.Type + "& " + p.Name
						}
						if p.Const {
							params[j] = "const " + params[j]
						}
					}
					fmt.Fprintf(out, "   Parameters: %s\n", strings.Join(params, ", "))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Source file to parse")
	cmd.MarkFlagRequired("file")

	return cmd
}
