// Package report renders engine comparisons for people to read
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"rsc.io/markdown"

	"github.com/QTest-hq/callwithmax/internal/driver"
)

// Output formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Formats lists the supported output formats
var Formats = []string{FormatText, FormatMarkdown, FormatHTML}

// Render writes the comparison in the given format
func Render(w io.Writer, cmp *driver.Comparison, format string) error {
	switch format {
	case FormatText, "":
		return Text(w, cmp)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(cmp))
		return err
	case FormatHTML:
		_, err := io.WriteString(w, HTML(cmp))
		return err
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// Text writes an aligned table
func Text(w io.Writer, cmp *driver.Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"STEP", "CALL"}
	for _, name := range cmp.Engines {
		header = append(header, strings.ToUpper(name))
	}
	header = append(header, "AGREE")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, row := range rows(cmp) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// Markdown returns a GitHub-style table
func Markdown(cmp *driver.Comparison) string {
	var sb strings.Builder

	sb.WriteString("# Engine comparison\n\n")
	if cmp.Agree() {
		fmt.Fprintf(&sb, "All %d steps agree.\n\n", cmp.Len())
	} else {
		sb.WriteString("The engines **disagree**.\n\n")
	}

	sb.WriteString("| Step | Call |")
	for _, name := range cmp.Engines {
		fmt.Fprintf(&sb, " %s |", name)
	}
	sb.WriteString(" Agree |\n|---|---|")
	for range cmp.Engines {
		sb.WriteString("---|")
	}
	sb.WriteString("---|\n")

	for _, row := range rows(cmp) {
		row[1] = "`" + row[1] + "`"
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	return sb.String()
}

// HTML renders the Markdown report as HTML
func HTML(cmp *driver.Comparison) string {
	p := markdown.Parser{Table: true}
	doc := p.Parse(Markdown(cmp))
	return markdown.ToHTML(doc)
}

func rows(cmp *driver.Comparison) [][]string {
	out := make([][]string, 0, cmp.Len())
	for i := 0; i < cmp.Len(); i++ {
		first := cmp.Runs[0][i]
		row := []string{fmt.Sprint(first.Index), first.Call}
		for _, run := range cmp.Runs {
			row = append(row, cell(run[i]))
		}

		agree := "yes"
		if diffs := cmp.Differences(i); len(diffs) > 0 {
			agree = "no (" + strings.Join(diffs, ", ") + ")"
		}
		out = append(out, append(row, agree))
	}
	return out
}

func cell(s driver.Step) string {
	c := fmt.Sprint(s.C)
	if s.Indeterminate {
		c = "?"
	}
	return fmt.Sprintf("a=%d b=%d c=%s", s.A, s.B, c)
}
