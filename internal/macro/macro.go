// Package macro performs textual expansion of function-like #define macros
package macro

import (
	"errors"
	"fmt"
	"strings"
	"text/scanner"
	"unicode"
)

var (
	// ErrNotFunctionLike is returned for object-like or malformed directives
	ErrNotFunctionLike = errors.New("not a function-like macro")

	// ErrArity is returned when a call passes the wrong number of arguments
	ErrArity = errors.New("wrong number of macro arguments")

	// ErrMalformedCall is returned when call text cannot be split into arguments
	ErrMalformedCall = errors.New("malformed macro call")
)

// Definition is a function-like macro
type Definition struct {
	Name   string
	Params []string
	Body   string
}

// ParseDefine parses a "#define NAME(p1, p2) body" directive.
// Backslash-newline continuations are joined first.
func ParseDefine(line string) (*Definition, error) {
	text := strings.ReplaceAll(line, "\\\r\n", " ")
	text = strings.ReplaceAll(text, "\\\n", " ")
	text = strings.TrimSpace(text)

	rest, ok := strings.CutPrefix(text, "#")
	if !ok {
		return nil, fmt.Errorf("%w: missing '#'", ErrNotFunctionLike)
	}
	rest, ok = strings.CutPrefix(strings.TrimLeft(rest, " \t"), "define")
	if !ok || rest == "" || !unicode.IsSpace(rune(rest[0])) {
		return nil, fmt.Errorf("%w: not a #define", ErrNotFunctionLike)
	}
	rest = strings.TrimLeft(rest, " \t")

	name := leadingIdent(rest)
	if name == "" {
		return nil, fmt.Errorf("%w: missing macro name", ErrNotFunctionLike)
	}
	rest = rest[len(name):]

	// The parameter list must follow the name with no whitespace in between.
	if !strings.HasPrefix(rest, "(") {
		return nil, fmt.Errorf("%w: %s", ErrNotFunctionLike, name)
	}
	closeIdx := strings.IndexByte(rest, ')')
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: unterminated parameter list in %s", ErrNotFunctionLike, name)
	}

	params, err := parseParams(rest[1:closeIdx])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &Definition{
		Name:   name,
		Params: params,
		Body:   strings.TrimSpace(rest[closeIdx+1:]),
	}, nil
}

func parseParams(list string) ([]string, error) {
	params := make([]string, 0)
	if strings.TrimSpace(list) == "" {
		return params, nil
	}

	seen := make(map[string]bool)
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if leadingIdent(p) != p || p == "" {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrNotFunctionLike, p)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrNotFunctionLike, p)
		}
		seen[p] = true
		params = append(params, p)
	}
	return params, nil
}

func leadingIdent(s string) string {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return s[:i]
	}
	return s
}

// Expand substitutes args for the parameters in the body. Every identifier
// token equal to a parameter name is replaced by the argument text verbatim;
// everything else, including spacing, is left alone.
func (d *Definition) Expand(args ...string) (string, error) {
	if len(args) != len(d.Params) {
		return "", fmt.Errorf("%w: %s wants %d, got %d", ErrArity, d.Name, len(d.Params), len(args))
	}

	bind := make(map[string]string, len(args))
	for i, p := range d.Params {
		bind[p] = strings.TrimSpace(args[i])
	}

	var out strings.Builder
	last := 0
	scanIdents(d.Body, func(ident string, offset int) {
		arg, ok := bind[ident]
		if !ok {
			return
		}
		out.WriteString(d.Body[last:offset])
		out.WriteString(arg)
		last = offset + len(ident)
	})
	out.WriteString(d.Body[last:])

	return out.String(), nil
}

// ExpandCall expands call text of the form NAME(arg, ...).
func (d *Definition) ExpandCall(call string) (string, error) {
	args, err := d.SplitCall(call)
	if err != nil {
		return "", err
	}
	return d.Expand(args...)
}

// SplitCall returns the argument texts of a call to this macro.
func (d *Definition) SplitCall(call string) ([]string, error) {
	call = strings.TrimSpace(call)
	rest, ok := strings.CutPrefix(call, d.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not call %s", ErrMalformedCall, call, d.Name)
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedCall, call)
	}
	return SplitArgs(rest[1 : len(rest)-1])
}

// SplitArgs splits an argument list at top-level commas. Commas nested in
// brackets or string and character literals do not split.
func SplitArgs(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return []string{}, nil
	}

	var (
		args  []string
		depth int
		start int
		quote byte
	)
	for i := 0; i < len(list); i++ {
		c := list[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced %q", ErrMalformedCall, c)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("%w: unterminated argument list", ErrMalformedCall)
	}
	return append(args, strings.TrimSpace(list[start:])), nil
}

// Occurrences counts how often each parameter appears in the body. The count
// is the number of times the matching argument is pasted into the expansion,
// and so the most times it can be evaluated.
func (d *Definition) Occurrences() map[string]int {
	counts := make(map[string]int, len(d.Params))
	for _, p := range d.Params {
		counts[p] = 0
	}
	scanIdents(d.Body, func(ident string, _ int) {
		if _, ok := counts[ident]; ok {
			counts[ident]++
		}
	})
	return counts
}

// Signature renders the macro head, e.g. CALL_WITH_MAX(a, b).
func (d *Definition) Signature() string {
	return d.Name + "(" + strings.Join(d.Params, ", ") + ")"
}

func scanIdents(src string, fn func(ident string, offset int)) {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanChars | scanner.ScanStrings | scanner.ScanComments
	s.Error = func(*scanner.Scanner, string) {}

	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if tok == scanner.Ident {
			fn(s.TokenText(), s.Position.Offset)
		}
	}
}

// Table holds macro definitions by name
type Table map[string]*Definition

// NewTable builds a table from definitions. Later definitions replace
// earlier ones with the same name.
func NewTable(defs ...*Definition) Table {
	t := make(Table, len(defs))
	for _, d := range defs {
		t[d.Name] = d
	}
	return t
}

// ExpandAll expands every macro call in text, rescanning each expansion.
// A macro is not expanded again inside its own expansion.
func (t Table) ExpandAll(text string) (string, error) {
	return t.expand(text, make(map[string]bool))
}

func (t Table) expand(text string, active map[string]bool) (string, error) {
	var (
		out      strings.Builder
		last     int
		firstErr error
	)

	scanIdents(text, func(ident string, offset int) {
		if firstErr != nil || offset < last {
			return
		}
		def, ok := t[ident]
		if !ok || active[ident] {
			return
		}

		open := offset + len(ident)
		for open < len(text) && unicode.IsSpace(rune(text[open])) {
			open++
		}
		if open >= len(text) || text[open] != '(' {
			return
		}
		end, err := matchParen(text, open)
		if err != nil {
			firstErr = err
			return
		}

		// Arguments are fully expanded before substitution
		args, err := def.SplitCall(text[offset : end+1])
		if err != nil {
			firstErr = err
			return
		}
		for i := range args {
			if args[i], err = t.expand(args[i], active); err != nil {
				firstErr = err
				return
			}
		}
		expanded, err := def.Expand(args...)
		if err != nil {
			firstErr = err
			return
		}

		active[ident] = true
		expanded, err = t.expand(expanded, active)
		delete(active, ident)
		if err != nil {
			firstErr = err
			return
		}

		out.WriteString(text[last:offset])
		out.WriteString(expanded)
		last = end + 1
	})
	if firstErr != nil {
		return "", firstErr
	}

	out.WriteString(text[last:])
	return out.String(), nil
}

// matchParen returns the index of the parenthesis closing the one at open
func matchParen(text string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unterminated call at offset %d", ErrMalformedCall, open)
}
