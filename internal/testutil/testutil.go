// Package testutil provides shared fixtures for package tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/callwithmax/examples"
	"github.com/QTest-hq/callwithmax/internal/parser"
)

const (
	// CanonicalOutput is what the default run prints
	CanonicalOutput = "a: 7\nb: 0\nc: 14\n" +
		"a: 8\nb: 0\nc: 20\n" +
		"a: 9\nb: 0\nc: 18\n" +
		"a: 10\nb: 0\nc: 20\n"

	// LiteralOutput is the default run when the generic form discards its
	// result, which is also what the example program does
	LiteralOutput = "a: 7\nb: 0\nc: 14\n" +
		"a: 8\nb: 0\nc: 20\n" +
		"a: 9\nb: 0\nc: 0\n" +
		"a: 10\nb: 0\nc: 0\n"
)

// ReturningProgram is the example program with a template that returns
// its result and a main holding two calls
const ReturningProgram = `int a = 5;
int b = 0;

int twice(int in) { return 2*in; }

#define CALL_WITH_MAX(a,b) twice((a)>(b) ? (a):(b))

template<typename T>
int callWithMax(const T& a, const T& b) { return twice(a > b ? a : b); }

int main() {
  int c1 = CALL_WITH_MAX(++a,b);
  int c2 = callWithMax(++a,b);
  return 0;
}
`

// ParseExample parses the embedded example program
func ParseExample(t *testing.T) (*parser.Parser, *parser.ParsedFile) {
	t.Helper()
	return ParseSource(t, examples.CallWithMaxName, examples.CallWithMax)
}

// ParseSource parses C++ source held in memory
func ParseSource(t *testing.T, path, src string) (*parser.Parser, *parser.ParsedFile) {
	t.Helper()

	p := parser.NewParser()
	file, err := p.ParseContent(context.Background(), path, src)
	require.NoError(t, err)

	return p, file
}

// WriteFile writes content to name in a fresh temp directory and returns
// the path
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}
