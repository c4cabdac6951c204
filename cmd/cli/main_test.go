package main

import (
	"bytes"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/callwithmax/internal/testutil"
)

// execute runs the CLI with a clean environment and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{
		"CALLWITHMAX_LOG_LEVEL",
		"CALLWITHMAX_RESULT_MODE",
		"CALLWITHMAX_ENGINE",
		"CALLWITHMAX_SOURCE",
		"CALLWITHMAX_SCENARIO",
	} {
		t.Setenv(key, "")
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_CanonicalOutput(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, testutil.CanonicalOutput, out)
}

func TestRoot_RejectsArgs(t *testing.T) {
	_, err := execute(t, "extra")
	assert.Error(t, err)
}

func TestRoot_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"CALLWITHMAX_LOG_LEVEL", "loud", "invalid log level"},
		{"CALLWITHMAX_ENGINE", "quantum", "unknown engine"},
		{"CALLWITHMAX_RESULT_MODE", "maybe", "unknown result mode"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(nil)
			t.Setenv(tt.key, tt.value)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun(t *testing.T) {
	scenario := testutil.WriteFile(t, "scenario.yaml", `initial:
  a: 1
  b: 3
steps:
  - form: macro
    increment_a: true
  - form: generic
    increment_a: true
    b_offset: 1
`)
	source := testutil.WriteFile(t, "prog.cpp", testutil.ReturningProgram)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "native",
			args: []string{"run"},
			want: testutil.CanonicalOutput,
		},
		{
			name: "literal result mode",
			args: []string{"run", "--result-mode", "literal"},
			want: testutil.LiteralOutput,
		},
		{
			name: "source engine on the embedded program",
			args: []string{"run", "--engine", "source"},
			want: testutil.LiteralOutput,
		},
		{
			name: "scenario file",
			args: []string{"run", "--scenario", scenario},
			want: "a: 2\nb: 3\nc: 6\na: 3\nb: 3\nc: 8\n",
		},
		{
			name: "source file with a returning template",
			args: []string{"run", "--engine", "source", "--source", source},
			want: "a: 7\nb: 0\nc: 14\na: 8\nb: 0\nc: 16\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run", "--engine", "bogus")
	assert.ErrorContains(t, err, "unknown engine")

	_, err = execute(t, "run", "--scenario", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load scenario")

	_, err = execute(t, "run", "--engine", "source", "--source", filepath.Join(t.TempDir(), "missing.cpp"))
	assert.ErrorContains(t, err, "failed to parse file")
}

func TestRun_NameOverrides(t *testing.T) {
	source := testutil.WriteFile(t, "renamed.cpp", `int a = 5;
int b = 0;
int twice(int in) { return 2*in; }
#define MAXX(a,b) twice((a)>(b) ? (a):(b))
int main() { return 0; }
`)
	scenario := testutil.WriteFile(t, "scenario.yaml", `steps:
  - form: macro
    increment_a: true
`)

	out, err := execute(t, "run", "--engine", "source", "--source", source, "--scenario", scenario, "--macro", "MAXX")
	require.NoError(t, err)
	assert.Equal(t, "a: 7\nb: 0\nc: 14\n", out)
}

func TestExpand(t *testing.T) {
	out, err := execute(t, "expand", "CALL_WITH_MAX(++a,b+10)")
	require.NoError(t, err)

	assert.Contains(t, out, "nhanhai((++a)>(b+10) ? (++a):(b+10))")
	assert.Contains(t, out, "Macro CALL_WITH_MAX(a, b)")
	assert.Contains(t, out, "a: evaluated up to 2 times")
	assert.Contains(t, out, "b: evaluated up to 2 times")

	out, err = execute(t, "expand", "callWithMax(++a,b)")
	require.NoError(t, err)
	assert.Contains(t, out, "no macro named")

	_, err = execute(t, "expand")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	source := testutil.WriteFile(t, "prog.cpp", testutil.ReturningProgram)

	out, err := execute(t, "parse", "--file", source)
	require.NoError(t, err)

	assert.Contains(t, out, "Language: cpp")
	assert.Contains(t, out, "Macros: 1")
	assert.Contains(t, out, "CALL_WITH_MAX(a, b)")
	assert.Contains(t, out, "Globals: 2")
	assert.Contains(t, out, "int a = 5")
	assert.Contains(t, out, "Functions: 3")
	assert.Contains(t, out, "callWithMax (template)")
	assert.Contains(t, out, "const T& a, const T& b")

	_, err = execute(t, "parse")
	assert.Error(t, err, "--file is required")
}

func TestEmit(t *testing.T) {
	out, err := execute(t, "emit")
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "main.go", out, 0)
	require.NoError(t, err, out)
	assert.Contains(t, out, "package main")
	assert.Contains(t, out, `fmt.Println("c:", c4)`)

	path := filepath.Join(t.TempDir(), "callwithmax_test.go")
	_, err = execute(t, "emit", "--emitter", "go-test", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func TestTestcallwithmax(t *testing.T)")
	assert.Contains(t, string(data), "if c1 != 14 {")
	assert.NotContains(t, string(data), "c3")

	_, err = execute(t, "emit", "--emitter", "rust")
	assert.ErrorContains(t, err, "emitter not found")
}

func TestEmit_ScenarioInitialValues(t *testing.T) {
	scenario := testutil.WriteFile(t, "scenario.yaml", `initial:
  a: 20
  b: 1
steps:
  - form: macro
    increment_a: true
`)

	out, err := execute(t, "emit", "--emitter", "go-test", "--scenario", scenario)
	require.NoError(t, err)

	assert.Contains(t, out, "var a int = 20")
	assert.Contains(t, out, "if a != 22 {")
	assert.Contains(t, out, "if c1 != 44 {")
}

func TestRun_ScenarioExpectations(t *testing.T) {
	passing := testutil.WriteFile(t, "pass.yaml", `steps:
  - form: macro
    increment_a: true
    expect: "c == 14 && increments == 2"
`)
	failing := testutil.WriteFile(t, "fail.yaml", `steps:
  - form: macro
    increment_a: true
    expect: "increments == 1"
`)

	out, err := execute(t, "run", "--scenario", passing)
	require.NoError(t, err)
	assert.Equal(t, "a: 7\nb: 0\nc: 14\n", out)

	out, err = execute(t, "run", "--scenario", failing)
	assert.ErrorContains(t, err, "expectation failed")
	assert.Equal(t, "a: 7\nb: 0\nc: 14\n", out)
}

func TestCompare(t *testing.T) {
	out, err := execute(t, "compare")
	require.NoError(t, err)
	assert.Contains(t, out, "NATIVE")
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "a=9 b=0 c=18")
	assert.Contains(t, out, "a=9 b=0 c=?")

	out, err = execute(t, "compare", "--format", "html", "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "All 4 steps agree.")

	disagreeing := testutil.WriteFile(t, "triple.cpp", `int a = 5;
int b = 0;
int nhanhai(int in) { return 3*in; }
#define CALL_WITH_MAX(a,b) nhanhai((a)>(b) ? (a):(b))
template<typename T>
int callWithMax(const T& a, const T& b) { return nhanhai(a > b ? a : b); }
int main() {
  int c1 = CALL_WITH_MAX(++a,b);
  int c2 = callWithMax(++a,b+10);
  return 0;
}
`)
	out, err = execute(t, "compare", "--format", "markdown", "--source", disagreeing, "--strict")
	assert.ErrorContains(t, err, "engines disagree")
	assert.Contains(t, out, "no (c)")

	_, err = execute(t, "compare", "--format", "pdf")
	assert.ErrorContains(t, err, "unknown format")
}

func TestCompare_SourceMainCalls(t *testing.T) {
	source := testutil.WriteFile(t, "prog.cpp", testutil.ReturningProgram)

	out, err := execute(t, "compare", "--format", "markdown", "--source", source, "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "All 2 steps agree.")
	assert.Contains(t, out, "`callWithMax(++a,b)`")
	assert.Contains(t, out, "a=8 b=0 c=16")
	assert.NotContains(t, out, "b+10")

	noMain := testutil.WriteFile(t, "nomain.cpp", "int a = 1;\nint b = 2;\n")
	_, err = execute(t, "compare", "--source", noMain)
	assert.ErrorContains(t, err, "no main")
}
