package emitter

import (
	"context"
	"errors"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	cppparser "github.com/QTest-hq/callwithmax/internal/parser"
	"github.com/QTest-hq/callwithmax/internal/testutil"
)

var exampleCalls = []string{
	"CALL_WITH_MAX(++a,b)",
	"CALL_WITH_MAX(++a,b+10)",
	"callWithMax(++a,b)",
	"callWithMax(++a,b+10)",
}

// assertValidGo parses and type-checks generated source
func assertValidGo(t *testing.T, src string) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "gen.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, src)
	}

	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	if _, err := conf.Check(f.Name.Name, fset, []*ast.File{f}, nil); err != nil {
		t.Fatalf("generated code does not type-check: %v\n%s", err, src)
	}
}

// runGo runs a generated program and returns its stdout
func runGo(t *testing.T, src string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping go run in short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not available")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(goBin, "run", "main.go")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("go run failed: %v\n%s", err, src)
	}
	return string(out)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(cppparser.NewParser())
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}

	names := r.List()
	expected := []string{"go", "go-test"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d emitters, got %d", len(expected), len(names))
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("List()[%d] = %s, want %s", i, names[i], name)
		}
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(cppparser.NewParser())

	e, err := r.Get("go-test")
	if err != nil {
		t.Fatalf("failed to get go-test emitter: %v", err)
	}
	if e.Name() != "go-test" {
		t.Errorf("expected go-test, got %s", e.Name())
	}

	if _, err := r.Get("nonexistent"); err == nil {
		t.Error("expected error for nonexistent emitter")
	}
}

func TestEmitter_Metadata(t *testing.T) {
	tests := []struct {
		e         Emitter
		name      string
		framework string
		ext       string
	}{
		{NewGoEmitter(nil), "go", "", ".go"},
		{NewGoTestEmitter(nil), "go-test", "testing", "_test.go"},
	}

	for _, tt := range tests {
		if tt.e.Name() != tt.name {
			t.Errorf("Name() = %s, want %s", tt.e.Name(), tt.name)
		}
		if tt.e.Language() != "go" {
			t.Errorf("%s: Language() = %s, want go", tt.name, tt.e.Language())
		}
		if tt.e.Framework() != tt.framework {
			t.Errorf("%s: Framework() = %s, want %s", tt.name, tt.e.Framework(), tt.framework)
		}
		if tt.e.FileExtension() != tt.ext {
			t.Errorf("%s: FileExtension() = %s, want %s", tt.name, tt.e.FileExtension(), tt.ext)
		}
	}
}

func TestGoEmitter_Emit(t *testing.T) {
	p, file := testutil.ParseExample(t)

	src, err := NewGoEmitter(p).Emit(context.Background(), Program{File: file, Calls: exampleCalls})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	assertValidGo(t, src)

	for _, want := range []string{
		"// Code generated by callwithmax from testcallwithmax.cpp. DO NOT EDIT.",
		"package main",
		`import "fmt"`,
		"var a int = 5",
		"var b int = 0",
		"func nhanhai(in int) int {",
		"return 2 * in",
		"func callWithMax(a int, b int) int {",
		"func b2i(v bool) int {",
		"// CALL_WITH_MAX(++a,b+10)",
		`fmt.Println("a:", a)`,
		`fmt.Println("c:", c4)`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated code missing %q\n%s", want, src)
		}
	}

	// each macro call increments twice, each function call once
	if n := strings.Count(src, "a++"); n != 6 {
		t.Errorf("expected 6 increments in generated code, got %d\n%s", n, src)
	}

	if out := runGo(t, src); out != testutil.LiteralOutput {
		t.Errorf("generated program printed\n%s\nwant\n%s", out, testutil.LiteralOutput)
	}
}

func TestGoEmitter_UnparenthesisedMacroBody(t *testing.T) {
	p, file := testutil.ParseSource(t, "sq.cpp", "int a = 3;\nint b = 0;\n#define SQ(x) x*x\n")

	src, err := NewGoEmitter(p).Emit(context.Background(), Program{
		File:  file,
		Calls: []string{"SQ(a)", "SQ(++a)", "SQ(a+1)"},
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	assertValidGo(t, src)

	if n := strings.Count(src, "a++"); n != 2 {
		t.Errorf("expected the increment pasted twice, got %d\n%s", n, src)
	}

	// SQ(a+1) pastes to a+1*a+1
	want := "a: 3\nb: 0\nc: 9\n" +
		"a: 5\nb: 0\nc: 20\n" +
		"a: 5\nb: 0\nc: 11\n"
	if out := runGo(t, src); out != want {
		t.Errorf("generated program printed\n%s\nwant\n%s", out, want)
	}
}

func TestGoEmitter_MissingReturnYieldsZero(t *testing.T) {
	p, file := testutil.ParseExample(t)
	tr := newTranslator(p, file)

	fn, ok := file.FindFunction("callWithMax")
	if !ok {
		t.Fatal("callWithMax not found")
	}
	code, err := tr.function(context.Background(), fn)
	if err != nil {
		t.Fatalf("function failed: %v", err)
	}

	if !strings.Contains(code, "_ = nhanhai(") {
		t.Errorf("expected the discarded call to be kept:\n%s", code)
	}
	if !strings.HasSuffix(code, "return 0\n}\n") {
		t.Errorf("expected a trailing return 0:\n%s", code)
	}
	if !strings.Contains(code, "instantiated with T = int") {
		t.Errorf("expected template note:\n%s", code)
	}
}

func TestGoTestEmitter_Emit(t *testing.T) {
	p, file := testutil.ParseExample(t)

	prog := Program{
		File:  file,
		Calls: exampleCalls,
		Expected: []Expectation{
			{A: 7, B: 0, C: 14},
			{A: 8, B: 0, C: 20},
			{A: 9, B: 0, Indeterminate: true},
			{A: 10, B: 0, Indeterminate: true},
		},
	}

	src, err := NewGoTestEmitter(p).Emit(context.Background(), prog)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	assertValidGo(t, src)

	for _, want := range []string{
		`import "testing"`,
		"func TestTestcallwithmax(t *testing.T) {",
		"if a != 7 {",
		"if c1 != 14 {",
		"if c2 != 20 {",
		"if a != 10 {",
		`t.Errorf("step 4: b = %d, want 0", b)`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated test missing %q\n%s", want, src)
		}
	}
	if strings.Contains(src, "c3") || strings.Contains(src, "c4") {
		t.Errorf("indeterminate results must not be checked:\n%s", src)
	}
}

func TestGoTestEmitter_ExpectationMismatch(t *testing.T) {
	p, file := testutil.ParseExample(t)

	_, err := NewGoTestEmitter(p).Emit(context.Background(), Program{File: file, Calls: exampleCalls})
	if err == nil || !strings.Contains(err.Error(), "expectations") {
		t.Errorf("expected expectation count error, got %v", err)
	}
}

func TestEmit_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		src     string
		calls   []string
		wantErr string
		is      error
	}{
		{
			name:    "no globals",
			src:     "int f(int x) { return x; }\n",
			calls:   []string{"f(1)"},
			wantErr: "globals a and b",
		},
		{
			name:    "no calls",
			src:     "int a = 1;\nint b = 2;\n",
			wantErr: "no calls",
		},
		{
			name:  "unsupported statement",
			src:   "int a = 1;\nint b = 2;\nint f(int x) {\n  if (x) { return 1; }\n  return 0;\n}\n",
			calls: []string{"f(a)"},
			is:    ErrUnsupported,
		},
		{
			name:  "unsupported expression",
			src:   "int a = 1;\nint b = 2;\n",
			calls: []string{"a[0]"},
			is:    ErrUnsupported,
		},
		{
			name:    "macro arity",
			src:     "int a = 1;\nint b = 2;\n#define M(x,y) ((x)+(y))\n",
			calls:   []string{"M(a)"},
			wantErr: "call M(a)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, file := testutil.ParseSource(t, "t.cpp", tt.src)
			_, err := NewGoEmitter(p).Emit(ctx, Program{File: file, Calls: tt.calls})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected %v, got %v", tt.is, err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := NewGoEmitter(nil).Emit(ctx, Program{}); err == nil {
		t.Error("expected error for empty program")
	}
}

func TestTranslator_Expressions(t *testing.T) {
	p, file := testutil.ParseSource(t, "t.cpp", "int x = 3;\nint y = 4;\n")
	tr := newTranslator(p, file)

	tests := []struct {
		expr string
		want string
		pure bool
	}{
		{"x+y", "(x + y)", true},
		{"x*y", "(x * y)", true},
		{"x & y", "(x & y)", true},
		{"x > y", "b2i(x > y)", true},
		{"!x", "b2i(!(x != 0))", true},
		{"~x", "^x", true},
		{"- -x", "-(-x)", true},
		{"x ? 1 : 2", "func() int {\nif x != 0 {\nreturn 1\n}\nreturn 2\n}()", true},
		{"true", "1", true},
		{"10u", "10", true},
		{"++x", "func() int { x++; return x }()", false},
		{"x--", "func() int { x--; return x + 1 }()", false},
		{"x += 2", "func() int {\nx += 2\nreturn x\n}()", false},
		{"++x + y", "func() int {\n_t1 := func() int { x++; return x }()\n_t2 := y\nreturn _t1 + _t2\n}()", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			tr.temps = 0
			got, err := tr.expr(context.Background(), tt.expr)
			if err != nil {
				t.Fatalf("expr(%q) failed: %v", tt.expr, err)
			}
			if got.code != tt.want {
				t.Errorf("expr(%q) = %q, want %q", tt.expr, got.code, tt.want)
			}
			if got.pure != tt.pure {
				t.Errorf("expr(%q) pure = %v, want %v", tt.expr, got.pure, tt.pure)
			}
		})
	}
}

func TestUnparen(t *testing.T) {
	tests := map[string]string{
		"(a + b)":       "a + b",
		"(a) + (b)":     "(a) + (b)",
		"((a))":         "(a)",
		"a":             "a",
		"f(x)":          "f(x)",
		"(f(x) + g(y))": "f(x) + g(y)",
	}
	for in, want := range tests {
		if got := unparen(in); got != want {
			t.Errorf("unparen(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTestName(t *testing.T) {
	tests := map[string]string{
		"testcallwithmax.cpp":   "Testcallwithmax",
		"dir/call_with-max.cpp": "CallWithMax",
		"x2.cc":                 "X2",
		"___.cpp":               "Program",
	}
	for in, want := range tests {
		if got := testName(in); got != want {
			t.Errorf("testName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGoIdent(t *testing.T) {
	tests := map[string]string{
		"a":     "a",
		"type":  "type_",
		"func":  "func_",
		"b2i":   "b2i_",
		"fmt":   "fmt_",
		"count": "count",
	}
	for in, want := range tests {
		if got := goIdent(in); got != want {
			t.Errorf("goIdent(%q) = %q, want %q", in, got, want)
		}
	}
}
