package transpile

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
)

func defaultConfig() Config {
	return FromConfig(config.Default())
}

func translateGolden(t *testing.T, name string) *Artifact {
	t.Helper()
	path := filepath.Join("testdata", "golden", name)
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	art, err := Translate(path, string(src), defaultConfig())
	if err != nil {
		t.Fatalf("Translate(%s): %v", name, err)
	}
	return art
}

// rustcCheck type-checks art with rustc and returns the compiler output.
// Without rustc on PATH it logs and returns false.
func rustcCheck(t *testing.T, art *Artifact) (string, bool) {
	t.Helper()
	rustc, err := exec.LookPath("rustc")
	if err != nil {
		t.Log("rustc not on PATH; output not compiled")
		return "", false
	}
	if len(art.Deps) > 0 {
		t.Logf("needs crates %v; output not compiled", art.Deps)
		return "", false
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(src, []byte(art.Code), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(rustc, "--edition=2021", "--crate-type=bin", "--emit=metadata", "--out-dir", dir, src)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("rustc rejected the translation: %v\n%s\n%s", err, out, art.Code)
	}
	return string(out), true
}

func TestParseErrorIsFailure(t *testing.T) {
	art, err := Translate("bad.py", "def (:\n", defaultConfig())
	if art != nil {
		t.Fatalf("expected no artifact on parse error")
	}
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Code != diagnostic.CodeParse {
		t.Fatalf("diagnostics = %s", spew.Sdump(f.Diagnostics))
	}
	if f.Diagnostics[0].Span.Start.Filename != "bad.py" {
		t.Fatalf("parse diagnostic lost its file name: %+v", f.Diagnostics[0].Span)
	}
}

func TestTranslateIsDeterministic(t *testing.T) {
	first := translateGolden(t, "comprehension.py")
	for i := 0; i < 3; i++ {
		again := translateGolden(t, "comprehension.py")
		if again.Code != first.Code || again.Manifest != first.Manifest {
			t.Fatalf("run %d differs:\n%s\n---\n%s", i, first.Code, again.Code)
		}
	}
}

func TestArtifactFields(t *testing.T) {
	art := translateGolden(t, "fib.py")
	if art.Version != Version {
		t.Fatalf("version = %q", art.Version)
	}
	if !strings.HasPrefix(art.Code, "// Generated by pyrite "+Version+" from fib.py") {
		t.Fatalf("missing header:\n%s", art.Code)
	}
	if !strings.HasSuffix(art.Code, "}\n") || strings.HasSuffix(art.Code, "\n\n") {
		t.Fatalf("code not normalized: %q", art.Code[len(art.Code)-10:])
	}
	if !strings.Contains(art.Manifest, `name = "fib"`) {
		t.Fatalf("manifest:\n%s", art.Manifest)
	}
	if art.Severity == Errors {
		t.Fatalf("fib should translate cleanly: %v", art.Diagnostics)
	}
	if art.Metrics.Functions != 1 || art.Metrics.Classes != 0 {
		t.Fatalf("metrics = %+v", art.Metrics)
	}
	if art.Metrics.Duration <= 0 {
		t.Fatalf("duration not recorded")
	}
}

func TestFibonacciSignature(t *testing.T) {
	art := translateGolden(t, "fib.py")
	if !strings.Contains(art.Code, "fn fib(n: i64) -> i64") {
		t.Fatalf("signature:\n%s", art.Code)
	}
	if strings.Contains(art.Code, "<'") {
		t.Fatalf("unexpected lifetime parameter:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestOptionalParameterNarrowing(t *testing.T) {
	art := translateGolden(t, "greet.py")
	if !strings.Contains(art.Code, "fn greet(name: Option<") {
		t.Fatalf("optional parameter:\n%s", art.Code)
	}
	if strings.Contains(art.Code, "name.unwrap()") {
		t.Fatalf("narrowed branch must not unwrap:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestHeteroDictUsesValueSum(t *testing.T) {
	art := translateGolden(t, "hetero_dict.py")
	if !strings.Contains(art.Code, "HashMap<String, PyValue>") || !strings.Contains(art.Code, "static DATA: ") {
		t.Fatalf("dict of mixed values:\n%s", art.Code)
	}
	if strings.Contains(art.Code, "from_py(&HashMap") {
		t.Fatalf("literal converted through PyValue:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestContextManagerStruct(t *testing.T) {
	art := translateGolden(t, "context_manager.py")
	for _, want := range []string{"struct Conn", "open: bool"} {
		if !strings.Contains(art.Code, want) {
			t.Fatalf("missing %q:\n%s", want, art.Code)
		}
	}
	if art.Metrics.Classes != 1 || art.Metrics.Functions != 2 {
		t.Fatalf("metrics = %+v", art.Metrics)
	}
	if strings.Contains(art.Code, "fn __exit__<") || strings.Contains(art.Code, "__exit__(Default::default())") {
		t.Fatalf("__exit__ takes an untypeable argument:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestComprehensionPipeline(t *testing.T) {
	art := translateGolden(t, "comprehension.py")
	filter := strings.Index(art.Code, ".filter(")
	mapped := strings.Index(art.Code, ".map(")
	collect := strings.Index(art.Code, ".collect")
	if filter < 0 || mapped < filter || collect < mapped {
		t.Fatalf("expected filter -> map -> collect:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestTryExceptMatches(t *testing.T) {
	art := translateGolden(t, "parse_int.py")
	if !strings.Contains(art.Code, "match ") {
		t.Fatalf("expected a match on the fallible parse:\n%s", art.Code)
	}
	if !strings.Contains(art.Code, "return -1") {
		t.Fatalf("handler sentinel missing:\n%s", art.Code)
	}
	if out, ok := rustcCheck(t, art); ok && strings.Contains(out, "unreachable") {
		t.Fatalf("rustc warns about unreachable code:\n%s", out)
	}
}

func TestTryCatchesCustomError(t *testing.T) {
	art := translateGolden(t, "custom_error.py")
	if !strings.Contains(art.Code, "pub struct MyError") || !strings.Contains(art.Code, `is_a("MyError")`) {
		t.Fatalf("custom exception:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestZeroDivisionReachesHandler(t *testing.T) {
	art := translateGolden(t, "zero_div.py")
	if !strings.Contains(art.Code, "checked_div_euclid") {
		t.Fatalf("caught division must be checked:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestModuleStateStatics(t *testing.T) {
	art := translateGolden(t, "module_state.py")
	if !strings.Contains(art.Code, "std::sync::Mutex<Vec<i64>>") {
		t.Fatalf("mutated module list needs a lock:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestUntypedFieldAppend(t *testing.T) {
	art := translateGolden(t, "accumulator.py")
	if strings.Contains(art.Code, "!(!") {
		t.Fatalf("double negation:\n%s", art.Code)
	}
	rustcCheck(t, art)
}

func TestChronoSelectsCrate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Datetime = config.DatetimeChrono
	src := "import datetime\n\nprint(datetime.datetime.now())\n"
	art, err := Translate("clock.py", src, cfg)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	found := false
	for _, d := range art.Deps {
		found = found || d == "chrono"
	}
	if !found || !strings.Contains(art.Manifest, `chrono = "0.4"`) {
		t.Fatalf("deps = %v\n%s", art.Deps, art.Manifest)
	}
}

func TestManifest(t *testing.T) {
	got := Manifest("demo", []string{"regex", "unknown_crate"}, map[string]string{"regex": "1.10"})
	want := "[package]\nname = \"demo\"\nversion = \"0.1.0\"\nedition = \"2021\"\n\n" +
		"[[bin]]\nname = \"demo\"\npath = \"src/main.rs\"\n\n" +
		"[dependencies]\nregex = \"1.10\"\nunknown_crate = \"*\"\n"
	if got != want {
		t.Fatalf("manifest =\n%s\nwant\n%s", got, want)
	}
}

func TestCrateName(t *testing.T) {
	tests := map[string]string{
		"dir/My File.py": "my_file",
		"2fast.py":       "py_2fast",
		"ok-name.py":     "ok-name",
	}
	for in, want := range tests {
		if got := crateName(in); got != want {
			t.Fatalf("crateName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSeverityOf(t *testing.T) {
	var l diagnostic.List
	if SeverityOf(l) != Success {
		t.Fatalf("empty list should be success")
	}
	l.Add(diagnostic.New(diagnostic.CodeUnmapped).Warning().Message("w").Build())
	if SeverityOf(l) != Warnings {
		t.Fatalf("warning list should be warnings")
	}
	l.Add(diagnostic.New(diagnostic.CodeGenUnsupported).Error().Message("e").Build())
	if SeverityOf(l) != Errors {
		t.Fatalf("error list should be errors")
	}
}

func TestCyclomatic(t *testing.T) {
	body := hir.Block{
		&hir.If{Cond: &hir.BinOp{Op: "and", Left: &hir.Name{ID: "a"}, Right: &hir.Name{ID: "b"}}},
		&hir.While{Cond: &hir.Name{ID: "c"}},
		&hir.Try{Handlers: []hir.Handler{{}, {}}},
	}
	if got := Cyclomatic(body); got != 6 {
		t.Fatalf("Cyclomatic = %d, want 6", got)
	}
	if got := Cyclomatic(nil); got != 1 {
		t.Fatalf("empty body = %d", got)
	}
}

func TestAnalyze(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "golden", "loop_else.py"))
	if err != nil {
		t.Fatal(err)
	}
	m, _, err := Analyze("loop_else.py", string(src), defaultConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if m.Functions != 1 || m.Complexity < 3 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.TypeCoverage <= 0 || m.TypeCoverage > 1 {
		t.Fatalf("type coverage out of range: %v", m.TypeCoverage)
	}
}

// TestGoldenCorpusCompiles runs rustc over every golden translation that
// needs no external crate.
func TestGoldenCorpusCompiles(t *testing.T) {
	rustc, err := exec.LookPath("rustc")
	if err != nil {
		t.Skip("rustc not on PATH")
	}
	files, err := filepath.Glob(filepath.Join("testdata", "golden", "*.py"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no golden files: %v", err)
	}
	for _, path := range files {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			art := translateGolden(t, name)
			if len(art.Deps) > 0 {
				t.Skipf("needs crates %v", art.Deps)
			}
			dir := t.TempDir()
			src := filepath.Join(dir, "main.rs")
			if err := os.WriteFile(src, []byte(art.Code), 0o644); err != nil {
				t.Fatal(err)
			}
			cmd := exec.Command(rustc, "--edition=2021", "--crate-type=bin", "--emit=metadata", "--out-dir", dir, src)
			if out, err := cmd.CombinedOutput(); err != nil {
				t.Fatalf("rustc rejected %s: %v\n%s\n%s", name, err, out, art.Code)
			}
		})
	}
}
