package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

func TestParseDiagnostics(t *testing.T) {
	out := strings.Join([]string{
		"src/main.rs:3:5: error[E0308]: mismatched types",
		"main.rs:10:1: warning: unused variable: `x`",
		"error[E0463]: can't find crate for `regex`",
		"error: aborting due to 2 previous errors",
		"error: could not compile `demo` (bin \"demo\") due to 2 previous errors",
		"some unrelated line",
	}, "\n")
	got := ParseDiagnostics(out)
	want := []Diagnostic{
		{File: "src/main.rs", Line: 3, Column: 5, Level: "error", Code: "E0308", Message: "mismatched types"},
		{File: "main.rs", Line: 10, Column: 1, Level: "warning", Code: CodeUnknown, Message: "unused variable: `x`"},
		{Level: "error", Code: "E0463", Message: "can't find crate for `regex`"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %s", spew.Sdump(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("diag %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if errs := Errors(got); len(errs) != 2 {
		t.Fatalf("Errors kept %d", len(errs))
	}
}

func TestFailureDiagnosticsFallbacks(t *testing.T) {
	d := failureDiagnostics(Output{ExitCode: 101, Stderr: "thread 'main' panicked\n"})
	if len(d) != 1 || d[0].Code != CodeUnknown || d[0].Message != "thread 'main' panicked" {
		t.Fatalf("unknown fallback = %+v", d)
	}
	d = failureDiagnostics(Output{TimedOut: true, Took: time.Second})
	if len(d) != 1 || d[0].Code != CodeTimeout {
		t.Fatalf("timeout = %+v", d)
	}
	d = failureDiagnostics(Output{ExitCode: 3})
	if d[0].Message != "exit status 3" {
		t.Fatalf("empty stderr = %+v", d)
	}
}

func TestRustcCommandVector(t *testing.T) {
	spec := RustcValidator{Rustc: "rustc"}.Command("/tmp/x/main.rs", "/tmp/x")
	want := "--edition=2021 --crate-type=lib --emit=metadata --error-format=short --out-dir /tmp/x /tmp/x/main.rs"
	if spec.Cmd != "rustc" || strings.Join(spec.Args, " ") != want {
		t.Fatalf("spec = %+v", spec)
	}
	cs := CargoValidator{Cargo: "cargo", TargetDir: "/t"}.Command("/p")
	if cs.WorkDir != "/p" || cs.Env["CARGO_TARGET_DIR"] != "/t" || cs.Args[0] != "check" {
		t.Fatalf("cargo spec = %+v", cs)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

func TestRunExitCode(t *testing.T) {
	requireShell(t)
	out, err := Run(context.Background(), CommandSpec{Cmd: "sh", Args: []string{"-c", "echo oops >&2; exit 7"}}, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 7 || strings.TrimSpace(out.Stderr) != "oops" || out.TimedOut {
		t.Fatalf("out = %+v", out)
	}
}

func TestRunEnvAndWorkDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	out, err := Run(context.Background(), CommandSpec{
		Cmd:     "sh",
		Args:    []string{"-c", "echo $PYRITE_PROBE; pwd"},
		Env:     map[string]string{"PYRITE_PROBE": "hello"},
		WorkDir: dir,
	}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.Stdout), "\n")
	if len(lines) != 2 || lines[0] != "hello" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	requireShell(t)
	start := time.Now()
	// the background sleep inherits stdout; only a group kill closes it
	out, err := Run(context.Background(), CommandSpec{Cmd: "sh", Args: []string{"-c", "sleep 30 & sleep 30"}}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.TimedOut {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if took := time.Since(start); took > 1500*time.Millisecond {
		t.Fatalf("timeout took %v; children survived", took)
	}
}

func TestRunCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, CommandSpec{Cmd: "sh", Args: []string{"-c", "true"}}, time.Minute); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
}

// fakeRustc writes a script that behaves like rustc rejecting its input.
func fakeRustc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rustc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRustcValidatorWithFakeCompiler(t *testing.T) {
	requireShell(t)
	bad := fakeRustc(t, `for a in "$@"; do f="$a"; done; echo "$f:1:1: error[E0425]: cannot find value" >&2; exit 1`)
	res, err := RustcValidator{Rustc: bad, Timeout: time.Minute}.Validate(context.Background(), ValidationInput{Name: "m", Code: "fn main() { x }"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.OK || len(res.Diagnostics) != 1 || res.Diagnostics[0].Code != "E0425" || !strings.HasSuffix(res.Diagnostics[0].File, "main.rs") {
		t.Fatalf("result = %s", spew.Sdump(res))
	}

	good := fakeRustc(t, "exit 0")
	res, err = RustcValidator{Rustc: good}.Validate(context.Background(), ValidationInput{Name: "m", Code: "fn main() {}"})
	if err != nil || !res.OK {
		t.Fatalf("good = %+v, %v", res, err)
	}
}

func TestAutoDispatch(t *testing.T) {
	requireShell(t)
	rustc := fakeRustc(t, "exit 0")
	cargo := fakeRustc(t, `test -f Cargo.toml && test -f src/main.rs || exit 9; echo "src/main.rs:2:3: error[E0432]: unresolved import" >&2; exit 101`)
	a := &Auto{Rustc: RustcValidator{Rustc: rustc}, Cargo: CargoValidator{Cargo: cargo}}
	res, err := a.Validate(context.Background(), ValidationInput{Name: "m", Code: "fn main() {}"})
	if err != nil || !res.OK {
		t.Fatalf("rustc path = %+v, %v", res, err)
	}
	res, err = a.Validate(context.Background(), ValidationInput{Name: "m", Code: "use regex::Regex;", Manifest: "[package]\nname = \"m\"\n", Deps: []string{"regex"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Diagnostics[0].Code != "E0432" {
		t.Fatalf("cargo path = %s", spew.Sdump(res))
	}
}

func TestProjectWriter(t *testing.T) {
	dir := t.TempDir()
	if err := (ProjectWriter{Dir: dir}).Write("demo", "fn main() {}\n", ""); err != nil {
		t.Fatal(err)
	}
	man, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if PackageName(string(man)) != "demo" {
		t.Fatalf("manifest =\n%s", man)
	}
	code, err := os.ReadFile(filepath.Join(dir, "src", "main.rs"))
	if err != nil || string(code) != "fn main() {}\n" {
		t.Fatalf("main.rs = %q, %v", code, err)
	}
}

func TestCompileWithFakeCargo(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	if err := (ProjectWriter{Dir: dir}).Write("demo", "fn main() {}\n", ""); err != nil {
		t.Fatal(err)
	}
	cargo := fakeRustc(t, `mkdir -p target/release && echo built > target/release/demo`)
	out := filepath.Join(t.TempDir(), "demo-bin")
	res, err := Compile(context.Background(), cargo, dir, out)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Binary != out || len(res.Diagnostics) != 0 {
		t.Fatalf("res = %+v", res)
	}
	if b, _ := os.ReadFile(out); strings.TrimSpace(string(b)) != "built" {
		t.Fatalf("binary content = %q", b)
	}
}
