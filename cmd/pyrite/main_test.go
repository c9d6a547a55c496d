package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

const fibSource = `def fib(n: int) -> int:
    if n <= 1:
        return n
    return fib(n - 1) + fib(n - 2)


print(fib(10))
`

// isolate points configuration and cache at a temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfig, filepath.Join(dir, "none.yaml"))
	t.Setenv(config.EnvCacheDir, filepath.Join(dir, "cache"))
	return dir
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errb bytes.Buffer
	code = run(args, strings.NewReader(""), &out, &errb)
	return code, out.String(), errb.String()
}

func TestUsage(t *testing.T) {
	if code, _, stderr := runCLI(); code != cli.ExitUsage || !strings.Contains(stderr, "translate") {
		t.Fatalf("no args: code %d stderr %q", code, stderr)
	}
	if code, _, stderr := runCLI("bogus"); code != cli.ExitUsage || !strings.Contains(stderr, "unknown command: bogus") {
		t.Fatalf("unknown: code %d stderr %q", code, stderr)
	}
	code, stdout, _ := runCLI("help")
	if code != cli.ExitOK {
		t.Fatalf("help exit %d", code)
	}
	for _, name := range []string{"translate", "check", "analyze", "compile", "converge", "cache", "repl", "version"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("help does not list %s", name)
		}
	}
	if code, stdout, _ := runCLI("help", "converge"); code != cli.ExitOK || !strings.Contains(stdout, "--target-rate") {
		t.Fatalf("help converge: %d %q", code, stdout)
	}
}

func TestMissingArgumentIsUsageError(t *testing.T) {
	isolate(t)
	for _, sub := range []string{"translate", "check", "analyze", "compile", "converge", "cache"} {
		if code, _, _ := runCLI(sub); code != cli.ExitUsage {
			t.Errorf("%s without arguments exited %d", sub, code)
		}
	}
	if code, _, _ := runCLI("translate", "--nope", "x.py"); code != cli.ExitUsage {
		t.Errorf("unknown flag exited %d", code)
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI("version", "--json")
	if code != cli.ExitOK {
		t.Fatalf("exit %d", code)
	}
	var doc struct {
		Tool        string `json:"tool"`
		VersionInfo struct {
			Version string `json:"version"`
		} `json:"version_info"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("json: %v\n%s", err, stdout)
	}
	if doc.Tool != toolName || doc.VersionInfo.Version != transpile.Version {
		t.Fatalf("version = %s", spew.Sdump(doc))
	}
	if code, _, _ := runCLI("--version"); code != cli.ExitOK {
		t.Fatalf("--version exit %d", code)
	}
	if code, _, _ := runCLI("version", "--check", "0.1.0"); code != cli.ExitOK {
		t.Fatalf("check older exit %d", code)
	}
	if code, _, stderr := runCLI("version", "--check", "99.0.0"); code != cli.ExitTranslateErrors || !strings.Contains(stderr, "older") {
		t.Fatalf("check newer exit %d %q", code, stderr)
	}
	if code, _, _ := runCLI("version", "--check", "not-a-version"); code != cli.ExitUsage {
		t.Fatalf("bad check exit %d", code)
	}
}

func TestTranslateToFile(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "fib.py")
	if err := os.WriteFile(src, []byte(fibSource), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "fib.rs")
	code, stdout, stderr := runCLI("translate", src, "-o", out, "--no-cache")
	if code != cli.ExitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("stdout not empty with -o: %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "fn fib(n: i64) -> i64") {
		t.Fatalf("output:\n%s", data)
	}

	// second run goes through the cache and prints to stdout
	code, first, _ := runCLI("translate", src)
	if code != cli.ExitOK || first != string(data) {
		t.Fatalf("cached translation differs (exit %d)", code)
	}
	code, second, _ := runCLI("translate", src)
	if code != cli.ExitOK || second != first {
		t.Fatalf("repeat differs (exit %d)", code)
	}
}

func TestTranslateParseError(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "bad.py")
	if err := os.WriteFile(src, []byte("def (:\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := runCLI("translate", src, "--no-cache")
	if code != cli.ExitTranslateErrors || stdout != "" {
		t.Fatalf("exit %d stdout %q", code, stdout)
	}
	if !strings.Contains(stderr, "bad.py") {
		t.Fatalf("diagnostic lacks file name: %q", stderr)
	}
	if code, _, _ := runCLI("translate", filepath.Join(dir, "missing.py")); code != cli.ExitTranslateErrors {
		t.Fatalf("missing file exit %d", code)
	}
	if code, _, _ := runCLI("translate", src, "--datetime", "arrow"); code != cli.ExitUsage {
		t.Fatalf("bad datetime exit %d", code)
	}
}

func TestAnalyzeJSON(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "fib.py")
	if err := os.WriteFile(src, []byte(fibSource), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := runCLI("analyze", "--json", src)
	if code != cli.ExitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("json: %v\n%s", err, stdout)
	}
	if doc["file"] != src {
		t.Fatalf("file = %v", doc["file"])
	}
	if n, ok := doc["diagnostics"].(float64); !ok || n < 0 {
		t.Fatalf("diagnostics = %v", doc["diagnostics"])
	}
}

func TestCacheCommands(t *testing.T) {
	isolate(t)
	if code, _, stderr := runCLI("cache", "clear"); code != cli.ExitUsage || !strings.Contains(stderr, "--force") {
		t.Fatalf("clear without --force: %d %q", code, stderr)
	}
	if code, _, _ := runCLI("cache", "shrink"); code != cli.ExitUsage {
		t.Fatalf("unknown action exit %d", code)
	}
	code, stdout, stderr := runCLI("cache", "stats", "--json")
	if code != cli.ExitOK {
		t.Fatalf("stats exit %d: %s", code, stderr)
	}
	var st struct {
		Entries int `json:"entries"`
	}
	if err := json.Unmarshal([]byte(stdout), &st); err != nil || st.Entries != 0 {
		t.Fatalf("stats %q: %v", stdout, err)
	}
	if code, stdout, _ := runCLI("cache", "gc", "--dry-run"); code != cli.ExitOK || !strings.Contains(stdout, "would evict 0") {
		t.Fatalf("gc: %d %q", code, stdout)
	}
	if code, _, _ := runCLI("cache", "clear", "--force"); code != cli.ExitOK {
		t.Fatalf("clear exit %d", code)
	}
}

func TestConvergeRejectsBadFlags(t *testing.T) {
	dir := isolate(t)
	if code, _, _ := runCLI("converge", dir, "--display", "fancy"); code != cli.ExitUsage {
		t.Fatalf("bad display exit %d", code)
	}
	if code, _, _ := runCLI("converge", dir, "--target-rate", "150"); code != cli.ExitUsage {
		t.Fatalf("bad rate exit %d", code)
	}
}

func TestSessionKeepsOnlyTranslatableBlocks(t *testing.T) {
	s := &session{cfg: transpile.FromConfig(config.Default())}
	var out bytes.Buffer
	if !s.add(&out, "print(1)") {
		t.Fatalf("first block rejected:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "main.rs") {
		t.Fatalf("no diff shown:\n%s", out.String())
	}
	rust := s.rust
	out.Reset()
	if s.add(&out, "def (:") {
		t.Fatal("parse error accepted")
	}
	if len(s.blocks) != 1 || s.rust != rust {
		t.Fatalf("failed block changed the session: %v", s.blocks)
	}

	out.Reset()
	s.command(&out, ":show")
	if out.String() != "print(1)\n" {
		t.Fatalf(":show = %q", out.String())
	}
	out.Reset()
	s.command(&out, ":rust")
	if out.String() != rust {
		t.Fatalf(":rust = %q", out.String())
	}
	s.command(&out, ":reset")
	if len(s.blocks) != 0 || s.rust != "" {
		t.Fatal("reset kept state")
	}
	if !s.command(&out, ":quit") {
		t.Fatal(":quit did not exit")
	}
}

func TestOpensBlock(t *testing.T) {
	cases := map[string]bool{
		"def f(x: int) -> int:":   true,
		"for i in range(3):  # x": true,
		"x = 1":                   false,
		":show":                   false,
		"d = {1: 2}":              false,
	}
	for line, want := range cases {
		if got := opensBlock(line); got != want {
			t.Errorf("opensBlock(%q) = %v", line, got)
		}
	}
}
