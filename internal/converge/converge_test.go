package converge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/cache"
	"github.com/pyrite-lang/pyrite/internal/config"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/oracle"
	"github.com/pyrite-lang/pyrite/internal/toolchain"
)

const (
	addSrc = "def add(a: int, b: int) -> int:\n    return a + b\n"
	cwdSrc = "import os\n\ndef cwd() -> str:\n    return os.getcwd()\n"
)

// fakeValidator rejects code containing marker, or any file whose name
// contains "bad".
type fakeValidator struct {
	marker string
	calls  atomic.Int64
}

func (v *fakeValidator) Validate(ctx context.Context, in toolchain.ValidationInput) (toolchain.ValidationResult, error) {
	v.calls.Add(1)
	switch {
	case v.marker != "" && strings.Contains(in.Code, v.marker):
		return toolchain.ValidationResult{Diagnostics: []toolchain.Diagnostic{
			{File: "main.rs", Line: 3, Column: 5, Level: "error", Code: "E0599", Message: "no method named `display` found"},
		}}, nil
	case strings.Contains(in.Name, "bad"):
		return toolchain.ValidationResult{Diagnostics: []toolchain.Diagnostic{
			{File: "main.rs", Line: 2, Column: 1, Level: "error", Code: "E0308", Message: "mismatched types: expected `i64`, found `String`"},
			{File: "main.rs", Line: 2, Column: 1, Level: "warning", Code: "W1", Message: "ignored"},
		}}, nil
	}
	return toolchain.ValidationResult{OK: true}, nil
}

type fakeOracle struct {
	suggestions []oracle.Suggestion
}

func (o fakeOracle) Suggest(code, message string, k int) []oracle.Suggestion {
	if len(o.suggestions) > k {
		return o.suggestions[:k]
	}
	return o.suggestions
}

var cwdFix = oracle.Suggestion{
	ID:         "getcwd-override",
	Category:   "stdlib",
	Fix:        oracle.Fix{Kind: oracle.FixPatternOverride, Target: "os.getcwd", Value: `String::from(".")`},
	Template:   "use a fixed working directory",
	Confidence: 0.9,
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(t *testing.T, input string) Config {
	t.Helper()
	c := config.Default()
	cfg := Config{Converge: c.Converge, Translate: c.Translate.Clone()}
	cfg.InputDir = input
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.CheckpointDir = filepath.Join(t.TempDir(), "state")
	cfg.Display = config.DisplaySilent
	cfg.Workers = 2
	cfg.ParallelJobs = 2
	return cfg
}

func TestRunReachesTargetWithoutFixes(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.py": addSrc, "pkg/b.py": addSrc, "notes.txt": "x"})
	cfg := testConfig(t, in)
	v := &fakeValidator{}
	rep, err := Run(context.Background(), cfg, Deps{Validator: v})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Reached || rep.Rate != 100 || rep.Iterations != 1 || len(rep.Files) != 2 {
		t.Fatalf("report = %s", spew.Sdump(rep))
	}
	if v.calls.Load() != 2 {
		t.Fatalf("validator calls = %d", v.calls.Load())
	}
	code, err := os.ReadFile(filepath.Join(cfg.OutputDir, "pkg", "b.rs"))
	if err != nil || !strings.Contains(string(code), "fn add(") {
		t.Fatalf("output = %q, %v", code, err)
	}
	if _, err := os.Stat(CheckpointPath(cfg.CheckpointDir)); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
}

func TestRunClustersFailuresWithoutAutoFix(t *testing.T) {
	in := writeCorpus(t, map[string]string{"ok.py": addSrc, "bad1.py": addSrc, "bad2.py": addSrc})
	cfg := testConfig(t, in)
	cfg.DryRun = true
	or := fakeOracle{suggestions: []oracle.Suggestion{{ID: "s", Fix: oracle.Fix{Kind: oracle.FixManual}, Confidence: 0.5}}}
	rep, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}, Oracle: or})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reached || rep.Iterations != 1 || math.Abs(rep.Rate-100.0/3) > 1e-9 {
		t.Fatalf("report = %s", spew.Sdump(rep))
	}
	if len(rep.Clusters) != 1 {
		t.Fatalf("clusters = %s", spew.Sdump(rep.Clusters))
	}
	c := rep.Clusters[0]
	if c.Code != "E0308" || c.Count != 2 || strings.Join(c.Files, ",") != "bad1.py,bad2.py" || len(c.Suggestions) != 1 {
		t.Fatalf("cluster = %s", spew.Sdump(c))
	}
	if rep.Failed() != 2 {
		t.Fatalf("failed = %d", rep.Failed())
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote output: %v", err)
	}
}

func TestRunAutoFixConvergesAndLearns(t *testing.T) {
	in := writeCorpus(t, map[string]string{"cwd.py": cwdSrc, "add.py": addSrc})
	cfg := testConfig(t, in)
	cfg.AutoFix = true
	cfg.FixConfidence = 0.8
	learner := &oracle.Learner{Path: filepath.Join(t.TempDir(), "overlay.json")}
	deps := Deps{Validator: &fakeValidator{marker: "current_dir"}, Oracle: fakeOracle{suggestions: []oracle.Suggestion{cwdFix}}, Learner: learner}

	rep, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Reached || rep.Iterations != 2 || len(rep.Fixes) != 1 {
		t.Fatalf("report = %s", spew.Sdump(rep))
	}
	fix := rep.Fixes[0]
	if fix.Iteration != 1 || !fix.Verified || fix.ErrorCode != "E0599" || fix.FileModified[0] != "cwd.py" {
		t.Fatalf("fix = %+v", fix)
	}
	m, err := learner.Load()
	if err != nil || len(m.Entries) != 1 || m.Entries[0].Fix != cwdFix.Fix {
		t.Fatalf("overlay = %s, %v", spew.Sdump(m), err)
	}

	// a resumed run replays the fix and validates clean immediately
	cfg.MaxIterations = 3
	cfg.Resume = true
	rep, err = Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Reached || rep.Iterations != 3 || len(rep.Fixes) != 1 {
		t.Fatalf("resumed report = %s", spew.Sdump(rep))
	}
}

func TestRunSkipsLowConfidenceFixes(t *testing.T) {
	in := writeCorpus(t, map[string]string{"cwd.py": cwdSrc})
	cfg := testConfig(t, in)
	cfg.AutoFix = true
	low := cwdFix
	low.Confidence = 0.5
	rep, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{marker: "current_dir"}, Oracle: fakeOracle{suggestions: []oracle.Suggestion{low}}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reached || rep.Iterations != 1 || len(rep.Fixes) != 0 {
		t.Fatalf("report = %s", spew.Sdump(rep))
	}
}

func TestRunIsolatesParseErrors(t *testing.T) {
	in := writeCorpus(t, map[string]string{"good.py": addSrc, "broken.py": "def broken(:\n"})
	cfg := testConfig(t, in)
	rep, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rate != 50 {
		t.Fatalf("rate = %v", rep.Rate)
	}
	for _, f := range rep.Files {
		if f.Path == "broken.py" && (f.Status != StatusParseFail || len(f.Errors) == 0) {
			t.Fatalf("broken = %+v", f)
		}
	}
}

func TestRunUsesCache(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.py": addSrc, "b.py": addSrc})
	c, err := cache.Open(config.Cache{Enabled: true, Dir: t.TempDir()}, cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	cfg := testConfig(t, in)
	deps := Deps{Validator: &fakeValidator{}, Cache: c}
	if _, err := Run(context.Background(), cfg, deps); err != nil {
		t.Fatal(err)
	}
	rep, err := Run(context.Background(), cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range rep.Files {
		if !f.Cached || f.Key == "" {
			t.Fatalf("second run missed cache: %+v", f)
		}
	}
	if rep.Files[0].Key == rep.Files[1].Key {
		t.Fatal("files with different names share a key")
	}
}

func TestRunHonorsLockAndCancellation(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.py": addSrc})
	cfg := testConfig(t, in)
	unlock, err := Lock(cfg.CheckpointDir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}}); !errors.Is(err, perrors.ErrLocked) {
		t.Fatalf("locked run err = %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, cfg, Deps{Validator: &fakeValidator{}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled run err = %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.TargetRate = 150
	if _, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}}); err == nil {
		t.Fatal("accepted target_rate 150")
	}
	cfg = testConfig(t, t.TempDir())
	if _, err := Run(context.Background(), cfg, Deps{}); err == nil {
		t.Fatal("accepted missing validator")
	}
}

func TestCheckpointVersionMismatchStartsFresh(t *testing.T) {
	dir := t.TempDir()
	doc := `{"schema_version":"2.0.0","transpiler_version":"0.0.1","iteration":7}`
	if err := os.WriteFile(CheckpointPath(dir), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCheckpoint(dir); !errors.Is(err, perrors.ErrVersionMismatch) {
		t.Fatalf("err = %v", err)
	}

	in := writeCorpus(t, map[string]string{"a.py": addSrc})
	cfg := testConfig(t, in)
	cfg.CheckpointDir = dir
	cfg.Resume = true
	rep, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Iterations != 1 {
		t.Fatalf("iterations = %d", rep.Iterations)
	}
	cp, err := LoadCheckpoint(dir)
	if err != nil || cp.Schema != SchemaVersion || cp.Iteration != 1 {
		t.Fatalf("rewritten checkpoint = %+v, %v", cp, err)
	}
}

func TestJSONDisplayEmitsNDJSON(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.py": addSrc, "bad.py": addSrc})
	cfg := testConfig(t, in)
	var buf bytes.Buffer
	disp := NewDisplay(config.DisplayJSON, &buf, nil)
	if _, err := Run(context.Background(), cfg, Deps{Validator: &fakeValidator{}, Display: disp}); err != nil {
		t.Fatal(err)
	}
	var kinds []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, string(e.Kind))
	}
	if got := strings.Join(kinds, ","); got != "start,file,file,iteration,done" {
		t.Fatalf("events = %s", got)
	}
}

func TestMinimalDisplayForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if _, ok := NewDisplay(config.DisplayRich, &buf, nil).(*minimalDisplay); !ok {
		t.Fatal("rich display on a buffer")
	}
	d := NewDisplay(config.DisplayMinimal, &buf, nil)
	d.Handle(Event{Kind: EventDone, Iteration: 2, Rate: 100, Reached: true})
	if !strings.Contains(buf.String(), "target reached") {
		t.Fatalf("output = %q", buf.String())
	}
}
