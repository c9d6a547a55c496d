package converge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"**/*.py", "a.py", true},
		{"**/*.py", "pkg/sub/a.py", true},
		{"**/*.py", "a.pyc", false},
		{"vendor/**", "vendor", true},
		{"vendor/**", "vendor/x/y.py", true},
		{"vendor/**", "vendored/y.py", false},
		{"**/test_*.py", "pkg/test_a.py", true},
		{"*.py", "pkg/a.py", false},
		{"pkg/*.py", "pkg/a.py", true},
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.path); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestEnumerateFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "pkg/b.py", "pkg/test_b.py", "vendor/c.py", ".hidden/d.py", "e.txt"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Enumerate(dir, nil, []string{"vendor/**", "**/test_*.py"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "a.py,pkg/b.py" {
		t.Fatalf("files = %v", got)
	}
	if _, err := Enumerate(filepath.Join(dir, "missing"), nil, nil); err == nil {
		t.Fatal("missing root accepted")
	}
}

func TestNormalizeMessage(t *testing.T) {
	a := normalizeMessage("cannot find value `total` in this scope")
	b := normalizeMessage("cannot  find value `count` in this scope")
	if a != b {
		t.Fatalf("%q != %q", a, b)
	}
	if got := normalizeMessage("expected 2 arguments, found 3"); got != "expected n arguments, found n" {
		t.Fatalf("got %q", got)
	}
	long := normalizeMessage(strings.Repeat("word ", 40))
	if len([]rune(long)) != prefixLen {
		t.Fatalf("prefix length %d", len([]rune(long)))
	}
}

func TestClusterFailuresOrdering(t *testing.T) {
	states := []FileState{
		{Path: "b.py", Status: StatusFailed, Errors: []ErrorRecord{
			{Code: "E0425", Line: 9, Message: "cannot find value `x`"},
			{Code: "E0308", Line: 1, Message: "mismatched types"},
		}},
		{Path: "a.py", Status: StatusFailed, Errors: []ErrorRecord{
			{Code: "E0425", Line: 4, Message: "cannot find value `y`"},
		}},
		{Path: "ok.py", Status: StatusSuccess},
	}
	got := clusterFailures(states)
	if len(got) != 2 || got[0].Code != "E0425" || got[0].Count != 2 || got[1].Code != "E0308" {
		t.Fatalf("clusters = %s", spew.Sdump(got))
	}
	if got[0].Sample.File != "a.py" || strings.Join(got[0].Files, ",") != "a.py,b.py" {
		t.Fatalf("sample = %+v files = %v", got[0].Sample, got[0].Files)
	}
}

func TestPlaceholders(t *testing.T) {
	code := strings.Join([]string{
		"pub struct Greeter {",
		"    prefix: String,",
		"}",
		"",
		"impl Greeter {",
		"    pub fn greet(&self, name: String) -> String {",
		"        let a = name;",
		"        format!(\"{}{}\", self.prefix, name)",
		"    }",
		"}",
		"",
		"fn main() {",
		"    let s = String::new();",
		"}",
	}, "\n")
	vars := placeholders(code, Occurrence{Line: 8, Message: "borrow of moved value: `name`"})
	if vars["name"] != "name" || vars["function"] != "Greeter.greet" || vars["method"] != "greet" {
		t.Fatalf("vars = %v", vars)
	}
	vars = placeholders(code, Occurrence{Line: 13, Message: "unused"})
	if vars["function"] != "main" || vars["name"] != "" {
		t.Fatalf("vars = %v", vars)
	}
	if vars := placeholders(code, Occurrence{Line: 99}); len(vars) != 0 {
		t.Fatalf("out of range = %v", vars)
	}
}
