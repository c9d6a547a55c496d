package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Converge.MaxIterations != 10 || cfg.Translate.Datetime != DatetimeStd {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pyrite.yaml")
	doc := `
translate:
  datetime: chrono
  force_clone: [parse.s]
cache:
  max_age: 48h
converge:
  target_rate: 90
  display: json
  exclude: ["vendor/**"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvCacheDir, filepath.Join(dir, "cache"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Translate.Datetime != DatetimeChrono {
		t.Fatalf("datetime = %q", cfg.Translate.Datetime)
	}
	if cfg.Cache.MaxAge != 48*time.Hour {
		t.Fatalf("max_age = %v", cfg.Cache.MaxAge)
	}
	if cfg.Cache.Dir != filepath.Join(dir, "cache") {
		t.Fatalf("env override ignored: %q", cfg.Cache.Dir)
	}
	if cfg.Converge.TargetRate != 90 || cfg.Converge.Display != DisplayJSON {
		t.Fatalf("converge = %+v", cfg.Converge)
	}
	// untouched keys keep defaults
	if cfg.Converge.ParallelJobs != 4 {
		t.Fatalf("parallel_jobs = %d", cfg.Converge.ParallelJobs)
	}
	if err := cfg.Converge.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConvergeValidate(t *testing.T) {
	c := Default().Converge
	c.TargetRate = 120
	if c.Validate() == nil {
		t.Fatalf("expected error for target_rate > 100")
	}
	c = Default().Converge
	c.Display = "fancy"
	if c.Validate() == nil {
		t.Fatalf("expected error for unknown display")
	}
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := Default().Translate
	a.ForceClone = []string{"f.x", "g.y"}
	a.Override("os.path.exists", "X")
	b := a.Clone()
	b.ForceClone = []string{"g.y", "f.x"}

	if !bytes.Equal(a.Canonical(), b.Canonical()) {
		t.Fatalf("canonical differs:\n%s\n%s", a.Canonical(), b.Canonical())
	}
	if err := b.Set("datetime", "chrono"); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.Canonical(), b.Canonical()) {
		t.Fatalf("canonical must change with datetime mode")
	}
	if b.Set("nonsense", "1") == nil {
		t.Fatalf("unknown toggle should fail")
	}
}
