// Package config loads pyrite configuration from pyrite.yaml.
//
// A missing file is not an error; defaults apply. Environment variables
// override the file, and command-line flags override both (applied by the
// CLI after Load returns).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "pyrite.yaml"

// Environment overrides.
const (
	EnvConfig      = "PYRITE_CONFIG"
	EnvCacheDir    = "PYRITE_CACHE_DIR"
	EnvOracleModel = "PYRITE_ORACLE_MODEL"
)

// Config holds every section of pyrite.yaml.
type Config struct {
	Translate Translate `yaml:"translate"`
	Cache     Cache     `yaml:"cache"`
	Converge  Converge  `yaml:"converge"`
	Oracle    Oracle    `yaml:"oracle"`
	Validator Validator `yaml:"validator"`
}

// DatetimeMode selects how datetime calls are lowered.
type DatetimeMode string

const (
	DatetimeStd    DatetimeMode = "std"
	DatetimeChrono DatetimeMode = "chrono"
)

// Translate holds the options that affect emitted code. Everything in
// this section participates in the cache key.
type Translate struct {
	Datetime DatetimeMode `yaml:"datetime" json:"datetime"`
	// ForceClone lists "function.param" pairs that must be cloned at
	// entry regardless of the ownership analysis.
	ForceClone []string `yaml:"force_clone" json:"force_clone"`
	// PatternOverrides replaces stdlib recipe templates keyed by callable
	// path ("os.path.exists", "str.startswith").
	PatternOverrides map[string]string `yaml:"pattern_overrides" json:"pattern_overrides"`
	// SliceParams borrows list parameters as slices (&[T]) instead of &Vec<T>.
	SliceParams bool `yaml:"slice_params" json:"slice_params"`
	// CloneStrings passes read-only str parameters as owned String.
	CloneStrings bool              `yaml:"clone_strings" json:"clone_strings"`
	Crates       map[string]string `yaml:"crates" json:"crates"`
}

// Cache configures the content-addressed translation cache.
type Cache struct {
	Enabled    bool          `yaml:"enabled"`
	Dir        string        `yaml:"dir"`
	MaxSize    int64         `yaml:"max_size"`
	MaxAge     time.Duration `yaml:"max_age"`
	MinEntries int           `yaml:"min_entries"`
}

// Display selects the convergence progress renderer.
type Display string

const (
	DisplayRich    Display = "rich"
	DisplayMinimal Display = "minimal"
	DisplayJSON    Display = "json"
	DisplaySilent  Display = "silent"
)

// ParseDisplay validates a display mode name.
func ParseDisplay(s string) (Display, error) {
	switch d := Display(strings.ToLower(s)); d {
	case DisplayRich, DisplayMinimal, DisplayJSON, DisplaySilent:
		return d, nil
	}
	return "", perrors.InvalidConfig("display", fmt.Sprintf("unknown mode %q", s))
}

// Converge configures the convergence driver.
type Converge struct {
	InputDir      string  `yaml:"input_dir"`
	OutputDir     string  `yaml:"output_dir"`
	TargetRate    float64 `yaml:"target_rate"`
	MaxIterations int     `yaml:"max_iterations"`
	AutoFix       bool    `yaml:"auto_fix"`
	DryRun        bool    `yaml:"dry_run"`
	// FixConfidence is the minimum oracle confidence for auto-fix.
	FixConfidence  float64  `yaml:"fix_confidence"`
	CheckpointDir  string   `yaml:"checkpoint_dir"`
	ParallelJobs   int      `yaml:"parallel_jobs"`
	Workers        int      `yaml:"workers"`
	TimeoutPerFile int      `yaml:"timeout_per_file_sec"`
	Include        []string `yaml:"include"`
	Exclude        []string `yaml:"exclude"`
	Display        Display  `yaml:"display"`
}

// Timeout returns the per-file validator timeout.
func (c Converge) Timeout() time.Duration {
	return time.Duration(c.TimeoutPerFile) * time.Second
}

// Validate checks the driver configuration.
func (c Converge) Validate() error {
	if c.TargetRate < 0 || c.TargetRate > 100 {
		return perrors.InvalidConfig("target_rate", "must be between 0 and 100")
	}
	if c.MaxIterations <= 0 {
		return perrors.InvalidConfig("max_iterations", "must be positive")
	}
	if c.FixConfidence < 0 || c.FixConfidence > 1 {
		return perrors.InvalidConfig("fix_confidence", "must be between 0 and 1")
	}
	if c.ParallelJobs <= 0 {
		return perrors.InvalidConfig("parallel_jobs", "must be positive")
	}
	if c.Workers <= 0 {
		return perrors.InvalidConfig("workers", "must be positive")
	}
	if c.TimeoutPerFile <= 0 {
		return perrors.InvalidConfig("timeout_per_file_sec", "must be positive")
	}
	if _, err := ParseDisplay(string(c.Display)); err != nil {
		return err
	}
	return nil
}

// Oracle configures the fix-suggestion model.
type Oracle struct {
	Model string `yaml:"model"`
	TopK  int    `yaml:"top_k"`
	// Overlay is where learned fixes are recorded.
	Overlay string `yaml:"overlay"`
}

// Validator configures the downstream Rust toolchain.
type Validator struct {
	Rustc   string `yaml:"rustc"`
	Cargo   string `yaml:"cargo"`
	Edition string `yaml:"edition"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Translate: Translate{
			Datetime:    DatetimeStd,
			SliceParams: true,
			Crates: map[string]string{
				"regex":      "1",
				"chrono":     "0.4",
				"serde_json": "1",
				"sha2":       "0.10",
				"md-5":       "0.10",
			},
		},
		Cache: Cache{
			Enabled:    true,
			Dir:        defaultCacheDir(),
			MaxSize:    10 << 30,
			MaxAge:     7 * 24 * time.Hour,
			MinEntries: 100,
		},
		Converge: Converge{
			TargetRate:     100,
			MaxIterations:  10,
			FixConfidence:  0.8,
			CheckpointDir:  ".pyrite",
			ParallelJobs:   4,
			Workers:        2,
			TimeoutPerFile: 60,
			Include:        []string{"**/*.py"},
			Display:        DisplayRich,
		},
		Oracle: Oracle{TopK: 3},
		Validator: Validator{
			Rustc:   "rustc",
			Cargo:   "cargo",
			Edition: "2021",
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pyrite")
	}
	return filepath.Join(".pyrite", "cache")
}

// Load reads configuration from path. An empty path searches the working
// directory for pyrite.yaml and then $PYRITE_CONFIG. A missing file yields
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(FileName); err == nil {
			path = FileName
		} else if env := os.Getenv(EnvConfig); env != "" {
			path = env
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv(EnvOracleModel); v != "" {
		c.Oracle.Model = v
	}
}

// Canonical returns a deterministic encoding of the options that affect
// output. Map keys are sorted by encoding/json; slices are sorted here.
func (t Translate) Canonical() []byte {
	cp := t
	cp.ForceClone = append([]string(nil), t.ForceClone...)
	sort.Strings(cp.ForceClone)
	data, err := json.Marshal(cp)
	if err != nil {
		// Only plain strings, bools and maps are marshaled.
		panic(err)
	}
	return data
}

// Clone returns a deep copy.
func (t Translate) Clone() Translate {
	cp := t
	cp.ForceClone = append([]string(nil), t.ForceClone...)
	cp.PatternOverrides = make(map[string]string, len(t.PatternOverrides))
	for k, v := range t.PatternOverrides {
		cp.PatternOverrides[k] = v
	}
	cp.Crates = make(map[string]string, len(t.Crates))
	for k, v := range t.Crates {
		cp.Crates[k] = v
	}
	return cp
}

// Set applies a named toggle, as used by configuration-toggle fixes.
func (t *Translate) Set(key, value string) error {
	switch key {
	case "datetime":
		switch DatetimeMode(value) {
		case DatetimeStd, DatetimeChrono:
			t.Datetime = DatetimeMode(value)
			return nil
		}
		return perrors.InvalidConfig("datetime", fmt.Sprintf("unknown mode %q", value))
	case "slice_params", "clone_strings":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return perrors.InvalidConfig(key, err.Error())
		}
		if key == "slice_params" {
			t.SliceParams = b
		} else {
			t.CloneStrings = b
		}
		return nil
	case "force_clone":
		for _, fc := range t.ForceClone {
			if fc == value {
				return nil
			}
		}
		t.ForceClone = append(t.ForceClone, value)
		return nil
	}
	return perrors.InvalidConfig(key, "unknown toggle")
}

// Override records a recipe template override.
func (t *Translate) Override(path, template string) {
	if t.PatternOverrides == nil {
		t.PatternOverrides = make(map[string]string)
	}
	t.PatternOverrides[path] = template
}
