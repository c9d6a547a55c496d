package oracle

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// FixKind says how a suggestion can be applied automatically.
type FixKind string

const (
	// FixPatternOverride replaces the stdlib recipe at Target with Value.
	FixPatternOverride FixKind = "pattern_override"
	// FixForceClone clones the parameter Target ("function.param").
	FixForceClone FixKind = "force_clone"
	// FixConfigToggle sets translate option Target to Value.
	FixConfigToggle FixKind = "config_toggle"
	// FixManual is advice only.
	FixManual FixKind = "manual"
)

// Fix is an applicable edit. Target and Value may hold {name},
// {function} and {method} placeholders resolved against the error.
type Fix struct {
	Kind   FixKind `json:"kind"`
	Target string  `json:"target,omitempty"`
	Value  string  `json:"value,omitempty"`
}

// Automatic reports whether the fix can be applied without a human.
func (f Fix) Automatic() bool {
	return f.Kind == FixPatternOverride || f.Kind == FixForceClone || f.Kind == FixConfigToggle
}

// Key identifies the edit independent of the entry proposing it.
func (f Fix) Key() string { return string(f.Kind) + ":" + f.Target + "=" + f.Value }

// Entry is one model row.
type Entry struct {
	ID       string   `json:"id"`
	Codes    []string `json:"codes"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
	Fix      Fix      `json:"fix"`
	Template string   `json:"template"`
	Weight   float64  `json:"weight"`
}

// Model is the persisted similarity model.
type Model struct {
	Version string  `json:"version"`
	Entries []Entry `json:"entries"`
}

// modelConstraint accepts every model schema this adapter reads.
const modelConstraint = "^1.0.0"

//go:embed default_model.json
var defaultModel []byte

// DefaultModel returns the built-in model.
func DefaultModel() *Model {
	m, err := ParseModel(defaultModel)
	if err != nil {
		panic("oracle: embedded model: " + err.Error())
	}
	return m
}

// ParseModel decodes and validates a model document.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("oracle: decode model: %w", err)
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, perrors.VersionMismatch("oracle model", m.Version, modelConstraint)
	}
	c, _ := semver.NewConstraint(modelConstraint)
	if !c.Check(v) {
		return nil, perrors.VersionMismatch("oracle model", m.Version, modelConstraint)
	}
	seen := make(map[string]bool, len(m.Entries))
	for i, e := range m.Entries {
		if e.ID == "" {
			return nil, fmt.Errorf("oracle: entry %d has no id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("oracle: duplicate entry id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Weight < 0 || e.Weight > 1 {
			return nil, fmt.Errorf("oracle: entry %q weight %v outside [0, 1]", e.ID, e.Weight)
		}
	}
	return &m, nil
}

// isDigest reports whether name is a lowercase hex sha256.
func isDigest(name string) bool {
	if len(name) != 64 {
		return false
	}
	for _, c := range name {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// LoadModel reads a model file. When the file name (without extension)
// is a sha256 digest, the content must hash to it.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.IOFailure("read", path, err)
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if isDigest(name) {
		if got := digest(data); got != name {
			return nil, perrors.CacheCorrupt("oracle model "+path, fmt.Errorf("content hashes to %s", got))
		}
	}
	return ParseModel(data)
}

// Merge returns base with overlay entries appended; an overlay entry
// replaces a base entry with the same id.
func Merge(base, overlay *Model) *Model {
	if overlay == nil {
		return base
	}
	out := &Model{Version: base.Version}
	replaced := make(map[string]Entry, len(overlay.Entries))
	for _, e := range overlay.Entries {
		replaced[e.ID] = e
	}
	for _, e := range base.Entries {
		if r, ok := replaced[e.ID]; ok {
			out.Entries = append(out.Entries, r)
			delete(replaced, e.ID)
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	for _, e := range overlay.Entries {
		if _, ok := replaced[e.ID]; ok {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}
