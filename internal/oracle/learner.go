package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// Learner persists fixes that were verified to help into an overlay
// model, which Merge layers over the base model on the next run.
type Learner struct {
	Path string

	mu sync.Mutex
}

const (
	learnedWeight = 0.6
	learnStep     = 0.1
	maxKeywords   = 8
)

func learnedID(code string, fix Fix) string {
	return fmt.Sprintf("learned-%s-%s", code, digest([]byte(fix.Key()))[:8])
}

func keywordsOf(message string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokens(message) {
		if len(t) < 3 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// Load reads the overlay. A missing file is an empty overlay.
func (l *Learner) Load() (*Model, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &Model{Version: "1.0.0"}, nil
	}
	if err != nil {
		return nil, perrors.IOFailure("read", l.Path, err)
	}
	return ParseModel(data)
}

// Record reinforces the entry for (code, fix), creating it on first use.
// The fix must already be resolved.
func (l *Learner) Record(code, category, message string, fix Fix) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.Load()
	if err != nil {
		return err
	}
	id := learnedID(code, fix)
	found := false
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries[i].Weight = math.Min(1, m.Entries[i].Weight+learnStep)
			found = true
			break
		}
	}
	if !found {
		m.Entries = append(m.Entries, Entry{
			ID:       id,
			Codes:    []string{code},
			Keywords: keywordsOf(message),
			Category: category,
			Fix:      fix,
			Template: "previously verified: " + fix.Key(),
			Weight:   learnedWeight,
		})
	}
	return l.save(m)
}

func (l *Learner) save(m *Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.IOFailure("mkdir", dir, err)
	}
	tmp := l.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return perrors.IOFailure("write", tmp, err)
	}
	if err := os.Rename(tmp, l.Path); err != nil {
		return perrors.IOFailure("rename", l.Path, err)
	}
	return nil
}
