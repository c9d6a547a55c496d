// Package oracle ranks candidate fixes for validator errors against a
// persisted similarity model. Given the same model it is deterministic
// and holds no mutable state, so one instance is shared by all workers.
package oracle

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Suggestion is one ranked candidate fix.
type Suggestion struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Fix        Fix     `json:"fix"`
	Template   string  `json:"template"`
	Confidence float64 `json:"confidence"`
}

// Suggester is what the convergence driver consumes.
type Suggester interface {
	Suggest(code, message string, k int) []Suggestion
}

type indexed struct {
	entry    Entry
	codes    map[string]bool
	keywords map[string]bool
}

// Oracle is an immutable index over a Model.
type Oracle struct {
	version string
	entries []indexed
}

// New indexes m.
func New(m *Model) *Oracle {
	o := &Oracle{version: m.Version}
	for _, e := range m.Entries {
		ix := indexed{entry: e, codes: make(map[string]bool), keywords: make(map[string]bool)}
		for _, c := range e.Codes {
			ix.codes[c] = true
		}
		for _, k := range e.Keywords {
			for _, tok := range Tokens(k) {
				ix.keywords[tok] = true
			}
		}
		o.entries = append(o.entries, ix)
	}
	return o
}

// ModelVersion is the version of the indexed model.
func (o *Oracle) ModelVersion() string { return o.version }

// Tokens lowercases s and splits it on anything that is not a letter or
// digit. Duplicates are kept.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// Score weights: an exact error-code match dominates keyword overlap.
const (
	codeWeight    = 0.6
	keywordWeight = 0.4
	// generic entries (no codes) earn half the code component
	genericCode = 0.5
)

// Suggest returns up to k suggestions for a validator error, ordered by
// confidence descending then id ascending. Entries scoped to other error
// codes never match.
func (o *Oracle) Suggest(code, message string, k int) []Suggestion {
	if k <= 0 {
		return nil
	}
	msg := make(map[string]bool)
	for _, t := range Tokens(message) {
		msg[t] = true
	}
	var out []Suggestion
	for _, ix := range o.entries {
		var codeScore float64
		switch {
		case len(ix.codes) == 0:
			codeScore = genericCode
		case ix.codes[code]:
			codeScore = 1
		default:
			continue
		}
		conf := ix.entry.Weight * (codeWeight*codeScore + keywordWeight*cosine(ix.keywords, msg))
		if conf <= 0 {
			continue
		}
		out = append(out, Suggestion{
			ID:         ix.entry.ID,
			Category:   ix.entry.Category,
			Fix:        ix.entry.Fix,
			Template:   ix.entry.Template,
			Confidence: math.Round(conf*1e4) / 1e4,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Resolve substitutes {placeholders} in the fix and template. It reports
// false when a placeholder the fix needs has no value.
func (s Suggestion) Resolve(vars map[string]string) (Suggestion, bool) {
	ok := true
	sub := func(str string, required bool) string {
		var b strings.Builder
		for {
			i := strings.IndexByte(str, '{')
			if i < 0 {
				b.WriteString(str)
				return b.String()
			}
			j := strings.IndexByte(str[i:], '}')
			if j < 0 {
				b.WriteString(str)
				return b.String()
			}
			name := str[i+1 : i+j]
			b.WriteString(str[:i])
			if v, found := vars[name]; found && v != "" {
				b.WriteString(v)
			} else {
				if required {
					ok = false
				}
				b.WriteString(str[i : i+j+1])
			}
			str = str[i+j+1:]
		}
	}
	s.Fix.Target = sub(s.Fix.Target, true)
	s.Fix.Value = sub(s.Fix.Value, true)
	s.Template = sub(s.Template, false)
	return s, ok
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
