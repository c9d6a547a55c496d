package converge

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/oracle"
)

// prefixLen bounds the normalized message prefix that, together with the
// error code, identifies a cluster.
const prefixLen = 48

var (
	quoted  = regexp.MustCompile("`[^`]*`")
	numbers = regexp.MustCompile(`[0-9]+`)
	spaces  = regexp.MustCompile(`\s+`)
)

// normalizeMessage strips identifiers and numbers so that the same error
// in different places lands in one cluster.
func normalizeMessage(msg string) string {
	msg = quoted.ReplaceAllString(msg, "`_`")
	msg = numbers.ReplaceAllString(msg, "N")
	msg = strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(msg, " ")))
	if r := []rune(msg); len(r) > prefixLen {
		msg = string(r[:prefixLen])
	}
	return msg
}

// Occurrence is one validator error attributed to a file.
type Occurrence struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Cluster groups failures sharing an error code and message prefix.
type Cluster struct {
	Key         string              `json:"key"`
	Code        string              `json:"code"`
	Prefix      string              `json:"prefix"`
	Count       int                 `json:"count"`
	Files       []string            `json:"files"`
	Sample      Occurrence          `json:"sample"`
	Occurrences []Occurrence        `json:"-"`
	Suggestions []oracle.Suggestion `json:"suggestions,omitempty"`
}

func clusterKey(code, msg string) string {
	return code + "|" + normalizeMessage(msg)
}

// clusterFailures groups the errors of failed files, largest first. Ties
// order by key so the result does not depend on completion order.
func clusterFailures(files []FileState) []*Cluster {
	byKey := make(map[string]*Cluster)
	seenFile := make(map[string]map[string]bool)
	for _, f := range files {
		if f.Status == StatusSuccess {
			continue
		}
		for _, e := range f.Errors {
			key := clusterKey(e.Code, e.Message)
			c, ok := byKey[key]
			if !ok {
				c = &Cluster{Key: key, Code: e.Code, Prefix: normalizeMessage(e.Message)}
				byKey[key] = c
				seenFile[key] = make(map[string]bool)
			}
			occ := Occurrence{File: f.Path, Line: e.Line, Message: e.Message}
			c.Count++
			c.Occurrences = append(c.Occurrences, occ)
			if !seenFile[key][f.Path] {
				seenFile[key][f.Path] = true
				c.Files = append(c.Files, f.Path)
			}
		}
	}
	out := make([]*Cluster, 0, len(byKey))
	for _, c := range byKey {
		sort.Strings(c.Files)
		sort.SliceStable(c.Occurrences, func(i, j int) bool {
			a, b := c.Occurrences[i], c.Occurrences[j]
			if a.File != b.File {
				return a.File < b.File
			}
			return a.Line < b.Line
		})
		c.Sample = c.Occurrences[0]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
