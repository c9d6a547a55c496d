package converge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/oracle"
)

// AppliedFix records one automatic edit to the translation config.
type AppliedFix struct {
	Iteration    int        `json:"iteration"`
	ErrorCode    string     `json:"error_code"`
	Description  string     `json:"description"`
	FileModified []string   `json:"file_modified"`
	Fix          oracle.Fix `json:"fix"`
	SuggestionID string     `json:"suggestion_id"`
	Confidence   float64    `json:"confidence"`
	Verified     bool       `json:"verified"`

	ClusterKey  string `json:"cluster_key"`
	ClusterSize int    `json:"cluster_size"`
	Category    string `json:"category"`
	Message     string `json:"message"`
}

// apply edits cfg. Pattern overrides and toggles are validated by the
// config layer.
func apply(cfg *config.Translate, fix oracle.Fix) error {
	switch fix.Kind {
	case oracle.FixPatternOverride:
		if fix.Target == "" || fix.Value == "" {
			return fmt.Errorf("pattern override needs a target and a template")
		}
		cfg.Override(fix.Target, fix.Value)
		return nil
	case oracle.FixForceClone:
		return cfg.Set("force_clone", fix.Target)
	case oracle.FixConfigToggle:
		return cfg.Set(fix.Target, fix.Value)
	}
	return fmt.Errorf("fix kind %q is not automatic", fix.Kind)
}

var (
	firstQuoted = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*)`")
	fnDecl      = regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(?:r#)?([A-Za-z_][A-Za-z0-9_]*)`)
	implDecl    = regexp.MustCompile(`^impl(?:<[^>]*>)?\s+(?:[A-Za-z_][A-Za-z0-9_:]*\s+for\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
)

// placeholders derives {name}, {function} and {method} for an error at
// line (1-based) of code. {function} is qualified with the impl type when
// the enclosing fn is a method, matching force-clone targets.
func placeholders(code string, occ Occurrence) map[string]string {
	vars := make(map[string]string)
	if m := firstQuoted.FindStringSubmatch(occ.Message); m != nil {
		vars["name"] = m[1]
	}
	if occ.Line <= 0 {
		return vars
	}
	lines := strings.Split(code, "\n")
	if occ.Line > len(lines) {
		return vars
	}
	for i := occ.Line - 1; i >= 0; i-- {
		m := fnDecl.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		fn := m[2]
		vars["method"] = fn
		vars["function"] = fn
		if m[1] == "" {
			break
		}
		for j := i - 1; j >= 0; j-- {
			if im := implDecl.FindStringSubmatch(lines[j]); im != nil {
				vars["function"] = im[1] + "." + fn
				break
			}
			if len(lines[j]) > 0 && lines[j][0] == '}' {
				break
			}
		}
		break
	}
	return vars
}
