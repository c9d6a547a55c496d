package converge

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// MatchPattern reports whether the slash-separated relative path matches
// pattern. "dir/**" matches dir and everything below it, a leading "**/"
// matches at any depth, and anything else is a path.Match glob.
func MatchPattern(pattern, rel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		for p := rel; ; {
			if MatchPattern(rest, p) {
				return true
			}
			i := strings.IndexByte(p, '/')
			if i < 0 {
				return false
			}
			p = p[i+1:]
		}
	}
	matched, _ := path.Match(pattern, rel)
	return matched
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if MatchPattern(p, rel) {
			return true
		}
	}
	return false
}

// Enumerate lists the files under root selected by include and not
// rejected by exclude, as sorted slash-separated relative paths. An empty
// include list selects every .py file. Hidden directories are skipped.
func Enumerate(root string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{"**/*.py"}
	}
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || matchAny(exclude, rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchAny(include, rel) && !matchAny(exclude, rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, perrors.IOFailure("walk", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// outputPath maps a source path to its emitted Rust file under dir.
func outputPath(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimSuffix(rel, path.Ext(rel))+".rs"))
}
