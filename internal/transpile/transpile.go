// Package transpile runs the one-shot translation pipeline: parse, lower
// to HIR, infer types and ownership, generate Rust and normalize the
// result.
package transpile

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pyrite-lang/pyrite/internal/astbridge"
	"github.com/pyrite-lang/pyrite/internal/codegen"
	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/format"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/lexer"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/parser"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/rust"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// Version is the transpiler version tag. It is embedded in every artifact,
// cache entry and checkpoint; mismatched tags are invalidated on load.
const Version = "0.4.0"

// Severity summarizes an artifact's diagnostics.
type Severity string

const (
	Success  Severity = "success"
	Warnings Severity = "warnings"
	Errors   Severity = "errors"
)

// SeverityOf classifies a diagnostic list.
func SeverityOf(diags diagnostic.List) Severity {
	switch {
	case diags.HasErrors():
		return Errors
	case diags.Count(diagnostic.LevelWarning) > 0:
		return Warnings
	}
	return Success
}

// Config is the translation configuration; only the fields of
// config.Translate affect emitted code.
type Config struct {
	config.Translate
	// ModuleName overrides the module name derived from the file name.
	ModuleName string
	// NoHeader drops the generated-by comment.
	NoHeader bool
}

// FromConfig extracts the translation settings of a loaded configuration.
func FromConfig(c *config.Config) Config {
	return Config{Translate: c.Translate.Clone()}
}

// Artifact is the outcome of a successful parse.
type Artifact struct {
	Filename string
	Code     string
	// Manifest is a Cargo.toml able to build Code as a binary crate.
	Manifest    string
	Deps        []string
	Diagnostics diagnostic.List
	Severity    Severity
	Metrics     Metrics
	Version     string
}

// Failure is returned by Translate when the source does not parse.
type Failure struct {
	Diagnostics diagnostic.List
}

func (f *Failure) Error() string { return f.Diagnostics.Error() }

// Translate converts one source file. A parse error yields a *Failure and
// no artifact; every other problem is reported through the artifact's
// diagnostics.
func Translate(filename, source string, cfg Config) (*Artifact, error) {
	start := time.Now()
	st, err := run(filename, source, cfg)
	if err != nil {
		return nil, err
	}
	out, res := codegen.Generate(st.mod, st.info, st.plan, st.reg, codegen.Options{
		Header:       header(filename, cfg),
		ForceClone:   cfg.ForceClone,
		SliceParams:  cfg.SliceParams,
		CloneStrings: cfg.CloneStrings,
	})
	st.diags.Extend(res.Diagnostics)
	st.diags.Sort()

	code := format.FormatText(rust.Print(out), format.DefaultOptions())
	art := &Artifact{
		Filename:    filename,
		Code:        code,
		Manifest:    Manifest(crateName(filename), res.Crates, cfg.Crates),
		Deps:        res.Crates,
		Diagnostics: st.diags,
		Severity:    SeverityOf(st.diags),
		Version:     Version,
	}
	art.Metrics = measure(st.mod, st.info)
	art.Metrics.Duration = time.Since(start)
	return art, nil
}

// Analyze runs the front half of the pipeline and reports metrics only.
func Analyze(filename, source string, cfg Config) (Metrics, diagnostic.List, error) {
	start := time.Now()
	st, err := run(filename, source, cfg)
	if err != nil {
		return Metrics{}, nil, err
	}
	m := measure(st.mod, st.info)
	m.Duration = time.Since(start)
	st.diags.Sort()
	return m, st.diags, nil
}

type state struct {
	mod   *hir.Module
	info  *types.Info
	plan  *ownership.Plan
	reg   *stdlib.Registry
	diags diagnostic.List
}

func run(filename, source string, cfg Config) (*state, error) {
	file, err := parser.ParseFile(filename, source)
	if err != nil {
		return nil, &Failure{Diagnostics: diagnostic.List{parseDiagnostic(filename, err)}}
	}

	reg := stdlib.NewRegistry(stdlib.Options{Chrono: cfg.Datetime == config.DatetimeChrono})
	paths := make([]string, 0, len(cfg.PatternOverrides))
	for p := range cfg.PatternOverrides {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		reg.Override(p, cfg.PatternOverrides[p])
	}

	name := cfg.ModuleName
	if name == "" {
		name = moduleName(filename)
	}
	st := &state{reg: reg}
	mod, seed, diags := astbridge.Convert(file, astbridge.Options{Registry: reg, ModuleName: name})
	st.diags.Extend(diags)
	info, diags := types.Check(mod, types.Config{Registry: reg, Seed: seed})
	st.diags.Extend(diags)
	plan := ownership.Analyze(mod, info)
	st.diags.Extend(plan.Diagnostics)
	st.mod, st.info, st.plan = mod, info, plan
	return st, nil
}

func parseDiagnostic(filename string, err error) diagnostic.Diagnostic {
	pos := position.Position{Filename: filename, Line: 1, Column: 1}
	msg := err.Error()
	var pe *parser.ParseError
	var le *lexer.Error
	switch {
	case errors.As(err, &pe):
		pos, msg = pe.Pos, pe.Message
	case errors.As(err, &le):
		pos, msg = le.Pos, le.Message
	}
	return diagnostic.New(diagnostic.CodeParse).
		Error().
		Category(diagnostic.CategoryParse).
		Span(position.At(pos)).
		Message("%s", msg).
		Build()
}

func header(filename string, cfg Config) []string {
	if cfg.NoHeader {
		return nil
	}
	return []string{fmt.Sprintf("Generated by pyrite %s from %s. Do not edit.", Version, filepath.Base(filename))}
}

func moduleName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// crateName turns a file name into a valid Cargo package name.
func crateName(filename string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(moduleName(filename)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		name = "py_" + name
	}
	return name
}
