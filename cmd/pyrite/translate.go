package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pyrite-lang/pyrite/internal/cache"
	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/format"
	"github.com/pyrite-lang/pyrite/internal/position"
	"github.com/pyrite-lang/pyrite/internal/toolchain"
	"github.com/pyrite-lang/pyrite/internal/transpile"
	"github.com/pyrite-lang/pyrite/internal/watch"
)

var translateInfo = cli.CommandInfo{
	Name:        "translate",
	Usage:       "pyrite translate <file.py> [-o out.rs] [--watch] [--datetime std|chrono]",
	Description: "Translate one file to Rust",
	Examples: []string{
		"pyrite translate fib.py",
		"pyrite translate app.py -o app.rs --watch",
	},
	Flags: []cli.FlagInfo{
		{Name: "o", Usage: "write Rust to this file instead of stdout"},
		{Name: "watch", Usage: "re-translate whenever the file changes"},
		{Name: "datetime", Usage: "datetime mapping", Default: "std"},
		{Name: "no-cache", Usage: "bypass the translation cache"},
	},
}

var checkInfo = cli.CommandInfo{
	Name:        "check",
	Usage:       "pyrite check <file.py>",
	Description: "Translate and validate with rustc or cargo",
}

var analyzeInfo = cli.CommandInfo{
	Name:        "analyze",
	Usage:       "pyrite analyze <file.py> [--json]",
	Description: "Report complexity and type coverage",
	Flags:       []cli.FlagInfo{{Name: "json", Usage: "print metrics as JSON"}},
}

var compileInfo = cli.CommandInfo{
	Name:        "compile",
	Usage:       "pyrite compile <file.py> [-o exe]",
	Description: "Translate and build a release executable with cargo",
	Flags:       []cli.FlagInfo{{Name: "o", Usage: "executable path", Default: "<file> without extension"}},
}

// translation holds what translateFile needs between runs.
type translation struct {
	a      *app
	cfg    transpile.Config
	cache  *cache.Cache
	source string
}

// translateFile reads and translates path, cache first. A parse failure
// is returned as *transpile.Failure.
func (t *translation) translateFile(path string) (*transpile.Artifact, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t.source = string(src)
	compute := func() (*transpile.Artifact, error) { return transpile.Translate(path, t.source, t.cfg) }
	if t.cache == nil {
		return compute()
	}
	art, hit, err := t.cache.GetOrCompute(cache.KeyForFile(path, t.source, t.cfg.Translate), compute)
	var fail *transpile.Failure
	if err != nil && !errors.As(err, &fail) {
		t.a.log.Warn("cache: %v", err)
		return compute()
	}
	t.a.log.Debug("%s: cache hit %v", path, hit)
	return art, err
}

// report prints diagnostics with source snippets and returns the exit
// code for the artifact.
func (t *translation) report(path string, art *transpile.Artifact, err error) int {
	src := position.NewSourceFile(path, t.source)
	var fail *transpile.Failure
	switch {
	case errors.As(err, &fail):
		fmt.Fprint(t.a.stderr, fail.Diagnostics.Format(src))
		return cli.ExitTranslateErrors
	case err != nil:
		fmt.Fprintf(t.a.stderr, "error: %v\n", err)
		return cli.ExitTranslateErrors
	}
	if len(art.Diagnostics) > 0 {
		fmt.Fprint(t.a.stderr, art.Diagnostics.Format(src))
	}
	if art.Severity == transpile.Errors {
		return cli.ExitTranslateErrors
	}
	return cli.ExitOK
}

func (a *app) newTranslation(cfg *config.Config, datetime string, noCache bool) (*translation, error) {
	tcfg := transpile.FromConfig(cfg)
	if datetime != "" {
		if err := tcfg.Set("datetime", datetime); err != nil {
			return nil, usageErr("%v", err)
		}
	}
	t := &translation{a: a, cfg: tcfg}
	if !noCache {
		t.cache = a.openCache(cfg)
	}
	return t, nil
}

func (t *translation) close() {
	if t.cache != nil {
		if err := t.cache.Close(); err != nil {
			t.a.log.Warn("cache: %v", err)
		}
	}
}

func (a *app) cmdTranslate(args []string) int {
	fs := a.flags(translateInfo)
	out := fs.String("o", "", "output file")
	watching := fs.Bool("watch", false, "re-translate on change")
	datetime := fs.String("datetime", "", "datetime mapping (std|chrono)")
	noCache := fs.Bool("no-cache", false, "bypass the translation cache")
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	path, err := oneArg(pos, translateInfo)
	if err != nil {
		return a.fail(err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	t, err := a.newTranslation(cfg, *datetime, *noCache)
	if err != nil {
		return a.fail(err)
	}
	defer t.close()

	art, err := t.translateFile(path)
	status := t.report(path, art, err)
	if art != nil {
		if werr := a.emit(*out, art.Code); werr != nil {
			return a.fail(werr)
		}
	}
	if !*watching {
		return status
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	prev := ""
	if art != nil {
		prev = art.Code
	}
	a.log.Info("watching %s", path)
	err = watch.Run(ctx, []string{path}, func([]string) {
		art, err := t.translateFile(path)
		t.report(path, art, err)
		if art == nil {
			return
		}
		diff := format.Diff(prev, art.Code, format.DefaultDiffOptions())
		if !diff.HasChanges() {
			return
		}
		fmt.Fprint(a.stderr, format.Render(filepath.Base(path), diff, format.DefaultDiffOptions()))
		fmt.Fprintf(a.stderr, "%s\n", diff.Stats.Summary())
		prev = art.Code
		if werr := a.emit(*out, art.Code); werr != nil {
			a.log.Error("%v", werr)
		}
	})
	if err != nil {
		return a.fail(err)
	}
	return cli.ExitOK
}

func printToolDiagnostics(w io.Writer, diags []toolchain.Diagnostic) {
	for _, d := range diags {
		if d.File != "" {
			fmt.Fprintf(w, "%s:%d:%d: ", d.File, d.Line, d.Column)
		}
		fmt.Fprintf(w, "%s[%s]: %s\n", d.Level, d.Code, d.Message)
	}
}

// emit writes code to path, or to stdout when path is empty.
func (a *app) emit(path, code string) error {
	if path == "" {
		_, err := fmt.Fprint(a.stdout, code)
		return err
	}
	return os.WriteFile(path, []byte(code), 0o644)
}

func (a *app) cmdCheck(args []string) int {
	fs := a.flags(checkInfo)
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	path, err := oneArg(pos, checkInfo)
	if err != nil {
		return a.fail(err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	t, err := a.newTranslation(cfg, "", false)
	if err != nil {
		return a.fail(err)
	}
	defer t.close()
	art, err := t.translateFile(path)
	if status := t.report(path, art, err); art == nil {
		return status
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	v := toolchain.New(cfg.Validator, cfg.Converge.Timeout())
	res, err := v.Validate(ctx, toolchain.ValidationInput{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Code:     art.Code,
		Manifest: art.Manifest,
		Deps:     art.Deps,
	})
	if err != nil {
		return a.fail(err)
	}
	printToolDiagnostics(a.stderr, res.Diagnostics)
	if !res.OK {
		fmt.Fprintf(a.stderr, "validation failed (%s)\n", res.Took.Round(time.Millisecond))
		return cli.ExitValidatorFailed
	}
	fmt.Fprintf(a.stdout, "%s: ok (%s)\n", path, res.Took.Round(time.Millisecond))
	return cli.ExitOK
}

func (a *app) cmdAnalyze(args []string) int {
	fs := a.flags(analyzeInfo)
	asJSON := fs.Bool("json", false, "print JSON")
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	path, err := oneArg(pos, analyzeInfo)
	if err != nil {
		return a.fail(err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return a.fail(err)
	}
	m, diags, err := transpile.Analyze(path, string(src), transpile.FromConfig(cfg))
	var fail *transpile.Failure
	if errors.As(err, &fail) {
		fmt.Fprint(a.stderr, fail.Diagnostics.Format(position.NewSourceFile(path, string(src))))
		return cli.ExitTranslateErrors
	}
	if err != nil {
		return a.fail(err)
	}
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			File string `json:"file"`
			transpile.Metrics
			Diagnostics int `json:"diagnostics"`
		}{path, m, len(diags)}); err != nil {
			return a.fail(err)
		}
		return cli.ExitOK
	}
	fmt.Fprintf(a.stdout, "%s\n", path)
	fmt.Fprintf(a.stdout, "  functions       %d\n", m.Functions)
	fmt.Fprintf(a.stdout, "  classes         %d\n", m.Classes)
	fmt.Fprintf(a.stdout, "  complexity      %d (max %d)\n", m.Complexity, m.MaxComplexity)
	fmt.Fprintf(a.stdout, "  type coverage   %.1f%%\n", m.TypeCoverage*100)
	fmt.Fprintf(a.stdout, "  diagnostics     %d\n", len(diags))
	fmt.Fprintf(a.stdout, "  analysis time   %s\n", m.Duration)
	return cli.ExitOK
}

func (a *app) cmdCompile(args []string) int {
	fs := a.flags(compileInfo)
	out := fs.String("o", "", "executable path")
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	path, err := oneArg(pos, compileInfo)
	if err != nil {
		return a.fail(err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	t, err := a.newTranslation(cfg, "", false)
	if err != nil {
		return a.fail(err)
	}
	defer t.close()
	art, err := t.translateFile(path)
	if status := t.report(path, art, err); art == nil || status != cli.ExitOK {
		return status
	}
	if *out == "" {
		*out = strings.TrimSuffix(path, filepath.Ext(path))
	}
	dir, err := os.MkdirTemp("", "pyrite-build-*")
	if err != nil {
		return a.fail(err)
	}
	defer os.RemoveAll(dir)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := (toolchain.ProjectWriter{Dir: dir}).Write(name, art.Code, art.Manifest); err != nil {
		return a.fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := toolchain.Compile(ctx, cfg.Validator.Cargo, dir, *out)
	if err != nil {
		return a.fail(err)
	}
	if len(res.Diagnostics) > 0 {
		printToolDiagnostics(a.stderr, res.Diagnostics)
		return cli.ExitValidatorFailed
	}
	fmt.Fprintf(a.stdout, "built %s\n", res.Binary)
	return cli.ExitOK
}
