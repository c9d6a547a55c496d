package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/converge"
	"github.com/pyrite-lang/pyrite/internal/oracle"
	"github.com/pyrite-lang/pyrite/internal/toolchain"
)

var convergeInfo = cli.CommandInfo{
	Name:        "converge",
	Usage:       "pyrite converge <dir> [--target-rate R] [--max-iterations N] [--auto-fix] [--display rich|minimal|json|silent]",
	Description: "Translate a corpus and repair until a compile rate is reached",
	Examples: []string{
		"pyrite converge src/ --target-rate 95 --auto-fix",
		"pyrite converge src/ --display json --exclude 'tests/**'",
	},
	Flags: []cli.FlagInfo{
		{Name: "target-rate", Usage: "stop once this percentage of files validates", Default: "100"},
		{Name: "max-iterations", Usage: "upper bound on iterations", Default: "10"},
		{Name: "auto-fix", Usage: "apply confident oracle suggestions"},
		{Name: "display", Usage: "rich, minimal, json or silent", Default: "rich"},
		{Name: "jobs", Usage: "concurrent validator processes", Default: "4"},
		{Name: "workers", Usage: "concurrent translations", Default: "2"},
		{Name: "checkpoint", Usage: "checkpoint directory", Default: ".pyrite"},
		{Name: "output", Usage: "write translated files under this directory"},
		{Name: "include", Usage: "glob of files to translate (repeatable)"},
		{Name: "exclude", Usage: "glob of files to skip (repeatable)"},
		{Name: "resume", Usage: "continue from the checkpoint"},
		{Name: "dry-run", Usage: "report fixes without applying them or writing output"},
	},
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (a *app) cmdConverge(args []string) int {
	fs := a.flags(convergeInfo)
	target := fs.Float64("target-rate", -1, "target compile rate")
	maxIter := fs.Int("max-iterations", 0, "iteration bound")
	autoFix := fs.Bool("auto-fix", false, "apply fixes")
	display := fs.String("display", "", "display mode")
	jobs := fs.Int("jobs", 0, "validator processes")
	workers := fs.Int("workers", 0, "translation workers")
	checkpoint := fs.String("checkpoint", "", "checkpoint directory")
	output := fs.String("output", "", "output directory")
	resume := fs.Bool("resume", false, "resume from checkpoint")
	dryRun := fs.Bool("dry-run", false, "do not apply fixes")
	var include, exclude stringList
	fs.Var(&include, "include", "include glob")
	fs.Var(&exclude, "exclude", "exclude glob")
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	dir, err := oneArg(pos, convergeInfo)
	if err != nil {
		return a.fail(err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}

	cc := cfg.Converge
	cc.InputDir = dir
	if *target >= 0 {
		cc.TargetRate = *target
	}
	if *maxIter > 0 {
		cc.MaxIterations = *maxIter
	}
	if *autoFix {
		cc.AutoFix = true
	}
	if *dryRun {
		cc.DryRun = true
	}
	if *display != "" {
		d, err := config.ParseDisplay(*display)
		if err != nil {
			return a.fail(usageErr("%v", err))
		}
		cc.Display = d
	}
	if *jobs > 0 {
		cc.ParallelJobs = *jobs
	}
	if *workers > 0 {
		cc.Workers = *workers
	}
	if *checkpoint != "" {
		cc.CheckpointDir = *checkpoint
	}
	if *output != "" {
		cc.OutputDir = *output
	}
	if len(include) > 0 {
		cc.Include = include
	}
	if len(exclude) > 0 {
		cc.Exclude = exclude
	}
	if err := cc.Validate(); err != nil {
		return a.fail(usageErr("%v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model, err := a.loadModel(ctx, cfg)
	if err != nil {
		return a.fail(err)
	}
	overlay := cfg.Oracle.Overlay
	if overlay == "" {
		overlay = filepath.Join(cc.CheckpointDir, "oracle-overlay.json")
	}
	learner := &oracle.Learner{Path: overlay}
	if learned, err := learner.Load(); err != nil {
		a.log.Warn("oracle overlay: %v", err)
	} else {
		model = oracle.Merge(model, learned)
	}

	c := a.openCache(cfg)
	if c != nil {
		defer c.Close()
	}
	// the log shares the terminal with the rich view; keep it quiet there
	if cc.Display == config.DisplayRich && !a.debug {
		a.log.Verbose = false
	}
	disp := converge.NewDisplay(cc.Display, a.stdout, cancel)
	rep, err := converge.Run(ctx, converge.Config{
		Converge:  cc,
		Translate: cfg.Translate.Clone(),
		TopK:      cfg.Oracle.TopK,
		Resume:    *resume,
	}, converge.Deps{
		Cache:     c,
		Validator: toolchain.New(cfg.Validator, cc.Timeout()),
		Oracle:    oracle.New(model),
		Learner:   learner,
		Logger:    a.log,
		Display:   disp,
	})
	if cerr := disp.Close(); cerr != nil {
		a.log.Warn("display: %v", cerr)
	}
	if err != nil {
		return a.fail(err)
	}

	switch cc.Display {
	case config.DisplayJSON:
		enc := json.NewEncoder(a.stdout)
		if err := enc.Encode(struct {
			Event string `json:"event"`
			*converge.Report
		}{"report", rep}); err != nil {
			return a.fail(err)
		}
	case config.DisplaySilent:
	default:
		converge.WriteReport(a.stdout, rep)
	}
	if !rep.Reached {
		return cli.ExitTargetMissed
	}
	return cli.ExitOK
}

// loadModel resolves the configured oracle model: an https URL is fetched
// into the cache directory, a path is read, and nothing means the
// built-in model.
func (a *app) loadModel(ctx context.Context, cfg *config.Config) (*oracle.Model, error) {
	loc := cfg.Oracle.Model
	switch {
	case loc == "":
		return oracle.DefaultModel(), nil
	case strings.HasPrefix(loc, "https://"):
		fctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		path, err := oracle.FetchModel(fctx, loc, filepath.Join(cfg.Cache.Dir, "models"))
		if err != nil {
			return nil, err
		}
		a.log.Info("oracle model %s", path)
		loc = path
	}
	m, err := oracle.LoadModel(loc)
	if err != nil {
		return nil, fmt.Errorf("oracle model: %w", err)
	}
	return m, nil
}
