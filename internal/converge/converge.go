// Package converge drives a corpus toward a target compile rate: it
// translates every file (cache first), validates the output, clusters the
// failures and, when allowed, applies oracle-suggested configuration fixes
// before trying again.
package converge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pyrite-lang/pyrite/internal/cache"
	"github.com/pyrite-lang/pyrite/internal/cli"
	"github.com/pyrite-lang/pyrite/internal/config"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/oracle"
	"github.com/pyrite-lang/pyrite/internal/toolchain"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

// FileStatus is the outcome for one file in one iteration.
type FileStatus string

const (
	StatusSuccess   FileStatus = "success"
	StatusFailed    FileStatus = "failed"
	StatusTimeout   FileStatus = "timeout"
	StatusParseFail FileStatus = "parse_error"
)

// ErrorRecord is one error attributed to a file.
type ErrorRecord struct {
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// FileState is the per-file result of the latest iteration.
type FileState struct {
	Path     string        `json:"path"`
	Key      cache.Key     `json:"key,omitempty"`
	Status   FileStatus    `json:"status"`
	Cached   bool          `json:"cached,omitempty"`
	Severity string        `json:"severity,omitempty"`
	Deps     []string      `json:"deps,omitempty"`
	Errors   []ErrorRecord `json:"errors,omitempty"`

	code string
}

// Config drives one run.
type Config struct {
	config.Converge
	Translate config.Translate
	// TopK bounds the suggestions requested per cluster.
	TopK int
	// Resume continues from the checkpoint in CheckpointDir when it is
	// compatible.
	Resume bool
}

// Deps are the collaborators of a run. Cache, Learner and Display may be
// nil.
type Deps struct {
	Cache     *cache.Cache
	Validator toolchain.Validator
	Oracle    oracle.Suggester
	Learner   *oracle.Learner
	Logger    *cli.Logger
	Display   Display
}

// Report is the outcome of a run.
type Report struct {
	Rate       float64       `json:"rate"`
	Target     float64       `json:"target"`
	Reached    bool          `json:"reached"`
	Iterations int           `json:"iterations"`
	Files      []FileState   `json:"files"`
	Clusters   []*Cluster    `json:"clusters"`
	Fixes      []AppliedFix  `json:"fixes"`
	Duration   time.Duration `json:"duration"`
}

// Failed counts files that did not validate.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Status != StatusSuccess {
			n++
		}
	}
	return n
}

type driver struct {
	cfg   Config
	deps  Deps
	files []string
	sem   *semaphore.Weighted
	log   *cli.Logger
	disp  Display
}

// Run executes the loop until the target rate is reached, no fix applies
// or MaxIterations is hit. Per-file failures never abort the run; a
// cancelled context or an unreadable cache does.
func Run(ctx context.Context, cfg Config, deps Deps) (*Report, error) {
	if err := cfg.Converge.Validate(); err != nil {
		return nil, err
	}
	if deps.Validator == nil {
		return nil, perrors.InvalidConfig("validator", "must be set")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	d := &driver{
		cfg:  cfg,
		deps: deps,
		sem:  semaphore.NewWeighted(int64(cfg.ParallelJobs)),
		log:  deps.Logger,
		disp: deps.Display,
	}
	if d.log == nil {
		d.log = cli.Discard()
	}
	if d.disp == nil {
		d.disp = silentDisplay{}
	}
	start := time.Now()

	unlock, err := Lock(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d.files, err = Enumerate(cfg.InputDir, cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	d.log.Info("converge: %d files under %s", len(d.files), cfg.InputDir)

	tcfg := cfg.Translate.Clone()
	cp := &Checkpoint{InputDir: cfg.InputDir, TargetRate: cfg.TargetRate}
	if cfg.Resume {
		if prev := d.resume(&tcfg); prev != nil {
			cp = prev
			cp.TargetRate = cfg.TargetRate
		}
	}

	d.disp.Handle(Event{Kind: EventStart, Time: time.Now(), Iteration: cp.Iteration, Total: len(d.files), Target: cfg.TargetRate})

	report := &Report{Target: cfg.TargetRate}
	for cp.Iteration < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter := cp.Iteration + 1
		states, err := d.iterate(ctx, iter, tcfg)
		if err != nil {
			return nil, err
		}
		rate := compileRate(states)
		clusters := clusterFailures(states)
		d.verify(cp.FixesApplied, iter, clusters)

		cp.Iteration = iter
		cp.CompilationRate = rate
		cp.Files = states
		cp.Clusters = clusters
		reached := rate >= cfg.TargetRate

		d.disp.Handle(Event{
			Kind: EventIteration, Time: time.Now(), Iteration: iter,
			Done: len(states) - failedCount(states), Total: len(states),
			Rate: rate, Clusters: len(clusters), Reached: reached,
		})
		d.log.Info("iteration %d: rate %.1f%%, %d clusters", iter, rate, len(clusters))

		applied := 0
		if !reached {
			d.suggest(clusters)
			if cfg.AutoFix && iter < cfg.MaxIterations {
				applied = d.applyFixes(ctx, iter, cp, clusters, &tcfg)
			}
		}
		if err := cp.Save(cfg.CheckpointDir); err != nil {
			return nil, err
		}
		if reached || applied == 0 {
			break
		}
	}

	report.Rate = cp.CompilationRate
	report.Reached = cp.CompilationRate >= cfg.TargetRate
	report.Iterations = cp.Iteration
	report.Files = cp.Files
	report.Clusters = cp.Clusters
	report.Fixes = cp.FixesApplied
	report.Duration = time.Since(start)
	d.disp.Handle(Event{Kind: EventDone, Time: time.Now(), Iteration: report.Iterations, Rate: report.Rate, Reached: report.Reached})
	return report, nil
}

// resume loads a compatible checkpoint and replays its fixes onto tcfg.
func (d *driver) resume(tcfg *config.Translate) *Checkpoint {
	cp, err := LoadCheckpoint(d.cfg.CheckpointDir)
	switch {
	case err != nil:
		d.log.Warn("ignoring checkpoint: %v", err)
		return nil
	case cp == nil:
		return nil
	case cp.InputDir != d.cfg.InputDir:
		d.log.Warn("ignoring checkpoint for %s; converging %s", cp.InputDir, d.cfg.InputDir)
		return nil
	}
	for _, f := range cp.FixesApplied {
		if err := apply(tcfg, f.Fix); err != nil {
			d.log.Warn("replaying fix %s: %v", f.Fix.Key(), err)
		}
	}
	d.log.Info("resuming at iteration %d (%d fixes)", cp.Iteration, len(cp.FixesApplied))
	return cp
}

func compileRate(states []FileState) float64 {
	if len(states) == 0 {
		return 100
	}
	return float64(len(states)-failedCount(states)) * 100 / float64(len(states))
}

func failedCount(states []FileState) int {
	n := 0
	for _, s := range states {
		if s.Status != StatusSuccess {
			n++
		}
	}
	return n
}

// iterate translates and validates every file. Results are indexed by
// file so their order does not depend on scheduling.
func (d *driver) iterate(ctx context.Context, iter int, tcfg config.Translate) ([]FileState, error) {
	states := make([]FileState, len(d.files))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, rel := range d.files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := d.processFile(gctx, rel, tcfg)
			if err != nil {
				return err
			}
			states[i] = st
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			d.disp.Handle(Event{Kind: EventFile, Time: time.Now(), Iteration: iter, File: rel, Status: st.Status, Cached: st.Cached, Done: n, Total: len(d.files)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// processFile runs one file through translate, write and validate. Only
// cancellation and shared cache failures are returned as errors.
func (d *driver) processFile(ctx context.Context, rel string, tcfg config.Translate) (FileState, error) {
	st := FileState{Path: rel}
	src, err := os.ReadFile(filepath.Join(d.cfg.InputDir, filepath.FromSlash(rel)))
	if err != nil {
		st.Status = StatusFailed
		st.Errors = []ErrorRecord{{Code: "E-IO", Message: err.Error()}}
		return st, nil
	}
	art, key, cached, err := d.translate(rel, string(src), tcfg)
	st.Key, st.Cached = key, cached
	var fail *transpile.Failure
	switch {
	case errors.As(err, &fail):
		st.Status = StatusParseFail
		for _, diag := range fail.Diagnostics {
			st.Errors = append(st.Errors, ErrorRecord{Code: diag.Code, Line: diag.Span.Start.Line, Message: diag.Message})
		}
		return st, nil
	case err != nil:
		return st, err
	}
	st.Severity = string(art.Severity)
	st.Deps = art.Deps
	st.code = art.Code

	if !d.cfg.DryRun && d.cfg.OutputDir != "" {
		if err := writeOutput(outputPath(d.cfg.OutputDir, rel), art.Code); err != nil {
			d.log.Warn("%s: %v", rel, err)
		}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return st, err
	}
	res, err := d.deps.Validator.Validate(ctx, toolchain.ValidationInput{
		Name:     rel,
		Code:     art.Code,
		Manifest: art.Manifest,
		Deps:     art.Deps,
	})
	d.sem.Release(1)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return st, ctxErr
	}
	if err != nil {
		st.Status = StatusFailed
		st.Errors = []ErrorRecord{{Code: toolchain.CodeUnknown, Message: err.Error()}}
		return st, nil
	}
	switch {
	case res.OK:
		st.Status = StatusSuccess
	case res.TimedOut:
		st.Status = StatusTimeout
	default:
		st.Status = StatusFailed
	}
	for _, diag := range toolchain.Errors(res.Diagnostics) {
		st.Errors = append(st.Errors, ErrorRecord{Code: diag.Code, Line: diag.Line, Message: diag.Message})
	}
	if !res.OK && len(st.Errors) == 0 {
		st.Errors = []ErrorRecord{{Code: toolchain.CodeUnknown, Message: "validator rejected the file"}}
	}
	return st, nil
}

// translate is cache first. A corrupt entry is dropped and recomputed; any
// other cache error aborts the run.
func (d *driver) translate(rel, src string, tcfg config.Translate) (*transpile.Artifact, cache.Key, bool, error) {
	cfg := transpile.Config{Translate: tcfg}
	compute := func() (*transpile.Artifact, error) { return transpile.Translate(rel, src, cfg) }
	if d.deps.Cache == nil {
		a, err := compute()
		return a, "", false, err
	}
	key := cache.KeyForFile(rel, src, tcfg)
	a, hit, err := d.deps.Cache.GetOrCompute(key, compute)
	var fail *transpile.Failure
	if err == nil || errors.As(err, &fail) {
		return a, key, hit, err
	}
	if errors.Is(err, perrors.ErrCacheCorrupt) {
		d.log.Warn("%s: dropping corrupt cache entry: %v", rel, err)
		if ierr := d.deps.Cache.Invalidate(key); ierr != nil {
			return nil, key, false, ierr
		}
		a, err := compute()
		return a, key, false, err
	}
	return nil, key, false, fmt.Errorf("cache: %w", err)
}

func writeOutput(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perrors.IOFailure("mkdir", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(code), 0o644); err != nil {
		return perrors.IOFailure("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perrors.IOFailure("rename", path, err)
	}
	return nil
}

// suggest asks the oracle about every cluster.
func (d *driver) suggest(clusters []*Cluster) {
	if d.deps.Oracle == nil {
		return
	}
	for _, c := range clusters {
		c.Suggestions = d.deps.Oracle.Suggest(c.Code, c.Sample.Message, d.cfg.TopK)
	}
}

// verify marks fixes from the previous iteration whose cluster shrank
// and teaches them to the learner.
func (d *driver) verify(fixes []AppliedFix, iter int, clusters []*Cluster) {
	size := make(map[string]int, len(clusters))
	for _, c := range clusters {
		size[c.Key] = c.Count
	}
	for i := range fixes {
		f := &fixes[i]
		if f.Verified || f.Iteration != iter-1 {
			continue
		}
		if size[f.ClusterKey] >= f.ClusterSize {
			d.log.Info("fix %s did not shrink %s", f.Fix.Key(), f.ErrorCode)
			continue
		}
		f.Verified = true
		if d.deps.Learner != nil {
			if err := d.deps.Learner.Record(f.ErrorCode, f.Category, f.Message, f.Fix); err != nil {
				d.log.Warn("learner: %v", err)
			}
		}
	}
}

// applyFixes applies the top suggestion of each cluster when it is
// automatic, confident enough and new. It returns the number applied.
func (d *driver) applyFixes(ctx context.Context, iter int, cp *Checkpoint, clusters []*Cluster, tcfg *config.Translate) int {
	seen := make(map[string]bool, len(cp.FixesApplied))
	for _, f := range cp.FixesApplied {
		seen[f.Fix.Key()] = true
	}
	code := make(map[string]string, len(cp.Files))
	keys := make(map[string]cache.Key, len(cp.Files))
	for _, f := range cp.Files {
		code[f.Path] = f.code
		keys[f.Path] = f.Key
	}
	applied := 0
	for _, c := range clusters {
		if ctx.Err() != nil {
			break
		}
		if len(c.Suggestions) == 0 {
			continue
		}
		top := c.Suggestions[0]
		if !top.Fix.Automatic() || top.Confidence < d.cfg.FixConfidence {
			continue
		}
		for _, occ := range c.Occurrences {
			s, ok := top.Resolve(placeholders(code[occ.File], occ))
			if !ok || seen[s.Fix.Key()] {
				continue
			}
			if d.cfg.DryRun {
				d.log.Info("dry run: would apply %s", s.Fix.Key())
				seen[s.Fix.Key()] = true
				continue
			}
			if err := apply(tcfg, s.Fix); err != nil {
				d.log.Warn("fix %s: %v", s.Fix.Key(), err)
				continue
			}
			seen[s.Fix.Key()] = true
			fix := AppliedFix{
				Iteration:    iter,
				ErrorCode:    c.Code,
				Description:  s.Template,
				FileModified: c.Files,
				Fix:          s.Fix,
				SuggestionID: s.ID,
				Confidence:   s.Confidence,
				ClusterKey:   c.Key,
				ClusterSize:  c.Count,
				Category:     s.Category,
				Message:      c.Sample.Message,
			}
			cp.FixesApplied = append(cp.FixesApplied, fix)
			applied++
			d.disp.Handle(Event{Kind: EventFix, Time: time.Now(), Iteration: iter, Fix: &fix})
			d.invalidate(c.Files, keys)
			// toggles and overrides are global; one per cluster is enough
			if s.Fix.Kind != oracle.FixForceClone {
				break
			}
		}
	}
	return applied
}

// invalidate drops the cache entries of files touched by a fix. Their
// keys change with the config anyway; this frees the stale rows.
func (d *driver) invalidate(files []string, keys map[string]cache.Key) {
	if d.deps.Cache == nil {
		return
	}
	var ks []cache.Key
	for _, f := range files {
		if k := keys[f]; k != "" {
			ks = append(ks, k)
		}
	}
	if err := d.deps.Cache.Invalidate(ks...); err != nil {
		d.log.Warn("invalidate: %v", err)
	}
}

// WriteReport prints a human summary of r.
func WriteReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "compile rate %.1f%% (target %.1f%%) after %d iterations\n", r.Rate, r.Target, r.Iterations)
	fmt.Fprintf(w, "%d files, %d failing, %d fixes applied\n", len(r.Files), r.Failed(), len(r.Fixes))
	for _, c := range r.Clusters {
		fmt.Fprintf(w, "  [%s] x%d %s\n", c.Code, c.Count, c.Sample.Message)
		for _, s := range c.Suggestions {
			fmt.Fprintf(w, "      %.2f %s (%s)\n", s.Confidence, s.Template, s.Fix.Kind)
		}
	}
}
