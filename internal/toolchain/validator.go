package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pyrite-lang/pyrite/internal/config"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// ValidationInput is one emitted translation.
type ValidationInput struct {
	// Name identifies the source file; it names the temporary crate.
	Name     string
	Code     string
	Manifest string
	Deps     []string
}

// ValidationResult reports whether the toolchain accepted the code.
type ValidationResult struct {
	OK          bool          `json:"ok"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	TimedOut    bool          `json:"timed_out,omitempty"`
	Took        time.Duration `json:"took"`
}

// Validator checks emitted code. Implementations must be safe for
// concurrent use.
type Validator interface {
	Validate(ctx context.Context, in ValidationInput) (ValidationResult, error)
}

func resultOf(out Output) ValidationResult {
	res := ValidationResult{OK: !out.TimedOut && out.ExitCode == 0, TimedOut: out.TimedOut, Took: out.Took}
	if res.OK {
		res.Diagnostics = ParseDiagnostics(out.Stderr)
	} else {
		res.Diagnostics = failureDiagnostics(out)
	}
	return res
}

// RustcValidator type-checks a single file with rustc. It cannot resolve
// external crates.
type RustcValidator struct {
	Rustc   string
	Edition string
	Timeout time.Duration
}

// Command returns the rustc invocation for src, writing metadata to outDir.
func (v RustcValidator) Command(src, outDir string) CommandSpec {
	edition := v.Edition
	if edition == "" {
		edition = "2021"
	}
	return CommandSpec{
		Cmd: v.Rustc,
		Args: []string{
			"--edition=" + edition,
			"--crate-type=lib",
			"--emit=metadata",
			"--error-format=short",
			"--out-dir", outDir,
			src,
		},
	}
}

// Validate writes the code to a temporary directory and runs rustc.
func (v RustcValidator) Validate(ctx context.Context, in ValidationInput) (ValidationResult, error) {
	dir, err := os.MkdirTemp("", "pyrite-rustc-*")
	if err != nil {
		return ValidationResult{}, perrors.IOFailure("mkdir", os.TempDir(), err)
	}
	defer os.RemoveAll(dir)
	src := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(src, []byte(in.Code), 0o644); err != nil {
		return ValidationResult{}, perrors.IOFailure("write", src, err)
	}
	out, err := Run(ctx, v.Command(src, dir), v.Timeout)
	if err != nil {
		return ValidationResult{}, err
	}
	return resultOf(out), nil
}

// CargoValidator checks a generated Cargo project, resolving crates.
type CargoValidator struct {
	Cargo   string
	Timeout time.Duration
	// TargetDir is shared across checks so dependencies compile once.
	TargetDir string
}

// Command returns the cargo check invocation for a project directory.
func (v CargoValidator) Command(projectDir string) CommandSpec {
	spec := CommandSpec{
		Cmd:     v.Cargo,
		Args:    []string{"check", "--quiet", "--message-format=short"},
		WorkDir: projectDir,
	}
	if v.TargetDir != "" {
		spec.Env = map[string]string{"CARGO_TARGET_DIR": v.TargetDir}
	}
	return spec
}

// Validate writes a throwaway project and runs cargo check.
func (v CargoValidator) Validate(ctx context.Context, in ValidationInput) (ValidationResult, error) {
	dir, err := os.MkdirTemp("", "pyrite-cargo-*")
	if err != nil {
		return ValidationResult{}, perrors.IOFailure("mkdir", os.TempDir(), err)
	}
	defer os.RemoveAll(dir)
	if err := (ProjectWriter{Dir: dir}).Write(in.Name, in.Code, in.Manifest); err != nil {
		return ValidationResult{}, err
	}
	out, err := Run(ctx, v.Command(dir), v.Timeout)
	if err != nil {
		return ValidationResult{}, err
	}
	return resultOf(out), nil
}

// Auto uses rustc for crate-free code and cargo otherwise.
type Auto struct {
	Rustc RustcValidator
	Cargo CargoValidator
}

// New builds the default validator from configuration.
func New(cfg config.Validator, timeout time.Duration) *Auto {
	return &Auto{
		Rustc: RustcValidator{Rustc: cfg.Rustc, Edition: cfg.Edition, Timeout: timeout},
		Cargo: CargoValidator{Cargo: cfg.Cargo, Timeout: timeout},
	}
}

// Validate dispatches on the dependency set.
func (a *Auto) Validate(ctx context.Context, in ValidationInput) (ValidationResult, error) {
	if len(in.Deps) > 0 && in.Manifest != "" {
		return a.Cargo.Validate(ctx, in)
	}
	return a.Rustc.Validate(ctx, in)
}
