// Package toolchain drives the downstream Rust toolchain: it validates
// emitted code with rustc or cargo, parses their diagnostics, and builds
// executables.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"time"
)

// CommandSpec describes a command to be executed by Run.
type CommandSpec struct {
	Env     map[string]string
	WorkDir string
	Cmd     string
	Args    []string
}

// Output is the outcome of one subprocess.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Took     time.Duration
}

// Run executes spec, killing its whole process group when timeout
// elapses. A timeout is reported through Output.TimedOut rather than as
// an error; cancellation of ctx is returned as ctx.Err().
func Run(ctx context.Context, spec CommandSpec, timeout time.Duration) (Output, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, spec.Cmd, spec.Args...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+spec.Env[k])
		}
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	isolate(cmd)
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String(), Took: time.Since(start)}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.TimedOut = true
		out.ExitCode = -1
		return out, nil
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, err
	}
	return out, nil
}
