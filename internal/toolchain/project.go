package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// ProjectWriter lays out a minimal Cargo binary project.
type ProjectWriter struct {
	Dir string
}

var packageName = regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`)

// PackageName reads the package name from a manifest.
func PackageName(manifest string) string {
	if m := packageName.FindStringSubmatch(manifest); m != nil {
		return m[1]
	}
	return ""
}

// Write creates Cargo.toml and src/main.rs. An empty manifest gets a
// dependency-free one named after name.
func (w ProjectWriter) Write(name, code, manifest string) error {
	if manifest == "" {
		manifest = fmt.Sprintf("[package]\nname = %q\nversion = \"0.1.0\"\nedition = \"2021\"\n\n[[bin]]\nname = %q\npath = \"src/main.rs\"\n", name, name)
	}
	src := filepath.Join(w.Dir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		return perrors.IOFailure("mkdir", src, err)
	}
	files := map[string]string{
		filepath.Join(w.Dir, "Cargo.toml"): manifest,
		filepath.Join(src, "main.rs"):      code,
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return perrors.IOFailure("write", path, err)
		}
	}
	return nil
}

// BuildResult describes a release build.
type BuildResult struct {
	Binary      string
	Diagnostics []Diagnostic
	Output      Output
}

// Compile builds the project in dir with cargo build --release and copies
// the binary to out when out is set.
func Compile(ctx context.Context, cargo, dir, out string) (*BuildResult, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		return nil, perrors.IOFailure("read", filepath.Join(dir, "Cargo.toml"), err)
	}
	name := PackageName(string(manifest))
	if name == "" {
		return nil, fmt.Errorf("toolchain: %s/Cargo.toml has no package name", dir)
	}
	spec := CommandSpec{Cmd: cargo, Args: []string{"build", "--release", "--message-format=short"}, WorkDir: dir}
	o, err := Run(ctx, spec, 0)
	if err != nil {
		return nil, err
	}
	res := &BuildResult{Output: o}
	if o.ExitCode != 0 {
		res.Diagnostics = failureDiagnostics(o)
		return res, nil
	}
	bin := filepath.Join(dir, "target", "release", name)
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	res.Binary = bin
	if out != "" {
		if err := copyExecutable(bin, out); err != nil {
			return nil, err
		}
		res.Binary = out
	}
	return res, nil
}

func copyExecutable(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return perrors.IOFailure("open", from, err)
	}
	defer in.Close()
	tmp := to + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return perrors.IOFailure("create", tmp, err)
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		os.Remove(tmp)
		return perrors.IOFailure("copy", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return perrors.IOFailure("close", tmp, err)
	}
	if err := os.Rename(tmp, to); err != nil {
		return perrors.IOFailure("rename", to, err)
	}
	return nil
}
