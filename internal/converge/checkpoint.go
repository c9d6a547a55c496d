package converge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

const (
	// SchemaVersion is written into every checkpoint.
	SchemaVersion = "1.0.0"
	// schemaConstraint accepts checkpoints this driver can resume.
	schemaConstraint = "^1.0.0"

	checkpointFile = "checkpoint.json"
	lockFileName   = "checkpoint.lock"
)

// Checkpoint is the resumable state written after every iteration.
type Checkpoint struct {
	Schema          string       `json:"schema_version"`
	Version         string       `json:"transpiler_version"`
	InputDir        string       `json:"input_dir"`
	Iteration       int          `json:"iteration"`
	CompilationRate float64      `json:"compilation_rate"`
	TargetRate      float64      `json:"target_rate"`
	Files           []FileState  `json:"files"`
	Clusters        []*Cluster   `json:"clusters"`
	FixesApplied    []AppliedFix `json:"fixes_applied"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CheckpointPath is the checkpoint document inside dir.
func CheckpointPath(dir string) string { return filepath.Join(dir, checkpointFile) }

// LoadCheckpoint reads the checkpoint in dir. A missing file returns
// (nil, nil). A checkpoint written by an incompatible schema or another
// transpiler version fails with ErrVersionMismatch.
func LoadCheckpoint(dir string) (*Checkpoint, error) {
	path := CheckpointPath(dir)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, perrors.IOFailure("read", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	v, err := semver.NewVersion(cp.Schema)
	if err != nil {
		return nil, perrors.VersionMismatch("checkpoint schema", cp.Schema, schemaConstraint)
	}
	c, _ := semver.NewConstraint(schemaConstraint)
	if !c.Check(v) {
		return nil, perrors.VersionMismatch("checkpoint schema", cp.Schema, schemaConstraint)
	}
	if cp.Version != transpile.Version {
		return nil, perrors.VersionMismatch("checkpoint transpiler", cp.Version, transpile.Version)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (cp *Checkpoint) Save(dir string) error {
	cp.Schema = SchemaVersion
	cp.Version = transpile.Version
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.IOFailure("mkdir", dir, err)
	}
	path := CheckpointPath(dir)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return perrors.IOFailure("create", dir, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return perrors.IOFailure("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return perrors.IOFailure("sync", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return perrors.IOFailure("close", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return perrors.IOFailure("rename", path, err)
	}
	return nil
}

// Lock takes the exclusive checkpoint lock in dir without waiting. It
// fails with ErrLocked while another run holds it.
func Lock(dir string) (unlock func() error, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perrors.IOFailure("mkdir", dir, err)
	}
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, perrors.IOFailure("open", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, perrors.Locked(path)
		}
		return nil, perrors.IOFailure("lock", path, err)
	}
	return func() error {
		uerr := unlockFile(f)
		if cerr := f.Close(); uerr == nil {
			uerr = cerr
		}
		return uerr
	}, nil
}
