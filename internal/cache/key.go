package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pyrite-lang/pyrite/internal/config"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

// Key identifies a translation: a hex sha256 over the source hash, the
// transpiler version, the canonical translation config and the
// environment hash.
type Key string

// EnvVars are the environment variables folded into every key.
var EnvVars = []string{"PYTHONPATH", "RUSTFLAGS", "CARGO_TARGET_DIR", config.EnvConfig}

// HashBytes returns the hex sha256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashFile computes SHA-256 for a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EnvHash hashes the values of EnvVars as returned by getenv.
func EnvHash(getenv func(string) string) string {
	h := sha256.New()
	for _, name := range EnvVars {
		io.WriteString(h, name)
		h.Write([]byte{'='})
		io.WriteString(h, getenv(name))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewKey combines the four key components. Each component is a fixed
// width digest or a NUL-terminated string, so distinct inputs cannot
// collide by concatenation.
func NewKey(source, version string, canonicalConfig []byte, envHash string) Key {
	h := sha256.New()
	io.WriteString(h, HashBytes([]byte(source)))
	io.WriteString(h, version)
	h.Write([]byte{0})
	io.WriteString(h, HashBytes(canonicalConfig))
	io.WriteString(h, envHash)
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// KeyFor is the key of source under cfg for the running transpiler and
// the current process environment.
func KeyFor(source string, cfg config.Translate) Key {
	return NewKey(source, transpile.Version, cfg.Canonical(), EnvHash(os.Getenv))
}

// KeyForFile also folds in the file's base name, which the generated
// header and manifest mention.
func KeyForFile(filename, source string, cfg config.Translate) Key {
	canon := append(cfg.Canonical(), 0)
	canon = append(canon, filepath.Base(filename)...)
	return NewKey(source, transpile.Version, canon, EnvHash(os.Getenv))
}
