package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// BlobStore keeps content-addressed files under blobs/sha256/ab/abcdef...
// Writes go to a temporary file and are renamed into place, so a reader
// never sees a partial blob and concurrent writers of the same content
// are harmless.
type BlobStore struct {
	root string
}

// NewBlobStore ensures the blob root exists.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "sha256"), 0o755); err != nil {
		return nil, perrors.IOFailure("mkdir", root, err)
	}
	return &BlobStore{root: root}, nil
}

func (b *BlobStore) path(ref string) string {
	return filepath.Join(b.root, "sha256", ref[:2], ref)
}

func validRef(ref string) bool {
	if len(ref) != 64 {
		return false
	}
	for _, c := range ref {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Put stores data and returns its reference.
func (b *BlobStore) Put(data []byte) (string, error) {
	ref := HashBytes(data)
	final := b.path(ref)
	if _, err := os.Stat(final); err == nil {
		// refresh so a concurrent GC treats the blob as new
		now := time.Now()
		os.Chtimes(final, now, now)
		return ref, nil
	}
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", perrors.IOFailure("mkdir", dir, err)
	}
	f, err := os.CreateTemp(dir, ref+".*.tmp")
	if err != nil {
		return "", perrors.IOFailure("create", dir, err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp)
		return "", perrors.IOFailure("write", tmp, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", perrors.IOFailure("rename", final, err)
	}
	return ref, nil
}

// Get reads a blob and verifies its digest.
func (b *BlobStore) Get(ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, perrors.CacheCorrupt("bad blob reference", fmt.Errorf("%q", ref))
	}
	data, err := os.ReadFile(b.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, perrors.CacheCorrupt("missing blob "+ref, err)
		}
		return nil, perrors.IOFailure("read", b.path(ref), err)
	}
	if HashBytes(data) != ref {
		return nil, perrors.CacheCorrupt("blob digest mismatch", fmt.Errorf("%s", ref))
	}
	return data, nil
}

// Remove deletes a blob; removing a missing blob is not an error.
func (b *BlobStore) Remove(ref string) error {
	if !validRef(ref) {
		return nil
	}
	if err := os.Remove(b.path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return perrors.IOFailure("remove", b.path(ref), err)
	}
	return nil
}

// Walk calls fn for every stored blob with its size and modification
// time. Stray temporary files are skipped.
func (b *BlobStore) Walk(fn func(ref string, size int64, mod time.Time) error) error {
	return filepath.WalkDir(filepath.Join(b.root, "sha256"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") || !validRef(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(d.Name(), info.Size(), info.ModTime())
	})
}

// Clear removes every blob.
func (b *BlobStore) Clear() error {
	dir := filepath.Join(b.root, "sha256")
	if err := os.RemoveAll(dir); err != nil {
		return perrors.IOFailure("remove", dir, err)
	}
	return os.MkdirAll(dir, 0o755)
}
