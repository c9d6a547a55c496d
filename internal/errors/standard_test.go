package errors

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestWrapAndUnwrap(t *testing.T) {
	err := IOFailure("read", "/tmp/x.py", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist")
	}
	if CategoryOf(err) != CategoryIO {
		t.Fatalf("category = %q", CategoryOf(err))
	}
	if !strings.Contains(err.Error(), "[IO:IO_FAILURE] read /tmp/x.py") {
		t.Fatalf("message = %q", err.Error())
	}
	if Wrap(nil, CategoryIO, "X", "y") != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
}

func TestSentinels(t *testing.T) {
	if !errors.Is(VersionMismatch("cache", "1.0.0", "^2"), ErrVersionMismatch) {
		t.Fatalf("version mismatch sentinel lost")
	}
	if !errors.Is(CacheCorrupt("meta.db", errors.New("bad page")), ErrCacheCorrupt) {
		t.Fatalf("cache corrupt sentinel lost")
	}
	if !errors.Is(Locked("ckpt.lock"), ErrLocked) {
		t.Fatalf("locked sentinel lost")
	}
	if CategoryOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no category")
	}
}
