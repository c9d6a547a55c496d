package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRunCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.py")
	other := filepath.Join(dir, "other.py")
	for _, p := range []string{src, other} {
		if err := os.WriteFile(p, []byte("x = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	w, err := New(src)
	if err != nil {
		t.Skip("fsnotify unavailable:", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batches := make(chan []string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 100*time.Millisecond, func(b []string) { batches <- b }) }()

	// give the watcher a moment to start reading events
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(src, []byte("x = 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(other, []byte("y = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-batches:
		want, _ := filepath.Abs(src)
		if len(b) != 1 || b[0] != want {
			t.Fatalf("batch = %v", b)
		}
	case <-ctx.Done():
		t.Fatal("no change delivered")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope", "x.py")); err == nil {
		t.Fatal("watched a file in a missing directory")
	}
}

func TestOpOf(t *testing.T) {
	if got := opOf(fsnotify.Create | fsnotify.Write); got != OpCreate|OpWrite {
		t.Fatalf("op = %b", got)
	}
	if opOf(fsnotify.Chmod) != OpChmod {
		t.Fatal("chmod")
	}
}
