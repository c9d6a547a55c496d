package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/pyrite-lang/pyrite/internal/config"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openTest(t *testing.T, dir string, clk *clock, version string) *Cache {
	t.Helper()
	c, err := Open(config.Cache{Enabled: true, Dir: dir}, Options{Now: clk.now, Version: version, LockTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func artifact(code string) *transpile.Artifact {
	return &transpile.Artifact{
		Filename: "m.py",
		Code:     code,
		Manifest: "[package]\nname = \"m\"\n",
		Deps:     []string{"regex"},
		Severity: transpile.Warnings,
		Metrics:  transpile.Metrics{Functions: 2, Duration: 5 * time.Millisecond},
		Version:  transpile.Version,
	}
}

func TestKeyComponents(t *testing.T) {
	env := EnvHash(func(string) string { return "" })
	base := NewKey("print(1)", "0.4.0", []byte(`{"a":1}`), env)
	if base != NewKey("print(1)", "0.4.0", []byte(`{"a":1}`), env) {
		t.Fatalf("key not deterministic")
	}
	if len(base) != 64 {
		t.Fatalf("key length = %d", len(base))
	}
	variants := []Key{
		NewKey("print(2)", "0.4.0", []byte(`{"a":1}`), env),
		NewKey("print(1)", "0.4.1", []byte(`{"a":1}`), env),
		NewKey("print(1)", "0.4.0", []byte(`{"a":2}`), env),
		NewKey("print(1)", "0.4.0", []byte(`{"a":1}`), EnvHash(func(k string) string {
			if k == "RUSTFLAGS" {
				return "-O"
			}
			return ""
		})),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collides with base key", i)
		}
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	dir := t.TempDir()
	c := openTest(t, dir, clk, "")
	key := NewKey("x = 1", transpile.Version, nil, "")
	if _, ok, err := c.Lookup(key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	want := artifact("fn main() {}\n")
	if err := c.Store(key, want); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// a fresh handle has no in-memory front, so this reads from disk
	c = openTest(t, dir, clk, "")
	defer c.Close()
	got, ok, err := c.Load(key)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Code != want.Code || got.Manifest != want.Manifest || got.Severity != want.Severity ||
		len(got.Deps) != 1 || got.Metrics.Functions != 2 || got.Metrics.Duration != want.Metrics.Duration {
		t.Fatalf("round trip mismatch:\n%s", spew.Sdump(got))
	}
	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 || st.HitRate != 0.5 {
		t.Fatalf("stats = %+v", st)
	}
	if st.DiskBytes != int64(len(want.Code)+len(want.Manifest)) {
		t.Fatalf("disk bytes = %d", st.DiskBytes)
	}
}

func TestVersionMismatchInvalidates(t *testing.T) {
	clk := &clock{t: time.Now()}
	dir := t.TempDir()
	old := openTest(t, dir, clk, "0.3.9")
	key := Key("k")
	a := artifact("old")
	a.Version = "0.3.9"
	if err := old.Store(key, a); err != nil {
		t.Fatal(err)
	}
	old.Close()

	c := openTest(t, dir, clk, "0.4.0")
	defer c.Close()
	if _, ok, err := c.Lookup(key); err != nil || ok {
		t.Fatalf("stale entry served: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.meta.Get(key); ok {
		t.Fatalf("stale row not deleted")
	}
}

func TestGCByAgeKeepsMinEntries(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := openTest(t, t.TempDir(), clk, "")
	defer c.Close()
	for i := 0; i < 5; i++ {
		if err := c.Store(Key(fmt.Sprintf("k%d", i)), artifact(fmt.Sprintf("code %d", i))); err != nil {
			t.Fatal(err)
		}
		clk.advance(time.Hour)
	}
	// k0..k4 were accessed at hours 0..4; now is hour 5
	p := Policy{MaxAge: 150 * time.Minute, MinEntries: 4}
	dry, err := c.GC(Policy{MaxAge: p.MaxAge, MinEntries: p.MinEntries, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(dry.Candidates) != 1 || dry.Candidates[0] != "k0" {
		t.Fatalf("dry run = %s", spew.Sdump(dry))
	}
	if st, _ := c.Stats(); st.Entries != 5 {
		t.Fatalf("dry run deleted entries")
	}
	rep, err := c.GC(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Candidates) != 1 || rep.Candidates[0] != "k0" || rep.Remaining != 4 {
		t.Fatalf("gc = %s", spew.Sdump(rep))
	}
	if rep.OrphanBlobs != 1 {
		t.Fatalf("expected the evicted code blob to be orphaned, got %d", rep.OrphanBlobs)
	}
	if _, ok, _ := c.Load("k0"); ok {
		t.Fatalf("k0 survived GC")
	}
	again, err := c.GC(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Candidates) != 0 || again.OrphanBlobs != 0 {
		t.Fatalf("second pass not stable: %s", spew.Sdump(again))
	}
	if st, _ := c.Stats(); st.Evictions != 1 {
		t.Fatalf("evictions = %d", st.Evictions)
	}
}

func TestGCBySizeEvictsLeastRecentlyUsed(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := openTest(t, t.TempDir(), clk, "")
	defer c.Close()
	var size int64
	for i := 0; i < 3; i++ {
		a := artifact(fmt.Sprintf("code %d", i))
		size = int64(len(a.Code) + len(a.Manifest))
		if err := c.Store(Key(fmt.Sprintf("k%d", i)), a); err != nil {
			t.Fatal(err)
		}
		clk.advance(time.Minute)
	}
	// touching k0 makes k1 the least recently used
	if _, ok, err := c.Lookup("k0"); err != nil || !ok {
		t.Fatalf("lookup k0: %v", err)
	}
	rep, err := c.GC(Policy{MaxSize: 2 * size})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Candidates) != 1 || rep.Candidates[0] != "k1" || rep.FreedBytes != size {
		t.Fatalf("gc = %s", spew.Sdump(rep))
	}
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c := openTest(t, t.TempDir(), &clock{t: time.Now()}, "")
	defer c.Close()
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*transpile.Artifact, error) {
		calls.Add(1)
		<-release
		return artifact("shared"), nil
	}
	var wg sync.WaitGroup
	results := make([]*transpile.Artifact, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := c.GetOrCompute("same", compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
			results[i] = a
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("compute ran %d times", calls.Load())
	}
	for _, a := range results {
		if a == nil || a.Code != "shared" {
			t.Fatalf("bad result %v", a)
		}
	}
	if _, hit, _ := c.GetOrCompute("same", compute); !hit {
		t.Fatalf("expected hit after compute")
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := openTest(t, t.TempDir(), &clock{t: time.Now()}, "")
	defer c.Close()
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute("k", func() (*transpile.Artifact, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok, _ := c.Lookup("k"); ok {
		t.Fatalf("failed compute was stored")
	}
}

func TestCorruptBlobDetected(t *testing.T) {
	dir := t.TempDir()
	clk := &clock{t: time.Now()}
	c := openTest(t, dir, clk, "")
	if err := c.Store("k", artifact("pristine")); err != nil {
		t.Fatal(err)
	}
	e, _, _ := c.meta.Get("k")
	c.Close()
	if err := os.WriteFile(filepath.Join(dir, "blobs", "sha256", e.CodeBlob[:2], e.CodeBlob), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	c = openTest(t, dir, clk, "")
	defer c.Close()
	if _, _, err := c.Load("k"); !errors.Is(err, perrors.ErrCacheCorrupt) {
		t.Fatalf("expected corruption error, got %v", err)
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, &clock{t: time.Now()}, "")
	defer c.Close()
	_, err := Open(config.Cache{Dir: dir}, Options{LockTimeout: 50 * time.Millisecond})
	if !errors.Is(err, perrors.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestClear(t *testing.T) {
	c := openTest(t, t.TempDir(), &clock{t: time.Now()}, "")
	defer c.Close()
	for i := 0; i < 3; i++ {
		c.Store(Key(fmt.Sprint(i)), artifact(fmt.Sprint(i)))
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	st, _ := c.Stats()
	if st.Entries != 0 || st.Hits != 0 {
		t.Fatalf("stats after clear = %+v", st)
	}
	n := 0
	c.blobs.Walk(func(string, int64, time.Time) error { n++; return nil })
	if n != 0 {
		t.Fatalf("%d blobs left", n)
	}
}

func TestMemoryCacheEviction(t *testing.T) {
	m := newMemoryCache(2)
	m.put("a", artifact("a"))
	m.put("b", artifact("b"))
	if _, ok := m.get("a"); !ok {
		t.Fatalf("expected hit a")
	}
	m.put("c", artifact("c")) // evicts b
	if _, ok := m.get("b"); ok {
		t.Fatalf("expected eviction of b")
	}
	m.invalidate("a")
	if m.len() != 1 {
		t.Fatalf("len = %d", m.len())
	}
}
