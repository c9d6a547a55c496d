// Package cache is the content-addressed translation cache.
//
// Emitted code and manifests live in a blob store keyed by their sha256;
// metadata rows live in a bbolt database keyed by the translation key.
// Store writes blobs before the row, so a row never references a blob
// that is not on disk.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/singleflight"

	"github.com/pyrite-lang/pyrite/internal/config"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

// Options tune Open beyond the configuration file.
type Options struct {
	// LockTimeout bounds the wait for another process holding the
	// database. Zero means one second.
	LockTimeout time.Duration
	// MemoryEntries sizes the in-process LRU front.
	MemoryEntries int
	// Version is the transpiler version entries must match; defaults to
	// transpile.Version.
	Version string
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg     config.Cache
	dir     string
	blobs   *BlobStore
	meta    *MetaStore
	mem     *memoryCache
	sf      singleflight.Group
	version *semver.Version
	now     func() time.Time

	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64
}

// Stats summarizes the cache.
type Stats struct {
	Entries   int     `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	DiskBytes int64   `json:"disk_bytes"`
	HitRate   float64 `json:"hit_rate"`
}

// Open opens the cache directory described by cfg.
func Open(cfg config.Cache, opts Options) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, perrors.InvalidConfig("cache.dir", "must be set")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}
	if opts.Version == "" {
		opts.Version = transpile.Version
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v, err := semver.NewVersion(opts.Version)
	if err != nil {
		return nil, perrors.VersionMismatch("transpiler", opts.Version, "a semantic version")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, perrors.IOFailure("mkdir", cfg.Dir, err)
	}
	blobs, err := NewBlobStore(filepath.Join(cfg.Dir, "blobs"))
	if err != nil {
		return nil, err
	}
	meta, err := OpenMetaStore(filepath.Join(cfg.Dir, "meta.db"), opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:     cfg,
		dir:     cfg.Dir,
		blobs:   blobs,
		meta:    meta,
		mem:     newMemoryCache(opts.MemoryEntries),
		version: v,
		now:     opts.Now,
	}, nil
}

// Dir is the cache root.
func (c *Cache) Dir() string { return c.dir }

// Close flushes counters and closes the database.
func (c *Cache) Close() error {
	err := c.flush()
	return errors.Join(err, c.meta.Close())
}

func (c *Cache) flush() error {
	c.mu.Lock()
	h, m, e := c.hits, c.misses, c.evictions
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.mu.Unlock()
	return c.meta.AddCounters(h, m, e)
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// compatible reports whether an entry written by version tag may be
// served by this transpiler.
func (c *Cache) compatible(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	return v.Equal(c.version)
}

// Lookup returns the metadata row for key and refreshes its access time.
// A row written by another transpiler version is deleted and reported as
// a miss.
func (c *Cache) Lookup(key Key) (*Entry, bool, error) {
	e, ok, err := c.meta.Touch(key, c.now().UTC())
	if err != nil {
		return nil, false, err
	}
	if ok && !c.compatible(e.Version) {
		if err := c.meta.Delete(key); err != nil {
			return nil, false, err
		}
		c.mem.invalidate(key)
		ok = false
	}
	c.count(ok)
	if !ok {
		return nil, false, nil
	}
	return e, true, nil
}

// LoadCode reads the emitted code of an entry.
func (c *Cache) LoadCode(e *Entry) (string, error) {
	b, err := c.blobs.Get(e.CodeBlob)
	return string(b), err
}

// LoadManifest reads the Cargo manifest of an entry.
func (c *Cache) LoadManifest(e *Entry) (string, error) {
	if e.ManifestBlob == "" {
		return "", nil
	}
	b, err := c.blobs.Get(e.ManifestBlob)
	return string(b), err
}

// Load returns the cached artifact for key.
func (c *Cache) Load(key Key) (*transpile.Artifact, bool, error) {
	if a, ok := c.mem.get(key); ok {
		c.count(true)
		return a, true, nil
	}
	e, ok, err := c.Lookup(key)
	if err != nil || !ok {
		return nil, false, err
	}
	code, err := c.LoadCode(e)
	if err != nil {
		return nil, false, err
	}
	manifest, err := c.LoadManifest(e)
	if err != nil {
		return nil, false, err
	}
	a := e.artifact(code, manifest)
	c.mem.put(key, a)
	return a, true, nil
}

func (e *Entry) artifact(code, manifest string) *transpile.Artifact {
	m := e.Metrics
	m.Duration = e.Duration
	return &transpile.Artifact{
		Filename:    e.Filename,
		Code:        code,
		Manifest:    manifest,
		Deps:        e.Deps,
		Diagnostics: e.Diagnostics,
		Severity:    e.Status,
		Metrics:     m,
		Version:     e.Version,
	}
}

// Store records an artifact under key.
func (c *Cache) Store(key Key, a *transpile.Artifact) error {
	if a == nil {
		return fmt.Errorf("cache: store %s: nil artifact", key)
	}
	codeRef, err := c.blobs.Put([]byte(a.Code))
	if err != nil {
		return err
	}
	var manRef string
	if a.Manifest != "" {
		if manRef, err = c.blobs.Put([]byte(a.Manifest)); err != nil {
			return err
		}
	}
	now := c.now().UTC()
	version := a.Version
	if version == "" {
		version = c.version.String()
	}
	e := &Entry{
		Key:          key,
		Filename:     a.Filename,
		Status:       a.Severity,
		Deps:         a.Deps,
		Diagnostics:  a.Diagnostics,
		Metrics:      a.Metrics,
		CreatedAt:    now,
		LastAccessed: now,
		Size:         int64(len(a.Code) + len(a.Manifest)),
		CodeBlob:     codeRef,
		ManifestBlob: manRef,
		Duration:     a.Metrics.Duration,
		Version:      version,
	}
	if err := c.meta.Put(e); err != nil {
		return err
	}
	c.mem.put(key, a)
	return nil
}

// GetOrCompute returns the cached artifact for key or runs compute and
// stores its result. Concurrent callers with the same key share one
// compute. The boolean reports a cache hit.
func (c *Cache) GetOrCompute(key Key, compute func() (*transpile.Artifact, error)) (*transpile.Artifact, bool, error) {
	if a, ok, err := c.Load(key); err != nil || ok {
		return a, ok, err
	}
	v, err, _ := c.sf.Do(string(key), func() (interface{}, error) {
		if a, ok := c.mem.get(key); ok {
			return a, nil
		}
		a, err := compute()
		if err != nil {
			return nil, err
		}
		if err := c.Store(key, a); err != nil {
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*transpile.Artifact), false, nil
}

// Invalidate removes key. Its blobs stay until the next GC, since other
// entries may share them.
func (c *Cache) Invalidate(keys ...Key) error {
	for _, k := range keys {
		c.mem.invalidate(k)
	}
	return c.meta.Delete(keys...)
}

// Stats reports persisted and in-process counters.
func (c *Cache) Stats() (Stats, error) {
	hits, misses, evictions, err := c.meta.Counters()
	if err != nil {
		return Stats{}, err
	}
	entries, err := c.meta.All()
	if err != nil {
		return Stats{}, err
	}
	c.mu.Lock()
	s := Stats{
		Entries:   len(entries),
		Hits:      hits + c.hits,
		Misses:    misses + c.misses,
		Evictions: evictions + c.evictions,
	}
	c.mu.Unlock()
	for _, e := range entries {
		s.DiskBytes += e.Size
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s, nil
}

// Clear removes every entry and blob and resets the counters.
func (c *Cache) Clear() error {
	c.mem.clear()
	c.mu.Lock()
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.mu.Unlock()
	if err := c.meta.Clear(); err != nil {
		return err
	}
	return c.blobs.Clear()
}
