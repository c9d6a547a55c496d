package cache

import (
	"sort"
	"time"

	"github.com/pyrite-lang/pyrite/internal/config"
)

// Policy bounds the cache. Zero MaxAge or MaxSize disables that bound.
// At least MinEntries entries always survive.
type Policy struct {
	MaxAge     time.Duration
	MaxSize    int64
	MinEntries int
	DryRun     bool
}

// PolicyFrom builds a GC policy from configuration.
func PolicyFrom(cfg config.Cache, dryRun bool) Policy {
	return Policy{MaxAge: cfg.MaxAge, MaxSize: cfg.MaxSize, MinEntries: cfg.MinEntries, DryRun: dryRun}
}

// GcReport lists what a GC pass removed, or would remove on a dry run.
type GcReport struct {
	DryRun bool `json:"dry_run"`
	// Candidates are evicted keys, least recently used first.
	Candidates  []Key `json:"candidates"`
	FreedBytes  int64 `json:"freed_bytes"`
	OrphanBlobs int   `json:"orphan_blobs"`
	Remaining   int   `json:"remaining"`
}

// GC evicts entries by age, then by total size, always in least recently
// used order and never below MinEntries. Blobs no longer referenced by
// any entry are removed afterwards.
func (c *Cache) GC(p Policy) (GcReport, error) {
	rep := GcReport{DryRun: p.DryRun}
	// blobs written after this point may belong to a concurrent Store
	started := time.Now()
	entries, err := c.meta.All()
	if err != nil {
		return rep, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		return a.Key < b.Key
	})

	budget := len(entries) - max(p.MinEntries, 0)
	evicted := make(map[Key]bool)
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	evict := func(e *Entry) {
		evicted[e.Key] = true
		rep.Candidates = append(rep.Candidates, e.Key)
		rep.FreedBytes += e.Size
		total -= e.Size
		budget--
	}

	if p.MaxAge > 0 {
		cutoff := c.now().UTC().Add(-p.MaxAge)
		for _, e := range entries {
			if budget <= 0 {
				break
			}
			if e.LastAccessed.Before(cutoff) {
				evict(e)
			}
		}
	}
	if p.MaxSize > 0 {
		for _, e := range entries {
			if budget <= 0 || total <= p.MaxSize {
				break
			}
			if !evicted[e.Key] {
				evict(e)
			}
		}
	}
	rep.Remaining = len(entries) - len(rep.Candidates)

	live := make(map[string]bool)
	for _, e := range entries {
		if evicted[e.Key] {
			continue
		}
		live[e.CodeBlob] = true
		if e.ManifestBlob != "" {
			live[e.ManifestBlob] = true
		}
	}
	var orphans []string
	err = c.blobs.Walk(func(ref string, _ int64, mod time.Time) error {
		if !live[ref] && !mod.After(started) {
			orphans = append(orphans, ref)
		}
		return nil
	})
	if err != nil {
		return rep, err
	}
	rep.OrphanBlobs = len(orphans)
	if p.DryRun {
		return rep, nil
	}

	if len(rep.Candidates) > 0 {
		if err := c.Invalidate(rep.Candidates...); err != nil {
			return rep, err
		}
		c.mu.Lock()
		c.evictions += int64(len(rep.Candidates))
		c.mu.Unlock()
	}
	for _, ref := range orphans {
		if err := c.blobs.Remove(ref); err != nil {
			return rep, err
		}
	}
	return rep, c.flush()
}
