package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	perrors "github.com/pyrite-lang/pyrite/internal/errors"
	"github.com/pyrite-lang/pyrite/internal/transpile"
)

var (
	bucketEntries = []byte("entries")
	bucketStats   = []byte("stats")
)

// Persisted counter names in the stats bucket.
const (
	statHits      = "hits"
	statMisses    = "misses"
	statEvictions = "evictions"
)

// Entry is one metadata row. Blobs are referenced by digest.
type Entry struct {
	Key          Key                `json:"key_hash"`
	Filename     string             `json:"filename,omitempty"`
	Status       transpile.Severity `json:"status"`
	Deps         []string           `json:"dep_set"`
	Diagnostics  diagnostic.List    `json:"errors,omitempty"`
	Metrics      transpile.Metrics  `json:"metrics"`
	CreatedAt    time.Time          `json:"created_at"`
	LastAccessed time.Time          `json:"last_accessed_at"`
	Size         int64              `json:"size"`
	CodeBlob     string             `json:"code_blob"`
	ManifestBlob string             `json:"manifest_blob"`
	Duration     time.Duration      `json:"duration"`
	Version      string             `json:"version"`
}

// MetaStore is the bbolt-backed metadata index. bbolt allows one writer
// at a time and any number of readers.
type MetaStore struct {
	db *bolt.DB
}

// OpenMetaStore opens or creates the database at path. A database held
// by another process for longer than timeout reports ErrLocked.
func OpenMetaStore(path string, timeout time.Duration) (*MetaStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, perrors.Locked(path)
		}
		return nil, perrors.CacheCorrupt("open "+path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketStats)
		return err
	})
	if err != nil {
		db.Close()
		return nil, perrors.CacheCorrupt("init "+path, err)
	}
	return &MetaStore{db: db}, nil
}

// Close releases the database.
func (m *MetaStore) Close() error { return m.db.Close() }

func decodeEntry(k, v []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, perrors.CacheCorrupt(fmt.Sprintf("entry %s", k), err)
	}
	return &e, nil
}

// Get returns the row for key.
func (m *MetaStore) Get(key Key) (*Entry, bool, error) {
	var e *Entry
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get([]byte(key))
		if v == nil {
			return nil
		}
		var err error
		e, err = decodeEntry([]byte(key), v)
		return err
	})
	return e, e != nil, err
}

// Touch sets last_accessed_at and returns the updated row.
func (m *MetaStore) Touch(key Key, now time.Time) (*Entry, bool, error) {
	var e *Entry
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var err error
		if e, err = decodeEntry([]byte(key), v); err != nil {
			return err
		}
		e.LastAccessed = now
		return putEntry(b, e)
	})
	return e, e != nil, err
}

func putEntry(b *bolt.Bucket, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Put([]byte(e.Key), data)
}

// Put writes a row, replacing any previous one.
func (m *MetaStore) Put(e *Entry) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return putEntry(tx.Bucket(bucketEntries), e)
	})
}

// Delete removes rows; missing keys are ignored.
func (m *MetaStore) Delete(keys ...Key) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// All returns every row in key order.
func (m *MetaStore) All() ([]*Entry, error) {
	var out []*Entry
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Clear drops every row and resets the counters.
func (m *MetaStore) Clear() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketStats} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, berrors.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Counters returns the persisted hit, miss and eviction counts.
func (m *MetaStore) Counters() (hits, misses, evictions int64, err error) {
	err = m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		hits = readCounter(b, statHits)
		misses = readCounter(b, statMisses)
		evictions = readCounter(b, statEvictions)
		return nil
	})
	return
}

// AddCounters adds deltas to the persisted counters.
func (m *MetaStore) AddCounters(hits, misses, evictions int64) error {
	if hits == 0 && misses == 0 && evictions == 0 {
		return nil
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		for name, d := range map[string]int64{statHits: hits, statMisses: misses, statEvictions: evictions} {
			if err := writeCounter(b, name, readCounter(b, name)+d); err != nil {
				return err
			}
		}
		return nil
	})
}

func readCounter(b *bolt.Bucket, name string) int64 {
	v := b.Get([]byte(name))
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func writeCounter(b *bolt.Bucket, name string, n int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return b.Put([]byte(name), buf[:])
}
