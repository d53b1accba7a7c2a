package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketArtifacts = []byte("artifacts")
	bucketByAge     = []byte("by_age")
)

// ErrIndexLocked is returned when another process holds the index open.
// bbolt takes an exclusive file lock, so a running server blocks other
// commands that share its artifact directory.
var ErrIndexLocked = errors.New("cache: index is locked by another process")

// lockTimeout bounds how long Open waits for the index file lock
var lockTimeout = time.Second

// DiskIndex persists artifact creation times in bbolt. The by_age bucket is
// keyed by big-endian creation nanos followed by the artifact key, so a cursor
// walks artifacts oldest first.
type DiskIndex struct {
	db *bbolt.DB
}

var _ Index = (*DiskIndex)(nil)

// OpenDiskIndex opens or creates the index database at path.
// The parent directory is created if it does not exist.
func OpenDiskIndex(path string) (*DiskIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cache: create index directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrIndexLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: open index: %w", err)
	}

	if err := db.Update(createBuckets); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create buckets: %w", err)
	}

	return &DiskIndex{db: db}, nil
}

func createBuckets(tx *bbolt.Tx) error {
	for _, name := range [][]byte{bucketArtifacts, bucketByAge} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %q: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying database
func (d *DiskIndex) Close() error { return d.db.Close() }

func encodeTime(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func decodeTime(b []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(b)))
}

func ageKey(created []byte, key string) []byte {
	return append(append(make([]byte, 0, len(created)+len(key)), created...), key...)
}

// Get returns the creation time of key
func (d *DiskIndex) Get(key string) (time.Time, bool) {
	var created time.Time
	var found bool
	_ = d.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketArtifacts).Get([]byte(key)); len(v) == 8 {
			created = decodeTime(v)
			found = true
		}
		return nil
	})
	return created, found
}

// Put records key as created at the given time, replacing any earlier record
func (d *DiskIndex) Put(key string, created time.Time) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		artifacts := tx.Bucket(bucketArtifacts)
		byAge := tx.Bucket(bucketByAge)

		if old := artifacts.Get([]byte(key)); old != nil {
			if err := byAge.Delete(ageKey(old, key)); err != nil {
				return fmt.Errorf("cache: drop stale age entry: %w", err)
			}
		}

		ts := encodeTime(created)
		if err := artifacts.Put([]byte(key), ts); err != nil {
			return fmt.Errorf("cache: put artifact: %w", err)
		}
		if err := byAge.Put(ageKey(ts, key), []byte(key)); err != nil {
			return fmt.Errorf("cache: put age entry: %w", err)
		}
		return nil
	})
}

// Delete removes key from the index
func (d *DiskIndex) Delete(key string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return deleteKey(tx, key)
	})
}

func deleteKey(tx *bbolt.Tx, key string) error {
	artifacts := tx.Bucket(bucketArtifacts)
	old := artifacts.Get([]byte(key))
	if old == nil {
		return nil
	}
	if err := tx.Bucket(bucketByAge).Delete(ageKey(old, key)); err != nil {
		return err
	}
	return artifacts.Delete([]byte(key))
}

// Len returns the number of indexed artifacts
func (d *DiskIndex) Len() (int, error) {
	var n int
	err := d.db.View(func(tx *bbolt.Tx) error {
		n = countKeys(tx.Bucket(bucketArtifacts))
		return nil
	})
	return n, err
}

func countKeys(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// Evict removes every artifact created before cutoff, then the oldest
// artifacts until at most keep remain. A non-positive keep disables the
// count bound. Keys in protected are never removed, even if that leaves more
// than keep artifacts. Returns the removed keys.
func (d *DiskIndex) Evict(cutoff time.Time, keep int, protected map[string]bool) ([]string, error) {
	var removed []string
	err := d.db.Update(func(tx *bbolt.Tx) error {
		total := countKeys(tx.Bucket(bucketArtifacts))
		limit := encodeTime(cutoff)

		var victims []string
		c := tx.Bucket(bucketByAge).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if protected[string(v)] {
				continue
			}
			expired := !cutoff.IsZero() && bytes.Compare(k[:8], limit) < 0
			over := keep > 0 && total-len(victims) > keep
			if !expired && !over {
				break
			}
			victims = append(victims, string(v))
		}

		for _, key := range victims {
			if err := deleteKey(tx, key); err != nil {
				return fmt.Errorf("cache: evict %s: %w", key, err)
			}
		}
		removed = victims
		return nil
	})
	return removed, err
}

// Clear removes every record
func (d *DiskIndex) Clear() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketArtifacts, bucketByAge} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("cache: drop bucket %q: %w", name, err)
			}
		}
		return createBuckets(tx)
	})
}
