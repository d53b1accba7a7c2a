package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Options configure an artifact store
type Options struct {
	Dir        string        // Directory holding the rendered PNGs
	IndexPath  string        // bbolt index file, defaults to Dir/index.db
	MaxEntries int           // Upper bound on stored artifacts, 0 for none
	TTL        time.Duration // Maximum artifact age, 0 for none
}

// Store is a bounded, content-addressed directory of rendered graphs.
// Lookups go to memory first, then to the persisted index (the layered
// arrangement of a memory cache over a disk cache). Every Commit evicts
// artifacts past the TTL and the oldest ones beyond MaxEntries, deleting
// their files, but never the keys being committed.
type Store struct {
	dir        string
	maxEntries int
	ttl        time.Duration

	memory *MemoryIndex
	disk   *DiskIndex

	mu  sync.Mutex // serializes commit and eviction
	now func() time.Time
}

// Open creates the artifact directory and opens its index
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache: artifact directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: create artifact dir: %w", err)
	}

	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(opts.Dir, "index.db")
	}
	disk, err := OpenDiskIndex(indexPath)
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:        opts.Dir,
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		memory:     NewMemoryIndex(opts.TTL, 10*time.Minute),
		disk:       disk,
		now:        time.Now,
	}, nil
}

// Close releases the index
func (s *Store) Close() error {
	return s.disk.Close()
}

// Dir returns the artifact directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the artifact for key lives (or will live)
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, FileName(key))
}

// Get returns the path of a committed, unexpired artifact whose file still
// exists.
func (s *Store) Get(key string) (string, bool) {
	created, found := s.memory.Get(key)
	if !found {
		created, found = s.disk.Get(key)
		if !found {
			return "", false
		}
	}

	if s.expired(created) {
		return "", false
	}

	path := s.Path(key)
	if _, err := os.Stat(path); err != nil {
		// File removed behind our back
		_ = s.memory.Delete(key)
		_ = s.disk.Delete(key)
		return "", false
	}

	// Promote to memory
	_ = s.memory.Put(key, created)
	return path, true
}

func (s *Store) expired(created time.Time) bool {
	return s.ttl > 0 && s.now().Sub(created) > s.ttl
}

// Commit records the files already written at Path(key) for every key and
// then enforces the store bounds once. The committed keys are exempt from
// that eviction, so one report's graphs never evict each other.
func (s *Store) Commit(keys ...string) error {
	for _, key := range keys {
		if _, err := os.Stat(s.Path(key)); err != nil {
			return fmt.Errorf("cache: commit %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now()
	protected := make(map[string]bool, len(keys))
	for _, key := range keys {
		if err := s.disk.Put(key, created); err != nil {
			return err
		}
		_ = s.memory.Put(key, created)
		protected[key] = true
	}

	_, err := s.evictLocked(protected)
	return err
}

// Prune enforces the store bounds and returns the number of artifacts removed
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(nil)
}

func (s *Store) evictLocked(protected map[string]bool) (int, error) {
	var cutoff time.Time
	if s.ttl > 0 {
		cutoff = s.now().Add(-s.ttl)
	}

	victims, err := s.disk.Evict(cutoff, s.maxEntries, protected)
	if err != nil {
		return 0, err
	}

	for _, key := range victims {
		_ = s.memory.Delete(key)
		if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return len(victims), fmt.Errorf("cache: remove %s: %w", key, err)
		}
	}
	return len(victims), nil
}

// Clear removes every artifact and index record. Files in the directory that
// are not artifacts are left alone.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cache: read artifact dir: %w", err)
	}
	for _, entry := range entries {
		if _, err := KeyFromFile(entry.Name()); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache: remove %s: %w", entry.Name(), err)
		}
	}

	_ = s.memory.Clear()
	return s.disk.Clear()
}

// Len returns the number of committed artifacts
func (s *Store) Len() (int, error) {
	return s.disk.Len()
}
