// Package defaults keeps per-session user preferences, most
// importantly the set of paths opted in for offline sync.
package defaults

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wesm/coursesync/internal/course"
)

const keyOfflineSyncSelections = "offlineSyncSelections"

// SessionDefaults stores one session's preferences in a bolt
// bucket. With no path it keeps everything in memory.
type SessionDefaults struct {
	db     *bolt.DB
	bucket []byte

	mu    sync.RWMutex
	cache map[string][]byte
}

// Open opens the defaults file at path for sessionID. The
// file is locked while open, so a second process gets an
// error after a short wait.
func Open(path, sessionID string) (*SessionDefaults, error) {
	s := &SessionDefaults{
		bucket: []byte("session/" + sessionID),
		cache:  make(map[string][]byte),
	}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating defaults directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening defaults %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}
	s.db = db
	return s, nil
}

// Close releases the file.
func (s *SessionDefaults) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SessionDefaults) get(key string, dest any) (bool, error) {
	s.mu.RLock()
	data, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok && s.db != nil {
		err := s.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
				data = slices.Clone(v)
			}
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", key, err)
		}
		if data != nil {
			s.mu.Lock()
			s.cache[key] = data
			s.mu.Unlock()
		}
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *SessionDefaults) set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(s.bucket).Put([]byte(key), data)
		})
		if err != nil {
			return fmt.Errorf("writing %s: %w", key, err)
		}
	}
	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return nil
}

// OfflineSyncSelections returns the stored selection paths,
// or nil if none were ever saved.
func (s *SessionDefaults) OfflineSyncSelections() ([]string, error) {
	var paths []string
	if _, err := s.get(keyOfflineSyncSelections, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// SetOfflineSyncSelections replaces every stored path.
func (s *SessionDefaults) SetOfflineSyncSelections(paths []string) error {
	if paths == nil {
		paths = []string{}
	}
	return s.set(keyOfflineSyncSelections, paths)
}

// ReplaceCourseSelections rewrites only the paths that belong
// to entryIDs, keeping every other course's paths as they
// were. Duplicate paths are dropped.
func (s *SessionDefaults) ReplaceCourseSelections(
	entryIDs, paths []string,
) error {
	current, err := s.OfflineSyncSelections()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	next := make([]string, 0, len(current)+len(paths))
	for _, p := range current {
		if slices.Contains(entryIDs, course.EntryIDOf(p)) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		next = append(next, p)
	}
	for _, p := range paths {
		if _, dup := seen[p]; dup || p == "" {
			continue
		}
		seen[p] = struct{}{}
		next = append(next, p)
	}
	return s.SetOfflineSyncSelections(next)
}
