// Package history keeps a persistent log of apply runs: which files were
// materialized and which external data sources were configured.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const bucketRuns = "runs"

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

// Run modes.
const (
	ModeApply   = "apply"
	ModeDestroy = "destroy"
)

// File is a materialized output file.
type File struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Mode   uint32 `json:"mode,omitempty"`
}

// Run is one recorded invocation.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Classes   []string  `json:"classes,omitempty"`
	Files     []File    `json:"files,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Store is a bbolt-backed run log. Keys are time-ordered UUIDs so cursor
// order is recording order.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores run, assigning an ID and start time when unset.
func (s *Store) Record(run Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id uuid.UUID
	if run.ID == "" {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return Run{}, fmt.Errorf("generate run id: %w", err)
		}
		run.ID = id.String()
	} else {
		var err error
		if id, err = uuid.Parse(run.ID); err != nil {
			return Run{}, fmt.Errorf("invalid run id %q: %w", run.ID, err)
		}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(run)
	if err != nil {
		return Run{}, fmt.Errorf("marshal run: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).Put(id[:], data)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Get returns the run with the given ID.
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := uuid.Parse(id)
	if err != nil {
		return Run{}, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	var run Run
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get(key[:])
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshal run %x: %w", k, err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Prune deletes the oldest runs so that at most max remain. It returns the
// number of deleted runs. A max <= 0 disables pruning.
func (s *Store) Prune(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()
		total := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			total++
		}
		excess := total - max
		if excess <= 0 {
			return nil
		}
		var stale [][]byte
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
