// Package bbolt provides a BoltDB-backed checkpoint store for live session
// working state. Checkpoints outlive a crash; a checkpoint without a matching
// session record marks a session that never ended cleanly.
package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/quietloop/attune/internal/storage"
)

const checkpointBucket = "session_checkpoint"

// Store provides a BoltDB-backed session checkpoint store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists a session checkpoint payload, replacing any previous one.
func (s *Store) Save(ctx context.Context, sessionID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("checkpoint store is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		return bucket.Put(checkpointKey(sessionID), payload)
	})
}

// Load fetches a session checkpoint payload.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("checkpoint store is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		stored := bucket.Get(checkpointKey(sessionID))
		if stored == nil {
			return storage.ErrNotFound
		}
		payload = append([]byte(nil), stored...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Delete removes a session checkpoint. Deleting a missing checkpoint is not
// an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("checkpoint store is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		return bucket.Delete(checkpointKey(sessionID))
	})
}

// List returns every stored checkpoint keyed by session id.
func (s *Store) List(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("checkpoint store is not configured")
	}

	checkpoints := make(map[string][]byte)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointBucket))
		if bucket == nil {
			return fmt.Errorf("checkpoint bucket is missing")
		}
		return bucket.ForEach(func(key, value []byte) error {
			checkpoints[string(key)] = append([]byte(nil), value...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return checkpoints, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(checkpointBucket))
		if err != nil {
			return fmt.Errorf("create checkpoint bucket: %w", err)
		}
		return nil
	})
}

func checkpointKey(sessionID string) []byte {
	return []byte(sessionID)
}
