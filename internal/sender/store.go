package sender

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketSenders = []byte("senders")

// Store persists sender identities and their daily counters in BoltDB.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the sender database at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSenders)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create senders bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Put inserts or updates an identity. A missing ID is assigned.
func (s *Store) Put(id *Identity) error {
	if id.ID == "" {
		id.ID = uuid.New().String()
		id.CreatedAt = time.Now()
	}
	if id.LastReset == "" {
		id.LastReset = Today()
	}
	id.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("failed to marshal identity: %w", err)
		}
		return tx.Bucket(bucketSenders).Put([]byte(id.ID), data)
	})
}

// Get retrieves an identity by ID. Returns nil when not found.
func (s *Store) Get(id string) (*Identity, error) {
	var identity *Identity

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSenders).Get([]byte(id))
		if data == nil {
			return nil
		}
		identity = &Identity{}
		return json.Unmarshal(data, identity)
	})

	return identity, err
}

// List returns all identities ordered by creation time.
func (s *Store) List() ([]*Identity, error) {
	var identities []*Identity

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSenders).ForEach(func(k, v []byte) error {
			var id Identity
			if err := json.Unmarshal(v, &id); err != nil {
				return nil // skip invalid entries
			}
			identities = append(identities, &id)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(identities, func(i, j int) bool {
		return identities[i].CreatedAt.Before(identities[j].CreatedAt)
	})
	return identities, nil
}

// Delete removes an identity.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSenders).Delete([]byte(id))
	})
}

// LoadForToday returns all identities with stale daily counters reset to
// zero. Resets are persisted before returning so a crashed batch does not
// double-count yesterday's sends.
func (s *Store) LoadForToday() ([]*Identity, error) {
	identities, err := s.List()
	if err != nil {
		return nil, err
	}

	today := Today()
	for _, id := range identities {
		if id.ResetIfStale(today) {
			if err := s.Put(id); err != nil {
				return nil, fmt.Errorf("failed to persist counter reset for %s: %w", id.Email, err)
			}
		}
	}
	return identities, nil
}

// SaveCounters persists the daily counters of the given identities.
// Called by the orchestrator after a batch completes.
func (s *Store) SaveCounters(identities []*Identity) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSenders)
		for _, id := range identities {
			id.UpdatedAt = time.Now()
			data, err := json.Marshal(id)
			if err != nil {
				return fmt.Errorf("failed to marshal identity: %w", err)
			}
			if err := bucket.Put([]byte(id.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetCounters zeroes the daily counter of every identity.
func (s *Store) ResetCounters() error {
	identities, err := s.List()
	if err != nil {
		return err
	}
	today := Today()
	for _, id := range identities {
		id.SentToday = 0
		id.LastReset = today
	}
	return s.SaveCounters(identities)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
