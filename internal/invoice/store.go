package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const sessionBucket = "session"

// SessionStore persists the entry list between runs. Original file bytes are
// deliberately not persisted; restored entries are in the bytes-less state
// and operations that need the file content fail explicitly.
type SessionStore interface {
	SaveSession(entries []Entry) error
	LoadSession() ([]Entry, error)
	Close() error
}

// BoltStore implements SessionStore on bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the session database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// sessionEntry is the persisted shape of an entry. The Data field of Entry is
// json-ignored already; an explicit sequence number keeps ordering stable.
type sessionEntry struct {
	Seq   int   `json:"seq"`
	Entry Entry `json:"entry"`
}

// SaveSession replaces the stored session with the given entries.
func (s *BoltStore) SaveSession(entries []Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(sessionBucket)); err != nil {
			return fmt.Errorf("resetting session bucket: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(sessionBucket))
		if err != nil {
			return fmt.Errorf("recreating session bucket: %w", err)
		}
		for i, e := range entries {
			data, err := json.Marshal(sessionEntry{Seq: i, Entry: e})
			if err != nil {
				return fmt.Errorf("marshaling entry %s: %w", e.ID, err)
			}
			key := fmt.Sprintf("%08d", i)
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSession returns the stored entries in their original order.
func (s *BoltStore) LoadSession() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var se sessionEntry
			if err := json.Unmarshal(v, &se); err != nil {
				return fmt.Errorf("unmarshaling session entry: %w", err)
			}
			entries = append(entries, se.Entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
