// Package bbolt provides a BBolt-backed implementation of the client's
// durable stores: credentials, response cache, and pending-write queue.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/avolkov/coursekit/storage"
)

var (
	credentialsBucket = []byte("credentials")
	cacheBucket       = []byte("cache")
	pendingBucket     = []byte("pending")

	credentialsKey = []byte("auth")
)

// Store implements storage.CredentialStore, storage.Cache and
// storage.WriteQueue backed by a single BBolt database file.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var (
	_ storage.CredentialStore = (*Store)(nil)
	_ storage.Cache           = (*Store)(nil)
	_ storage.WriteQueue      = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{credentialsBucket, cacheBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return s, nil
}

// Open opens (or creates) a BBolt database at path and returns a Store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db, opts...)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load() (storage.Credentials, error) {
	var creds storage.Credentials
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		data := b.Get(credentialsKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &creds); err != nil {
			return err
		}
		if creds.Expired(s.now()) {
			creds = storage.Credentials{}
			return b.Delete(credentialsKey)
		}
		return nil
	})
	if err != nil {
		return storage.Credentials{}, err
	}
	return creds, nil
}

func (s *Store) Save(creds storage.Credentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(creds)
		if err != nil {
			return err
		}
		return tx.Bucket(credentialsBucket).Put(credentialsKey, data)
	})
}

func (s *Store) SaveAccess(accessToken string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		var creds storage.Credentials
		if data := b.Get(credentialsKey); data != nil {
			if err := json.Unmarshal(data, &creds); err != nil {
				return err
			}
		}
		creds.AccessToken = accessToken
		data, err := json.Marshal(creds)
		if err != nil {
			return err
		}
		return b.Put(credentialsKey, data)
	})
}

func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(credentialsKey)
	})
}

func cacheKey(entityType, key string) []byte {
	return []byte(entityType + ":" + key)
}

func (s *Store) Put(entityType, key string, payload json.RawMessage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Put(cacheKey(entityType, key), payload)
	})
}

func (s *Store) PutMany(entityType string, items []storage.CacheItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		for _, item := range items {
			if err := b.Put(cacheKey(entityType, item.Key), item.Payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Get(entityType, key string) (json.RawMessage, error) {
	var payload json.RawMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get(cacheKey(entityType, key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", entityType, key, storage.ErrNotFound)
		}
		payload = append(json.RawMessage(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *Store) Enqueue(op storage.Operation, resource string, payload json.RawMessage) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		w := storage.PendingWrite{
			Seq:       n,
			Op:        op,
			Resource:  resource,
			Payload:   payload,
			ClientKey: uuid.NewString(),
			CreatedAt: s.now().UTC(),
		}
		data, err := json.Marshal(w)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(n), data); err != nil {
			return err
		}
		seq = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", resource, err)
	}
	return seq, nil
}

func (s *Store) Drain(ctx context.Context, apply func(storage.PendingWrite) bool) (storage.DrainStats, error) {
	writes, err := s.Pending()
	if err != nil {
		return storage.DrainStats{}, err
	}

	stats := storage.DrainStats{Remaining: len(writes)}
	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !apply(w) {
			continue
		}
		// Removal is a separate transaction so a crash mid-drain never
		// loses an entry that was not confirmed applied.
		err := s.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(pendingBucket).Delete(seqKey(w.Seq))
		})
		if err != nil {
			return stats, fmt.Errorf("dequeue seq %d: %w", w.Seq, err)
		}
		stats.Applied++
		stats.Remaining--
	}
	return stats, nil
}

func (s *Store) Pending() ([]storage.PendingWrite, error) {
	var writes []storage.PendingWrite
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(pendingBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var w storage.PendingWrite
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			writes = append(writes, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return writes, nil
}

func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(pendingBucket).Stats().KeyN
		return nil
	})
	return n, err
}
