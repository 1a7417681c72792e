// Package memory provides thread-safe in-memory implementations of the
// client's stores. Suitable for testing, demos, and single-process use cases.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/coursekit/storage"
)

// Store is an in-memory implementation of storage.CredentialStore,
// storage.Cache and storage.WriteQueue. State does not survive the process.
type Store struct {
	mu      sync.RWMutex
	creds   *storage.Credentials
	cache   map[string]json.RawMessage
	pending []storage.PendingWrite
	nextSeq uint64

	// Now is the time source used for expiry pruning. Tests may replace it.
	Now func() time.Time
}

var (
	_ storage.CredentialStore = (*Store)(nil)
	_ storage.Cache           = (*Store)(nil)
	_ storage.WriteQueue      = (*Store)(nil)
)

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		cache: make(map[string]json.RawMessage),
		Now:   time.Now,
	}
}

func (s *Store) Load() (storage.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return storage.Credentials{}, nil
	}
	if s.creds.Expired(s.Now()) {
		s.creds = nil
		return storage.Credentials{}, nil
	}
	return *s.creds, nil
}

func (s *Store) Save(creds storage.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
	return nil
}

func (s *Store) SaveAccess(accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		s.creds = &storage.Credentials{}
	}
	s.creds.AccessToken = accessToken
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

func makeKey(entityType, key string) string {
	return entityType + ":" + key
}

func clonePayload(p json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), p...)
}

func (s *Store) Put(entityType, key string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[makeKey(entityType, key)] = clonePayload(payload)
	return nil
}

func (s *Store) PutMany(entityType string, items []storage.CacheItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.cache[makeKey(entityType, item.Key)] = clonePayload(item.Payload)
	}
	return nil
}

func (s *Store) Get(entityType, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.cache[makeKey(entityType, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", entityType, key, storage.ErrNotFound)
	}
	return clonePayload(payload), nil
}

func (s *Store) Enqueue(op storage.Operation, resource string, payload json.RawMessage) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	w := storage.PendingWrite{
		Seq:       s.nextSeq,
		Op:        op,
		Resource:  resource,
		Payload:   clonePayload(payload),
		ClientKey: uuid.NewString(),
		CreatedAt: s.Now().UTC(),
	}
	s.pending = append(s.pending, w)
	return w.Seq, nil
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
		s.remove(w.Seq)
		stats.Applied++
		stats.Remaining--
	}
	return stats, nil
}

func (s *Store) remove(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.pending {
		if w.Seq == seq {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *Store) Pending() ([]storage.PendingWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.PendingWrite(nil), s.pending...), nil
}

func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), nil
}
