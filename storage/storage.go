// Package storage defines the durable persistence layer shared by the course
// client: the credential record, the local response cache, and the
// pending-write queue.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("record not found")
)

// Credentials holds the access/refresh token pair issued by the server.
// A zero ExpiresAt means the record carries no expiry and is never pruned.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Empty reports whether no token material is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Expired reports whether the record's expiry has passed as of now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CredentialStore persists the single credential record. It is the only
// component permitted to write authentication state.
type CredentialStore interface {
	// Load returns the stored credentials, or an empty value when none
	// exist or the stored expiry has passed. An expired record is pruned.
	Load() (Credentials, error)
	// Save replaces the stored record atomically.
	Save(creds Credentials) error
	// SaveAccess replaces only the access token, leaving the refresh token
	// and expiry untouched.
	SaveAccess(accessToken string) error
	// Clear deletes the record. Clearing an empty store is not an error.
	Clear() error
}

// CacheItem is one record in a bulk cache upsert.
type CacheItem struct {
	Key     string
	Payload json.RawMessage
}

// Cache is the insert-or-replace shadow of the last-known-good server
// responses, keyed by (entityType, key). Misses are reported as ErrNotFound,
// never as a transport-style failure.
type Cache interface {
	Put(entityType, key string, payload json.RawMessage) error
	// PutMany upserts all items in a single transaction; a failure leaves
	// the cache unchanged.
	PutMany(entityType string, items []CacheItem) error
	Get(entityType, key string) (json.RawMessage, error)
}

// Operation classifies a pending write for replay.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// PendingWrite is a durably queued write awaiting replay against the server.
type PendingWrite struct {
	Seq       uint64          `json:"seq"`
	Op        Operation       `json:"op"`
	Resource  string          `json:"resource"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientKey string          `json:"client_key"`
	CreatedAt time.Time       `json:"created_at"`
}

// WriteQueue is an ordered, durable queue of writes that could not reach the
// server. Entries are removed only after a replay reports success.
type WriteQueue interface {
	// Enqueue durably appends a write and returns its sequence number.
	Enqueue(op Operation, resource string, payload json.RawMessage) (uint64, error)
	// Drain visits entries in ascending sequence order, removing each one
	// for which apply returns true. A false result leaves the entry queued
	// and does not stop the iteration. The context is consulted between
	// entries, never mid-entry.
	Drain(ctx context.Context, apply func(PendingWrite) bool) (DrainStats, error)
	// Pending returns all queued entries in replay order.
	Pending() ([]PendingWrite, error)
	Len() (int, error)
}

// DrainStats summarises one Drain pass.
type DrainStats struct {
	Applied   int
	Remaining int
}
