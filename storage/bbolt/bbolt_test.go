package bbolt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/coursekit/storage"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coursekit.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestCredentials(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }))

	t.Run("empty store loads empty", func(t *testing.T) {
		creds, err := s.Load()
		require.NoError(t, err)
		assert.True(t, creds.Empty())
	})

	t.Run("save and load", func(t *testing.T) {
		saved := storage.Credentials{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    now.Add(24 * time.Hour),
		}
		require.NoError(t, s.Save(saved))

		creds, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, saved, creds)
	})

	t.Run("save access preserves refresh and expiry", func(t *testing.T) {
		require.NoError(t, s.SaveAccess("access-2"))

		creds, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.AccessToken)
		assert.Equal(t, "refresh-1", creds.RefreshToken)
		assert.Equal(t, now.Add(24*time.Hour), creds.ExpiresAt)
	})

	t.Run("expired record is pruned", func(t *testing.T) {
		require.NoError(t, s.Save(storage.Credentials{
			AccessToken:  "old",
			RefreshToken: "old",
			ExpiresAt:    now.Add(-time.Minute),
		}))

		creds, err := s.Load()
		require.NoError(t, err)
		assert.True(t, creds.Empty())

		// The prune is durable, not just a filtered read.
		creds, err = s.Load()
		require.NoError(t, err)
		assert.True(t, creds.Empty())
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		require.NoError(t, s.Save(storage.Credentials{AccessToken: "a", RefreshToken: "r"}))
		require.NoError(t, s.Clear())
		require.NoError(t, s.Clear())

		creds, err := s.Load()
		require.NoError(t, err)
		assert.True(t, creds.Empty())
	})
}

func TestCache(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("miss is ErrNotFound", func(t *testing.T) {
		_, err := s.Get("courses", "all")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		payload := json.RawMessage(`[{"id":1,"title":"Algorithms"}]`)
		require.NoError(t, s.Put("courses", "all", payload))

		got, err := s.Get("courses", "all")
		require.NoError(t, err)
		assert.JSONEq(t, string(payload), string(got))
	})

	t.Run("put replaces for the same key", func(t *testing.T) {
		require.NoError(t, s.Put("courses", "all", json.RawMessage(`[]`)))

		got, err := s.Get("courses", "all")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(got))
	})

	t.Run("repeated put with identical data is idempotent", func(t *testing.T) {
		payload := json.RawMessage(`{"id":42,"title":"Quicksort"}`)
		require.NoError(t, s.Put("chapter", "42", payload))
		require.NoError(t, s.Put("chapter", "42", payload))

		got, err := s.Get("chapter", "42")
		require.NoError(t, err)
		assert.JSONEq(t, string(payload), string(got))
	})

	t.Run("put many", func(t *testing.T) {
		items := []storage.CacheItem{
			{Key: "1", Payload: json.RawMessage(`{"id":1}`)},
			{Key: "2", Payload: json.RawMessage(`{"id":2}`)},
		}
		require.NoError(t, s.PutMany("course", items))

		got, err := s.Get("course", "2")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":2}`, string(got))
	})

	t.Run("keys do not collide across entity types", func(t *testing.T) {
		require.NoError(t, s.Put("course", "7", json.RawMessage(`{"id":7}`)))
		require.NoError(t, s.Put("chapter", "7", json.RawMessage(`{"id":70}`)))

		got, err := s.Get("course", "7")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":7}`, string(got))
	})
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue assigns increasing sequence", func(t *testing.T) {
		s, _ := newTestStore(t)
		s1, err := s.Enqueue(storage.OpUpdate, "/chapters/42/complete/", nil)
		require.NoError(t, err)
		s2, err := s.Enqueue(storage.OpCreate, "/courses/1/subscribe/", nil)
		require.NoError(t, err)
		assert.Greater(t, s2, s1)

		n, err := s.Len()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("entries survive reopen", func(t *testing.T) {
		s, path := newTestStore(t)
		_, err := s.Enqueue(storage.OpUpdate, "/chapters/42/complete/", nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		reopened, err := Open(path)
		require.NoError(t, err)
		defer reopened.Close()

		pending, err := reopened.Pending()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "/chapters/42/complete/", pending[0].Resource)
		assert.NotEmpty(t, pending[0].ClientKey)
	})

	t.Run("drain preserves order and failed items", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.Enqueue(storage.OpUpdate, "/chapters/42/complete/", nil)
		require.NoError(t, err)
		_, err = s.Enqueue(storage.OpUpdate, "/chapters/41/complete/", nil)
		require.NoError(t, err)
		_, err = s.Enqueue(storage.OpCreate, "/courses/1/subscribe/", nil)
		require.NoError(t, err)

		var seen []string
		stats, err := s.Drain(ctx, func(w storage.PendingWrite) bool {
			seen = append(seen, w.Resource)
			return w.Resource != "/chapters/41/complete/"
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"/chapters/42/complete/",
			"/chapters/41/complete/",
			"/courses/1/subscribe/",
		}, seen, "drain visits entries in submission order")
		assert.Equal(t, 2, stats.Applied)
		assert.Equal(t, 1, stats.Remaining)

		pending, err := s.Pending()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "/chapters/41/complete/", pending[0].Resource)
	})

	t.Run("cancelled drain leaves queue untouched", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.Enqueue(storage.OpUpdate, "/chapters/42/complete/", nil)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = s.Drain(cancelled, func(storage.PendingWrite) bool {
			t.Fatal("apply must not run after cancellation")
			return false
		})
		assert.ErrorIs(t, err, context.Canceled)

		n, err := s.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("payload round trips", func(t *testing.T) {
		s, _ := newTestStore(t)
		payload := json.RawMessage(`{"answers":{"70":[1,2]}}`)
		_, err := s.Enqueue(storage.OpCreate, "/tests/chapter/42/submit/", payload)
		require.NoError(t, err)

		pending, err := s.Pending()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.JSONEq(t, string(payload), string(pending[0].Payload))
		assert.Equal(t, storage.OpCreate, pending[0].Op)
	})
}
