package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/coursekit/internal/apitest"
	"github.com/avolkov/coursekit/storage"
	"github.com/avolkov/coursekit/storage/memory"
)

// unreachableURL points at a port nothing listens on, so every call fails
// with a connection error rather than a timeout.
const unreachableURL = "http://127.0.0.1:1"

func newTestClient(srv *apitest.Server, opts ...Option) (*Client, *memory.Store) {
	store := memory.New()
	return New(srv.URL, store, store, store, opts...), store
}

// failingStore wraps the memory driver to inject storage errors.
type failingStore struct {
	*memory.Store
	getErr     error
	enqueueErr error
}

func (f *failingStore) Get(entityType, key string) (json.RawMessage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(entityType, key)
}

func (f *failingStore) Enqueue(op storage.Operation, resource string, payload json.RawMessage) (uint64, error) {
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	return f.Store.Enqueue(op, resource, payload)
}

func login(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.Login(context.Background(), "ivan", "secret")
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	ctx := context.Background()

	t.Run("persists token pair and user", func(t *testing.T) {
		c, store := newTestClient(srv)
		user, err := c.Login(ctx, "ivan", "secret")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "ivan", user.Username)

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "access-1", creds.AccessToken)
		assert.Equal(t, "refresh-1", creds.RefreshToken)

		// No second login needed: the stored bearer authenticates.
		got, src, err := c.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceNetwork, src)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("invalid password", func(t *testing.T) {
		c, store := newTestClient(srv)
		_, err := c.Login(ctx, "ivan", "wrong")
		assert.ErrorIs(t, err, ErrUnauthorized)

		creds, err := store.Load()
		require.NoError(t, err)
		assert.True(t, creds.Empty())
	})

	t.Run("unreachable server is a transport failure", func(t *testing.T) {
		store := memory.New()
		c := New(unreachableURL, store, store, store)
		_, err := c.Login(ctx, "ivan", "secret")
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestReadWriteThroughAndCacheFallback(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	ctx := context.Background()

	c, store := newTestClient(srv)
	login(t, c)

	courses, src, err := c.Courses(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, src)
	require.Len(t, courses, 2)

	// Same store, unreachable server: the read degrades to the cached
	// list, tagged as such.
	offline := New(unreachableURL, store, store, store)
	cached, src, err := offline.Courses(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, courses, cached)

	// The list fan-out also serves point reads offline.
	course, src, err := offline.Course(ctx, courses[0].ID)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)
	assert.Equal(t, courses[0], course)
}

func TestReadOfflineWithoutCache(t *testing.T) {
	store := memory.New()
	c := New(unreachableURL, store, store, store)

	_, _, err := c.Courses(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestWriteOfflineQueues(t *testing.T) {
	store := memory.New()
	c := New(unreachableURL, store, store, store)
	ctx := context.Background()

	ack, err := c.CompleteChapter(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ack.Queued)
	assert.NotZero(t, ack.Seq)

	pending, err := store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/chapters/42/complete/", pending[0].Resource)
	assert.Equal(t, storage.OpUpdate, pending[0].Op)
}

func TestSubmitOfflineQueuesWithPayload(t *testing.T) {
	store := memory.New()
	c := New(unreachableURL, store, store, store)

	result, ack, err := c.SubmitChapterTest(context.Background(), 42, Answers{"70": {1, 2}})
	require.NoError(t, err)
	assert.True(t, ack.Queued)
	assert.Zero(t, result, "no grading until the submission is replayed")

	pending, err := store.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.JSONEq(t, `{"answers":{"70":[1,2]}}`, string(pending[0].Payload))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("expired access token refreshes once and retries", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()
		c, store := newTestClient(srv)
		require.NoError(t, store.Save(storage.Credentials{
			AccessToken:  "expired",
			RefreshToken: "refresh-1",
		}))

		user, src, err := c.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceNetwork, src)
		assert.Equal(t, "ivan", user.Username)

		srv.Lock()
		assert.Equal(t, 1, srv.RefreshCalls)
		srv.Unlock()

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.AccessToken)
		assert.Equal(t, "refresh-1", creds.RefreshToken, "refresh token untouched")
	})

	t.Run("rejected refresh surfaces unauthorized, not cache", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()
		srv.Lock()
		srv.FailRefresh = true
		srv.Unlock()

		c, store := newTestClient(srv)
		require.NoError(t, store.Save(storage.Credentials{
			AccessToken:  "expired",
			RefreshToken: "refresh-1",
		}))
		// A stale cached user must not mask the auth failure.
		require.NoError(t, store.Put("users", "me", []byte(`{"id":1}`)))

		_, _, err := c.CurrentUser(ctx)
		assert.ErrorIs(t, err, ErrUnauthorized)

		srv.Lock()
		assert.Equal(t, 1, srv.RefreshCalls)
		srv.Unlock()
	})

	t.Run("no refresh token means zero refresh attempts", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()
		c, store := newTestClient(srv)
		require.NoError(t, store.Save(storage.Credentials{AccessToken: "expired"}))

		_, _, err := c.CurrentUser(ctx)
		assert.ErrorIs(t, err, ErrUnauthorized)

		srv.Lock()
		assert.Equal(t, 0, srv.RefreshCalls)
		srv.Unlock()
	})

	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()
		srv.Lock()
		srv.RefreshDelay = 100 * time.Millisecond
		srv.Unlock()

		c, store := newTestClient(srv)
		require.NoError(t, store.Save(storage.Credentials{
			AccessToken:  "expired",
			RefreshToken: "refresh-1",
		}))

		const callers = 8
		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, _, errs[i] = c.CurrentUser(ctx)
			}(i)
		}
		close(start)
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "caller %d", i)
		}
		srv.Lock()
		assert.Equal(t, 1, srv.RefreshCalls, "401 observers must coordinate on one refresh")
		srv.Unlock()
	})

	t.Run("one caller cancelling does not fail the shared refresh", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()
		srv.Lock()
		srv.RefreshDelay = 150 * time.Millisecond
		srv.Unlock()

		c, store := newTestClient(srv)
		require.NoError(t, store.Save(storage.Credentials{
			AccessToken:  "expired",
			RefreshToken: "refresh-1",
		}))

		ctxA, cancelA := context.WithCancel(ctx)
		defer cancelA()
		errA := make(chan error, 1)
		go func() {
			_, _, err := c.CurrentUser(ctxA)
			errA <- err
		}()
		time.Sleep(30 * time.Millisecond) // refresh now stalled in flight

		errB := make(chan error, 1)
		go func() {
			_, _, err := c.CurrentUser(context.Background())
			errB <- err
		}()
		time.Sleep(30 * time.Millisecond)
		cancelA()

		assert.ErrorIs(t, <-errA, context.Canceled)
		assert.NoError(t, <-errB, "a live caller must not inherit another caller's cancellation")

		srv.Lock()
		assert.Equal(t, 1, srv.RefreshCalls)
		srv.Unlock()

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.AccessToken, "the shared refresh completed and persisted")
	})
}

func TestServerErrorCarriesStatus(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c, store := newTestClient(srv)
	login(t, c)

	_, _, err := c.Course(context.Background(), 999)
	assert.ErrorIs(t, err, ErrServer)

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Status)
	assert.Equal(t, "course not found", se.Detail)

	// Server rejections are not connectivity failures: nothing queued.
	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancellation(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c, store := newTestClient(srv)
	login(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Courses(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport, "cancellation is not a transport failure")

	_, err = c.CompleteChapter(ctx, 42)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n, "a cancelled write must not be queued")

	_, cerr := store.Get("courses", "all")
	assert.ErrorIs(t, cerr, storage.ErrNotFound, "a cancelled read must not populate the cache")
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("cache read failure is a miss, not a new error kind", func(t *testing.T) {
		store := memory.New()
		faulty := &failingStore{Store: store, getErr: errors.New("read page: file corrupted")}
		c := New(unreachableURL, store, faulty, store)

		// A cached payload sits behind the failing reader; it must not
		// surface, and neither must the storage error.
		require.NoError(t, store.Put("courses", "all", []byte(`[]`)))

		_, _, err := c.Courses(ctx, 0)
		assert.ErrorIs(t, err, ErrTransport, "caller sees the connectivity failure")
		assert.NotErrorIs(t, err, ErrStorage)
	})

	t.Run("enqueue failure fails the write", func(t *testing.T) {
		store := memory.New()
		faulty := &failingStore{Store: store, enqueueErr: errors.New("no space left on device")}
		c := New(unreachableURL, store, store, faulty)

		ack, err := c.CompleteChapter(ctx, 42)
		assert.ErrorIs(t, err, ErrStorage)
		assert.False(t, ack.Queued, "a write that could not be queued is not acknowledged")

		n, lerr := store.Len()
		require.NoError(t, lerr)
		assert.Zero(t, n)
	})
}

func TestWithTimeoutIndependentOfHTTPClient(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	injected := &http.Client{}
	store := memory.New()
	// WithTimeout before WithHTTPClient: the bound must survive the swap.
	c := New(slow.URL, store, store, store,
		WithTimeout(50*time.Millisecond), WithHTTPClient(injected))

	_, _, err := c.Courses(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTransport, "call timeout counts as a connectivity failure")

	assert.Zero(t, injected.Timeout, "injected client is never mutated")
}

func TestLogoutClearsCredentials(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c, store := newTestClient(srv)
	login(t, c)

	require.NoError(t, c.Logout(context.Background()))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestLogoutOfflineStillClears(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Save(storage.Credentials{AccessToken: "a", RefreshToken: "r"}))
	c := New(unreachableURL, store, store, store)

	require.NoError(t, c.Logout(context.Background()))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestMediaURLs(t *testing.T) {
	store := memory.New()
	c := New("http://edu.example.com/", store, store, store)

	assert.Equal(t, "http://edu.example.com/api/v1/media/video/7/", c.VideoURL(7))
	assert.Equal(t, "http://edu.example.com/api/v1/media/file/7/", c.FileURL(7))
}

func TestPing(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c, store := newTestClient(srv)
	assert.True(t, c.Ping(context.Background()))

	offline := New(unreachableURL, store, store, store)
	assert.False(t, offline.Ping(context.Background()))
}

func TestRegister(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c, _ := newTestClient(srv)
	err := c.Register(context.Background(), RegisterParams{
		Username:  "masha",
		Email:     "masha@example.com",
		Password:  "secret",
		FirstName: "Maria",
		LastName:  "Ivanova",
	})
	require.NoError(t, err)
}
