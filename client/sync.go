package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/coursekit/model"
	"github.com/avolkov/coursekit/storage"
)

// State is the authentication state established at startup.
type State int

const (
	// StateUnauthenticated means no usable credentials exist; the caller
	// should route to login.
	StateUnauthenticated State = iota
	// StateAuthenticated means the stored token chain was validated online.
	StateAuthenticated
	// StateOffline means credentials exist but the server was unreachable;
	// cached data may be served until connectivity returns.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateOffline:
		return "offline"
	default:
		return "unauthenticated"
	}
}

// Syncer orchestrates startup validation, connectivity probing, and replay
// of the pending-write queue. A single Syncer per Client is expected;
// concurrent Reconcile calls are collapsed into the running pass.
type Syncer struct {
	client  *Client
	log     zerolog.Logger
	running atomic.Bool
}

// NewSyncer creates a Syncer driving the given client.
func NewSyncer(c *Client) *Syncer {
	return &Syncer{client: c, log: c.log}
}

// Startup loads stored credentials and validates them with a who-am-i call.
// Invalid credentials are cleared; an unreachable server keeps them and
// reports StateOffline, possibly with the cached user.
func (s *Syncer) Startup(ctx context.Context) (State, *model.User, error) {
	creds, err := s.client.creds.Load()
	if err != nil {
		return StateUnauthenticated, nil, fmt.Errorf("%w: loading credentials: %v", ErrStorage, err)
	}
	if creds.Empty() {
		return StateUnauthenticated, nil, nil
	}

	user, src, err := s.client.CurrentUser(ctx)
	switch {
	case err == nil && src == SourceNetwork:
		return StateAuthenticated, &user, nil
	case err == nil:
		// Served from cache: the token chain could not be validated,
		// but connectivity loss is not grounds for discarding it.
		return StateOffline, &user, nil
	case errors.Is(err, ErrUnauthorized):
		s.log.Info().Msg("stored credentials rejected, clearing")
		if cerr := s.client.creds.Clear(); cerr != nil {
			return StateUnauthenticated, nil, fmt.Errorf("%w: clearing credentials: %v", ErrStorage, cerr)
		}
		return StateUnauthenticated, nil, nil
	case errors.Is(err, ErrTransport):
		return StateOffline, nil, nil
	default:
		return StateUnauthenticated, nil, err
	}
}

// Online probes the server's health endpoint with a short timeout.
func (s *Syncer) Online(ctx context.Context) bool {
	return s.client.Ping(ctx)
}

// Reconcile replays queued writes in submission order, best effort per
// item. A pass already in progress makes a concurrent call return
// ErrSyncInProgress immediately instead of draining the queue twice.
// Cancellation takes effect between items, never mid-item.
func (s *Syncer) Reconcile(ctx context.Context) (storage.DrainStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return storage.DrainStats{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	stats, err := s.client.queue.Drain(ctx, func(w storage.PendingWrite) bool {
		return s.client.replay(ctx, w)
	})
	if err != nil {
		return stats, err
	}
	if stats.Applied > 0 || stats.Remaining > 0 {
		s.log.Info().Int("applied", stats.Applied).Int("remaining", stats.Remaining).Msg("reconcile pass finished")
	}
	return stats, nil
}

// Run reconciles periodically until the context is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := s.Reconcile(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("reconcile failed")
		}
	}
}
