package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/avolkov/coursekit/storage"
)

// Source reports where a returned payload came from.
type Source int

const (
	// SourceNetwork is a fresh response from the server.
	SourceNetwork Source = iota
	// SourceCache is the last-known-good payload, served because the
	// server was unreachable. Callers may surface it as stale.
	SourceCache
	// SourceQueued marks a write accepted locally and pending sync.
	SourceQueued
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceQueued:
		return "queued"
	default:
		return "network"
	}
}

// Ack reports how a write was settled: applied on the server immediately,
// or durably queued for replay.
type Ack struct {
	Queued bool
	Seq    uint64
}

// readSpec declares one cacheable GET: its path and the cache slot the
// response is written through to. A non-empty fanout additionally caches
// each element of a list payload under its own id.
type readSpec struct {
	path       string
	entityType string
	key        string
	fanout     string
}

// read performs a cacheable GET. On success the payload is written through
// to the cache before returning. On transport failure the last cached
// payload for the same slot is served instead, tagged SourceCache.
func (c *Client) read(ctx context.Context, spec readSpec) (json.RawMessage, Source, error) {
	data, err := c.send(ctx, http.MethodGet, spec.path, nil, nil)
	if err == nil {
		if cerr := c.cache.Put(spec.entityType, spec.key, data); cerr != nil {
			c.log.Warn().Err(cerr).Str("path", spec.path).Msg("cache write-through failed")
		} else if spec.fanout != "" {
			if items := splitByID(data); len(items) > 0 {
				if cerr := c.cache.PutMany(spec.fanout, items); cerr != nil {
					c.log.Warn().Err(cerr).Str("path", spec.path).Msg("cache fan-out failed")
				}
			}
		}
		return data, SourceNetwork, nil
	}

	if errors.Is(err, ErrTransport) {
		cached, cerr := c.cache.Get(spec.entityType, spec.key)
		if cerr == nil {
			c.log.Debug().Str("path", spec.path).Msg("serving cached payload")
			return cached, SourceCache, nil
		}
		if !errors.Is(cerr, storage.ErrNotFound) {
			c.log.Warn().Err(cerr).Str("path", spec.path).Msg("cache read failed, treating as miss")
		}
	}
	return nil, SourceNetwork, err
}

// write performs a POST that may be queued. On transport failure the write
// is appended to the pending queue and reported accepted; a queue failure
// is fatal for the write, since it cannot be silently lost.
func (c *Client) write(ctx context.Context, path string, body []byte, op storage.Operation) (json.RawMessage, Ack, error) {
	data, err := c.send(ctx, http.MethodPost, path, body, nil)
	if err == nil {
		return data, Ack{}, nil
	}
	if errors.Is(err, ErrTransport) {
		seq, qerr := c.queue.Enqueue(op, path, body)
		if qerr != nil {
			return nil, Ack{}, fmt.Errorf("%w: %v", ErrStorage, qerr)
		}
		c.log.Debug().Str("path", path).Uint64("seq", seq).Msg("write queued for sync")
		return nil, Ack{Queued: true, Seq: seq}, nil
	}
	return nil, Ack{}, err
}

// replay re-issues one queued write. The client key accompanies the request
// so the server can deduplicate a replay it already applied.
func (c *Client) replay(ctx context.Context, w storage.PendingWrite) bool {
	extra := http.Header{"X-Client-Key": {w.ClientKey}}
	_, err := c.send(ctx, http.MethodPost, w.Resource, w.Payload, extra)
	if err != nil {
		c.log.Debug().Err(err).Str("resource", w.Resource).Uint64("seq", w.Seq).Msg("replay failed")
		return false
	}
	return true
}

// send performs one authenticated call, refreshing the access token at most
// once on a 401 and retrying the original request exactly once. A rejected
// refresh surfaces as ErrUnauthorized and is never recovered from cache; a
// refresh that could not reach the server keeps its transport kind.
func (c *Client) send(ctx context.Context, method, path string, body []byte, extra http.Header) (json.RawMessage, error) {
	creds, err := c.creds.Load()
	if err != nil {
		c.log.Warn().Err(err).Msg("credential load failed, sending unauthenticated")
		creds = storage.Credentials{}
	}

	data, status, err := c.roundTrip(ctx, method, path, body, creds.AccessToken, extra)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && creds.RefreshToken != "" {
		if err := c.refreshAccess(ctx, creds.RefreshToken); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrTransport) || errors.Is(err, ErrStorage) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: token refresh failed", ErrUnauthorized)
		}
		creds, err = c.creds.Load()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		data, status, err = c.roundTrip(ctx, method, path, body, creds.AccessToken, extra)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return data, nil
	case status == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, serverError(status, data)
	}
}

// roundTrip performs a single HTTP exchange bounded by the call timeout.
// A failed exchange on a live caller context maps to ErrTransport, and the
// call timeout firing counts as such; a cancelled caller context returns
// its own error so cancellation is never read as a connectivity failure.
func (c *Client) roundTrip(callerCtx context.Context, method, path string, body []byte, token string, extra http.Header) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(callerCtx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if callerCtx.Err() != nil {
			return nil, 0, callerCtx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if callerCtx.Err() != nil {
			return nil, 0, callerCtx.Err()
		}
		return nil, 0, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	return data, resp.StatusCode, nil
}

// splitByID extracts the elements of a JSON array payload keyed by their
// "id" field, for per-item cache upserts. Non-array payloads yield nothing.
func splitByID(payload []byte) []storage.CacheItem {
	var elems []json.RawMessage
	if err := json.Unmarshal(payload, &elems); err != nil {
		return nil
	}
	var items []storage.CacheItem
	for _, raw := range elems {
		var e struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.ID == 0 {
			continue
		}
		items = append(items, storage.CacheItem{Key: strconv.FormatInt(e.ID, 10), Payload: raw})
	}
	return items
}

// errorDetail pulls the server's "detail" message out of an error body.
func errorDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Detail
}

// decode unmarshals a payload into the caller's shape.
func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding response: %w", err)
	}
	return v, nil
}
