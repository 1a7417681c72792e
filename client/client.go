// Package client implements the resilient data-access layer for the course
// platform API: authenticated requests with transparent token refresh,
// read-through cache fallback when the network is unavailable, and durable
// queueing of offline writes for later replay.
package client

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/avolkov/coursekit/storage"
)

const (
	apiPrefix           = "/api/v1"
	defaultTimeout      = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
	defaultUserAgent    = "coursekit/1.0"
)

// Client issues API calls against a single course platform instance. It is
// safe for concurrent use. Construct it with New and inject the stores
// explicitly; there is no package-level instance.
type Client struct {
	baseURL string
	apiBase string

	http         *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
	ua           string
	log          zerolog.Logger

	creds storage.CredentialStore
	cache storage.Cache
	queue storage.WriteQueue

	// refreshGroup collapses concurrent refresh attempts into a single
	// round trip shared by every caller that observed a 401.
	refreshGroup singleflight.Group
}

// New creates a Client for the given base URL. The stores own all durable
// state; the client never touches their backing storage directly.
func New(baseURL string, creds storage.CredentialStore, cache storage.Cache, queue storage.WriteQueue, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{},
		timeout:      defaultTimeout,
		probeTimeout: defaultProbeTimeout,
		ua:           defaultUserAgent,
		log:          zerolog.Nop(),
		creds:        creds,
		cache:        cache,
		queue:        queue,
	}
	c.apiBase = c.baseURL + apiPrefix
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server base URL without the API prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PendingWrites returns the writes currently queued for replay.
func (c *Client) PendingWrites() ([]storage.PendingWrite, error) {
	return c.queue.Pending()
}
