package client

import (
	"context"
	"fmt"
	"net/http"
)

// VideoURL builds the stream URL for a content item. No network call.
func (c *Client) VideoURL(contentID int64) string {
	return fmt.Sprintf("%s/media/video/%d/", c.apiBase, contentID)
}

// FileURL builds the download URL for a content item. No network call.
func (c *Client) FileURL(contentID int64) string {
	return fmt.Sprintf("%s/media/file/%d/", c.apiBase, contentID)
}

// Ping reports whether the server answers its health endpoint within the
// probe timeout. It sends no credentials and never consults the cache.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/health/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
