// Package docstore fetches generated PDFs from the document rendering
// service. The core only persists the reference; bytes live remotely.
package docstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Client wraps the document store HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote store is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("document store returned status %d", resp.StatusCode)
	}
	return nil
}

// Fetch downloads the stored document for a reference.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/documents/%s", c.baseURL, url.PathEscape(ref)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: document %s", shared.ErrNotFound, ref)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("document store returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
