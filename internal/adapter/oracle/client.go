// Package oracle provides WeatherSource implementations: an HTTP
// client polling an external oracle, and an in-process manual source
// fed through the admin API.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openmorph/metamorph/internal/domain"
)

// Compile-time check: Client implements domain.WeatherSource.
var _ domain.WeatherSource = (*Client)(nil)

// Client pulls readings from a weather oracle over HTTP. The oracle
// exposes its latest request id at /current and the opaque reading
// bytes at /readings/{id}; the reading body is decoded by the domain,
// not here.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an oracle client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CurrentRequestID returns the oracle's most recently fetched request
// id. An empty id means the oracle has no data yet.
func (c *Client) CurrentRequestID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current", nil)
	if err != nil {
		return "", fmt.Errorf("building current request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching current request id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle returned status %d for current request id", resp.StatusCode)
	}

	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding current request id: %w", err)
	}
	return body.RequestID, nil
}

// ReadingFor returns the opaque reading bytes for a request id.
func (c *Client) ReadingFor(ctx context.Context, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readings/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("building reading request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching reading %q: %w", requestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNoReading
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d for reading %q", resp.StatusCode, requestID)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading oracle response: %w", err)
	}
	return raw, nil
}
