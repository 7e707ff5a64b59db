package pvlive

import (
	"net/http"
	"strings"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Empty values are
// ignored.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithEntity selects the entity type and id to fetch, for example gsp/0 for
// the national aggregate. Empty entity types are ignored.
func WithEntity(entity string, id int) Option {
	return func(c *Client) {
		if entity != "" && id >= 0 {
			c.entity = entity
			c.entityID = id
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are
// ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithChunk sets the window length of a single API request. Non-positive
// values are ignored.
func WithChunk(chunk time.Duration) Option {
	return func(c *Client) {
		if chunk > 0 {
			c.chunk = chunk
		}
	}
}

// WithStartPadding copies the first settlement period backwards when the
// fetched series starts one period after the requested start.
func WithStartPadding() Option {
	return func(c *Client) {
		c.padStart = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}
