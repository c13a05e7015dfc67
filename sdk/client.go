// Package sdk is a typed convenience wrapper over a destination's
// fuse.Client, for callers that want JSON-in/JSON-out request helpers
// and a typed error taxonomy instead of driving fuse.Client.Do
// directly. Grounded on the teacher's tools/sdk/go/alfred.go: the
// functional-option constructor, the request() JSON marshal/unmarshal
// wrapper, and the status-code-to-typed-error dispatch are kept in
// shape, retargeted from the Alfred governance API's error codes to
// the resilient-client's own HTTP_CLIENT_ERROR taxonomy.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alfreddev/fusegate/fuse"
	"github.com/alfreddev/fusegate/transport"
)

// Version identifies this SDK's wire compatibility. It is not sent with
// requests.
const Version = "1.0.0"

// Client wraps a fuse.Client with typed JSON request/response helpers.
type Client struct {
	fc *fuse.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// New wraps fc. fc is expected to already be configured (pool, fuse
// thresholds, recovery) via destination.Registry or fuse.New directly.
func New(fc *fuse.Client, opts ...Option) *Client {
	c := &Client{fc: fc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request performs method against path, marshaling body as JSON (if
// non-nil) and unmarshaling a 2xx response into result (if non-nil and
// the body is non-empty). Non-2xx responses are converted to a typed
// Error via parseError; transport-level failures (circuit open, no
// connection) are returned unwrapped from fuse.Client.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var fuseBody fuse.Body
	if body != nil {
		fuseBody = transport.JSONBody{V: body}
	}

	status, respBody, err := c.fc.Do(ctx, method, path, make(http.Header), fuseBody)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return parseError(status, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("sdk: unmarshal response: %w", err)
		}
	}
	return nil
}

// Get is a convenience wrapper for Request(ctx, http.MethodGet, ...).
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.Request(ctx, http.MethodGet, path, nil, result)
}

// Post is a convenience wrapper for Request(ctx, http.MethodPost, ...).
func (c *Client) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.Request(ctx, http.MethodPost, path, body, result)
}
