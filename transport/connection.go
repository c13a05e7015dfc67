// Package transport supplies the concrete pool.Connection used in
// production: an HTTP keep-alive connection backed by a shared
// *http.Transport, plus request-body helpers. It is grounded on the
// teacher's provider/pool.go metricsRoundTripper (one *http.Transport
// reused across logical connections to the same destination, wrapped
// for per-connection bookkeeping rather than per-request dialing).
package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/alfreddev/fusegate/pool"
)

// Connection is a pool.Connection that issues requests through a
// shared *http.Client. Connect/Disconnect are no-ops beyond bookkeeping
// since the underlying *http.Transport already manages its own
// keep-alive socket pool — Connection exists so fuse.Client can acquire
// and release a logical handle per destination capacity slot.
type Connection struct {
	pool.BaseConnection

	destination string
	client      *http.Client
}

// Connect is a no-op; the shared *http.Client is already usable.
func (c *Connection) Connect() error { return nil }

// Disconnect is a no-op; the shared *http.Transport outlives any single
// logical Connection and is closed once, by Factory.Close.
func (c *Connection) Disconnect() error { return nil }

// Do sends req using the shared client, satisfying fuse's local doer
// interface without fuse importing this package.
func (c *Connection) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Factory produces Connections that all share one *http.Transport per
// process, matching the teacher's one-round-tripper-per-provider reuse
// rather than dialing fresh sockets per logical connection.
type Factory struct {
	transport *http.Transport
	client    *http.Client
}

// NewFactory builds a Factory with sane keep-alive defaults. Callers
// needing different dial/idle tuning should construct transport
// directly and use NewFactoryWithTransport.
func NewFactory() *Factory {
	return NewFactoryWithTransport(&http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	})
}

// NewFactoryWithTransport wraps a caller-supplied *http.Transport.
func NewFactoryWithTransport(rt *http.Transport) *Factory {
	return &Factory{
		transport: rt,
		client:    &http.Client{Transport: rt},
	}
}

// Create implements pool.ConnectionFactory.
func (f *Factory) Create(destination string) (pool.Connection, error) {
	c := &Connection{
		destination: destination,
		client:      f.client,
	}
	pool.InitBaseConnection(&c.BaseConnection)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close tears down the shared transport's idle connections. Safe to
// call once all pools using this factory have been closed.
func (f *Factory) Close() error {
	f.transport.CloseIdleConnections()
	return nil
}

// JSONBody marshals v as the request body and sets Content-Type to
// application/json, satisfying fuse.Body structurally.
type JSONBody struct {
	V interface{}
}

// Prepare implements fuse.Body.
func (b JSONBody) Prepare(headers http.Header) (io.Reader, error) {
	buf, err := json.Marshal(b.V)
	if err != nil {
		return nil, err
	}
	headers.Set("Content-Type", "application/json")
	return bytes.NewReader(buf), nil
}

// MultipartBody builds a multipart/form-data body from named fields
// and optional file parts, satisfying fuse.Body structurally.
type MultipartBody struct {
	Fields map[string]string
	Files  map[string][]byte // field name -> file content
	// FileNames optionally supplies the filename advertised per Files
	// key; when absent, the field name itself is used.
	FileNames map[string]string
}

// Prepare implements fuse.Body.
func (b MultipartBody) Prepare(headers http.Header) (io.Reader, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for k, v := range b.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for k, content := range b.Files {
		name := b.FileNames[k]
		if name == "" {
			name = k
		}
		fw, err := w.CreateFormFile(k, name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	headers.Set("Content-Type", w.FormDataContentType())
	return buf, nil
}
