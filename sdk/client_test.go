package sdk_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alfreddev/fusegate/fuse"
	"github.com/alfreddev/fusegate/pool"
	"github.com/alfreddev/fusegate/sdk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type jsonConn struct {
	pool.BaseConnection
	status int
	body   string
}

func (c *jsonConn) Connect() error    { return nil }
func (c *jsonConn) Disconnect() error { return nil }
func (c *jsonConn) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: c.status,
		Body:       http.NoBody,
		Header:     make(http.Header),
	}, nil
}

type jsonFactory struct {
	status int
}

func (f *jsonFactory) Create(destination string) (pool.Connection, error) {
	c := &jsonConn{status: f.status}
	pool.InitBaseConnection(&c.BaseConnection)
	return c, nil
}

func TestRequestSuccessNoBody(t *testing.T) {
	p := pool.New(pool.Config{MaxConnections: 1, IdleTimeout: time.Minute, CleanInterval: time.Minute}, zerolog.Nop())
	defer p.Close()
	p.SetConnectionFactory(&jsonFactory{status: 200})

	fc := fuse.New("h:1", p, fuse.Config{Timeout: time.Second}, zerolog.Nop())
	defer fc.Close()

	c := sdk.New(fc)
	err := c.Get(context.Background(), "/status", nil)
	require.NoError(t, err)
}

func TestRequestNotFoundReturnsTypedError(t *testing.T) {
	p := pool.New(pool.Config{MaxConnections: 1, IdleTimeout: time.Minute, CleanInterval: time.Minute}, zerolog.Nop())
	defer p.Close()
	p.SetConnectionFactory(&jsonFactory{status: 404})

	fc := fuse.New("h:1", p, fuse.Config{Timeout: time.Second}, zerolog.Nop())
	defer fc.Close()

	c := sdk.New(fc)
	err := c.Get(context.Background(), "/missing", nil)
	require.Error(t, err)

	var nfErr *sdk.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}
