package destination_test

import (
	"testing"
	"time"

	"github.com/alfreddev/fusegate/destination"
	"github.com/alfreddev/fusegate/fuse"
	"github.com/alfreddev/fusegate/pool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesClientPerDestination(t *testing.T) {
	p := pool.New(pool.Config{MaxConnections: 4, IdleTimeout: time.Second, CleanInterval: time.Second}, zerolog.Nop())
	defer p.Close()

	r := destination.NewRegistry(p, fuse.Config{
		SlideWindow:       10 * time.Second,
		Threshold:         3,
		RecoveryInterval:  time.Second,
		RecoveryThreshold: 1,
		InplaceRetryTimes: 1,
		Timeout:           time.Second,
	}, zerolog.Nop())

	c1 := r.Get("api.example.com:443")
	c2 := r.Get("api.example.com:443")
	require.Same(t, c1, c2)

	c3 := r.Get("other.example.com:443")
	require.NotSame(t, c1, c3)
}
