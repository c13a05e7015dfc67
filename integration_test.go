package integration_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alfreddev/fusegate/destination"
	"github.com/alfreddev/fusegate/fuse"
	"github.com/alfreddev/fusegate/pool"
	"github.com/rs/zerolog"
)

// Integration tests require a reachable Redis instance and are skipped
// by default. To run them locally set RUN_FUSEGATE_INTEGRATION=1 and
// point REDIS_URL at a running Redis.
func TestIntegrationSkipByDefault(t *testing.T) {
	if os.Getenv("RUN_FUSEGATE_INTEGRATION") != "1" {
		t.Skip("integration tests skipped; set RUN_FUSEGATE_INTEGRATION=1 to run")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Fatal("REDIS_URL must be set for integration tests")
	}

	rc, err := destination.NewRedisClient(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer rc.Close()
	if err := rc.Ping(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}

	p, factory := destination.NewDefaultPool(pool.Config{
		MaxConnections: 4,
		IdleTimeout:    30 * time.Second,
		CleanInterval:  10 * time.Second,
	}, zerolog.Nop())
	defer factory.Close()
	defer p.Close()

	registry := destination.NewRegistry(p, fuse.Config{
		SlideWindow:       10 * time.Second,
		Threshold:         3,
		RecoveryInterval:  time.Second,
		RecoveryThreshold: 2,
		InplaceRetryTimes: 1,
		Timeout:           5 * time.Second,
		Scheme:            "https",
	}, zerolog.Nop())
	registry.UseTriggerFactory(rc.TriggerFactory("fusegate-itest"))
	defer registry.Close()

	client := registry.Get("httpbin.org:443")
	status, _, err := client.Do(context.Background(), http.MethodGet, "/status/200", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
}
