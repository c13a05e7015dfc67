// Command fusegated wires config, logging, the shared connection pool,
// a destination registry, and the HTTP router into one process with
// graceful shutdown. The wiring order and signal handling follow the
// teacher's services/gateway/main.go.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfreddev/fusegate/config"
	"github.com/alfreddev/fusegate/destination"
	"github.com/alfreddev/fusegate/fuse"
	"github.com/alfreddev/fusegate/logger"
	"github.com/alfreddev/fusegate/pool"
	"github.com/alfreddev/fusegate/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("fusegate starting")

	p, _ := destination.NewDefaultPool(pool.Config{
		MaxConnections: cfg.PoolMaxConnections,
		IdleTimeout:    cfg.PoolIdleTimeout,
		CleanInterval:  cfg.PoolCleanInterval,
	}, log)

	registry := destination.NewRegistry(p, fuse.Config{
		SlideWindow:       cfg.FuseSlideWindow,
		Threshold:         cfg.FuseThreshold,
		RecoveryInterval:  cfg.FuseRecoveryInterval,
		RecoveryThreshold: cfg.FuseRecoveryThreshold,
		InplaceRetryTimes: cfg.FuseInplaceRetries,
		Timeout:           cfg.FuseTimeout,
		Coefficient:       cfg.FuseCoefficient,
		LatencyTimeout:    cfg.FuseLatencyTimeout,
	}, log)

	if cfg.RedisURL != "" {
		rc, err := destination.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — falling back to local fuse triggers")
		} else if err := rc.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — falling back to local fuse triggers")
		} else {
			log.Info().Msg("redis connected — sharing fuse trip state across instances")
			registry.UseTriggerFactory(rc.TriggerFactory("fusegate"))
		}
	}

	r := router.New(cfg, log, registry)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.FuseTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("fusegate listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := registry.Close(); err != nil {
		log.Error().Err(err).Msg("registry shutdown failed")
	}
	log.Info().Msg("fusegate stopped")
}
