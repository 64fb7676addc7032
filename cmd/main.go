// Command mallard runs the analytics ingestion and query server:
// hot-tier SQLite storage, a periodic flush to compressed cold-tier
// partitions, the aggregation query layer, and the HTTP surface that
// fronts all of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mallardmetrics/mallard/internal/api"
	"github.com/mallardmetrics/mallard/internal/auth"
	"github.com/mallardmetrics/mallard/internal/config"
	"github.com/mallardmetrics/mallard/internal/ingestbuf"
	"github.com/mallardmetrics/mallard/internal/lockout"
	"github.com/mallardmetrics/mallard/internal/logger"
	"github.com/mallardmetrics/mallard/internal/orchestrator"
	"github.com/mallardmetrics/mallard/internal/query"
	"github.com/mallardmetrics/mallard/internal/querycache"
	"github.com/mallardmetrics/mallard/internal/ratelimit"
	"github.com/mallardmetrics/mallard/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)

	log := logger.Orchestrator()

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log := logger.Orchestrator()
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	buffer := ingestbuf.New(cfg.FlushEventCount, st)

	cache, err := querycache.New(ctx, querycache.Config{
		TTL:       cfg.CacheTTL(),
		LocalSize: cfg.CacheSize,
		RedisAddr: cfg.RedisAddr,
	})
	if err != nil {
		return fmt.Errorf("init query cache: %w", err)
	}
	defer cache.Close()
	if cache.IsShared() {
		log.Info().Str("redis_addr", cfg.RedisAddr).Msg("query cache backed by shared redis tier")
	}

	querier := query.New(st, cache, int64(cfg.QueryWorkers))

	siteLimiter := ratelimit.New(cfg.RateLimitPerSite)
	ipLimiter := ratelimit.New(cfg.RateLimitPerIP)
	loginLockout := lockout.New(cfg.LoginMaxAttempts, cfg.LoginLockoutSecs)

	sessions := auth.NewSessionStore()
	apiKeys := auth.NewAPIKeyStore()

	orch := orchestrator.New(buffer, st, orchestrator.Housekeepers{
		CleanupSessions:   sessions.CleanupExpired,
		CleanupRateLimits: func() { siteLimiter.Cleanup(); ipLimiter.Cleanup() },
		CleanupLockouts:   loginLockout.CleanupExpired,
	}, cfg.RetentionDays, cfg.ShutdownTimeout())

	srv, err := api.New(api.Deps{
		Config:       cfg,
		Store:        st,
		Buffer:       buffer,
		Querier:      querier,
		SiteLimiter:  siteLimiter,
		IPLimiter:    ipLimiter,
		Lockout:      loginLockout,
		Sessions:     sessions,
		APIKeys:      apiKeys,
		Orchestrator: orch,
	})
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	if err := orch.Start(cfg.FlushInterval()); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("mallard listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout()+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	orch.Shutdown(shutdownCtx)
	return nil
}
