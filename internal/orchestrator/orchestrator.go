// Package orchestrator coordinates process lifecycle: startup wiring,
// the three background tickers (flush, retention, housekeeping), and a
// bounded graceful shutdown. Scheduled with a single shared *cron.Cron
// instance instead of three hand-rolled time.Ticker loops.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mallardmetrics/mallard/internal/ingestbuf"
	"github.com/mallardmetrics/mallard/internal/logger"
)

// Store is the subset of *store.Store the orchestrator drives directly
// (flush is triggered through the buffer, which owns the store handle;
// retention is a store-only operation with no buffer involvement).
type Store interface {
	CleanupOldPartitions(retentionDays int) error
}

// Housekeepers are the short-critical-section cleanup hooks run every
// 15 minutes: session expiry, cache expiry, and rate-limiter idle
// eviction. None of these touch the hot-tier lock.
type Housekeepers struct {
	CleanupSessions   func()
	CleanupCache      func()
	CleanupRateLimits func()
	CleanupLockouts   func()
}

// Orchestrator owns the shared cron instance and the process-wide
// ingest counter.
type Orchestrator struct {
	cron   *cron.Cron
	buffer *ingestbuf.Buffer
	store  Store
	hk     Housekeepers

	retentionDays       int
	shutdownTimeout     time.Duration
	eventsIngestedTotal atomic.Uint64
}

// New builds an orchestrator wired to buffer (for flush) and store (for
// retention pruning). It does not start any tickers until Start is called.
func New(buffer *ingestbuf.Buffer, store Store, hk Housekeepers, retentionDays int, shutdownTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		cron:            cron.New(),
		buffer:          buffer,
		store:           store,
		hk:              hk,
		retentionDays:   retentionDays,
		shutdownTimeout: shutdownTimeout,
	}
}

// IncrementIngested bumps the monotonic events_ingested_total counter.
// Called exactly once per successful push.
func (o *Orchestrator) IncrementIngested() {
	o.eventsIngestedTotal.Add(1)
}

// EventsIngestedTotal reads the process-wide ingest counter, used by
// the /metrics and /health/detailed collaborators.
func (o *Orchestrator) EventsIngestedTotal() uint64 {
	return o.eventsIngestedTotal.Load()
}

// Start schedules the flush, retention, and housekeeping tickers and
// begins running them in the background. flushInterval must be > 0.
func (o *Orchestrator) Start(flushInterval time.Duration) error {
	flushSpec := fmt.Sprintf("@every %s", flushInterval)
	if _, err := o.cron.AddFunc(flushSpec, o.runFlush); err != nil {
		return fmt.Errorf("schedule flush ticker: %w", err)
	}

	if o.retentionDays > 0 {
		if _, err := o.cron.AddFunc("@every 24h", o.runRetention); err != nil {
			return fmt.Errorf("schedule retention ticker: %w", err)
		}
	}

	if _, err := o.cron.AddFunc("@every 15m", o.runHousekeeping); err != nil {
		return fmt.Errorf("schedule housekeeping ticker: %w", err)
	}

	o.cron.Start()
	logger.Orchestrator().Info().
		Dur("flush_interval", flushInterval).
		Int("retention_days", o.retentionDays).
		Msg("orchestrator tickers started")
	return nil
}

func (o *Orchestrator) runFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := o.buffer.Flush(ctx)
	if err != nil {
		// Logged and retried on the next tick; events remain buffered
		// (or, if the hot-tier insert already committed, remain durable
		// in the hot tier).
		logger.Orchestrator().Error().Err(err).Msg("scheduled flush failed, will retry next tick")
		return
	}
	if n > 0 {
		logger.Orchestrator().Info().Int("flushed", n).Msg("flush tick complete")
	}
}

func (o *Orchestrator) runRetention() {
	if err := o.store.CleanupOldPartitions(o.retentionDays); err != nil {
		logger.Orchestrator().Error().Err(err).Msg("retention cleanup failed")
	}
}

func (o *Orchestrator) runHousekeeping() {
	if o.hk.CleanupSessions != nil {
		o.hk.CleanupSessions()
	}
	if o.hk.CleanupCache != nil {
		o.hk.CleanupCache()
	}
	if o.hk.CleanupRateLimits != nil {
		o.hk.CleanupRateLimits()
	}
	if o.hk.CleanupLockouts != nil {
		o.hk.CleanupLockouts()
	}
}

// Shutdown stops the cron scheduler and attempts one final synchronous
// flush bounded by the orchestrator's shutdown timeout. A timeout here
// is logged, not fatal: durability of the in-memory buffer is
// best-effort on shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	stopCtx := o.cron.Stop()
	<-stopCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, o.shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	var flushed int
	var flushErr error
	go func() {
		flushed, flushErr = o.buffer.Flush(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		if flushErr != nil {
			logger.Orchestrator().Error().Err(flushErr).Msg("final shutdown flush failed")
		} else {
			logger.Orchestrator().Info().Int("flushed", flushed).Msg("final shutdown flush complete")
		}
	case <-shutdownCtx.Done():
		logger.Orchestrator().Warn().
			Int("remaining", o.buffer.Len()).
			Msg("shutdown timeout reached before flush completed; remaining buffered events are lost")
	}
}
