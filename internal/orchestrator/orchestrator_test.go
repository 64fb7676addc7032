package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mallardmetrics/mallard/internal/ingestbuf"
	"github.com/mallardmetrics/mallard/internal/models"
)

type fakeStore struct {
	inserted         [][]models.Event
	flushed          int
	flushErr         error
	cleanupRetention int
	cleanupCalled    bool
}

func (f *fakeStore) InsertHot(ctx context.Context, events []models.Event) error {
	f.inserted = append(f.inserted, events)
	return nil
}

func (f *fakeStore) FlushEvents(ctx context.Context) (int, error) {
	if f.flushErr != nil {
		return 0, f.flushErr
	}
	return f.flushed, nil
}

func (f *fakeStore) CleanupOldPartitions(retentionDays int) error {
	f.cleanupCalled = true
	f.cleanupRetention = retentionDays
	return nil
}

func TestIngestCounterIncrementsAndReads(t *testing.T) {
	store := &fakeStore{}
	buf := ingestbuf.New(10, store)
	o := New(buf, store, Housekeepers{}, 0, time.Second)

	assert.Equal(t, uint64(0), o.EventsIngestedTotal())
	o.IncrementIngested()
	o.IncrementIngested()
	assert.Equal(t, uint64(2), o.EventsIngestedTotal())
}

func TestShutdownFlushesRemainingEvents(t *testing.T) {
	store := &fakeStore{flushed: 1}
	buf := ingestbuf.New(10, store)
	o := New(buf, store, Housekeepers{}, 0, time.Second)

	_, _, err := buf.Push(context.Background(), models.Event{SiteID: "a", VisitorID: "v"})
	assert.NoError(t, err)
	assert.Equal(t, 1, buf.Len())

	o.Shutdown(context.Background())
	assert.Equal(t, 0, buf.Len())
	assert.Len(t, store.inserted, 1)
}

func TestHousekeepingCallsAllHooks(t *testing.T) {
	store := &fakeStore{}
	buf := ingestbuf.New(10, store)

	var sessionsCalled, cacheCalled, rateCalled, lockoutCalled bool
	o := New(buf, store, Housekeepers{
		CleanupSessions:   func() { sessionsCalled = true },
		CleanupCache:      func() { cacheCalled = true },
		CleanupRateLimits: func() { rateCalled = true },
		CleanupLockouts:   func() { lockoutCalled = true },
	}, 0, time.Second)

	o.runHousekeeping()

	assert.True(t, sessionsCalled)
	assert.True(t, cacheCalled)
	assert.True(t, rateCalled)
	assert.True(t, lockoutCalled)
}

func TestRunRetentionInvokesStoreCleanup(t *testing.T) {
	store := &fakeStore{}
	buf := ingestbuf.New(10, store)
	o := New(buf, store, Housekeepers{}, 30, time.Second)

	o.runRetention()

	assert.True(t, store.cleanupCalled)
	assert.Equal(t, 30, store.cleanupRetention)
}

func TestStartSchedulesFlushTickerWithoutError(t *testing.T) {
	store := &fakeStore{}
	buf := ingestbuf.New(10, store)
	o := New(buf, store, Housekeepers{}, 0, time.Second)

	err := o.Start(100 * time.Millisecond)
	assert.NoError(t, err)
	o.Shutdown(context.Background())
}
