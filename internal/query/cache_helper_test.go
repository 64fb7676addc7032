package query

import (
	"context"
	"time"

	"github.com/mallardmetrics/mallard/internal/querycache"
)

func newTestCache(ctx context.Context) (*querycache.Cache, error) {
	return querycache.New(ctx, querycache.Config{TTL: time.Minute, LocalSize: 100})
}
