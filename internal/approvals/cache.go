package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline/internal/documents"
)

// ApproverCache caches the per-location approver list in Redis. Limits change
// rarely and the list is consulted on every suggestion call, so a short TTL
// keeps the directory collaborator off the hot path. Concurrent misses for
// the same location collapse into one directory call.
type ApproverCache struct {
	directory documents.Directory
	rdb       *redis.Client
	ttl       time.Duration
	group     singleflight.Group
}

// NewApproverCache wraps the directory with a Redis-backed cache. A nil
// client disables caching and passes every call through.
func NewApproverCache(directory documents.Directory, rdb *redis.Client, ttl time.Duration) *ApproverCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ApproverCache{directory: directory, rdb: rdb, ttl: ttl}
}

func approverKey(locationID int64) string {
	return fmt.Sprintf("approvers:location:%d", locationID)
}

// ApproversAt returns the approvers for a location, reading through the cache.
func (c *ApproverCache) ApproversAt(ctx context.Context, locationID int64) ([]documents.Approver, error) {
	if c.rdb == nil {
		return c.directory.ApproversAt(ctx, locationID)
	}

	key := approverKey(locationID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []documents.Approver
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry, fall through to a fresh load.
		_ = c.rdb.Del(ctx, key).Err()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		approvers, err := c.directory.ApproversAt(ctx, locationID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(approvers); err == nil {
			_ = c.rdb.Set(ctx, key, raw, c.ttl).Err()
		}
		return approvers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]documents.Approver), nil
}

// Invalidate drops the cached list for a location.
func (c *ApproverCache) Invalidate(ctx context.Context, locationID int64) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, approverKey(locationID)).Err()
}
