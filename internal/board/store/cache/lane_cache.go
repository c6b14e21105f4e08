// Package cache holds the redis-backed lane read model. Lane listings are
// the hot read path of the board; the cache keeps them off postgres between
// mutations. Cache failures degrade to store reads and are never fatal.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

const keyPrefix = "boardkit:lane:"

// LaneCache caches the ordered card list per lane.
type LaneCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// New constructs a lane cache. logger may be nil.
func New(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *LaneCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LaneCache{client: client, ttl: ttl, logger: logger}
}

func laneKey(laneID id.LaneID) string {
	return keyPrefix + laneID.String()
}

// GetLane returns the cached card list for a lane. ok is false on miss or
// on any redis/decoding failure.
func (c *LaneCache) GetLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, bool) {
	raw, err := c.client.Get(ctx, laneKey(laneID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "lane cache read failed", "lane_id", laneID, "error", err)
		}
		return nil, false
	}
	var cards []*models.Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		c.logger.WarnContext(ctx, "lane cache entry corrupt", "lane_id", laneID, "error", err)
		return nil, false
	}
	return cards, true
}

// SetLane stores the ordered card list for a lane.
func (c *LaneCache) SetLane(ctx context.Context, laneID id.LaneID, cards []*models.Card) {
	raw, err := json.Marshal(cards)
	if err != nil {
		c.logger.WarnContext(ctx, "lane cache encode failed", "lane_id", laneID, "error", err)
		return
	}
	if err := c.client.Set(ctx, laneKey(laneID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "lane cache write failed", "lane_id", laneID, "error", err)
	}
}

// Invalidate drops the cached listings for the given lanes. Called after
// every committed mutation touching those lanes.
func (c *LaneCache) Invalidate(ctx context.Context, laneIDs ...id.LaneID) {
	if len(laneIDs) == 0 {
		return
	}
	keys := make([]string, len(laneIDs))
	for i, laneID := range laneIDs {
		keys[i] = laneKey(laneID)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WarnContext(ctx, "lane cache invalidation failed", "error", err)
	}
}
