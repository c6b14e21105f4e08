package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

func newTestCache(t *testing.T) (*LaneCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute, nil), mr
}

func testCards(laneID id.LaneID) []*models.Card {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	return []*models.Card{
		{ID: id.CardID(uuid.New()), LaneID: laneID, Position: 1000, Name: "a", CreatedAt: now, UpdatedAt: now},
		{ID: id.CardID(uuid.New()), LaneID: laneID, Position: 2000, Name: "b", CreatedAt: now, UpdatedAt: now},
	}
}

func TestLaneCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	laneID := id.LaneID(uuid.New())

	_, ok := cache.GetLane(ctx, laneID)
	assert.False(t, ok)

	cards := testCards(laneID)
	cache.SetLane(ctx, laneID, cards)

	got, ok := cache.GetLane(ctx, laneID)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, cards[0].ID, got[0].ID)
	assert.Equal(t, cards[1].Position, got[1].Position)
}

func TestLaneCache_InvalidateDropsOnlyNamedLanes(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	laneA := id.LaneID(uuid.New())
	laneB := id.LaneID(uuid.New())

	cache.SetLane(ctx, laneA, testCards(laneA))
	cache.SetLane(ctx, laneB, testCards(laneB))

	cache.Invalidate(ctx, laneA)

	_, ok := cache.GetLane(ctx, laneA)
	assert.False(t, ok)
	_, ok = cache.GetLane(ctx, laneB)
	assert.True(t, ok)
}

func TestLaneCache_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	laneID := id.LaneID(uuid.New())

	cache.SetLane(ctx, laneID, testCards(laneID))
	mr.FastForward(2 * time.Minute)

	_, ok := cache.GetLane(ctx, laneID)
	assert.False(t, ok)
}

func TestLaneCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	laneID := id.LaneID(uuid.New())

	require.NoError(t, mr.Set(keyPrefix+laneID.String(), "not json"))

	_, ok := cache.GetLane(ctx, laneID)
	assert.False(t, ok)
}

func TestLaneCache_RedisDownDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	laneID := id.LaneID(uuid.New())

	cache.SetLane(ctx, laneID, testCards(laneID))
	mr.Close()

	_, ok := cache.GetLane(ctx, laneID)
	assert.False(t, ok, "cache failures degrade to store reads")
}
