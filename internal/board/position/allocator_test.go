package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	t.Run("first card gets one step", func(t *testing.T) {
		assert.Equal(t, int64(1000), Append(0))
	})

	t.Run("positions grow by step", func(t *testing.T) {
		assert.Equal(t, int64(3000), Append(2))
	})
}

func TestBetween(t *testing.T) {
	t.Run("midpoint when room remains", func(t *testing.T) {
		pos, ok := Between(1000, 2000)
		require.True(t, ok)
		assert.Equal(t, int64(1500), pos)
	})

	t.Run("no room when neighbors are adjacent", func(t *testing.T) {
		_, ok := Between(41, 42)
		assert.False(t, ok)
	})

	t.Run("no room when neighbors are equal", func(t *testing.T) {
		_, ok := Between(7, 7)
		assert.False(t, ok)
	})
}

func TestPlanInsert(t *testing.T) {
	t.Run("empty lane appends at step", func(t *testing.T) {
		plan := PlanInsert(nil, 0)
		assert.Equal(t, int64(1000), plan.Position)
		assert.False(t, plan.Rebalanced)
	})

	t.Run("tail insert extends past last position", func(t *testing.T) {
		plan := PlanInsert([]int64{1000, 2000}, 2)
		assert.Equal(t, int64(3000), plan.Position)
	})

	t.Run("head insert halves the first position", func(t *testing.T) {
		plan := PlanInsert([]int64{1000, 2000}, 0)
		require.False(t, plan.Rebalanced)
		assert.Equal(t, int64(500), plan.Position)
	})

	t.Run("middle insert takes the midpoint", func(t *testing.T) {
		plan := PlanInsert([]int64{1000, 2000}, 1)
		require.False(t, plan.Rebalanced)
		assert.Equal(t, int64(1500), plan.Position)
	})

	t.Run("clamps negative index to head", func(t *testing.T) {
		plan := PlanInsert([]int64{1000}, -5)
		assert.Equal(t, 0, plan.Index)
	})

	t.Run("clamps oversized index to tail", func(t *testing.T) {
		plan := PlanInsert([]int64{1000}, 99)
		assert.Equal(t, 1, plan.Index)
		assert.Equal(t, int64(2000), plan.Position)
	})

	t.Run("exhausted gap triggers rebalance", func(t *testing.T) {
		plan := PlanInsert([]int64{1, 2}, 1)
		require.True(t, plan.Rebalanced)
		assert.Equal(t, []int64{1000, 2000, 3000}, plan.Layout)
		assert.Equal(t, int64(2000), plan.Position)
	})

	t.Run("exhausted head gap triggers rebalance", func(t *testing.T) {
		plan := PlanInsert([]int64{1, 1001}, 0)
		require.True(t, plan.Rebalanced)
		assert.Equal(t, int64(1000), plan.Position)
	})
}

// Sequential appends must yield strictly increasing positions in insert order.
func TestAppendSequenceStrictlyIncreasing(t *testing.T) {
	var positions []int64
	for i := 0; i < 50; i++ {
		plan := PlanInsert(positions, len(positions))
		require.False(t, plan.Rebalanced)
		if len(positions) > 0 {
			require.Greater(t, plan.Position, positions[len(positions)-1])
		}
		positions = append(positions, plan.Position)
	}
}

func TestRebalanceIdempotent(t *testing.T) {
	first := Rebalance(7)
	second := Rebalance(len(first))
	assert.Equal(t, first, second)
}
