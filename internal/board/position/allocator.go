// Package position computes lane-relative ordering keys for cards.
//
// Keys are spaced integers so most inserts touch a single row. When two
// neighbors leave no room, the whole lane is renumbered in display order;
// callers must run that renumbering inside the same transaction as the
// triggering write so partial layouts are never observable.
package position

// Step is the gap left between consecutive positions. Appends and
// rebalances allocate multiples of Step so later inserts have headroom.
const Step int64 = 1000

// Append returns the position for a card appended to a lane that already
// holds existingCount cards.
func Append(existingCount int) int64 {
	return int64(existingCount+1) * Step
}

// Between returns the midpoint position between neighbors a < b. ok is
// false when no integer gap remains (b-a <= 1) and the lane needs a
// rebalance instead.
func Between(a, b int64) (pos int64, ok bool) {
	if b-a <= 1 {
		return 0, false
	}
	return a + (b-a)/2, true
}

// Rebalance recomputes positions for a full lane in current display order,
// re-applying the append rule. Idempotent: rebalancing an already balanced
// lane returns the same layout.
func Rebalance(count int) []int64 {
	out := make([]int64, count)
	for i := range out {
		out[i] = Append(i)
	}
	return out
}

// Plan describes where a card lands inside a lane and whether the whole
// lane must be renumbered to make room.
type Plan struct {
	// Index is the clamped target index the card occupies after the move.
	Index int
	// Position is the card's new ordering key. When Rebalanced is true it
	// equals Layout[Index].
	Position int64
	// Rebalanced reports that Layout holds new positions for every card in
	// the lane, with the moved card at Index.
	Rebalanced bool
	// Layout are the lane's positions after a rebalance, in display order
	// including the inserted card.
	Layout []int64
}

// PlanInsert computes the ordering key for a card inserted at targetIndex
// into a lane whose current positions (ascending, moved card excluded) are
// given. Out-of-range indexes clamp to the nearest valid bound.
func PlanInsert(positions []int64, targetIndex int) Plan {
	n := len(positions)
	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > n {
		targetIndex = n
	}

	switch {
	case n == 0:
		return Plan{Index: 0, Position: Append(0)}
	case targetIndex == n:
		return Plan{Index: targetIndex, Position: positions[n-1] + Step}
	case targetIndex == 0:
		half := positions[0] / 2
		if half > 0 && half < positions[0] {
			return Plan{Index: 0, Position: half}
		}
	default:
		if pos, ok := Between(positions[targetIndex-1], positions[targetIndex]); ok {
			return Plan{Index: targetIndex, Position: pos}
		}
	}

	// No gap at the target slot: renumber the lane with the card in place.
	layout := Rebalance(n + 1)
	return Plan{
		Index:      targetIndex,
		Position:   layout[targetIndex],
		Rebalanced: true,
		Layout:     layout,
	}
}
