// Package client implements the client-resident side of the board: an
// owned per-session state store plus the coordinator that applies moves and
// edits optimistically and reconciles them with the authoritative outcome.
package client

import (
	"sort"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

// State is the session's local view of the board: cards, the display order
// of each lane, and the activity feed per card. It is deliberately not
// safe for concurrent use on its own; the owning Coordinator serializes all
// access. Every mutation funnels through place and apply so revert logic
// has a single code path to undo.
type State struct {
	cards    map[id.CardID]*models.Card
	order    map[id.LaneID][]id.CardID
	activity map[id.CardID][]*models.AuditEntry
}

func NewState() *State {
	return &State{
		cards:    make(map[id.CardID]*models.Card),
		order:    make(map[id.LaneID][]id.CardID),
		activity: make(map[id.CardID][]*models.AuditEntry),
	}
}

// Seed loads server-fetched cards, ordering each lane by position with the
// card ID as tiebreak.
func (st *State) Seed(cards []*models.Card) {
	sorted := append([]*models.Card(nil), cards...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	for _, card := range sorted {
		c := *card
		st.cards[c.ID] = &c
		st.order[c.LaneID] = append(st.order[c.LaneID], c.ID)
	}
}

// SeedActivity loads a card's server-fetched audit entries (newest first).
func (st *State) SeedActivity(cardID id.CardID, entries []*models.AuditEntry) {
	st.activity[cardID] = append([]*models.AuditEntry(nil), entries...)
}

func (st *State) card(cardID id.CardID) (*models.Card, bool) {
	card, ok := st.cards[cardID]
	return card, ok
}

// placement reports which lane a card is displayed in and at which index.
func (st *State) placement(cardID id.CardID) (id.LaneID, int, bool) {
	card, ok := st.cards[cardID]
	if !ok {
		return id.LaneID{}, 0, false
	}
	for i, cid := range st.order[card.LaneID] {
		if cid == cardID {
			return card.LaneID, i, true
		}
	}
	return id.LaneID{}, 0, false
}

// place moves a card to index within laneID, clamping the index to the
// lane's bounds. This is the only function that touches lane order.
func (st *State) place(cardID id.CardID, laneID id.LaneID, index int) {
	card, ok := st.cards[cardID]
	if !ok {
		return
	}
	st.order[card.LaneID] = remove(st.order[card.LaneID], cardID)
	card.LaneID = laneID

	lane := st.order[laneID]
	if index < 0 {
		index = 0
	}
	if index > len(lane) {
		index = len(lane)
	}
	lane = append(lane, id.CardID{})
	copy(lane[index+1:], lane[index:])
	lane[index] = cardID
	st.order[laneID] = lane
}

// placeByPosition inserts a card into laneID ordered by the given position
// key relative to the other cards' keys. Used for reverts, where the
// confirmed snapshot carries a position rather than a display index.
func (st *State) placeByPosition(cardID id.CardID, laneID id.LaneID, pos int64) {
	index := 0
	for _, cid := range st.order[laneID] {
		if cid == cardID {
			continue
		}
		if other, ok := st.cards[cid]; ok && other.Position < pos {
			index++
		}
	}
	st.place(cardID, laneID, index)
	if card, ok := st.cards[cardID]; ok {
		card.Position = pos
	}
}

// apply writes field values onto the local card. The coordinator uses it
// both for optimistic edits and for reverting snapshotted fields.
func (st *State) apply(cardID id.CardID, fields map[models.Field]any) error {
	card, ok := st.cards[cardID]
	if !ok {
		return nil
	}
	for f, v := range fields {
		if f == models.FieldLane || f == models.FieldPosition {
			continue
		}
		if err := card.Apply(f, v); err != nil {
			return err
		}
	}
	return nil
}

// refresh replaces the local card with the server-confirmed row, keeping
// the card's slot in the lane order.
func (st *State) refresh(card *models.Card) {
	existing, ok := st.cards[card.ID]
	if !ok {
		return
	}
	c := *card
	if c.LaneID != existing.LaneID {
		st.order[existing.LaneID] = remove(st.order[existing.LaneID], card.ID)
		st.order[c.LaneID] = append(st.order[c.LaneID], card.ID)
	}
	st.cards[card.ID] = &c
}

func (st *State) prependActivity(cardID id.CardID, entry *models.AuditEntry) {
	st.activity[cardID] = append([]*models.AuditEntry{entry}, st.activity[cardID]...)
}

func (st *State) cardsInLane(laneID id.LaneID) []*models.Card {
	out := make([]*models.Card, 0, len(st.order[laneID]))
	for _, cid := range st.order[laneID] {
		if card, ok := st.cards[cid]; ok {
			c := *card
			out = append(out, &c)
		}
	}
	return out
}

func remove(ids []id.CardID, target id.CardID) []id.CardID {
	out := ids[:0]
	for _, cid := range ids {
		if cid != target {
			out = append(out, cid)
		}
	}
	return out
}
