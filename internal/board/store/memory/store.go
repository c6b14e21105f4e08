// Package memory provides the in-memory persistence gateway. It backs unit
// tests and local development, and defines the transactional semantics the
// postgres store must match: RunInTx is all-or-nothing, so a failed
// mutation leaves cards and audit entries exactly as they were.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
	"boardkit/pkg/platform/sentinel"
)

// txMarker marks a context as running inside RunInTx, so store operations
// invoked from the transaction callback don't re-acquire the held mutex.
type txMarker struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarker{}).(bool)
	return v
}

// Store keeps cards, lanes and audit entries in maps guarded by one mutex.
// It intentionally favors clarity over performance.
type Store struct {
	mu      sync.RWMutex
	cards   map[id.CardID]*models.Card
	lanes   map[id.LaneID]*models.Lane
	entries map[id.CardID][]*models.AuditEntry

	// failpoints maps an operation name to an error returned when the
	// operation next runs. Tests use this to force mid-transaction failures.
	failpoints map[string]error
}

func New() *Store {
	return &Store{
		cards:      make(map[id.CardID]*models.Card),
		lanes:      make(map[id.LaneID]*models.Lane),
		entries:    make(map[id.CardID][]*models.AuditEntry),
		failpoints: make(map[string]error),
	}
}

// FailWith arms a failpoint: the next call to the named operation
// ("insert_card", "insert_audit", "update_card", "set_positions",
// "delete_cards") returns err. Test hook only.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failpoints[op] = err
}

func (s *Store) trip(op string) error {
	if err, ok := s.failpoints[op]; ok {
		delete(s.failpoints, op)
		return err
	}
	return nil
}

// RunInTx executes fn with the store locked and restores the pre-transaction
// snapshot if fn fails. Writes issued inside fn are visible to reads in the
// same transaction and discarded atomically on error.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapCards := cloneCards(s.cards)
	snapLanes := cloneLanes(s.lanes)
	snapEntries := cloneEntries(s.entries)

	err := fn(context.WithValue(ctx, txMarker{}, true))

	if err != nil {
		s.cards = snapCards
		s.lanes = snapLanes
		s.entries = snapEntries
		return err
	}
	return nil
}

// lock acquires the store mutex unless an enclosing RunInTx already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*models.Card, error) {
	defer s.rlock(ctx)()
	card, ok := s.cards[cardID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *card
	return &c, nil
}

func (s *Store) GetLane(ctx context.Context, laneID id.LaneID) (*models.Lane, error) {
	defer s.rlock(ctx)()
	lane, ok := s.lanes[laneID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	l := *lane
	return &l, nil
}

// ListByLane returns the lane's cards ordered by position ascending, card ID
// as a stable tiebreak so equal positions are never silently dropped.
func (s *Store) ListByLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, error) {
	defer s.rlock(ctx)()
	var out []*models.Card
	for _, card := range s.cards {
		if card.LaneID == laneID {
			c := *card
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ListLanes(ctx context.Context, boardID id.BoardID) ([]*models.Lane, error) {
	defer s.rlock(ctx)()
	var out []*models.Lane
	for _, lane := range s.lanes {
		if lane.BoardID == boardID {
			l := *lane
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *Store) MaxLaneSortOrder(ctx context.Context, boardID id.BoardID) (int64, error) {
	defer s.rlock(ctx)()
	var max int64
	for _, lane := range s.lanes {
		if lane.BoardID == boardID && lane.SortOrder > max {
			max = lane.SortOrder
		}
	}
	return max, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID id.CardID) ([]*models.Card, error) {
	defer s.rlock(ctx)()
	var out []*models.Card
	for _, card := range s.cards {
		if card.ParentID != nil && *card.ParentID == parentID {
			c := *card
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) ListAuditByCard(ctx context.Context, cardID id.CardID) ([]*models.AuditEntry, error) {
	defer s.rlock(ctx)()
	entries := s.entries[cardID]
	out := make([]*models.AuditEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	// Newest first; entries per card are appended in commit order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InsertCard(ctx context.Context, card *models.Card) error {
	defer s.lock(ctx)()
	if err := s.trip("insert_card"); err != nil {
		return err
	}
	if _, ok := s.cards[card.ID]; ok {
		return sentinel.ErrConflict
	}
	if s.nameTaken(card.LaneID, card.Name, card.ID) {
		return sentinel.ErrConflict
	}
	c := *card
	s.cards[card.ID] = &c
	return nil
}

func (s *Store) InsertLane(ctx context.Context, lane *models.Lane) error {
	defer s.lock(ctx)()
	if err := s.trip("insert_lane"); err != nil {
		return err
	}
	for _, existing := range s.lanes {
		if existing.BoardID == lane.BoardID && strings.EqualFold(existing.Name, lane.Name) {
			return sentinel.ErrConflict
		}
	}
	l := *lane
	s.lanes[lane.ID] = &l
	return nil
}

// UpdateCardFields writes only the named fields from card onto the stored
// row, leaving attributes the caller never touched alone.
func (s *Store) UpdateCardFields(ctx context.Context, card *models.Card, fields []models.Field) error {
	defer s.lock(ctx)()
	if err := s.trip("update_card"); err != nil {
		return err
	}
	stored, ok := s.cards[card.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, f := range fields {
		// Uniqueness holds in the lane the card ends up in, matching the
		// (lane_id, name) constraint the postgres store enforces.
		if f == models.FieldName || f == models.FieldLane {
			if s.nameTaken(card.LaneID, card.Name, card.ID) {
				return sentinel.ErrConflict
			}
			break
		}
	}
	for _, f := range fields {
		if err := stored.Apply(f, card.Value(f)); err != nil {
			return err
		}
	}
	stored.UpdatedAt = card.UpdatedAt
	return nil
}

// SetCardPositions bulk-writes a rebalanced layout.
func (s *Store) SetCardPositions(ctx context.Context, positions map[id.CardID]int64) error {
	defer s.lock(ctx)()
	if err := s.trip("set_positions"); err != nil {
		return err
	}
	for cardID := range positions {
		if _, ok := s.cards[cardID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for cardID, pos := range positions {
		s.cards[cardID].Position = pos
	}
	return nil
}

func (s *Store) InsertAudit(ctx context.Context, entry *models.AuditEntry) error {
	defer s.lock(ctx)()
	if err := s.trip("insert_audit"); err != nil {
		return err
	}
	e := *entry
	e.Diff = append([]models.FieldChange(nil), entry.Diff...)
	s.entries[entry.CardID] = append(s.entries[entry.CardID], &e)
	return nil
}

// DeleteCards removes the cards and their audit history.
func (s *Store) DeleteCards(ctx context.Context, cardIDs []id.CardID) error {
	defer s.lock(ctx)()
	if err := s.trip("delete_cards"); err != nil {
		return err
	}
	for _, cardID := range cardIDs {
		delete(s.cards, cardID)
		delete(s.entries, cardID)
	}
	return nil
}

func (s *Store) nameTaken(laneID id.LaneID, name string, exclude id.CardID) bool {
	for _, card := range s.cards {
		if card.ID != exclude && card.LaneID == laneID && strings.EqualFold(card.Name, name) {
			return true
		}
	}
	return false
}

func cloneCards(in map[id.CardID]*models.Card) map[id.CardID]*models.Card {
	out := make(map[id.CardID]*models.Card, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

func cloneLanes(in map[id.LaneID]*models.Lane) map[id.LaneID]*models.Lane {
	out := make(map[id.LaneID]*models.Lane, len(in))
	for k, v := range in {
		l := *v
		out[k] = &l
	}
	return out
}

func cloneEntries(in map[id.CardID][]*models.AuditEntry) map[id.CardID][]*models.AuditEntry {
	out := make(map[id.CardID][]*models.AuditEntry, len(in))
	for k, v := range in {
		entries := make([]*models.AuditEntry, len(v))
		for i, e := range v {
			c := *e
			entries[i] = &c
		}
		out[k] = entries
	}
	return out
}
