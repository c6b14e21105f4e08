package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"boardkit/internal/board/models"
	"boardkit/internal/board/position"
	"boardkit/internal/board/store/memory"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
	"boardkit/pkg/platform/sentinel"
	"boardkit/pkg/requestcontext"
)

type fakeCache struct {
	invalidated []id.LaneID
}

func (c *fakeCache) GetLane(context.Context, id.LaneID) ([]*models.Card, bool) { return nil, false }
func (c *fakeCache) SetLane(context.Context, id.LaneID, []*models.Card)        {}
func (c *fakeCache) Invalidate(_ context.Context, laneIDs ...id.LaneID) {
	c.invalidated = append(c.invalidated, laneIDs...)
}

type primedCache struct {
	lane  id.LaneID
	cards []*models.Card
}

func (c *primedCache) GetLane(_ context.Context, laneID id.LaneID) ([]*models.Card, bool) {
	if laneID == c.lane {
		return c.cards, true
	}
	return nil, false
}
func (c *primedCache) SetLane(context.Context, id.LaneID, []*models.Card) {}
func (c *primedCache) Invalidate(context.Context, ...id.LaneID)           {}

type capturingPublisher struct {
	entries []*models.AuditEntry
}

func (p *capturingPublisher) Publish(entry *models.AuditEntry) {
	p.entries = append(p.entries, entry)
}

type ServiceSuite struct {
	suite.Suite

	ctx       context.Context
	store     *memory.Store
	cache     *fakeCache
	publisher *capturingPublisher
	svc       *BoardService
	board     id.BoardID
	todo      *models.Lane
	done      *models.Lane
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Now())
	s.store = memory.New()
	s.cache = &fakeCache{}
	s.publisher = &capturingPublisher{}
	s.svc = New(s.store,
		WithCache(s.cache),
		WithAuditPublisher(s.publisher),
	)
	s.board = id.BoardID(uuid.New())
	s.todo = s.mustLane("To Do")
	s.done = s.mustLane("Done")
}

func (s *ServiceSuite) mustLane(name string) *models.Lane {
	lane, err := s.svc.CreateLane(s.ctx, s.board, name, "#cccccc")
	s.Require().NoError(err)
	return lane
}

func (s *ServiceSuite) mustCard(lane *models.Lane, name string) *models.Card {
	card, entry, err := s.svc.CreateCard(s.ctx, lane.ID, name, nil)
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	return card
}

func (s *ServiceSuite) TestCreateCardAppendsAndAudits() {
	a := s.mustCard(s.todo, "first")
	b := s.mustCard(s.todo, "second")

	s.EqualValues(position.Step, a.Position)
	s.EqualValues(2*position.Step, b.Position)

	entries, err := s.svc.ListActivity(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Contains(entries[0].Description, "To Do")
}

func (s *ServiceSuite) TestCreateCardUnknownLaneIsNotFound() {
	_, _, err := s.svc.CreateCard(s.ctx, id.LaneID(uuid.New()), "x", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEditCardRecordsDiff() {
	card := s.mustCard(s.todo, "Fix bug")

	updated, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldName: "Fix bug properly",
	})
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal("Fix bug properly", updated.Name)
	s.Contains(entry.Description, `name: "Fix bug" → "Fix bug properly"`)
}

func (s *ServiceSuite) TestEditCardNoChangesPerformsZeroWrites() {
	card := s.mustCard(s.todo, "Fix bug")

	// Arm every write failpoint: if the edit attempts any write, the test
	// fails loudly instead of silently committing.
	for _, op := range []string{"update_card", "insert_audit", "set_positions"} {
		s.store.FailWith(op, sentinel.ErrUnavailable)
	}

	got, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldName: "Fix bug",
	})
	s.Require().NoError(err)
	s.Nil(entry, "no audit entry for a no-op edit")
	s.Equal(card.ID, got.ID)

	entries, err := s.svc.ListActivity(s.ctx, card.ID)
	s.Require().NoError(err)
	s.Len(entries, 1, "only the creation entry exists")
}

func (s *ServiceSuite) TestEditCardNullEqualsAbsent() {
	card := s.mustCard(s.todo, "Fix bug")

	_, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldDescription: nil,
	})
	s.Require().NoError(err)
	s.Nil(entry, "clearing an already-absent field is not a change")
}

func (s *ServiceSuite) TestEditCardRejectsDirectPositionWrite() {
	card := s.mustCard(s.todo, "Fix bug")

	_, _, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldPosition: int64(123),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestMidTransactionFailureLeavesStoreUnchanged() {
	card := s.mustCard(s.todo, "Fix bug")

	// Force a failure after the field update but before the audit insert.
	s.store.FailWith("insert_audit", sentinel.ErrUnavailable)

	_, _, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldName: "renamed",
	})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInternal))

	got, err2 := s.store.GetCard(s.ctx, card.ID)
	s.Require().NoError(err2)
	s.Equal("Fix bug", got.Name, "field update rolled back")

	entries, err2 := s.svc.ListActivity(s.ctx, card.ID)
	s.Require().NoError(err2)
	s.Len(entries, 1, "no audit entry for the failed edit")
	s.Len(s.publisher.entries, 1, "nothing published for the failed edit")
}

func (s *ServiceSuite) TestMoveToEmptyLaneRendersLaneDisplayNames() {
	card := s.mustCard(s.todo, "Card A")

	moved, entry, err := s.svc.MoveCard(s.ctx, card.ID, s.done.ID, 0)
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal(s.done.ID, moved.LaneID)
	s.EqualValues(position.Step, moved.Position)
	s.Contains(entry.Description, `status: "To Do" → "Done"`)
}

func (s *ServiceSuite) TestMoveWithinLaneAuditsPositionChange() {
	a := s.mustCard(s.todo, "a")
	b := s.mustCard(s.todo, "b")

	moved, entry, err := s.svc.MoveCard(s.ctx, b.ID, s.todo.ID, 0)
	s.Require().NoError(err)
	s.Require().NotNil(entry, "same-lane reorders still produce an audit entry")
	s.Less(moved.Position, a.Position)

	cards, err := s.svc.ListCardsForLane(s.ctx, s.todo.ID)
	s.Require().NoError(err)
	s.Equal(b.ID, cards[0].ID)
	s.Equal(a.ID, cards[1].ID)
}

func (s *ServiceSuite) TestMoveOutOfRangeIndexClamps() {
	a := s.mustCard(s.todo, "a")
	s.mustCard(s.todo, "b")

	moved, _, err := s.svc.MoveCard(s.ctx, a.ID, s.todo.ID, 99)
	s.Require().NoError(err)

	cards, err := s.svc.ListCardsForLane(s.ctx, s.todo.ID)
	s.Require().NoError(err)
	s.Equal(a.ID, cards[len(cards)-1].ID)
	s.Equal(moved.Position, cards[len(cards)-1].Position)
}

func (s *ServiceSuite) TestMoveRebalancesWhenNoGapRemains() {
	a := s.mustCard(s.todo, "a")
	b := s.mustCard(s.todo, "b")
	c := s.mustCard(s.todo, "c")

	// Squeeze the first two positions together so inserting between them
	// has no headroom.
	s.Require().NoError(s.store.SetCardPositions(s.ctx, map[id.CardID]int64{
		a.ID: 1000,
		b.ID: 1001,
	}))

	moved, entry, err := s.svc.MoveCard(s.ctx, c.ID, s.todo.ID, 1)
	s.Require().NoError(err)
	s.Require().NotNil(entry)

	cards, err := s.svc.ListCardsForLane(s.ctx, s.todo.ID)
	s.Require().NoError(err)
	s.Require().Len(cards, 3)
	s.Equal([]id.CardID{a.ID, c.ID, b.ID}, []id.CardID{cards[0].ID, cards[1].ID, cards[2].ID})
	for i := 1; i < len(cards); i++ {
		s.Less(cards[i-1].Position, cards[i].Position, "positions strictly increasing after rebalance")
	}
	s.Equal(moved.Position, cards[1].Position)
}

func (s *ServiceSuite) TestEditLaneChangeAppendsToTargetLane() {
	s.mustCard(s.done, "existing")
	card := s.mustCard(s.todo, "moving")

	moved, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldLane: s.done.ID,
	})
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal(s.done.ID, moved.LaneID)

	cards, err := s.svc.ListCardsForLane(s.ctx, s.done.ID)
	s.Require().NoError(err)
	s.Equal(card.ID, cards[len(cards)-1].ID, "lane edits append to the end")
}

func (s *ServiceSuite) TestDuplicateNameSurfacesAsConflict() {
	s.mustCard(s.todo, "Fix bug")
	card := s.mustCard(s.todo, "Other")

	_, _, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldName: "Fix bug",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestMutationInvalidatesTouchedLanes() {
	card := s.mustCard(s.todo, "Card A")
	s.cache.invalidated = nil

	_, _, err := s.svc.MoveCard(s.ctx, card.ID, s.done.ID, 0)
	s.Require().NoError(err)
	s.Contains(s.cache.invalidated, s.todo.ID)
	s.Contains(s.cache.invalidated, s.done.ID)
}

func (s *ServiceSuite) TestCommittedEntriesArePublished() {
	card := s.mustCard(s.todo, "Card A")
	before := len(s.publisher.entries)

	_, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldName: "Card B",
	})
	s.Require().NoError(err)
	s.Require().Len(s.publisher.entries, before+1)
	s.Equal(entry.ID, s.publisher.entries[before].ID)
}

func (s *ServiceSuite) TestDeleteCardCascadesThroughDeepHierarchy() {
	root := s.mustCard(s.todo, "root")

	// Build a linear chain of sub-cards deep enough that recursive deletion
	// would be a stack hazard.
	parent := root.ID
	var all []id.CardID
	for i := 0; i < 200; i++ {
		child := s.mustCard(s.todo, "child-"+uuid.NewString())
		_, _, err := s.svc.EditCard(s.ctx, child.ID, models.ChangeSet{
			models.FieldParent: parent,
		})
		s.Require().NoError(err)
		all = append(all, child.ID)
		parent = child.ID
	}

	s.Require().NoError(s.svc.DeleteCard(s.ctx, root.ID))

	_, err := s.svc.ListActivity(s.ctx, root.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	for _, cardID := range all {
		_, err := s.store.GetCard(s.ctx, cardID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	}
}

func (s *ServiceSuite) TestEditCardRejectsSelfParent() {
	card := s.mustCard(s.todo, "Fix bug")

	_, _, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldParent: card.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	got, err := s.store.GetCard(s.ctx, card.ID)
	s.Require().NoError(err)
	s.Nil(got.ParentID)
}

func (s *ServiceSuite) TestEditCardRejectsDescendantParent() {
	root := s.mustCard(s.todo, "root")
	child := s.mustCard(s.todo, "child")
	grandchild := s.mustCard(s.todo, "grandchild")

	_, _, err := s.svc.EditCard(s.ctx, child.ID, models.ChangeSet{
		models.FieldParent: root.ID,
	})
	s.Require().NoError(err)
	_, _, err = s.svc.EditCard(s.ctx, grandchild.ID, models.ChangeSet{
		models.FieldParent: child.ID,
	})
	s.Require().NoError(err)

	// Parenting the root under its own grandchild would close a cycle.
	_, _, err = s.svc.EditCard(s.ctx, root.ID, models.ChangeSet{
		models.FieldParent: grandchild.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestEditCardRejectsUnknownParent() {
	card := s.mustCard(s.todo, "Fix bug")

	_, _, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldParent: id.CardID(uuid.New()),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteCardTerminatesOnStoredParentCycle() {
	a := s.mustCard(s.todo, "a")
	b := s.mustCard(s.todo, "b")
	_, _, err := s.svc.EditCard(s.ctx, b.ID, models.ChangeSet{
		models.FieldParent: a.ID,
	})
	s.Require().NoError(err)

	// Close the cycle behind the service's back; the delete walk must still
	// terminate and take both cards with it.
	corrupted := *a
	corrupted.ParentID = &b.ID
	s.Require().NoError(s.store.UpdateCardFields(s.ctx, &corrupted, []models.Field{models.FieldParent}))

	s.Require().NoError(s.svc.DeleteCard(s.ctx, a.ID))

	_, err = s.store.GetCard(s.ctx, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.GetCard(s.ctx, b.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteCardFailureRollsBack() {
	card := s.mustCard(s.todo, "Fix bug")
	s.store.FailWith("delete_cards", sentinel.ErrUnavailable)

	err := s.svc.DeleteCard(s.ctx, card.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.store.GetCard(s.ctx, card.ID)
	s.NoError(err, "card survives the failed delete")
}

func (s *ServiceSuite) TestCreateLaneAllocatesMaxPlusOne() {
	review := s.mustLane("Review")
	s.Equal(s.todo.SortOrder+2, review.SortOrder)

	lanes, err := s.svc.ListLanes(s.ctx, s.board)
	s.Require().NoError(err)
	s.Require().Len(lanes, 3)
	names := make([]string, len(lanes))
	for i, lane := range lanes {
		names[i] = lane.Name
	}
	s.Equal([]string{"To Do", "Done", "Review"}, names)
}

func (s *ServiceSuite) TestCreateLaneDuplicateNameConflicts() {
	_, err := s.svc.CreateLane(s.ctx, s.board, "to do", "#ffffff")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestActorRecordedOnAuditEntry() {
	actor := id.UserID(uuid.New())
	ctx := requestcontext.WithActorID(s.ctx, actor)

	card, entry, err := s.svc.CreateCard(ctx, s.todo.ID, "Fix bug", nil)
	s.Require().NoError(err)
	s.Require().NotNil(entry.ActorID)
	s.Equal(actor, *entry.ActorID)

	entries, err := s.svc.ListActivity(s.ctx, card.ID)
	s.Require().NoError(err)
	s.Require().NotNil(entries[0].ActorID)
	s.Equal(actor, *entries[0].ActorID)
}

func (s *ServiceSuite) TestPositionsStrictlyIncreasingAcrossInsertSequences() {
	// Repeatedly insert at the front, middle and back; the displayed order
	// must always carry strictly increasing positions.
	for i := 0; i < 12; i++ {
		card := s.mustCard(s.todo, "card-"+uuid.NewString())
		_, _, err := s.svc.MoveCard(s.ctx, card.ID, s.todo.ID, i%3)
		s.Require().NoError(err)

		cards, err := s.svc.ListCardsForLane(s.ctx, s.todo.ID)
		s.Require().NoError(err)
		for j := 1; j < len(cards); j++ {
			s.Require().Less(cards[j-1].Position, cards[j].Position)
		}
	}
}

func (s *ServiceSuite) TestListCardsForLaneServesFromCache() {
	card := s.mustCard(s.todo, "cached")
	primed := &primedCache{lane: s.todo.ID, cards: []*models.Card{card}}
	svc := New(s.store, WithCache(primed))

	// A cache hit must not touch the store: a lane the store has never
	// seen still resolves from the cache.
	primed.lane = id.LaneID(uuid.New())
	cards, err := svc.ListCardsForLane(s.ctx, primed.lane)
	s.Require().NoError(err)
	s.Require().Len(cards, 1)
	s.Equal(card.ID, cards[0].ID)
}

func (s *ServiceSuite) TestDiffRendersDueDateChanges() {
	card := s.mustCard(s.todo, "Fix bug")
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, entry, err := s.svc.EditCard(s.ctx, card.ID, models.ChangeSet{
		models.FieldDueDate: due,
	})
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.True(strings.Contains(entry.Description, "2026-03-01T09:00:00Z"), entry.Description)
	s.Contains(entry.Description, "null")
}
