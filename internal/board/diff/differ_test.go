package diff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

type DifferSuite struct {
	suite.Suite
	ctx       context.Context
	laneNames map[id.LaneID]string
	differ    *Differ
}

func (s *DifferSuite) SetupTest() {
	s.ctx = context.Background()
	s.laneNames = make(map[id.LaneID]string)
	s.differ = New(func(_ context.Context, laneID id.LaneID) (string, error) {
		return s.laneNames[laneID], nil
	})
}

func TestDifferSuite(t *testing.T) {
	suite.Run(t, new(DifferSuite))
}

func (s *DifferSuite) newCard() *models.Card {
	card, err := models.NewCard(
		id.CardID(uuid.New()),
		id.LaneID(uuid.New()),
		"Fix bug",
		1000,
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	)
	s.Require().NoError(err)
	return card
}

func (s *DifferSuite) TestNoChanges() {
	s.Run("identical value yields empty diff", func() {
		card := s.newCard()
		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldName: "Fix bug",
		})
		s.Require().NoError(err)
		s.Empty(changes)
	})

	s.Run("explicit null equals absent", func() {
		card := s.newCard() // description unset
		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldDescription: nil,
		})
		s.Require().NoError(err)
		s.Empty(changes)
	})

	s.Run("equivalent due date forms compare equal", func() {
		card := s.newCard()
		due := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		card.DueDate = &due

		inOtherZone := due.In(time.FixedZone("CET", 3600))
		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldDueDate: inOtherZone,
		})
		s.Require().NoError(err)
		s.Empty(changes)
	})
}

func (s *DifferSuite) TestFieldChanges() {
	s.Run("changed name appears with old and new values", func() {
		card := s.newCard()
		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldName: "Fix crash",
		})
		s.Require().NoError(err)
		s.Require().Len(changes, 1)
		s.Equal(models.FieldName, changes[0].Field)
		s.Equal("Fix bug", *changes[0].From)
		s.Equal("Fix crash", *changes[0].To)
	})

	s.Run("cleared field renders null on the to side", func() {
		card := s.newCard()
		desc := "flaky on retry"
		card.Description = &desc

		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldDescription: nil,
		})
		s.Require().NoError(err)
		s.Require().Len(changes, 1)
		s.Equal("flaky on retry", *changes[0].From)
		s.Nil(changes[0].To)
	})

	s.Run("fields appear in canonical order", func() {
		card := s.newCard()
		prio := "low"
		card.Priority = &prio

		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldPriority: "high",
			models.FieldName:     "Fix crash",
		})
		s.Require().NoError(err)
		s.Require().Len(changes, 2)
		s.Equal(models.FieldName, changes[0].Field)
		s.Equal(models.FieldPriority, changes[1].Field)
	})
}

func (s *DifferSuite) TestLaneRendering() {
	s.Run("lane change reports display names not ids", func() {
		card := s.newCard()
		done := id.LaneID(uuid.New())
		s.laneNames[card.LaneID] = "To Do"
		s.laneNames[done] = "Done"

		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldLane: done,
		})
		s.Require().NoError(err)
		s.Require().Len(changes, 1)
		s.Equal("To Do", *changes[0].From)
		s.Equal("Done", *changes[0].To)
	})

	s.Run("unchanged lane yields no entry", func() {
		card := s.newCard()
		changes, err := s.differ.Compute(s.ctx, card, models.ChangeSet{
			models.FieldLane: card.LaneID,
		})
		s.Require().NoError(err)
		s.Empty(changes)
	})
}

func (s *DifferSuite) TestRender() {
	s.Run("joins entries with arrow notation", func() {
		from, to := "To Do", "Done"
		text := Render([]models.FieldChange{
			{Field: models.FieldLane, From: &from, To: &to},
		})
		s.Equal(`status: "To Do" → "Done"`, text)
	})

	s.Run("missing values render the null token", func() {
		val := "2024-06-01T10:00:00Z"
		text := Render([]models.FieldChange{
			{Field: models.FieldDueDate, From: nil, To: &val},
		})
		s.Equal(`dueDate: null → "2024-06-01T10:00:00Z"`, text)
	})

	s.Run("multiple entries are comma separated", func() {
		a, b := "Fix bug", "Fix crash"
		c, d := "low", "high"
		text := Render([]models.FieldChange{
			{Field: models.FieldName, From: &a, To: &b},
			{Field: models.FieldPriority, From: &c, To: &d},
		})
		s.Equal(`name: "Fix bug" → "Fix crash", priority: "low" → "high"`, text)
	})
}
