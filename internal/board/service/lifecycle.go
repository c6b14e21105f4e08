package service

import (
	"context"

	"github.com/google/uuid"

	"boardkit/internal/board/models"
	"boardkit/internal/board/position"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
	"boardkit/pkg/requestcontext"
)

// CreateCard appends a new card to a lane and records its creation audit
// entry in the same transaction.
func (s *BoardService) CreateCard(ctx context.Context, laneID id.LaneID, name string, extra models.ChangeSet) (*models.Card, *models.AuditEntry, error) {
	ctx, span := s.tracer.Start(ctx, "board.CreateCard")
	defer span.End()

	lane, err := s.store.GetLane(ctx, laneID)
	if err != nil {
		err = wrapStoreErr(err, "lane not found")
		s.recordError(err)
		return nil, nil, err
	}
	if err := extra.Validate(); err != nil {
		s.recordError(err)
		return nil, nil, err
	}
	for _, f := range extra.Fields() {
		if f == models.FieldLane || f == models.FieldPosition || f == models.FieldName {
			err := dErrors.New(dErrors.CodeValidation, "field "+string(f)+" is set by creation itself")
			s.recordError(err)
			return nil, nil, err
		}
	}

	existing, err := s.store.ListByLane(ctx, laneID)
	if err != nil {
		err = wrapStoreErr(err, "failed to list lane")
		s.recordError(err)
		return nil, nil, err
	}

	now := requestcontext.Now(ctx)
	card, err := models.NewCard(id.CardID(uuid.New()), laneID, name, position.Append(len(existing)), now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		s.recordError(err)
		return nil, nil, err
	}
	for _, f := range extra.Fields() {
		if err := card.Apply(f, extra[f]); err != nil {
			s.recordError(err)
			return nil, nil, err
		}
	}

	laneName := lane.Name
	entry := s.newAuditEntry(ctx, card.ID, []models.FieldChange{
		{Field: models.FieldName, From: nil, To: &card.Name},
		{Field: models.FieldLane, From: nil, To: &laneName},
	})

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.InsertCard(txCtx, card); err != nil {
			return wrapStoreErr(err, "card name must be unique within its lane")
		}
		if err := s.store.InsertAudit(txCtx, entry); err != nil {
			return wrapStoreErr(err, "failed to record audit entry")
		}
		return nil
	})
	if err != nil {
		s.recordError(err)
		return nil, nil, err
	}

	s.invalidateLanes(ctx, laneID)
	s.publish(entry)
	if s.metrics != nil {
		s.metrics.AuditEntries.Inc()
	}
	s.logger.InfoContext(ctx, "card created",
		"request_id", requestcontext.RequestID(ctx),
		"card_id", card.ID,
		"lane_id", laneID,
	)
	return card, entry, nil
}

// DeleteCard removes a card together with its dependent sub-cards. The
// subtree is collected with an explicit stack (no recursion, so arbitrarily
// deep hierarchies can't exhaust the call stack) and deleted in one
// transaction along with the audit history of every removed card.
func (s *BoardService) DeleteCard(ctx context.Context, cardID id.CardID) error {
	ctx, span := s.tracer.Start(ctx, "board.DeleteCard")
	defer span.End()

	root, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		err = wrapStoreErr(err, "card not found")
		s.recordError(err)
		return err
	}

	doomed := []id.CardID{root.ID}
	lanes := map[id.LaneID]struct{}{root.LaneID: {}}
	seen := map[id.CardID]struct{}{root.ID: {}}
	stack := []id.CardID{root.ID}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children, err := s.store.ListChildren(ctx, parent)
		if err != nil {
			err = wrapStoreErr(err, "failed to collect sub-cards")
			s.recordError(err)
			return err
		}
		for _, child := range children {
			// Guards against parent cycles in stored data; without it a
			// corrupted chain would loop forever.
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			doomed = append(doomed, child.ID)
			lanes[child.LaneID] = struct{}{}
			stack = append(stack, child.ID)
		}
	}

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.DeleteCards(txCtx, doomed); err != nil {
			return wrapStoreErr(err, "failed to delete cards")
		}
		return nil
	})
	if err != nil {
		s.recordError(err)
		return err
	}

	laneIDs := make([]id.LaneID, 0, len(lanes))
	for laneID := range lanes {
		laneIDs = append(laneIDs, laneID)
	}
	s.invalidateLanes(ctx, laneIDs...)
	s.logger.InfoContext(ctx, "card deleted",
		"request_id", requestcontext.RequestID(ctx),
		"card_id", cardID,
		"cascade_count", len(doomed)-1,
	)
	return nil
}

// CreateLane adds a lane to a board, allocating sortOrder as max+1 so
// concurrent creations never end up interleaved.
func (s *BoardService) CreateLane(ctx context.Context, boardID id.BoardID, name, color string) (*models.Lane, error) {
	ctx, span := s.tracer.Start(ctx, "board.CreateLane")
	defer span.End()

	now := requestcontext.Now(ctx)
	var lane *models.Lane
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		max, err := s.store.MaxLaneSortOrder(txCtx, boardID)
		if err != nil {
			return wrapStoreErr(err, "failed to allocate lane order")
		}
		l, err := models.NewLane(id.LaneID(uuid.New()), boardID, name, color, max+1, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.store.InsertLane(txCtx, l); err != nil {
			return wrapStoreErr(err, "lane name must be unique within its board")
		}
		lane = l
		return nil
	})
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "lane created",
		"request_id", requestcontext.RequestID(ctx),
		"lane_id", lane.ID,
		"board_id", boardID,
	)
	return lane, nil
}
