package service

import (
	"context"
	"math"

	"boardkit/internal/board/models"
	"boardkit/internal/board/position"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
	"boardkit/pkg/requestcontext"
)

// EditCard applies a set of proposed field changes to a card. A nil audit
// entry with a nil error means no field actually changed and nothing was
// written ("no changes detected" is a success-shaped outcome, not an error).
//
// A lane change submitted through EditCard appends the card to the end of
// the target lane; use MoveCard for index-targeted moves.
func (s *BoardService) EditCard(ctx context.Context, cardID id.CardID, changes models.ChangeSet) (*models.Card, *models.AuditEntry, error) {
	ctx, span := s.tracer.Start(ctx, "board.EditCard")
	defer span.End()

	if err := changes.Validate(); err != nil {
		s.recordError(err)
		return nil, nil, err
	}
	if _, ok := changes[models.FieldPosition]; ok {
		err := dErrors.New(dErrors.CodeValidation, "position cannot be edited directly; move the card instead")
		s.recordError(err)
		return nil, nil, err
	}

	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		err = wrapStoreErr(err, "card not found")
		s.recordError(err)
		return nil, nil, err
	}

	if parentVal, ok := changes[models.FieldParent]; ok && parentVal != nil {
		if err := s.checkParent(ctx, cardID, parentVal.(id.CardID)); err != nil {
			s.recordError(err)
			return nil, nil, err
		}
	}

	// Copy so the caller's change set stays untouched if we add a position.
	proposed := make(models.ChangeSet, len(changes)+1)
	for f, v := range changes {
		proposed[f] = v
	}

	var plan *position.Plan
	var targetLane []*models.Card
	if laneVal, ok := proposed[models.FieldLane]; ok {
		targetLaneID := laneVal.(id.LaneID)
		if targetLaneID != card.LaneID {
			var err error
			// An oversized index clamps to the end of the target lane.
			plan, targetLane, err = s.planLaneInsert(ctx, card, targetLaneID, math.MaxInt)
			if err != nil {
				s.recordError(err)
				return nil, nil, err
			}
			proposed[models.FieldPosition] = plan.Position
		}
	}

	return s.applyMutation(ctx, card, proposed, plan, targetLane, "card edited")
}

// MoveCard places a card at targetIndex within targetLane, allocating a new
// ordering key and rebalancing the lane inside the same transaction when no
// gap remains. Out-of-range indexes clamp to the nearest valid bound.
func (s *BoardService) MoveCard(ctx context.Context, cardID id.CardID, targetLaneID id.LaneID, targetIndex int) (*models.Card, *models.AuditEntry, error) {
	ctx, span := s.tracer.Start(ctx, "board.MoveCard")
	defer span.End()

	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		err = wrapStoreErr(err, "card not found")
		s.recordError(err)
		return nil, nil, err
	}

	plan, targetLane, err := s.planLaneInsert(ctx, card, targetLaneID, targetIndex)
	if err != nil {
		s.recordError(err)
		return nil, nil, err
	}

	proposed := models.ChangeSet{
		models.FieldLane:     targetLaneID,
		models.FieldPosition: plan.Position,
	}
	return s.applyMutation(ctx, card, proposed, plan, targetLane, "card moved")
}

// checkParent verifies a proposed parent reference keeps the card hierarchy
// acyclic: the parent must exist and must not be the card itself or one of
// its descendants. Descent is detected by walking the parent chain upward
// from the proposed parent; hitting the card means the reference would close
// a cycle and make the subtree unreachable from any root.
func (s *BoardService) checkParent(ctx context.Context, cardID, parentID id.CardID) error {
	if parentID == cardID {
		return dErrors.New(dErrors.CodeValidation, "card cannot be its own parent")
	}
	parent, err := s.store.GetCard(ctx, parentID)
	if err != nil {
		return wrapStoreErr(err, "parent card not found")
	}
	seen := map[id.CardID]struct{}{cardID: {}, parentID: {}}
	for parent.ParentID != nil {
		next := *parent.ParentID
		if next == cardID {
			return dErrors.New(dErrors.CodeValidation, "card cannot be parented to one of its own sub-cards")
		}
		if _, ok := seen[next]; ok {
			break
		}
		seen[next] = struct{}{}
		parent, err = s.store.GetCard(ctx, next)
		if err != nil {
			return wrapStoreErr(err, "failed to resolve parent chain")
		}
	}
	return nil
}

// planLaneInsert loads the target lane's cards (excluding the moving card)
// and computes the allocator plan for inserting at targetIndex.
func (s *BoardService) planLaneInsert(ctx context.Context, card *models.Card, targetLaneID id.LaneID, targetIndex int) (*position.Plan, []*models.Card, error) {
	if _, err := s.store.GetLane(ctx, targetLaneID); err != nil {
		return nil, nil, wrapStoreErr(err, "lane not found")
	}
	cards, err := s.store.ListByLane(ctx, targetLaneID)
	if err != nil {
		return nil, nil, wrapStoreErr(err, "failed to list lane")
	}
	// The moving card must not count as its own neighbor on a same-lane move.
	filtered := cards[:0]
	for _, c := range cards {
		if c.ID != card.ID {
			filtered = append(filtered, c)
		}
	}
	plan := position.PlanInsert(lanePositions(filtered), targetIndex)
	return &plan, filtered, nil
}

func lanePositions(cards []*models.Card) []int64 {
	out := make([]int64, len(cards))
	for i, c := range cards {
		out[i] = c.Position
	}
	return out
}

// applyMutation is the single commit path for card mutations: it diffs the
// proposed changes against prior state, short-circuits when nothing
// changed, and otherwise commits the field-scoped update, any rebalance,
// and exactly one audit entry in one transaction.
func (s *BoardService) applyMutation(ctx context.Context, card *models.Card, proposed models.ChangeSet, plan *position.Plan, targetLane []*models.Card, action string) (*models.Card, *models.AuditEntry, error) {
	requestID := requestcontext.RequestID(ctx)

	changes, err := s.differ.Compute(ctx, card, proposed)
	if err != nil {
		s.recordError(err)
		return nil, nil, err
	}
	if len(changes) == 0 {
		if s.metrics != nil {
			s.metrics.NoChanges.Inc()
		}
		s.logger.InfoContext(ctx, "mutation skipped, no changes detected",
			"request_id", requestID,
			"card_id", card.ID,
		)
		return card, nil, nil
	}

	priorLaneID := card.LaneID
	updated := *card
	touched := proposed.Fields()
	for _, f := range touched {
		if err := updated.Apply(f, proposed[f]); err != nil {
			// Constructor-level invariants (e.g. empty name) surface as
			// validation errors at the API boundary.
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				err = dErrors.New(dErrors.CodeValidation, err.Error())
			}
			s.recordError(err)
			return nil, nil, err
		}
	}
	updated.UpdatedAt = requestcontext.Now(ctx)

	entry := s.newAuditEntry(ctx, card.ID, changes)

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if plan != nil && plan.Rebalanced {
			layout := rebalanceLayout(plan, targetLane, card.ID)
			if err := s.store.SetCardPositions(txCtx, layout); err != nil {
				return wrapStoreErr(err, "failed to rebalance lane")
			}
			if s.metrics != nil {
				s.metrics.Rebalances.Inc()
			}
		}
		if err := s.store.UpdateCardFields(txCtx, &updated, touched); err != nil {
			return wrapStoreErr(err, "failed to update card")
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

	s.invalidateLanes(ctx, priorLaneID, updated.LaneID)
	s.publish(entry)
	if s.metrics != nil {
		s.metrics.AuditEntries.Inc()
		if _, moved := proposed[models.FieldPosition]; moved {
			s.metrics.CardsMoved.Inc()
		} else {
			s.metrics.CardsEdited.Inc()
		}
	}
	s.logger.InfoContext(ctx, action,
		"request_id", requestID,
		"card_id", card.ID,
		"fields", len(changes),
		"audit_entry_id", entry.ID,
	)
	return &updated, entry, nil
}

// rebalanceLayout maps the allocator's post-rebalance layout onto card IDs.
// plan.Layout covers the whole target lane in display order with the moved
// card occupying plan.Index.
func rebalanceLayout(plan *position.Plan, targetLane []*models.Card, movedID id.CardID) map[id.CardID]int64 {
	layout := make(map[id.CardID]int64, len(plan.Layout))
	j := 0
	for i, pos := range plan.Layout {
		if i == plan.Index {
			layout[movedID] = pos
			continue
		}
		layout[targetLane[j].ID] = pos
		j++
	}
	return layout
}
