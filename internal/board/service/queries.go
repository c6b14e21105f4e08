package service

import (
	"context"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

// ListCardsForLane returns a lane's cards ordered by position ascending,
// serving from the read-model cache when possible.
func (s *BoardService) ListCardsForLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, error) {
	if s.cache != nil {
		if cards, ok := s.cache.GetLane(ctx, laneID); ok {
			return cards, nil
		}
	}

	if _, err := s.store.GetLane(ctx, laneID); err != nil {
		return nil, wrapStoreErr(err, "lane not found")
	}
	cards, err := s.store.ListByLane(ctx, laneID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list lane")
	}
	if s.cache != nil {
		s.cache.SetLane(ctx, laneID, cards)
	}
	return cards, nil
}

// ListLanes returns a board's lanes ordered by sortOrder.
func (s *BoardService) ListLanes(ctx context.Context, boardID id.BoardID) ([]*models.Lane, error) {
	lanes, err := s.store.ListLanes(ctx, boardID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list lanes")
	}
	return lanes, nil
}

// ListActivity returns a card's audit entries, newest first.
func (s *BoardService) ListActivity(ctx context.Context, cardID id.CardID) ([]*models.AuditEntry, error) {
	if _, err := s.store.GetCard(ctx, cardID); err != nil {
		return nil, wrapStoreErr(err, "card not found")
	}
	entries, err := s.store.ListAuditByCard(ctx, cardID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list activity")
	}
	return entries, nil
}
