package models

import (
	"time"

	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
)

// Lane is an ordered column grouping cards by status.
//
// SortOrder values under one board need not be contiguous but must be
// totally ordered. Append-time allocation takes max+1, which resolves ties
// that could otherwise appear transiently during creation.
type Lane struct {
	ID        id.LaneID  `json:"id"`
	BoardID   id.BoardID `json:"board_id"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	SortOrder int64      `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewLane constructs a lane, validating invariants.
func NewLane(laneID id.LaneID, boardID id.BoardID, name, color string, sortOrder int64, now time.Time) (*Lane, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lane name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lane name must be 128 characters or less")
	}
	return &Lane{
		ID:        laneID,
		BoardID:   boardID,
		Name:      name,
		Color:     color,
		SortOrder: sortOrder,
		CreatedAt: now,
	}, nil
}
