package models

import (
	"time"

	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
)

// Card is a unit of work on the board.
//
// Invariants:
//   - Name is non-empty and at most 255 characters
//   - A card belongs to exactly one lane at any instant (never zero, never
//     many); cross-lane moves swap the lane reference inside one transaction
//   - Position is unique within the lane; readers break ties by ID so equal
//     positions are never silently dropped
//   - CreatedAt is immutable after construction
type Card struct {
	ID          id.CardID   `json:"id"`
	LaneID      id.LaneID   `json:"lane_id"`
	Position    int64       `json:"position"`
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	Priority    *string     `json:"priority,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	AssigneeID  *id.UserID  `json:"assignee_id,omitempty"`
	ParentID    *id.CardID  `json:"parent_id,omitempty"`
	ListID      *id.BoardID `json:"list_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewCard constructs a card in its initial lane, validating invariants.
func NewCard(cardID id.CardID, laneID id.LaneID, name string, position int64, now time.Time) (*Card, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Card{
		ID:        cardID,
		LaneID:    laneID,
		Position:  position,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "card name cannot be empty")
	}
	if len(name) > 255 {
		return dErrors.New(dErrors.CodeInvariantViolation, "card name must be 255 characters or less")
	}
	return nil
}

// Value returns the card's current value for a mutable field. The result is
// nil for unset optional fields, matching the differ's null normalization.
func (c *Card) Value(f Field) any {
	switch f {
	case FieldName:
		return c.Name
	case FieldDescription:
		if c.Description == nil {
			return nil
		}
		return *c.Description
	case FieldPriority:
		if c.Priority == nil {
			return nil
		}
		return *c.Priority
	case FieldDueDate:
		if c.DueDate == nil {
			return nil
		}
		return *c.DueDate
	case FieldAssignee:
		if c.AssigneeID == nil {
			return nil
		}
		return *c.AssigneeID
	case FieldParent:
		if c.ParentID == nil {
			return nil
		}
		return *c.ParentID
	case FieldLane:
		return c.LaneID
	case FieldList:
		if c.ListID == nil {
			return nil
		}
		return *c.ListID
	case FieldPosition:
		return c.Position
	}
	return nil
}

// Apply sets a single field from a change set value. Values must already
// have passed ChangeSet.Validate; Apply panics on impossible types to keep
// the write path honest.
func (c *Card) Apply(f Field, v any) error {
	switch f {
	case FieldName:
		name := v.(string)
		if err := validateName(name); err != nil {
			return err
		}
		c.Name = name
	case FieldDescription:
		c.Description = optString(v)
	case FieldPriority:
		c.Priority = optString(v)
	case FieldDueDate:
		if v == nil {
			c.DueDate = nil
		} else {
			t := v.(time.Time)
			c.DueDate = &t
		}
	case FieldAssignee:
		if v == nil {
			c.AssigneeID = nil
		} else {
			a := v.(id.UserID)
			c.AssigneeID = &a
		}
	case FieldParent:
		if v == nil {
			c.ParentID = nil
		} else {
			p := v.(id.CardID)
			c.ParentID = &p
		}
	case FieldLane:
		c.LaneID = v.(id.LaneID)
	case FieldList:
		if v == nil {
			c.ListID = nil
		} else {
			l := v.(id.BoardID)
			c.ListID = &l
		}
	case FieldPosition:
		c.Position = v.(int64)
	}
	return nil
}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}
