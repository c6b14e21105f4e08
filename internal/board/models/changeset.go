package models

import (
	"time"

	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
)

// Field names a mutable attribute of a card.
type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldPriority    Field = "priority"
	FieldDueDate     Field = "dueDate"
	FieldAssignee    Field = "assignee"
	FieldParent      Field = "parent"
	FieldLane        Field = "status"
	FieldList        Field = "list"
	FieldPosition    Field = "position"
)

// fieldOrder fixes the order changes appear in diffs and audit text,
// independent of map iteration.
var fieldOrder = []Field{
	FieldName,
	FieldDescription,
	FieldPriority,
	FieldDueDate,
	FieldAssignee,
	FieldParent,
	FieldLane,
	FieldList,
	FieldPosition,
}

// ChangeSet carries proposed field changes. A key present with a nil value
// is an explicit clear; an absent key leaves the field untouched. This
// distinction is what lets field-scoped writes avoid clobbering attributes
// the caller never mentioned.
type ChangeSet map[Field]any

// Fields returns the touched fields in canonical order.
func (cs ChangeSet) Fields() []Field {
	out := make([]Field, 0, len(cs))
	for _, f := range fieldOrder {
		if _, ok := cs[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks that every value has the type its field requires.
// nil is accepted for every optional field; name, status and position
// cannot be cleared.
func (cs ChangeSet) Validate() error {
	for f, v := range cs {
		if err := validateFieldValue(f, v); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldValue(f Field, v any) error {
	switch f {
	case FieldName:
		if _, ok := v.(string); !ok {
			return dErrors.New(dErrors.CodeValidation, "name must be a non-null string")
		}
	case FieldDescription, FieldPriority:
		if v == nil {
			return nil
		}
		if _, ok := v.(string); !ok {
			return dErrors.New(dErrors.CodeValidation, string(f)+" must be a string or null")
		}
	case FieldDueDate:
		if v == nil {
			return nil
		}
		if _, ok := v.(time.Time); !ok {
			return dErrors.New(dErrors.CodeValidation, "dueDate must be a timestamp or null")
		}
	case FieldAssignee:
		if v == nil {
			return nil
		}
		if _, ok := v.(id.UserID); !ok {
			return dErrors.New(dErrors.CodeValidation, "assignee must be a user reference or null")
		}
	case FieldParent:
		if v == nil {
			return nil
		}
		if _, ok := v.(id.CardID); !ok {
			return dErrors.New(dErrors.CodeValidation, "parent must be a card reference or null")
		}
	case FieldLane:
		if _, ok := v.(id.LaneID); !ok {
			return dErrors.New(dErrors.CodeValidation, "status must be a non-null lane reference")
		}
	case FieldList:
		if v == nil {
			return nil
		}
		if _, ok := v.(id.BoardID); !ok {
			return dErrors.New(dErrors.CodeValidation, "list must be a board reference or null")
		}
	case FieldPosition:
		if _, ok := v.(int64); !ok {
			return dErrors.New(dErrors.CodeValidation, "position must be a non-null integer")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown field "+string(f))
	}
	return nil
}
