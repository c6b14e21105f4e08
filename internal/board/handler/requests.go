package handler

import (
	"encoding/json"
	"time"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
)

// fieldPatch preserves the distinction between a field that is absent from
// the request body (untouched) and one explicitly set to null (cleared), so
// PATCH bodies decode into a change set rather than a whole-card overwrite.
type fieldPatch map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// changeSet converts the raw patch into typed change-set values. Unknown
// field names are rejected at this trust boundary.
func (p fieldPatch) changeSet() (models.ChangeSet, error) {
	changes := make(models.ChangeSet, len(p))
	for name, raw := range p {
		field := models.Field(name)
		value, err := decodeField(field, raw)
		if err != nil {
			return nil, err
		}
		changes[field] = value
	}
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	return changes, nil
}

func decodeField(field models.Field, raw json.RawMessage) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	switch field {
	case models.FieldName, models.FieldDescription, models.FieldPriority:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, string(field)+" must be a string")
		}
		return s, nil
	case models.FieldDueDate:
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "dueDate must be an RFC 3339 timestamp")
		}
		return t, nil
	case models.FieldAssignee:
		var v id.UserID
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "assignee must be a user id")
		}
		return v, nil
	case models.FieldParent:
		var v id.CardID
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "parent must be a card id")
		}
		return v, nil
	case models.FieldLane:
		var v id.LaneID
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "status must be a lane id")
		}
		return v, nil
	case models.FieldList:
		var v id.BoardID
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "list must be a board id")
		}
		return v, nil
	case models.FieldPosition:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "position must be an integer")
		}
		return v, nil
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown field "+string(field))
	}
}

type createCardRequest struct {
	LaneID id.LaneID  `json:"lane_id"`
	Name   string     `json:"name"`
	Fields fieldPatch `json:"fields,omitempty"`
}

type moveCardRequest struct {
	LaneID id.LaneID `json:"lane_id"`
	Index  int       `json:"index"`
}

type createLaneRequest struct {
	BoardID id.BoardID `json:"board_id"`
	Name    string     `json:"name"`
	Color   string     `json:"color"`
}

type mutationResponse struct {
	Card       *models.Card       `json:"card"`
	AuditEntry *models.AuditEntry `json:"audit_entry,omitempty"`
	NoChanges  bool               `json:"no_changes,omitempty"`
}
