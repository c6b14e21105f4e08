// Package domain defines typed identifiers shared across the board engine.
//
// Each ID is a distinct type over uuid.UUID so the compiler rejects
// cross-entity assignment (a CardID can never be passed where a LaneID is
// expected). Parse functions enforce the invariant that IDs are valid,
// non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "boardkit/pkg/domain-errors"
)

type (
	// CardID identifies a unit of work on the board.
	CardID uuid.UUID
	// LaneID identifies an ordered column grouping cards by status.
	LaneID uuid.UUID
	// BoardID identifies a board owning a set of lanes.
	BoardID uuid.UUID
	// UserID identifies an acting user. May be nil for system actions.
	UserID uuid.UUID
	// EntryID identifies an immutable audit entry.
	EntryID uuid.UUID
)

func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id must be a valid UUID")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id must not be the nil UUID")
	}
	return id, nil
}

// ParseCardID validates and converts a raw string into a CardID.
func ParseCardID(raw string) (CardID, error) {
	id, err := parseUUID(raw, "card")
	return CardID(id), err
}

// ParseLaneID validates and converts a raw string into a LaneID.
func ParseLaneID(raw string) (LaneID, error) {
	id, err := parseUUID(raw, "lane")
	return LaneID(id), err
}

// ParseBoardID validates and converts a raw string into a BoardID.
func ParseBoardID(raw string) (BoardID, error) {
	id, err := parseUUID(raw, "board")
	return BoardID(id), err
}

// ParseUserID validates and converts a raw string into a UserID.
func ParseUserID(raw string) (UserID, error) {
	id, err := parseUUID(raw, "user")
	return UserID(id), err
}

// ParseEntryID validates and converts a raw string into an EntryID.
func ParseEntryID(raw string) (EntryID, error) {
	id, err := parseUUID(raw, "entry")
	return EntryID(id), err
}

func (id CardID) String() string  { return uuid.UUID(id).String() }
func (id LaneID) String() string  { return uuid.UUID(id).String() }
func (id BoardID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string  { return uuid.UUID(id).String() }
func (id EntryID) String() string { return uuid.UUID(id).String() }

// IDs travel as canonical UUID strings in JSON and other text encodings.

func (id CardID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id LaneID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id BoardID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *CardID) UnmarshalText(b []byte) error {
	parsed, err := ParseCardID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *LaneID) UnmarshalText(b []byte) error {
	parsed, err := ParseLaneID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *BoardID) UnmarshalText(b []byte) error {
	parsed, err := ParseBoardID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EntryID) UnmarshalText(b []byte) error {
	parsed, err := ParseEntryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsNil reports whether the user ID is unset (system actor).
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
