package models

import (
	"time"

	id "boardkit/pkg/domain"
)

// FieldChange is one entry of a diff: a field whose normalized value changed
// between the prior and proposed state. From and To are human-readable
// renderings; nil means the value was absent on that side.
type FieldChange struct {
	Field Field   `json:"field"`
	From  *string `json:"from"`
	To    *string `json:"to"`
}

// AuditEntry is an immutable record describing one committed diff.
//
// Entries are append-only: they are never mutated or deleted as a side
// effect of a later edit, and they form a total order per card by CreatedAt.
type AuditEntry struct {
	ID          id.EntryID    `json:"id"`
	CardID      id.CardID     `json:"card_id"`
	Description string        `json:"description"`
	Diff        []FieldChange `json:"diff"`
	ActorID     *id.UserID    `json:"actor_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
