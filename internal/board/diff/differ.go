// Package diff compares a card's persisted state against a proposed change
// set and produces the field-level diff that backs every audit entry.
package diff

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

// LaneNameResolver maps a lane reference to its display name, so audit text
// reads `status: "To Do" → "Done"` instead of raw identifiers. The persisted
// card change keeps the reference; only the diff rendering uses the name.
type LaneNameResolver func(ctx context.Context, laneID id.LaneID) (string, error)

// Differ computes diffs between prior card state and proposed changes.
type Differ struct {
	resolveLane LaneNameResolver
}

// New constructs a Differ. resolveLane may be nil, in which case lane
// changes render their raw identifiers.
func New(resolveLane LaneNameResolver) *Differ {
	return &Differ{resolveLane: resolveLane}
}

// Compute returns one FieldChange per touched field whose normalized value
// differs from the card's current state, in canonical field order. An empty
// result means the mutation is a no-op and the caller short-circuits.
func (d *Differ) Compute(ctx context.Context, prior *models.Card, changes models.ChangeSet) ([]models.FieldChange, error) {
	var out []models.FieldChange
	for _, f := range changes.Fields() {
		oldVal := normalize(prior.Value(f))
		newVal := normalize(changes[f])
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}

		from, to := render(oldVal), render(newVal)
		if f == models.FieldLane && d.resolveLane != nil {
			var err error
			if from, err = d.laneName(ctx, prior.Value(f)); err != nil {
				return nil, err
			}
			if to, err = d.laneName(ctx, changes[f]); err != nil {
				return nil, err
			}
		}
		out = append(out, models.FieldChange{Field: f, From: from, To: to})
	}
	return out, nil
}

func (d *Differ) laneName(ctx context.Context, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	laneID, ok := v.(id.LaneID)
	if !ok {
		return render(normalize(v)), nil
	}
	name, err := d.resolveLane(ctx, laneID)
	if err != nil {
		return nil, err
	}
	return &name, nil
}

// normalize maps equivalent value forms onto one canonical representation:
// timestamps become RFC3339 UTC strings, typed identifiers become their
// string form, integers widen to int64, and nil stays nil (absent and
// explicit null compare equal).
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	case id.LaneID:
		return t.String()
	case id.UserID:
		return t.String()
	case id.CardID:
		return t.String()
	case id.BoardID:
		return t.String()
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}

func render(v any) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprintf("%v", v)
	return &s
}

// Render joins a diff into the single human-readable summary stored as the
// audit entry description: `field: "from" → "to"`, with the literal token
// null for missing values.
func Render(changes []models.FieldChange) string {
	parts := make([]string, 0, len(changes))
	for _, ch := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s → %s", ch.Field, quoted(ch.From), quoted(ch.To)))
	}
	return strings.Join(parts, ", ")
}

func quoted(v *string) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%q", *v)
}
