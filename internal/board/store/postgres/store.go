// Package postgres persists the board in PostgreSQL. Mutating operations
// join the ambient transaction carried in context (pkg/platform/tx), so the
// service's RunInTx callback commits field updates and audit inserts
// atomically.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
	"boardkit/pkg/platform/sentinel"
	txcontext "boardkit/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store implements the board persistence gateway over database/sql with the
// pgx stdlib driver.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, timeout: defaultTxTimeout}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx opens a transaction, stores it in context for the store methods
// invoked by fn, and commits only if fn succeeds. A bounded timeout keeps
// abandoned transactions from holding row locks.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*models.Card, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, lane_id, position, name, description, priority, due_date,
		       assignee_id, parent_id, list_id, created_at, updated_at
		FROM cards
		WHERE id = $1
	`, uuid.UUID(cardID))
	return scanCard(row)
}

// ListByLane returns the lane's cards ordered by position ascending with the
// card ID as a stable tiebreak.
func (s *Store) ListByLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, lane_id, position, name, description, priority, due_date,
		       assignee_id, parent_id, list_id, created_at, updated_at
		FROM cards
		WHERE lane_id = $1
		ORDER BY position ASC, id ASC
	`, uuid.UUID(laneID))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) GetLane(ctx context.Context, laneID id.LaneID) (*models.Lane, error) {
	var lane models.Lane
	var rawID, rawBoard uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, board_id, name, color, sort_order, created_at
		FROM lanes
		WHERE id = $1
	`, uuid.UUID(laneID)).Scan(&rawID, &rawBoard, &lane.Name, &lane.Color, &lane.SortOrder, &lane.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	lane.ID = id.LaneID(rawID)
	lane.BoardID = id.BoardID(rawBoard)
	return &lane, nil
}

func (s *Store) ListLanes(ctx context.Context, boardID id.BoardID) ([]*models.Lane, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, board_id, name, color, sort_order, created_at
		FROM lanes
		WHERE board_id = $1
		ORDER BY sort_order ASC
	`, uuid.UUID(boardID))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*models.Lane
	for rows.Next() {
		var lane models.Lane
		var rawID, rawBoard uuid.UUID
		if err := rows.Scan(&rawID, &rawBoard, &lane.Name, &lane.Color, &lane.SortOrder, &lane.CreatedAt); err != nil {
			return nil, translate(err)
		}
		lane.ID = id.LaneID(rawID)
		lane.BoardID = id.BoardID(rawBoard)
		out = append(out, &lane)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) MaxLaneSortOrder(ctx context.Context, boardID id.BoardID) (int64, error) {
	var max int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sort_order), 0) FROM lanes WHERE board_id = $1
	`, uuid.UUID(boardID)).Scan(&max)
	if err != nil {
		return 0, translate(err)
	}
	return max, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID id.CardID) ([]*models.Card, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, lane_id, position, name, description, priority, due_date,
		       assignee_id, parent_id, list_id, created_at, updated_at
		FROM cards
		WHERE parent_id = $1
	`, uuid.UUID(parentID))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) InsertCard(ctx context.Context, card *models.Card) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO cards (id, lane_id, position, name, description, priority,
		                   due_date, assignee_id, parent_id, list_id,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(card.ID),
		uuid.UUID(card.LaneID),
		card.Position,
		card.Name,
		card.Description,
		card.Priority,
		card.DueDate,
		nullableUUID(card.AssigneeID),
		nullableUUID(card.ParentID),
		nullableUUID(card.ListID),
		card.CreatedAt,
		card.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) InsertLane(ctx context.Context, lane *models.Lane) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO lanes (id, board_id, name, color, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(lane.ID),
		uuid.UUID(lane.BoardID),
		lane.Name,
		lane.Color,
		lane.SortOrder,
		lane.CreatedAt,
	)
	return translate(err)
}

// columnFor maps mutable fields onto card columns. Field-scoped writes only
// ever touch these columns, never the whole row.
var columnFor = map[models.Field]string{
	models.FieldName:        "name",
	models.FieldDescription: "description",
	models.FieldPriority:    "priority",
	models.FieldDueDate:     "due_date",
	models.FieldAssignee:    "assignee_id",
	models.FieldParent:      "parent_id",
	models.FieldLane:        "lane_id",
	models.FieldList:        "list_id",
	models.FieldPosition:    "position",
}

// UpdateCardFields writes only the named fields from card onto the row.
func (s *Store) UpdateCardFields(ctx context.Context, card *models.Card, fields []models.Field) error {
	if len(fields) == 0 {
		return nil
	}

	set := "updated_at = $1"
	args := []any{card.UpdatedAt}
	for _, f := range fields {
		col, ok := columnFor[f]
		if !ok {
			return fmt.Errorf("no column for field %q", f)
		}
		args = append(args, columnValue(card, f))
		set += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	args = append(args, uuid.UUID(card.ID))

	res, err := s.execer(ctx).ExecContext(ctx,
		fmt.Sprintf("UPDATE cards SET %s WHERE id = $%d", set, len(args)), args...)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func columnValue(card *models.Card, f models.Field) any {
	switch f {
	case models.FieldLane:
		return uuid.UUID(card.LaneID)
	case models.FieldAssignee:
		return nullableUUID(card.AssigneeID)
	case models.FieldParent:
		return nullableUUID(card.ParentID)
	case models.FieldList:
		return nullableUUID(card.ListID)
	default:
		return card.Value(f)
	}
}

// SetCardPositions bulk-writes a rebalanced lane layout in one statement.
func (s *Store) SetCardPositions(ctx context.Context, positions map[id.CardID]int64) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(positions))
	values := make([]int64, 0, len(positions))
	for cardID, pos := range positions {
		ids = append(ids, uuid.UUID(cardID))
		values = append(values, pos)
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE cards
		SET position = layout.position
		FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::bigint[]) AS position) AS layout
		WHERE cards.id = layout.id
	`, pq.Array(ids), pq.Array(values))
	return translate(err)
}

func (s *Store) InsertAudit(ctx context.Context, entry *models.AuditEntry) error {
	diffJSON, err := json.Marshal(entry.Diff)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}
	fields := make([]string, 0, len(entry.Diff))
	for _, ch := range entry.Diff {
		fields = append(fields, string(ch.Field))
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_entries (id, card_id, description, diff, changed_fields, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.CardID),
		entry.Description,
		diffJSON,
		pq.Array(fields),
		nullableUUID(entry.ActorID),
		entry.CreatedAt,
	)
	return translate(err)
}

func (s *Store) ListAuditByCard(ctx context.Context, cardID id.CardID) ([]*models.AuditEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, card_id, description, diff, actor_id, created_at
		FROM audit_entries
		WHERE card_id = $1
		ORDER BY created_at DESC, id DESC
	`, uuid.UUID(cardID))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var rawID, rawCard uuid.UUID
		var rawActor *uuid.UUID
		var diffJSON []byte
		if err := rows.Scan(&rawID, &rawCard, &entry.Description, &diffJSON, &rawActor, &entry.CreatedAt); err != nil {
			return nil, translate(err)
		}
		if err := json.Unmarshal(diffJSON, &entry.Diff); err != nil {
			return nil, fmt.Errorf("unmarshal diff: %w", err)
		}
		entry.ID = id.EntryID(rawID)
		entry.CardID = id.CardID(rawCard)
		if rawActor != nil {
			actor := id.UserID(*rawActor)
			entry.ActorID = &actor
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) DeleteCards(ctx context.Context, cardIDs []id.CardID) error {
	if len(cardIDs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(cardIDs))
	for i, cardID := range cardIDs {
		ids[i] = uuid.UUID(cardID)
	}
	exec := s.execer(ctx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM audit_entries WHERE card_id = ANY($1)`, pq.Array(ids)); err != nil {
		return translate(err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM cards WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return translate(err)
	}
	return nil
}

type cardScanner interface {
	Scan(dest ...any) error
}

func scanCard(row cardScanner) (*models.Card, error) {
	var card models.Card
	var rawID, rawLane uuid.UUID
	var rawAssignee, rawParent, rawList *uuid.UUID
	err := row.Scan(
		&rawID,
		&rawLane,
		&card.Position,
		&card.Name,
		&card.Description,
		&card.Priority,
		&card.DueDate,
		&rawAssignee,
		&rawParent,
		&rawList,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	card.ID = id.CardID(rawID)
	card.LaneID = id.LaneID(rawLane)
	if rawAssignee != nil {
		assignee := id.UserID(*rawAssignee)
		card.AssigneeID = &assignee
	}
	if rawParent != nil {
		parent := id.CardID(*rawParent)
		card.ParentID = &parent
	}
	if rawList != nil {
		list := id.BoardID(*rawList)
		card.ListID = &list
	}
	return &card, nil
}

func nullableUUID[T ~[16]byte](v *T) *uuid.UUID {
	if v == nil {
		return nil
	}
	u := uuid.UUID(*v)
	return &u
}

// translate maps driver-level errors onto sentinel errors so the service
// layer never inspects SQLSTATEs.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", sentinel.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
