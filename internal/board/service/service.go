// Package service implements the board mutation engine: ordering-key
// allocation, field diffing, and the invariant that every committed write
// to a card is paired atomically with one immutable audit entry.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"boardkit/internal/board/diff"
	boardmetrics "boardkit/internal/board/metrics"
	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
	"boardkit/pkg/platform/sentinel"
	"boardkit/pkg/requestcontext"
)

// Store is the persistence gateway contract the service depends on. Both
// the in-memory and postgres implementations satisfy it; RunInTx executes
// the callback all-or-nothing.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetCard(ctx context.Context, cardID id.CardID) (*models.Card, error)
	GetLane(ctx context.Context, laneID id.LaneID) (*models.Lane, error)
	ListByLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, error)
	ListLanes(ctx context.Context, boardID id.BoardID) ([]*models.Lane, error)
	MaxLaneSortOrder(ctx context.Context, boardID id.BoardID) (int64, error)
	ListChildren(ctx context.Context, parentID id.CardID) ([]*models.Card, error)
	ListAuditByCard(ctx context.Context, cardID id.CardID) ([]*models.AuditEntry, error)

	InsertCard(ctx context.Context, card *models.Card) error
	InsertLane(ctx context.Context, lane *models.Lane) error
	UpdateCardFields(ctx context.Context, card *models.Card, fields []models.Field) error
	SetCardPositions(ctx context.Context, positions map[id.CardID]int64) error
	InsertAudit(ctx context.Context, entry *models.AuditEntry) error
	DeleteCards(ctx context.Context, cardIDs []id.CardID) error
}

// LaneCache is the optional read-model cache for lane listings.
type LaneCache interface {
	GetLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, bool)
	SetLane(ctx context.Context, laneID id.LaneID, cards []*models.Card)
	Invalidate(ctx context.Context, laneIDs ...id.LaneID)
}

// AuditPublisher receives committed audit entries for downstream fan-out
// (the Kafka outbox). Publishing is after-commit and must not block.
type AuditPublisher interface {
	Publish(entry *models.AuditEntry)
}

// BoardService orchestrates card and lane mutations.
type BoardService struct {
	store     Store
	differ    *diff.Differ
	logger    *slog.Logger
	metrics   *boardmetrics.Metrics
	cache     LaneCache
	publisher AuditPublisher
	tracer    trace.Tracer
}

type Option func(s *BoardService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *BoardService) { s.logger = logger }
}

func WithMetrics(m *boardmetrics.Metrics) Option {
	return func(s *BoardService) { s.metrics = m }
}

func WithCache(c LaneCache) Option {
	return func(s *BoardService) { s.cache = c }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *BoardService) { s.publisher = p }
}

// New constructs a BoardService over the given store.
func New(store Store, opts ...Option) *BoardService {
	s := &BoardService{
		store:  store,
		tracer: otel.Tracer("boardkit/board"),
	}
	s.differ = diff.New(func(ctx context.Context, laneID id.LaneID) (string, error) {
		lane, err := store.GetLane(ctx, laneID)
		if err != nil {
			return "", wrapStoreErr(err, "failed to resolve lane name")
		}
		return lane.Name, nil
	})
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// wrapStoreErr translates sentinel store errors into coded domain errors.
// Anything unrecognized is a persistence failure.
func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *BoardService) newAuditEntry(ctx context.Context, cardID id.CardID, changes []models.FieldChange) *models.AuditEntry {
	entry := &models.AuditEntry{
		ID:          id.EntryID(uuid.New()),
		CardID:      cardID,
		Description: diff.Render(changes),
		Diff:        changes,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if actor := requestcontext.ActorID(ctx); !actor.IsNil() {
		entry.ActorID = &actor
	}
	return entry
}

func (s *BoardService) recordError(err error) {
	if s.metrics != nil {
		s.metrics.MutationErrors.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
}

func (s *BoardService) invalidateLanes(ctx context.Context, laneIDs ...id.LaneID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, laneIDs...)
	}
}

func (s *BoardService) publish(entry *models.AuditEntry) {
	if s.publisher != nil && entry != nil {
		s.publisher.Publish(entry)
	}
}
