// Package handler exposes the board engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"boardkit/internal/board/models"
	"boardkit/internal/platform/middleware"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
	"boardkit/pkg/platform/httputil"
	"boardkit/pkg/requestcontext"
)

// Service defines the board operations the handler exposes.
type Service interface {
	CreateCard(ctx context.Context, laneID id.LaneID, name string, extra models.ChangeSet) (*models.Card, *models.AuditEntry, error)
	EditCard(ctx context.Context, cardID id.CardID, changes models.ChangeSet) (*models.Card, *models.AuditEntry, error)
	MoveCard(ctx context.Context, cardID id.CardID, targetLaneID id.LaneID, targetIndex int) (*models.Card, *models.AuditEntry, error)
	DeleteCard(ctx context.Context, cardID id.CardID) error
	CreateLane(ctx context.Context, boardID id.BoardID, name, color string) (*models.Lane, error)
	ListCardsForLane(ctx context.Context, laneID id.LaneID) ([]*models.Card, error)
	ListLanes(ctx context.Context, boardID id.BoardID) ([]*models.Lane, error)
	ListActivity(ctx context.Context, cardID id.CardID) ([]*models.AuditEntry, error)
}

type Handler struct {
	logger *slog.Logger
	board  Service
}

func New(board Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, board: board}
}

// Register mounts the board routes with the request-scoped middleware chain.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Actor)
	router.Use(chimiddleware.Timeout(30 * time.Second))

	router.Post("/cards", h.handleCreateCard)
	router.Patch("/cards/{cardID}", h.handleEditCard)
	router.Post("/cards/{cardID}/move", h.handleMoveCard)
	router.Delete("/cards/{cardID}", h.handleDeleteCard)
	router.Get("/cards/{cardID}/activity", h.handleListActivity)
	router.Post("/lanes", h.handleCreateLane)
	router.Get("/lanes/{laneID}/cards", h.handleListCards)
	router.Get("/boards/{boardID}/lanes", h.handleListLanes)

	r.Mount("/", router)
}

func (h *Handler) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[createCardRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	extra, err := req.Fields.changeSet()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, entry, err := h.board.CreateCard(ctx, req.LaneID, req.Name, extra)
	if err != nil {
		h.writeMutationError(ctx, w, requestID, "failed to create card", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mutationResponse{Card: card, AuditEntry: entry})
}

func (h *Handler) handleEditCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	cardID, err := id.ParseCardID(chi.URLParam(r, "cardID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	patch, ok := httputil.Decode[fieldPatch](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	changes, err := patch.changeSet()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, entry, err := h.board.EditCard(ctx, cardID, changes)
	if err != nil {
		h.writeMutationError(ctx, w, requestID, "failed to edit card", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mutationResponse{
		Card:       card,
		AuditEntry: entry,
		NoChanges:  entry == nil,
	})
}

func (h *Handler) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	cardID, err := id.ParseCardID(chi.URLParam(r, "cardID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[moveCardRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	card, entry, err := h.board.MoveCard(ctx, cardID, req.LaneID, req.Index)
	if err != nil {
		h.writeMutationError(ctx, w, requestID, "failed to move card", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mutationResponse{
		Card:       card,
		AuditEntry: entry,
		NoChanges:  entry == nil,
	})
}

func (h *Handler) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	cardID, err := id.ParseCardID(chi.URLParam(r, "cardID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.board.DeleteCard(ctx, cardID); err != nil {
		h.writeMutationError(ctx, w, requestID, "failed to delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cardID, err := id.ParseCardID(chi.URLParam(r, "cardID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.board.ListActivity(ctx, cardID)
	if err != nil {
		h.writeMutationError(ctx, w, requestcontext.RequestID(ctx), "failed to list activity", err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCreateLane(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[createLaneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	lane, err := h.board.CreateLane(ctx, req.BoardID, req.Name, req.Color)
	if err != nil {
		h.writeMutationError(ctx, w, requestID, "failed to create lane", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, lane)
}

func (h *Handler) handleListCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	laneID, err := id.ParseLaneID(chi.URLParam(r, "laneID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cards, err := h.board.ListCardsForLane(ctx, laneID)
	if err != nil {
		h.writeMutationError(ctx, w, requestcontext.RequestID(ctx), "failed to list cards", err)
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	httputil.WriteJSON(w, http.StatusOK, cards)
}

func (h *Handler) handleListLanes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	boardID, err := id.ParseBoardID(chi.URLParam(r, "boardID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lanes, err := h.board.ListLanes(ctx, boardID)
	if err != nil {
		h.writeMutationError(ctx, w, requestcontext.RequestID(ctx), "failed to list lanes", err)
		return
	}
	if lanes == nil {
		lanes = []*models.Lane{}
	}
	httputil.WriteJSON(w, http.StatusOK, lanes)
}

// writeMutationError logs a failed operation and renders it. Name conflicts
// are surfaced as a field-scoped message so clients can attach them to the
// offending input instead of showing a generic failure.
func (h *Handler) writeMutationError(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"error", err.Error(),
	)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		httputil.WriteFieldError(w, err, string(models.FieldName))
		return
	}
	httputil.WriteError(w, err)
}
