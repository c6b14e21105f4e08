package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	boardmetrics "boardkit/internal/board/metrics"
	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
	dErrors "boardkit/pkg/domain-errors"
)

const defaultDebounce = 250 * time.Millisecond

// Remote is the server surface the coordinator persists through.
type Remote interface {
	MoveCard(ctx context.Context, cardID id.CardID, targetLaneID id.LaneID, targetIndex int) (*models.Card, *models.AuditEntry, error)
	EditCard(ctx context.Context, cardID id.CardID, changes models.ChangeSet) (*models.Card, *models.AuditEntry, error)
}

// NoticeFunc receives user-visible failure notices after a revert.
type NoticeFunc func(cardID id.CardID, err error)

// pendingOp is the per-card queue entry: the most recent requested target
// plus the confirmed baseline to revert to. Rapid sequential operations on
// the same card replace this entry's target rather than queueing one call
// per intermediate frame.
type pendingOp struct {
	seq   uint64
	timer *time.Timer

	move    bool
	laneID  id.LaneID
	index   int
	changes models.ChangeSet

	// Baseline confirmed by the server. Updated when a superseded call
	// resolves successfully, so a later revert never restores stale state.
	snapLane   id.LaneID
	snapPos    int64
	snapFields map[models.Field]any

	inFlight bool
	queued   bool
}

// Coordinator owns the session's displayed board ordering. Moves and edits
// apply to local state synchronously, then a debounced remote call persists
// the most recent target; on failure the snapshotted fields revert and a
// notice is raised. Operations on different cards are independent, while
// operations on the same card are totally ordered through its pendingOp.
type Coordinator struct {
	mu       sync.Mutex
	state    *State
	remote   Remote
	pending  map[id.CardID]*pendingOp
	seq      uint64
	debounce time.Duration

	ctx     context.Context
	logger  *slog.Logger
	metrics *boardmetrics.Metrics
	notice  NoticeFunc
}

type Option func(c *Coordinator)

func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithMetrics(m *boardmetrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithNotice(fn NoticeFunc) Option {
	return func(c *Coordinator) { c.notice = fn }
}

func New(state *State, remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:    state,
		remote:   remote,
		pending:  make(map[id.CardID]*pendingOp),
		debounce: defaultDebounce,
		ctx:      context.Background(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Move applies a move gesture to local state immediately and schedules the
// remote call. The displayed board re-renders before any network traffic.
func (c *Coordinator) Move(cardID id.CardID, targetLaneID id.LaneID, targetIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, ok := c.state.card(cardID)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "unknown card")
	}

	p := c.ensurePending(cardID, card)
	p.move = true
	p.laneID = targetLaneID
	p.index = targetIndex

	c.state.place(cardID, targetLaneID, targetIndex)
	c.schedule(cardID, p)
	return nil
}

// Edit applies field changes to local state immediately and schedules the
// remote call. Changes merge into any pending operation for the card, so
// rapid edits collapse into one call carrying the latest values.
func (c *Coordinator) Edit(cardID id.CardID, changes models.ChangeSet) error {
	if err := changes.Validate(); err != nil {
		return err
	}
	if _, ok := changes[models.FieldPosition]; ok {
		return dErrors.New(dErrors.CodeValidation, "position cannot be edited directly; move the card instead")
	}
	if _, ok := changes[models.FieldLane]; ok {
		return dErrors.New(dErrors.CodeValidation, "lane changes go through Move")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	card, ok := c.state.card(cardID)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "unknown card")
	}

	p := c.ensurePending(cardID, card)
	for f, v := range changes {
		// Snapshot the pre-edit value once per field, not per keystroke.
		if _, seen := p.snapFields[f]; !seen {
			p.snapFields[f] = card.Value(f)
		}
		if p.changes == nil {
			p.changes = make(models.ChangeSet)
		}
		p.changes[f] = v
	}

	if err := c.state.apply(cardID, changes); err != nil {
		return err
	}
	c.schedule(cardID, p)
	return nil
}

// ensurePending returns the card's queue entry, creating one with the
// current confirmed state as its revert baseline.
func (c *Coordinator) ensurePending(cardID id.CardID, card *models.Card) *pendingOp {
	p, ok := c.pending[cardID]
	if !ok {
		p = &pendingOp{
			snapLane:   card.LaneID,
			snapPos:    card.Position,
			snapFields: make(map[models.Field]any),
		}
		c.pending[cardID] = p
	}
	return p
}

// schedule stamps the entry with a fresh sequence number and restarts the
// debounce timer. Only the dispatch matching the entry's latest sequence
// number fires a network call.
func (c *Coordinator) schedule(cardID id.CardID, p *pendingOp) {
	c.seq++
	p.seq = c.seq
	seq := p.seq
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(c.debounce, func() {
		c.dispatch(cardID, seq)
	})
}

// Flush fires all pending operations immediately, bypassing the debounce.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	type job struct {
		cardID id.CardID
		seq    uint64
	}
	var jobs []job
	for cardID, p := range c.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		jobs = append(jobs, job{cardID, p.seq})
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.dispatch(j.cardID, j.seq)
	}
}

// Close stops all pending timers without dispatching.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	c.pending = make(map[id.CardID]*pendingOp)
}

// dispatch sends the card's most recent pending target to the server. If a
// call for the same card is already in flight the dispatch is deferred
// until that call resolves, keeping same-card operations totally ordered.
func (c *Coordinator) dispatch(cardID id.CardID, seq uint64) {
	c.mu.Lock()
	p, ok := c.pending[cardID]
	if !ok || p.seq != seq {
		c.mu.Unlock()
		return
	}
	if p.inFlight {
		p.queued = true
		c.mu.Unlock()
		return
	}
	p.inFlight = true
	move := p.move
	laneID := p.laneID
	index := p.index
	var changes models.ChangeSet
	if len(p.changes) > 0 {
		changes = make(models.ChangeSet, len(p.changes))
		for f, v := range p.changes {
			changes[f] = v
		}
	}
	c.mu.Unlock()

	var card *models.Card
	var entries []*models.AuditEntry
	var err error
	if changes != nil {
		var entry *models.AuditEntry
		card, entry, err = c.remote.EditCard(c.ctx, cardID, changes)
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	if err == nil && move {
		var entry *models.AuditEntry
		card, entry, err = c.remote.MoveCard(c.ctx, cardID, laneID, index)
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	c.resolve(cardID, seq, card, entries, err)
}

// resolve reconciles a network result with local state. A result whose
// sequence number is no longer the card's latest was superseded by a newer
// operation: its outcome must not touch displayed state, though a stale
// success advances the revert baseline to what the server committed.
func (c *Coordinator) resolve(cardID id.CardID, seq uint64, card *models.Card, entries []*models.AuditEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[cardID]
	if !ok {
		return
	}
	superseded := p.seq != seq
	p.inFlight = false

	switch {
	case err == nil && !superseded:
		if card != nil {
			c.state.refresh(card)
		}
		for _, entry := range entries {
			c.state.prependActivity(cardID, entry)
		}
		delete(c.pending, cardID)
		c.logger.Debug("optimistic operation confirmed", "card_id", cardID)

	case err == nil && superseded:
		if card != nil {
			p.snapLane = card.LaneID
			p.snapPos = card.Position
			for f := range p.snapFields {
				p.snapFields[f] = card.Value(f)
			}
		}
		for _, entry := range entries {
			c.state.prependActivity(cardID, entry)
		}

	case err != nil && !superseded:
		c.revert(cardID, p, err)
		delete(c.pending, cardID)

	default:
		// Superseded failure: the call never committed, so the baseline
		// already reflects the last confirmed state. Ignore it.
	}

	if p.queued && p.seq != seq {
		p.queued = false
		nextSeq := p.seq
		go c.dispatch(cardID, nextSeq)
	}
}

// revert restores only the snapshotted fields and placement for the card,
// leaving unrelated local edits untouched, and raises the failure notice.
func (c *Coordinator) revert(cardID id.CardID, p *pendingOp, cause error) {
	if len(p.snapFields) > 0 {
		if applyErr := c.state.apply(cardID, p.snapFields); applyErr != nil {
			c.logger.Error("failed to revert fields", "card_id", cardID, "error", applyErr)
		}
	}
	if p.move {
		c.state.placeByPosition(cardID, p.snapLane, p.snapPos)
	}
	if c.metrics != nil {
		c.metrics.OptimisticRevert.Inc()
	}
	c.logger.Warn("optimistic operation reverted",
		"card_id", cardID,
		"error", cause,
	)
	if c.notice != nil {
		c.notice(cardID, cause)
	}
}

// CardsInLane returns the locally displayed cards of a lane, in order.
func (c *Coordinator) CardsInLane(laneID id.LaneID) []*models.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.cardsInLane(laneID)
}

// Card returns the local copy of a card.
func (c *Coordinator) Card(cardID id.CardID) (*models.Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.state.card(cardID)
	if !ok {
		return nil, false
	}
	copied := *card
	return &copied, true
}

// Activity returns the locally held audit entries for a card, newest first.
func (c *Coordinator) Activity(cardID id.CardID) []*models.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.AuditEntry(nil), c.state.activity[cardID]...)
}
