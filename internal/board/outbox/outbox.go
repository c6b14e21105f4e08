// Package outbox fans committed audit entries out to Kafka so downstream
// consumers (search indexing, notifications) observe board history without
// polling the store.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"boardkit/internal/board/models"
)

const defaultBuffer = 256

// Producer is the subset of the Kafka client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// Publisher buffers committed audit entries and produces them to a topic
// from a background worker. Publish never blocks the mutation path: when
// the buffer is full the entry is dropped with a warning, since the durable
// copy already lives in the store.
type Publisher struct {
	client Producer
	topic  string
	inbox  chan *models.AuditEntry
	logger *slog.Logger
}

type Option func(p *Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithBuffer(n int) Option {
	return func(p *Publisher) { p.inbox = make(chan *models.AuditEntry, n) }
}

// NewClient dials the Kafka brokers for the audit topic.
func NewClient(brokers []string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
}

func New(client Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		topic:  topic,
		inbox:  make(chan *models.AuditEntry, defaultBuffer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues a committed entry for delivery. Non-blocking.
func (p *Publisher) Publish(entry *models.AuditEntry) {
	select {
	case p.inbox <- entry:
	default:
		p.logger.Warn("audit outbox full, dropping entry",
			"entry_id", entry.ID,
			"card_id", entry.CardID,
		)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes in-flight
// produce requests.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.drain(flushCtx)
			return ctx.Err()
		case entry := <-p.inbox:
			p.produce(ctx, entry)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case entry := <-p.inbox:
			p.produce(ctx, entry)
		default:
			return
		}
	}
}

func (p *Publisher) produce(ctx context.Context, entry *models.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error("failed to encode audit entry", "entry_id", entry.ID, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		// Key by card so per-card history stays ordered within a partition.
		Key:   []byte(entry.CardID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to produce audit entry",
				"entry_id", entry.ID,
				"topic", p.topic,
				"error", err,
			)
		}
	})
}

// Close closes the underlying Kafka client.
func (p *Publisher) Close() {
	p.client.Close()
}
