package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"boardkit/internal/board/models"
	id "boardkit/pkg/domain"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	closed  bool
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	p.mu.Unlock()
	if promise != nil {
		promise(r, nil)
	}
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func testEntry() *models.AuditEntry {
	return &models.AuditEntry{
		ID:          id.EntryID(uuid.New()),
		CardID:      id.CardID(uuid.New()),
		Description: `name: "a" → "b"`,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPublisherProducesKeyedByCard(t *testing.T) {
	producer := &fakeProducer{}
	pub := New(producer, "board.audit")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pub.Run(ctx)
		close(done)
	}()

	entry := testEntry()
	pub.Publish(entry)

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	record := producer.records[0]
	assert.Equal(t, "board.audit", record.Topic)
	assert.Equal(t, entry.CardID.String(), string(record.Key))

	var got models.AuditEntry
	require.NoError(t, json.Unmarshal(record.Value, &got))
	assert.Equal(t, entry.Description, got.Description)
}

func TestPublishNeverBlocksWhenBufferFull(t *testing.T) {
	producer := &fakeProducer{}
	pub := New(producer, "board.audit", WithBuffer(1))

	// No Run loop draining: the second publish must drop, not block.
	finished := make(chan struct{})
	go func() {
		pub.Publish(testEntry())
		pub.Publish(testEntry())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}

func TestRunDrainsBufferOnShutdown(t *testing.T) {
	producer := &fakeProducer{}
	pub := New(producer, "board.audit", WithBuffer(8))

	for i := 0; i < 5; i++ {
		pub.Publish(testEntry())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = pub.Run(ctx)

	assert.Equal(t, 5, producer.count(), "buffered entries flushed before exit")
}
