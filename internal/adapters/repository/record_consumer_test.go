package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/IANDYI/glucose-diary/internal/core/services"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records how a delivery was settled
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type failingRepository struct{}

func (failingRepository) LoadRecords(ctx context.Context) ([]domain.Record, error) {
	return nil, nil
}

func (failingRepository) SaveRecords(ctx context.Context, records []domain.Record) error {
	return errors.New("disk full")
}

var consumerNow = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

func newTestConsumer(repo ports.RecordRepository) (*RecordImportConsumer, *services.RecordStore) {
	store := services.NewRecordStore(repo, services.WithClock(func() time.Time { return consumerNow }))
	diary := services.NewDiaryService(store, nil, nil)
	return newRecordImportConsumer("", diary, nil), store
}

func deliver(c *RecordImportConsumer, body string) *fakeAcknowledger {
	ack := &fakeAcknowledger{}
	c.processMessage(context.Background(), amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(body),
	})
	return ack
}

func TestRecordImportConsumer_StoresValidRecord(t *testing.T) {
	consumer, store := newTestConsumer(nil)

	ack := deliver(consumer, `{"source":"meter","date":"2025-06-01T13:30:00Z","sugar_level":5.4}`)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, 5.4, *store.Records()[0].SugarLevel)
}

func TestRecordImportConsumer_DropsMalformedMessage(t *testing.T) {
	consumer, store := newTestConsumer(nil)

	ack := deliver(consumer, `not json`)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Zero(t, store.Len())
}

func TestRecordImportConsumer_RequiresDate(t *testing.T) {
	consumer, store := newTestConsumer(nil)

	ack := deliver(consumer, `{"sugar_level":5.4}`)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Zero(t, store.Len())
}

func TestRecordImportConsumer_DropsInvalidRecord(t *testing.T) {
	consumer, store := newTestConsumer(nil)

	ack := deliver(consumer, `{"date":"2025-06-01T13:30:00Z","sugar_level":45.0}`)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Zero(t, store.Len())
}

func TestRecordImportConsumer_RequeuesOnStorageFailure(t *testing.T) {
	consumer, _ := newTestConsumer(failingRepository{})

	ack := deliver(consumer, `{"date":"2025-06-01T13:30:00Z","sugar_level":5.4}`)

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.False(t, ack.acked)
}
