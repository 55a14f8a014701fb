package offline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ackScript maps item position in the batch to a status; unmapped items
// get ACKED.
type scriptedBatchSender struct {
	batches  [][]model.SyncItem
	statuses map[uuid.UUID]model.SyncItemStatus
	err      error
}

func (s *scriptedBatchSender) SendBatch(_ context.Context, items []model.SyncItem) ([]model.SyncItemResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, items)

	results := make([]model.SyncItemResult, len(items))
	for i, item := range items {
		status, ok := s.statuses[item.ItemID]
		if !ok {
			status = model.SyncItemAcked
		}
		results[i] = model.SyncItemResult{ItemID: item.ItemID, Status: status}
	}
	return results, nil
}

func newTestSyncer(t *testing.T, sender BatchSender, batchSize int) *Syncer {
	q, err := NewDurableQueue[QueuedAction](NewMemoryStore[QueuedAction]())
	require.NoError(t, err)
	return NewSyncer(q, sender, batchSize, zerolog.Nop())
}

func TestSyncerFlushDrainsAckedItems(t *testing.T) {
	sender := &scriptedBatchSender{}
	s := newTestSyncer(t, sender, 10)
	attemptID := uuid.New()

	require.NoError(t, s.QueueAnswer(attemptID, model.AnswerSyncPayload{
		QuestionID: uuid.New(), AnsweredAt: time.Now(),
	}))
	require.NoError(t, s.QueueSubmit(attemptID))
	require.Equal(t, 2, s.Pending())

	dropped, remaining, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Zero(t, remaining)

	require.Len(t, sender.batches, 1)
	batch := sender.batches[0]
	assert.Equal(t, model.SyncTypeAnswer, batch[0].SyncType)
	assert.Equal(t, model.SyncTypeSubmit, batch[1].SyncType)
	assert.NotEqual(t, uuid.Nil, batch[0].ItemID)
	assert.False(t, batch[0].QueuedAt.IsZero())
}

func TestSyncerRetainsRejectedDropsStale(t *testing.T) {
	sender := &scriptedBatchSender{statuses: map[uuid.UUID]model.SyncItemStatus{}}
	s := newTestSyncer(t, sender, 10)
	attemptID := uuid.New()

	require.NoError(t, s.QueueAnswer(attemptID, model.AnswerSyncPayload{QuestionID: uuid.New(), AnsweredAt: time.Now()}))
	require.NoError(t, s.QueueAnswer(attemptID, model.AnswerSyncPayload{QuestionID: uuid.New(), AnsweredAt: time.Now()}))
	require.NoError(t, s.QueueAnswer(attemptID, model.AnswerSyncPayload{QuestionID: uuid.New(), AnsweredAt: time.Now()}))

	pending := s.queue.Pending()
	sender.statuses[pending[0].ID] = model.SyncItemSkippedStale
	sender.statuses[pending[1].ID] = model.SyncItemRejected

	dropped, remaining, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dropped, "stale skip and plain ack both leave the queue")
	assert.Equal(t, 1, remaining)

	left := s.queue.Pending()
	require.Len(t, left, 1)
	assert.Equal(t, pending[1].ID, left[0].ID, "rejected item retained for retry")
}

func TestSyncerTransportErrorRetainsQueue(t *testing.T) {
	sender := &scriptedBatchSender{err: errors.New("network down")}
	s := newTestSyncer(t, sender, 10)

	require.NoError(t, s.QueueSubmit(uuid.New()))
	dropped, remaining, err := s.Flush(context.Background())

	require.Error(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, 1, remaining, "nothing leaves the queue without its ack")
}

func TestSyncerFlushBatchesLargeQueue(t *testing.T) {
	sender := &scriptedBatchSender{}
	s := newTestSyncer(t, sender, 2)
	attemptID := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.QueueAnswer(attemptID, model.AnswerSyncPayload{QuestionID: uuid.New(), AnsweredAt: time.Now()}))
	}

	dropped, remaining, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, dropped)
	assert.Zero(t, remaining)
	assert.Len(t, sender.batches, 3, "queue drained in batch-size chunks")
}

func TestSyncerAllRejectedStopsRetryLoop(t *testing.T) {
	sender := &scriptedBatchSender{statuses: map[uuid.UUID]model.SyncItemStatus{}}
	s := newTestSyncer(t, sender, 10)

	require.NoError(t, s.QueueSubmit(uuid.New()))
	sender.statuses[s.queue.Pending()[0].ID] = model.SyncItemRejected

	dropped, remaining, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, 1, remaining)
	assert.Len(t, sender.batches, 1, "a fully rejected batch is not retried in a tight loop")
}
