package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/rs/zerolog"
)

// QueuedAction is the value type held by the sync queue: everything a
// model.SyncItem needs except the identity, which the queue entry owns.
type QueuedAction struct {
	AttemptID uuid.UUID       `json:"attempt_id"`
	SyncType  model.SyncType  `json:"sync_type"`
	Payload   json.RawMessage `json:"payload"`
}

// BatchSender delivers one batch to the reconciliation endpoint and returns
// the per-item acknowledgments.
type BatchSender interface {
	SendBatch(ctx context.Context, items []model.SyncItem) ([]model.SyncItemResult, error)
}

// Syncer drains the durable queue to the backend in batches. An entry
// leaves the queue only when its own acknowledgment says ACKED or
// SKIPPED_STALE; REJECTED entries are retained for a later retry, and a
// transport failure retains the whole in-flight batch. Entries acked by an
// earlier batch stay acked whatever happens to later ones.
type Syncer struct {
	queue     *DurableQueue[QueuedAction]
	sender    BatchSender
	batchSize int
	log       zerolog.Logger
}

// NewSyncer creates a Syncer. batchSize values outside 1..200 are clamped
// to 100, the endpoint's comfortable default.
func NewSyncer(queue *DurableQueue[QueuedAction], sender BatchSender, batchSize int, log zerolog.Logger) *Syncer {
	if batchSize < 1 || batchSize > 200 {
		batchSize = 100
	}
	return &Syncer{
		queue:     queue,
		sender:    sender,
		batchSize: batchSize,
		log:       log.With().Str("component", "offline_syncer").Logger(),
	}
}

// QueueAnswer enqueues an answer write for later reconciliation.
func (s *Syncer) QueueAnswer(attemptID uuid.UUID, p model.AnswerSyncPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	_, err = s.queue.Enqueue(QueuedAction{
		AttemptID: attemptID,
		SyncType:  model.SyncTypeAnswer,
		Payload:   payload,
	})
	return err
}

// QueueSubmit enqueues a submit action for later reconciliation.
func (s *Syncer) QueueSubmit(attemptID uuid.UUID) error {
	_, err := s.queue.Enqueue(QueuedAction{
		AttemptID: attemptID,
		SyncType:  model.SyncTypeSubmit,
		Payload:   json.RawMessage(`{}`),
	})
	return err
}

// Pending returns the number of entries still awaiting acknowledgment.
func (s *Syncer) Pending() int {
	return s.queue.Len()
}

// Flush drains the queue. Returns how many entries were dropped (ACKED or
// SKIPPED_STALE) and how many remain. A transport error stops the drain and
// is returned; per-item REJECTED results do not.
func (s *Syncer) Flush(ctx context.Context) (dropped, remaining int, err error) {
	for {
		pending := s.queue.Pending()
		if len(pending) == 0 {
			return dropped, 0, nil
		}

		batch := pending
		if len(batch) > s.batchSize {
			batch = batch[:s.batchSize]
		}

		items := make([]model.SyncItem, len(batch))
		for i, e := range batch {
			items[i] = model.SyncItem{
				ItemID:    e.ID,
				AttemptID: e.Value.AttemptID,
				SyncType:  e.Value.SyncType,
				Payload:   e.Value.Payload,
				QueuedAt:  e.QueuedAt,
			}
		}

		results, err := s.sender.SendBatch(ctx, items)
		if err != nil {
			return dropped, s.queue.Len(), fmt.Errorf("send batch: %w", err)
		}

		var ackIDs []uuid.UUID
		rejected := 0
		for _, res := range results {
			switch res.Status {
			case model.SyncItemAcked, model.SyncItemSkippedStale:
				ackIDs = append(ackIDs, res.ItemID)
			case model.SyncItemRejected:
				rejected++
				s.log.Warn().
					Str("item_id", res.ItemID.String()).
					Str("detail", res.Detail).
					Msg("Sync item rejected")
			}
		}

		if err := s.queue.Ack(ackIDs...); err != nil {
			return dropped, s.queue.Len(), err
		}
		dropped += len(ackIDs)

		// Everything left in this batch was rejected; a tight retry loop
		// will not change the answer.
		if len(ackIDs) == 0 {
			return dropped, s.queue.Len(), nil
		}
		if rejected > 0 && len(pending) <= s.batchSize {
			return dropped, s.queue.Len(), nil
		}
	}
}
