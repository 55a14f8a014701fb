package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/rs/zerolog"
)

// SyncStore persists offline sync items: always audit, conditionally project.
type SyncStore interface {
	ApplyAnswerItem(ctx context.Context, userID int, item model.SyncItem, p model.AnswerSyncPayload) (repository.ProjectionOutcome, error)
	ApplySubmitItem(ctx context.Context, userID int, item model.SyncItem) (repository.ProjectionOutcome, error)
}

// SyncService reconciles batches of client-queued offline writes.
type SyncService struct {
	attempts AttemptStore
	store    SyncStore
	log      zerolog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(attempts AttemptStore, store SyncStore, log zerolog.Logger) *SyncService {
	return &SyncService{
		attempts: attempts,
		store:    store,
		log:      log.With().Str("component", "sync_service").Logger(),
	}
}

// ApplyBatch reconciles a batch of offline sync items. Items are processed
// independently: one bad item never fails its siblings, and the response
// carries a per-item status the client keys its queue cleanup on. Replaying
// any item converges: the audit insert is keyed on the client-generated
// item ID and the projection is a guarded last-write-wins upsert.
func (s *SyncService) ApplyBatch(ctx context.Context, userID int, items []model.SyncItem) []model.SyncItemResult {
	results := make([]model.SyncItemResult, 0, len(items))
	for _, item := range items {
		results = append(results, s.applyOne(ctx, userID, item))
	}
	return results
}

func (s *SyncService) applyOne(ctx context.Context, userID int, item model.SyncItem) model.SyncItemResult {
	reject := func(detail string) model.SyncItemResult {
		return model.SyncItemResult{ItemID: item.ItemID, Status: model.SyncItemRejected, Detail: detail}
	}

	// Ownership gate. A foreign or unknown attempt is a rejection, not a
	// stale skip; the client should not silently drop what may be a bug.
	attempt, err := s.attempts.GetByID(ctx, item.AttemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reject("attempt not found")
		}
		s.log.Error().Err(err).Str("item_id", item.ItemID.String()).Msg("Sync item attempt lookup failed")
		return reject("internal error, retry")
	}
	if attempt.UserID != userID {
		return reject("attempt not found")
	}

	var outcome repository.ProjectionOutcome
	switch item.SyncType {
	case model.SyncTypeAnswer:
		var p model.AnswerSyncPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return reject("malformed answer payload")
		}
		if p.QuestionID == uuid.Nil {
			return reject("answer payload missing question_id")
		}
		if p.AnsweredAt.IsZero() {
			// Fall back to the queue insertion instant so ordering metadata
			// is never absent.
			p.AnsweredAt = item.QueuedAt
		}
		outcome, err = s.store.ApplyAnswerItem(ctx, userID, item, p)
	case model.SyncTypeSubmit:
		outcome, err = s.store.ApplySubmitItem(ctx, userID, item)
	default:
		return reject("unknown sync type")
	}

	if err != nil {
		s.log.Error().Err(err).Str("item_id", item.ItemID.String()).Msg("Sync item persist failed")
		return reject("internal error, retry")
	}

	switch outcome {
	case repository.ProjectionApplied, repository.ProjectionSuperseded:
		// Superseded means a newer write already won; the store has
		// converged, which is an ack from the client's point of view.
		return model.SyncItemResult{ItemID: item.ItemID, Status: model.SyncItemAcked}
	case repository.ProjectionStale:
		return model.SyncItemResult{
			ItemID: item.ItemID,
			Status: model.SyncItemSkippedStale,
			Detail: "attempt no longer accepts writes",
		}
	case repository.ProjectionUnknownSlot:
		return reject("question is not part of this attempt")
	default:
		return reject("unexpected projection outcome")
	}
}
