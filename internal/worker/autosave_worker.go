package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/config"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AnswerStore is the store surface the worker persists staged writes into.
type AnswerStore interface {
	UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selected, essay *string, flagged bool, answeredAt time.Time) (repository.ProjectionOutcome, error)
}

// AutosaveWorker consumes the answer persistence queue and applies each
// staged write to its pre-allocated slot in PostgreSQL.
type AutosaveWorker struct {
	attempts AnswerStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(attempts AnswerStore, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "autosave_worker").Logger(),
	}
}

type answerJob struct {
	AttemptID      string    `json:"attempt_id"`
	QuestionID     string    `json:"question_id"`
	SelectedOption *string   `json:"selected_option"`
	EssayText      *string   `json:"essay_text"`
	Flagged        bool      `json:"flagged"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job answerJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", job.AttemptID).
			Str("question_id", job.QuestionID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AutosaveWorker) persist(ctx context.Context, job *answerJob) error {
	attemptID, err := uuid.Parse(job.AttemptID)
	if err != nil {
		return err
	}
	questionID, err := uuid.Parse(job.QuestionID)
	if err != nil {
		return err
	}

	outcome, err := w.attempts.UpsertAnswer(ctx, attemptID, questionID, job.SelectedOption, job.EssayText, job.Flagged, job.AnsweredAt)
	if err != nil {
		return err
	}
	switch outcome {
	case repository.ProjectionUnknownSlot:
		// Slot never existed for this attempt. Not retryable; drop it.
		w.log.Warn().
			Str("attempt_id", job.AttemptID).
			Str("question_id", job.QuestionID).
			Msg("Dropping answer for unknown slot")
	case repository.ProjectionStale:
		// Attempt already terminal or past deadline; the write stays out.
		w.log.Warn().
			Str("attempt_id", job.AttemptID).
			Str("question_id", job.QuestionID).
			Msg("Dropping answer for finished attempt")
	case repository.ProjectionSuperseded:
		w.log.Debug().
			Str("attempt_id", job.AttemptID).
			Str("question_id", job.QuestionID).
			Msg("Skipped stale answer")
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var job answerJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &job); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
