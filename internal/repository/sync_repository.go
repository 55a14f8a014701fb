package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proktora/proktora-backend/internal/model"
)

// ProjectionOutcome describes what happened to one sync item's projection.
// The audit record is written in every case.
type ProjectionOutcome string

const (
	// ProjectionApplied: the answer slot now holds this write.
	ProjectionApplied ProjectionOutcome = "APPLIED"
	// ProjectionStale: the attempt is terminal or past its deadline;
	// audited, not projected.
	ProjectionStale ProjectionOutcome = "STALE"
	// ProjectionSuperseded: a newer write already occupies the slot;
	// the store has converged, nothing to do.
	ProjectionSuperseded ProjectionOutcome = "SUPERSEDED"
	// ProjectionUnknownSlot: the question does not belong to the attempt.
	ProjectionUnknownSlot ProjectionOutcome = "UNKNOWN_SLOT"
)

// SyncRepository persists offline sync items: a durable audit row per item,
// plus the projection into the answer store. Persist and project happen in
// one transaction per item so a crash can never audit without projecting
// (or vice versa) inconsistently.
type SyncRepository struct {
	pool *pgxpool.Pool
}

// NewSyncRepository creates a new SyncRepository.
func NewSyncRepository(pool *pgxpool.Pool) *SyncRepository {
	return &SyncRepository{pool: pool}
}

// ApplyAnswerItem audits one ANSWER sync item and projects it into its
// pre-allocated answer slot. Keyed on the client-generated item ID, the audit
// insert is ON CONFLICT DO NOTHING, and the projection is a guarded
// last-write-wins update; replaying the same item any number of times
// converges to the same final row.
func (r *SyncRepository) ApplyAnswerItem(ctx context.Context, userID int, item model.SyncItem, p model.AnswerSyncPayload) (ProjectionOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_audit (item_id, attempt_id, user_id, sync_type, payload, queued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (item_id) DO NOTHING`,
		item.ItemID, item.AttemptID, userID, item.SyncType, item.Payload, item.QueuedAt,
	); err != nil {
		return "", fmt.Errorf("insert sync audit: %w", err)
	}

	// The attempt-state guard rides inside the UPDATE: projection only
	// happens against a live attempt within its deadline.
	tag, err := tx.Exec(ctx,
		`UPDATE exam_answers ea
		 SET selected_option = $3, essay_text = $4, flagged = $5,
		     answered_at = $6, updated_at = NOW()
		 FROM exam_attempts a
		 WHERE ea.attempt_id = a.id
		   AND ea.attempt_id = $1 AND ea.question_id = $2
		   AND a.status = $7 AND a.server_deadline > NOW()
		   AND (ea.answered_at IS NULL OR ea.answered_at <= $6)`,
		item.AttemptID, p.QuestionID, p.SelectedOption, p.EssayText, p.Flagged,
		p.AnsweredAt, model.AttemptStatusInProgress,
	)
	if err != nil {
		return "", fmt.Errorf("project answer: %w", err)
	}

	outcome := ProjectionApplied
	if tag.RowsAffected() == 0 {
		outcome, err = classifyAnswerMiss(ctx, tx, item.AttemptID, p.QuestionID)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit sync item: %w", err)
	}
	return outcome, nil
}

// ApplySubmitItem audits one SUBMIT sync item and, if the attempt is still
// live, completes it. A submit replayed against an already-terminal attempt
// is audited and reported stale, never an error.
func (r *SyncRepository) ApplySubmitItem(ctx context.Context, userID int, item model.SyncItem) (ProjectionOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_audit (item_id, attempt_id, user_id, sync_type, payload, queued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (item_id) DO NOTHING`,
		item.ItemID, item.AttemptID, userID, item.SyncType, item.Payload, item.QueuedAt,
	); err != nil {
		return "", fmt.Errorf("insert sync audit: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $2, finished_at = NOW()
		 WHERE id = $1 AND status = $3`,
		item.AttemptID, model.AttemptStatusCompleted, model.AttemptStatusInProgress,
	)
	if err != nil {
		return "", fmt.Errorf("project submit: %w", err)
	}

	outcome := ProjectionApplied
	if tag.RowsAffected() == 0 {
		outcome = ProjectionStale
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit sync item: %w", err)
	}
	return outcome, nil
}

// rowQuerier is the single-row query surface shared by pgxpool.Pool and
// pgx.Tx, so the miss classifier runs inside or outside a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classifyAnswerMiss figures out why a guarded answer projection updated
// zero rows.
func classifyAnswerMiss(ctx context.Context, q rowQuerier, attemptID, questionID uuid.UUID) (ProjectionOutcome, error) {
	var slotExists, attemptLive bool
	err := q.QueryRow(ctx,
		`SELECT
			EXISTS (SELECT 1 FROM exam_answers WHERE attempt_id = $1 AND question_id = $2),
			EXISTS (SELECT 1 FROM exam_attempts WHERE id = $1 AND status = $3 AND server_deadline > NOW())`,
		attemptID, questionID, model.AttemptStatusInProgress,
	).Scan(&slotExists, &attemptLive)
	if err != nil {
		return "", fmt.Errorf("classify projection miss: %w", err)
	}

	switch {
	case !slotExists:
		return ProjectionUnknownSlot, nil
	case !attemptLive:
		return ProjectionStale, nil
	default:
		return ProjectionSuperseded, nil
	}
}
