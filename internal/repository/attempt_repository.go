package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proktora/proktora-backend/internal/model"
)

// Repository-level sentinels surfaced by the admission transaction.
var (
	// ErrActiveAttemptExists means the partial unique index rejected a second
	// IN_PROGRESS attempt for the same (user, package).
	ErrActiveAttemptExists = errors.New("an in-progress attempt already exists")
	// ErrInsufficientCredits means neither credit counter could be
	// conditionally decremented.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// AttemptRepository is the authoritative store for exam attempts and their
// pre-allocated answer slots.
type AttemptRepository struct {
	pool       *pgxpool.Pool
	creditRepo *CreditRepository
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool, creditRepo *CreditRepository) *AttemptRepository {
	return &AttemptRepository{pool: pool, creditRepo: creditRepo}
}

const attemptColumns = `id, user_id, package_id, status, server_started_at, server_deadline,
	violation_count, score, total_correct, total_wrong, finished_at, created_at`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.PackageID, &a.Status, &a.ServerStartedAt,
		&a.ServerDeadline, &a.ViolationCount, &a.Score, &a.TotalCorrect,
		&a.TotalWrong, &a.FinishedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Admit creates an attempt, pre-allocates one answer slot per question, and
// (when debit is true) spends exactly one credit unit, all in a single
// transaction. A failure at any step rolls back every write, so no
// half-admitted attempt and no unpaired ledger entry can ever be observed.
func (r *AttemptRepository) Admit(ctx context.Context, userID int, pkg *model.ExamPackage, debit bool) (*model.ExamAttempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	attemptID := uuid.New()

	if debit {
		ok, err := r.creditRepo.DebitOneTx(ctx, tx, userID, attemptID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInsufficientCredits
		}
	}

	// The deadline is computed here, once. The partial unique index on
	// (user_id, package_id) WHERE status = 'IN_PROGRESS' turns a concurrent
	// double-start into a conflict instead of a second row.
	a, err := scanAttempt(tx.QueryRow(ctx,
		`INSERT INTO exam_attempts
			(id, user_id, package_id, status, server_started_at, server_deadline)
		 VALUES ($1, $2, $3, $4, NOW(), NOW() + make_interval(mins => $5))
		 ON CONFLICT (user_id, package_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING `+attemptColumns,
		attemptID, userID, pkg.ID, model.AttemptStatusInProgress, pkg.DurationMinutes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActiveAttemptExists
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	// Pre-allocate an empty answer row for every question so all later
	// writes are idempotent updates against a fixed key space.
	if _, err := tx.Exec(ctx,
		`INSERT INTO exam_answers (attempt_id, question_id)
		 SELECT $1, id FROM questions WHERE package_id = $2`,
		a.ID, pkg.ID,
	); err != nil {
		return nil, fmt.Errorf("preallocate answers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return a, nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetActiveByUser retrieves the user's IN_PROGRESS attempt, if any.
func (r *AttemptRepository) GetActiveByUser(ctx context.Context, userID int) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND status = $2`,
		userID, model.AttemptStatusInProgress))
}

// HasActive reports whether an IN_PROGRESS attempt exists for (user, package).
func (r *AttemptRepository) HasActive(ctx context.Context, userID int, packageID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM exam_attempts
			WHERE user_id = $1 AND package_id = $2 AND status = $3
		 )`, userID, packageID, model.AttemptStatusInProgress,
	).Scan(&exists)
	return exists, err
}

// CountUsed counts completed plus in-progress attempts for (user, package);
// the figure compared against the package's max_attempts cap. Timed-out
// attempts count as used; abandoned ones do not.
func (r *AttemptRepository) CountUsed(ctx context.Context, userID int, packageID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts
		 WHERE user_id = $1 AND package_id = $2 AND status != $3`,
		userID, packageID, model.AttemptStatusAbandoned,
	).Scan(&n)
	return n, err
}

// ListAnswers retrieves every answer slot of an attempt in question order.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.ExamAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ea.attempt_id, ea.question_id, ea.selected_option, ea.essay_text,
		        ea.flagged, ea.answered_at, ea.updated_at
		 FROM exam_answers ea
		 JOIN questions q ON q.id = ea.question_id
		 WHERE ea.attempt_id = $1
		 ORDER BY q.order_num ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.ExamAnswer
	for rows.Next() {
		var a model.ExamAnswer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.SelectedOption, &a.EssayText,
			&a.Flagged, &a.AnsweredAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpsertAnswer overwrites an answer slot, last-write-wins on answeredAt.
// The attempt-state guard rides inside the UPDATE, the same way the sync
// projection guards: only a live attempt within its deadline accepts the
// write, whichever path the answer arrived by. Replaying the same write
// converges to the same row.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selected, essay *string, flagged bool, answeredAt time.Time) (ProjectionOutcome, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_answers ea
		 SET selected_option = $3, essay_text = $4, flagged = $5,
		     answered_at = $6, updated_at = NOW()
		 FROM exam_attempts a
		 WHERE ea.attempt_id = a.id
		   AND ea.attempt_id = $1 AND ea.question_id = $2
		   AND a.status = $7 AND a.server_deadline > NOW()
		   AND (ea.answered_at IS NULL OR ea.answered_at <= $6)`,
		attemptID, questionID, selected, essay, flagged, answeredAt,
		model.AttemptStatusInProgress,
	)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() > 0 {
		return ProjectionApplied, nil
	}
	return classifyAnswerMiss(ctx, r.pool, attemptID, questionID)
}

// Finish transitions an IN_PROGRESS attempt to the given terminal status.
// Returns false if the attempt was already terminal; callers treat that as
// a no-op, which makes duplicate finalizations (retried submits, concurrent
// ceiling crossings) harmless.
func (r *AttemptRepository) Finish(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish requires a terminal status, got %s", status)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $2, finished_at = NOW()
		 WHERE id = $1 AND status = $3`,
		attemptID, status, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireOverdue bulk-expires every IN_PROGRESS attempt whose deadline has
// passed, returning the IDs it transitioned. Used by the reaper worker so
// attempts the client never submits still terminate.
func (r *AttemptRepository) ExpireOverdue(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE exam_attempts
		 SET status = $1, finished_at = NOW()
		 WHERE status = $2 AND server_deadline < NOW()
		 RETURNING id`,
		model.AttemptStatusTimedOut, model.AttemptStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
