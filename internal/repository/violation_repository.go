package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proktora/proktora-backend/internal/model"
)

// ViolationRepository handles the append-only per-attempt violation log and
// the attempt's derived counter.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// AppendResult reports the outcome of recording one violation.
type AppendResult struct {
	// Count is the attempt's violation count after this append.
	Count int
	// Terminated is true when this exact append crossed the ceiling and won
	// the terminal transition. Concurrent ceiling-crossers lose the
	// conditional UPDATE and observe Terminated=false.
	Terminated bool
	// AlreadyTerminal is true when the attempt no longer accepts projection;
	// the violation is still logged for audit.
	AlreadyTerminal bool
}

// Append records a violation and increments the attempt's counter in one
// transaction. When the new count reaches the ceiling it also performs the
// forced termination, guarded by status = 'IN_PROGRESS' so exactly one
// crossing wins even under concurrent reports.
func (r *ViolationRepository) Append(ctx context.Context, attemptID uuid.UUID, kind model.ViolationKind, message string, occurredAt time.Time, ceiling int) (*AppendResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res := &AppendResult{}

	// Log first: the record is kept even for attempts already terminal.
	if _, err := tx.Exec(ctx,
		`INSERT INTO attempt_violations (attempt_id, kind, message, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		attemptID, kind, message, occurredAt,
	); err != nil {
		return nil, fmt.Errorf("insert violation: %w", err)
	}

	var status model.AttemptStatus
	err = tx.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET violation_count = violation_count + 1
		 WHERE id = $1
		 RETURNING violation_count, status`, attemptID,
	).Scan(&res.Count, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err // attempt does not exist
		}
		return nil, fmt.Errorf("increment violation count: %w", err)
	}

	if status.Terminal() {
		res.AlreadyTerminal = true
	} else if res.Count >= ceiling {
		tag, err := tx.Exec(ctx,
			`UPDATE exam_attempts
			 SET status = $2, finished_at = NOW()
			 WHERE id = $1 AND status = $3`,
			attemptID, model.AttemptStatusTimedOut, model.AttemptStatusInProgress,
		)
		if err != nil {
			return nil, fmt.Errorf("force terminate: %w", err)
		}
		res.Terminated = tag.RowsAffected() > 0
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit violation: %w", err)
	}
	return res, nil
}

// ListByAttempt retrieves the violation log for an attempt, oldest first.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptViolation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, kind, message, occurred_at, created_at
		 FROM attempt_violations
		 WHERE attempt_id = $1
		 ORDER BY id ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.AttemptViolation
	for rows.Next() {
		var v model.AttemptViolation
		if err := rows.Scan(&v.ID, &v.AttemptID, &v.Kind, &v.Message, &v.OccurredAt, &v.CreatedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
