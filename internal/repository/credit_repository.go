package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proktora/proktora-backend/internal/model"
)

// CreditRepository handles the user credit ledger.
type CreditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new CreditRepository.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

// GetBalance retrieves a user's credit counters. A user without a row is
// treated as having zero of both.
func (r *CreditRepository) GetBalance(ctx context.Context, userID int) (*model.UserCredit, error) {
	c := &model.UserCredit{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT free_units, paid_balance, updated_at
		 FROM user_credits
		 WHERE user_id = $1`, userID,
	).Scan(&c.FreeUnits, &c.PaidBalance, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c, nil
		}
		return nil, err
	}
	return c, nil
}

// ListHistory retrieves a page of the append-only credit log, newest first.
func (r *CreditRepository) ListHistory(ctx context.Context, userID, page, perPage int) ([]model.CreditHistory, error) {
	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, delta, balance_after, reason, ref_attempt_id, created_at
		 FROM credit_history
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`, userID, perPage, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.CreditHistory
	for rows.Next() {
		var h model.CreditHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.Delta, &h.BalanceAfter, &h.Reason, &h.RefAttemptID, &h.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// CountHistory returns the total number of credit log entries for the user.
func (r *CreditRepository) CountHistory(ctx context.Context, userID int) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_history WHERE user_id = $1`, userID,
	).Scan(&total)
	return total, err
}

// DebitOneTx atomically spends exactly one unit inside the caller's
// transaction, preferring free_units over paid_balance. The "count >= 1"
// guard is part of the UPDATE itself, so two concurrent debits against a
// balance of 1 cannot both succeed. Returns false when neither counter
// could be decremented; no history row is written in that case.
func (r *CreditRepository) DebitOneTx(ctx context.Context, tx pgx.Tx, userID int, refAttemptID uuid.UUID) (bool, error) {
	var freeLeft, paidLeft int

	err := tx.QueryRow(ctx,
		`UPDATE user_credits
		 SET free_units = free_units - 1, updated_at = NOW()
		 WHERE user_id = $1 AND free_units >= 1
		 RETURNING free_units, paid_balance`, userID,
	).Scan(&freeLeft, &paidLeft)

	if err == pgx.ErrNoRows {
		// No free unit available, fall back to the paid counter.
		err = tx.QueryRow(ctx,
			`UPDATE user_credits
			 SET paid_balance = paid_balance - 1, updated_at = NOW()
			 WHERE user_id = $1 AND paid_balance >= 1
			 RETURNING free_units, paid_balance`, userID,
		).Scan(&freeLeft, &paidLeft)
		if err == pgx.ErrNoRows {
			return false, nil
		}
	}
	if err != nil {
		return false, fmt.Errorf("debit credit: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_history (user_id, delta, balance_after, reason, ref_attempt_id)
		 VALUES ($1, -1, $2, $3, $4)`,
		userID, freeLeft+paidLeft, model.CreditReasonUsage, refAttemptID,
	)
	if err != nil {
		return false, fmt.Errorf("insert credit history: %w", err)
	}

	return true, nil
}

// Grant adds units to a user's balance and appends the paired history entry.
// paid selects which counter receives the delta. Used to project externally
// originated credit events (signup bonus, referral bonus, purchases).
func (r *CreditRepository) Grant(ctx context.Context, userID, amount int, paid bool, reason model.CreditReason) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	column := "free_units"
	if paid {
		column = "paid_balance"
	}

	var freeLeft, paidLeft int
	err = tx.QueryRow(ctx,
		`INSERT INTO user_credits (user_id, free_units, paid_balance)
		 VALUES ($1, CASE WHEN $3 THEN 0 ELSE $2 END, CASE WHEN $3 THEN $2 ELSE 0 END)
		 ON CONFLICT (user_id) DO UPDATE
		 SET `+column+` = user_credits.`+column+` + $2, updated_at = NOW()
		 RETURNING free_units, paid_balance`,
		userID, amount, paid,
	).Scan(&freeLeft, &paidLeft)
	if err != nil {
		return fmt.Errorf("grant credit: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_history (user_id, delta, balance_after, reason)
		 VALUES ($1, $2, $3, $4)`,
		userID, amount, freeLeft+paidLeft, reason,
	)
	if err != nil {
		return fmt.Errorf("insert credit history: %w", err)
	}

	return tx.Commit(ctx)
}
