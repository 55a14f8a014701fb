package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proktora/proktora-backend/internal/model"
)

// PackageRepository reads exam package definitions. Packages are owned by
// the content-management service; this engine never writes them.
type PackageRepository struct {
	pool *pgxpool.Pool
}

// NewPackageRepository creates a new PackageRepository.
func NewPackageRepository(pool *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

// GetByID retrieves a package by ID. Returns pgx.ErrNoRows if absent.
func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamPackage, error) {
	p := &model.ExamPackage{}
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, p.title, p.section, p.duration_minutes, p.passing_score,
		        p.is_free, p.max_attempts, p.status, p.created_at, p.updated_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.package_id = p.id) AS question_count
		 FROM exam_packages p
		 WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Section, &p.DurationMinutes, &p.PassingScore,
		&p.IsFree, &p.MaxAttempts, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.QuestionCount)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListQuestionsForTaker retrieves the package's questions in order with
// correct answers stripped.
func (r *PackageRepository) ListQuestionsForTaker(ctx context.Context, packageID uuid.UUID) ([]model.QuestionForTaker, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, options, order_num
		 FROM questions
		 WHERE package_id = $1
		 ORDER BY order_num ASC`, packageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionForTaker
	for rows.Next() {
		var q model.QuestionForTaker
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// HasDirectAccess reports whether the user holds unexpired direct access to
// the package (bundle purchase / voucher), which bypasses the credit debit.
func (r *PackageRepository) HasDirectAccess(ctx context.Context, userID int, packageID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM package_access
			WHERE user_id = $1 AND package_id = $2
			  AND (expires_at IS NULL OR expires_at > NOW())
		 )`, userID, packageID,
	).Scan(&exists)
	return exists, err
}

// ListPublishedIDs returns the IDs of all published packages,
// used to prewarm the bundle payload cache at boot.
func (r *PackageRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_packages WHERE status = $1`, model.PackageStatusPublished,
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
