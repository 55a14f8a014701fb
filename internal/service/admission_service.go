package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/rs/zerolog"
)

// PackageReader is the read-only view of exam package content consumed by
// the session engine.
type PackageReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamPackage, error)
	ListQuestionsForTaker(ctx context.Context, packageID uuid.UUID) ([]model.QuestionForTaker, error)
	HasDirectAccess(ctx context.Context, userID int, packageID uuid.UUID) (bool, error)
}

// AdmissionStore is the slice of the attempt store the admission controller
// needs. Admit must be atomic: debit + attempt row + answer-slot
// pre-allocation commit or roll back together.
type AdmissionStore interface {
	HasActive(ctx context.Context, userID int, packageID uuid.UUID) (bool, error)
	CountUsed(ctx context.Context, userID int, packageID uuid.UUID) (int, error)
	Admit(ctx context.Context, userID int, pkg *model.ExamPackage, debit bool) (*model.ExamAttempt, error)
}

// AdmissionService gates the creation of new exam attempts.
type AdmissionService struct {
	packages PackageReader
	attempts AdmissionStore
	cache    SessionCache
	log      zerolog.Logger
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(packages PackageReader, attempts AdmissionStore, cache SessionCache, log zerolog.Logger) *AdmissionService {
	return &AdmissionService{
		packages: packages,
		attempts: attempts,
		cache:    cache,
		log:      log.With().Str("component", "admission_service").Logger(),
	}
}

// StartAttempt validates eligibility and atomically creates an attempt,
// debiting one credit unit unless the package is free or the user holds
// unexpired direct access. Preconditions are checked in a fixed order so
// each failure mode maps to exactly one sentinel:
//
//  1. package exists and is published  → ErrPackageNotFound
//  2. no IN_PROGRESS attempt for pair  → ErrAlreadyInProgress
//  3. used attempts < max_attempts     → ErrMaxAttemptsReached
//  4. debit (when required)            → ErrInsufficientCredits
//
// The pre-checks are advisory reads; the store re-enforces (2) with a
// partial unique index and (4) with conditional decrements, so two
// concurrent starts cannot both pass, only fail a little later.
func (s *AdmissionService) StartAttempt(ctx context.Context, userID int, packageID uuid.UUID) (*model.ExamAttempt, error) {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("get package: %w", err)
	}
	if pkg.Status != model.PackageStatusPublished {
		return nil, ErrPackageNotFound
	}

	active, err := s.attempts.HasActive(ctx, userID, packageID)
	if err != nil {
		return nil, fmt.Errorf("check active attempt: %w", err)
	}
	if active {
		return nil, ErrAlreadyInProgress
	}

	used, err := s.attempts.CountUsed(ctx, userID, packageID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if pkg.MaxAttempts > 0 && used >= pkg.MaxAttempts {
		return nil, ErrMaxAttemptsReached
	}

	debit := !pkg.IsFree
	if debit {
		hasAccess, err := s.packages.HasDirectAccess(ctx, userID, packageID)
		if err != nil {
			return nil, fmt.Errorf("check direct access: %w", err)
		}
		if hasAccess {
			debit = false
		}
	}

	attempt, err := s.attempts.Admit(ctx, userID, pkg, debit)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveAttemptExists):
			return nil, ErrAlreadyInProgress
		case errors.Is(err, repository.ErrInsufficientCredits):
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("admit attempt: %w", err)
	}

	// Cache the authoritative deadline so the hot answer path rarely has to
	// touch PostgreSQL. Best-effort: a miss falls back to the store.
	s.cache.SetDeadline(ctx, attempt.ID, attempt.ServerDeadline)

	s.log.Info().
		Int("user_id", userID).
		Str("package_id", packageID.String()).
		Str("attempt_id", attempt.ID.String()).
		Bool("debited", debit).
		Time("server_deadline", attempt.ServerDeadline).
		Msg("Attempt admitted")

	return attempt, nil
}
