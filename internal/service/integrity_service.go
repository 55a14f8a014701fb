package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ViolationLog is the append-only violation store surface.
type ViolationLog interface {
	Append(ctx context.Context, attemptID uuid.UUID, kind model.ViolationKind, message string, occurredAt time.Time, ceiling int) (*repository.AppendResult, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptViolation, error)
}

// ViolationOutcome is what the report endpoint returns to the client.
// The client treats the call as fire-and-forget; this payload only feeds the
// advisory warning UI when the response does arrive.
type ViolationOutcome struct {
	Count      int  `json:"count"`
	Ceiling    int  `json:"ceiling"`
	Remaining  int  `json:"remaining"`
	Terminated bool `json:"terminated"`
}

// IntegrityService is the server-side half of the integrity monitor: it
// accumulates violation reports and enforces the ceiling. Reporting is
// best-effort on the client; accumulation here is authoritative. A client
// that stops reporting caps detection at whatever it sent, an accepted
// limitation of client-side detection, not a guarantee of compliance.
type IntegrityService struct {
	attempts   AttemptStore
	violations ViolationLog
	cache      SessionCache
	ceiling    int
	log        zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(attempts AttemptStore, violations ViolationLog, cache SessionCache, maxViolations int, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		attempts:   attempts,
		violations: violations,
		cache:      cache,
		ceiling:    maxViolations,
		log:        log.With().Str("component", "integrity_service").Logger(),
	}
}

// ReportViolation records one violation event against the attempt and
// enforces the ceiling. Crossing the ceiling forces termination exactly
// once; duplicate crossings (retried reports, racing tabs) observe the
// attempt already terminal and are recorded as no-ops. Reports against an
// already-terminal attempt are still logged for audit.
func (s *IntegrityService) ReportViolation(ctx context.Context, userID int, attemptID uuid.UUID, req model.ReportViolationRequest) (*ViolationOutcome, error) {
	if !req.Kind.Known() {
		return nil, ErrUnknownViolationKind
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	res, err := s.violations.Append(ctx, attemptID, req.Kind, req.Message, occurredAt, s.ceiling)
	if err != nil {
		return nil, fmt.Errorf("append violation: %w", err)
	}

	if res.Terminated {
		s.cache.DropAttempt(ctx, attemptID)
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Int("user_id", userID).
			Int("count", res.Count).
			Str("kind", string(req.Kind)).
			Msg("Violation ceiling crossed, attempt force-terminated")
	} else {
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Int("count", res.Count).
			Str("kind", string(req.Kind)).
			Bool("already_terminal", res.AlreadyTerminal).
			Msg("Violation recorded")
	}

	remaining := s.ceiling - res.Count
	if remaining < 0 {
		remaining = 0
	}
	return &ViolationOutcome{
		Count:      res.Count,
		Ceiling:    s.ceiling,
		Remaining:  remaining,
		Terminated: res.Terminated,
	}, nil
}

// ListViolations returns the attempt's violation log for the owning user.
func (s *IntegrityService) ListViolations(ctx context.Context, userID int, attemptID uuid.UUID) ([]model.AttemptViolation, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return s.violations.ListByAttempt(ctx, attemptID)
}
