package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/rs/zerolog"
)

// AttemptStore is the attempt-store surface used by in-attempt operations.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetActiveByUser(ctx context.Context, userID int) (*model.ExamAttempt, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.ExamAnswer, error)
	UpsertAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selected, essay *string, flagged bool, answeredAt time.Time) (repository.ProjectionOutcome, error)
	Finish(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus) (bool, error)
}

// AttemptService owns everything that happens inside a running attempt:
// answer writes, deadline enforcement, finalization, and the offline bundle.
type AttemptService struct {
	attempts AttemptStore
	packages PackageReader
	cache    SessionCache
	ceiling  int
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, packages PackageReader, cache SessionCache, maxViolations int, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		packages: packages,
		cache:    cache,
		ceiling:  maxViolations,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// loadOwned fetches an attempt and verifies ownership.
func (s *AttemptService) loadOwned(ctx context.Context, userID int, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		// Deliberately indistinguishable from a missing attempt to the caller.
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// requireLive checks that the attempt still accepts mutation. An overdue
// IN_PROGRESS attempt is finalized on the spot; the deadline check is the
// sole authoritative timeout signal, whatever the client claims.
func (s *AttemptService) requireLive(ctx context.Context, attempt *model.ExamAttempt) error {
	if attempt.Status.Terminal() {
		return ErrAttemptLocked
	}
	if time.Now().After(attempt.ServerDeadline) {
		if done, err := s.attempts.Finish(ctx, attempt.ID, model.AttemptStatusTimedOut); err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Finalize-on-deadline failed")
		} else if done {
			s.cache.DropAttempt(ctx, attempt.ID)
			s.log.Info().Str("attempt_id", attempt.ID.String()).Msg("Attempt timed out on access")
		}
		return ErrAttemptLocked
	}
	return nil
}

// VerifyLive confirms the user owns the attempt and it still accepts
// mutation. Used to gate long-lived streams before any message handling.
func (s *AttemptService) VerifyLive(ctx context.Context, userID int, attemptID uuid.UUID) error {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	return s.requireLive(ctx, attempt)
}

// GetActive returns the user's current IN_PROGRESS attempt, or nil when
// there is none. An overdue attempt is finalized and reported as nil.
func (s *AttemptService) GetActive(ctx context.Context, userID int) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	if err := s.requireLive(ctx, attempt); err != nil {
		return nil, nil
	}
	return attempt, nil
}

// SaveAnswer applies a live answer write to its pre-allocated slot.
// Post-deadline writes are rejected with ErrAttemptLocked, never silently
// dropped. A stale write (older answeredAt than the slot) is reported as
// success: the store already holds the newer value.
func (s *AttemptService) SaveAnswer(ctx context.Context, userID int, attemptID, questionID uuid.UUID, req model.SaveAnswerRequest) error {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if err := s.requireLive(ctx, attempt); err != nil {
		return err
	}

	answeredAt := time.Now()
	if req.AnsweredAt != nil {
		answeredAt = *req.AnsweredAt
	}

	outcome, err := s.attempts.UpsertAnswer(ctx, attemptID, questionID, req.SelectedOption, req.EssayText, req.Flagged, answeredAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	switch outcome {
	case repository.ProjectionUnknownSlot:
		return ErrQuestionNotInPackage
	case repository.ProjectionStale:
		// The attempt went terminal between the liveness check and the
		// write; the store repelled it.
		return ErrAttemptLocked
	default:
		return nil
	}
}

// Submit explicitly completes the attempt. Submitting an attempt that is
// already terminal is a no-op returning its current state, so retried
// submits are harmless. Aggregate scoring runs downstream against whatever
// answers exist; only the transition is owned here.
func (s *AttemptService) Submit(ctx context.Context, userID int, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}

	target := model.AttemptStatusCompleted
	if !attempt.Status.Terminal() && time.Now().After(attempt.ServerDeadline) {
		target = model.AttemptStatusTimedOut
	}

	done, err := s.attempts.Finish(ctx, attemptID, target)
	if err != nil {
		return nil, fmt.Errorf("finish attempt: %w", err)
	}
	if done {
		s.cache.DropAttempt(ctx, attemptID)
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("status", string(target)).
			Msg("Attempt finalized")
	}

	return s.attempts.GetByID(ctx, attemptID)
}

// Deadline returns the authoritative server deadline for an attempt,
// preferring the cache with a store fallback that self-heals the cache.
// A terminal attempt has no deadline to serve: finalization drops the
// cache entry, and the fallback must not resurrect it just because the
// original deadline is still in the future.
func (s *AttemptService) Deadline(ctx context.Context, attemptID uuid.UUID) (time.Time, error) {
	if deadline, ok := s.cache.GetDeadline(ctx, attemptID); ok {
		return deadline, nil
	}
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return time.Time{}, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status.Terminal() {
		return time.Time{}, ErrAttemptLocked
	}
	s.cache.SetDeadline(ctx, attemptID, attempt.ServerDeadline)
	return attempt.ServerDeadline, nil
}

// GetOfflineBundle assembles everything the client needs to render and
// answer the exam with zero further network access: questions (correct
// answers stripped), the current answer slots, and the authoritative
// deadline. The question payload is served from the package bundle cache
// when warm.
func (s *AttemptService) GetOfflineBundle(ctx context.Context, userID int, attemptID uuid.UUID) (*model.OfflineBundle, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLive(ctx, attempt); err != nil {
		return nil, err
	}

	pkg, err := s.packages.GetByID(ctx, attempt.PackageID)
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}

	questions, err := s.bundleQuestions(ctx, attempt.PackageID)
	if err != nil {
		return nil, err
	}

	answers, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	remaining := time.Until(attempt.ServerDeadline)
	if remaining < 0 {
		remaining = 0
	}
	violationsLeft := s.ceiling - attempt.ViolationCount
	if violationsLeft < 0 {
		violationsLeft = 0
	}

	return &model.OfflineBundle{
		AttemptID:        attempt.ID,
		PackageID:        pkg.ID,
		Title:            pkg.Title,
		Questions:        questions,
		Answers:          answers,
		ServerDeadline:   attempt.ServerDeadline,
		RemainingSeconds: int64(remaining.Seconds()),
		ViolationsLeft:   violationsLeft,
	}, nil
}

// bundleQuestions returns the package's taker-safe questions, cache-first
// with a store fallback that self-heals the cache.
func (s *AttemptService) bundleQuestions(ctx context.Context, packageID uuid.UUID) ([]model.QuestionForTaker, error) {
	if raw, ok := s.cache.GetBundle(ctx, packageID); ok {
		var questions []model.QuestionForTaker
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
		// Corrupt cache entry: fall through to the store and rewrite it.
	}

	questions, err := s.packages.ListQuestionsForTaker(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if raw, err := json.Marshal(questions); err == nil {
		s.cache.SetBundle(ctx, packageID, raw)
	}
	return questions, nil
}

// PrewarmBundles loads every published package's question payload into the
// bundle cache. Called once at boot, before traffic, to avoid a thundering
// herd of lazy loads when an exam window opens.
func (s *AttemptService) PrewarmBundles(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		questions, err := s.packages.ListQuestionsForTaker(ctx, id)
		if err != nil {
			return fmt.Errorf("prewarm package %s: %w", id, err)
		}
		raw, err := json.Marshal(questions)
		if err != nil {
			return fmt.Errorf("marshal package %s: %w", id, err)
		}
		s.cache.SetBundle(ctx, id, raw)
	}
	s.log.Info().Int("packages", len(ids)).Msg("Bundle cache prewarmed")
	return nil
}
