package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnswerStore struct {
	outcome repository.ProjectionOutcome
	err     error
	calls   int
}

func (s *stubAnswerStore) UpsertAnswer(_ context.Context, _, _ uuid.UUID, _, _ *string, _ bool, _ time.Time) (repository.ProjectionOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func testJob() *answerJob {
	opt := "B"
	return &answerJob{
		AttemptID:      uuid.NewString(),
		QuestionID:     uuid.NewString(),
		SelectedOption: &opt,
		AnsweredAt:     time.Now(),
	}
}

func TestPersistAppliesStagedWrite(t *testing.T) {
	store := &stubAnswerStore{outcome: repository.ProjectionApplied}
	w := NewAutosaveWorker(store, nil, zerolog.Nop())

	require.NoError(t, w.persist(context.Background(), testJob()))
	assert.Equal(t, 1, store.calls)
}

func TestPersistDropsWriteForFinishedAttempt(t *testing.T) {
	store := &stubAnswerStore{outcome: repository.ProjectionStale}
	w := NewAutosaveWorker(store, nil, zerolog.Nop())

	// A write staged before termination but persisted after it stays out of
	// the store, and the job is not requeued.
	err := w.persist(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
}

func TestPersistReturnsStoreErrorForRetry(t *testing.T) {
	store := &stubAnswerStore{err: errors.New("connection reset")}
	w := NewAutosaveWorker(store, nil, zerolog.Nop())

	assert.Error(t, w.persist(context.Background(), testJob()))
}

func TestPersistRejectsMalformedIDs(t *testing.T) {
	store := &stubAnswerStore{outcome: repository.ProjectionApplied}
	w := NewAutosaveWorker(store, nil, zerolog.Nop())

	job := testJob()
	job.AttemptID = "not-a-uuid"
	assert.Error(t, w.persist(context.Background(), job))
	assert.Zero(t, store.calls)
}
