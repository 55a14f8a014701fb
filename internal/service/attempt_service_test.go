package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attemptFixture struct {
	svc      *AttemptService
	packages *fakePackages
	attempts *fakeAttempts
	cache    *fakeCache
	pkg      *model.ExamPackage
	qids     []uuid.UUID
	attempt  *model.ExamAttempt
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	packages := newFakePackages()
	attempts := newFakeAttempts(packages)
	cache := newFakeCache()

	pkg := paidPackage()
	pkg.IsFree = true
	qids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	packages.addPackage(pkg, qids...)

	attempt, err := attempts.Admit(context.Background(), 1, pkg, false)
	require.NoError(t, err)

	return &attemptFixture{
		svc:      NewAttemptService(attempts, packages, cache, 3, zerolog.Nop()),
		packages: packages,
		attempts: attempts,
		cache:    cache,
		pkg:      pkg,
		qids:     qids,
		attempt:  attempt,
	}
}

func strptr(s string) *string { return &s }

func (f *attemptFixture) expire() {
	f.attempts.mu.Lock()
	f.attempts.attempts[f.attempt.ID].ServerDeadline = time.Now().Add(-time.Minute)
	f.attempts.mu.Unlock()
}

func TestSaveAnswerWritesSlot(t *testing.T) {
	f := newAttemptFixture(t)

	err := f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("B"),
	})
	require.NoError(t, err)

	slot := f.attempts.answers[f.attempt.ID][f.qids[0]]
	require.NotNil(t, slot.AnsweredAt)
	assert.Equal(t, "B", *slot.SelectedOption)
}

func TestSaveAnswerStaleWriteKeepsNewer(t *testing.T) {
	f := newAttemptFixture(t)
	newer := time.Now()
	older := newer.Add(-time.Minute)

	require.NoError(t, f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("C"), AnsweredAt: &newer,
	}))
	// The stale write reports success; the store already converged.
	require.NoError(t, f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("A"), AnsweredAt: &older,
	}))

	slot := f.attempts.answers[f.attempt.ID][f.qids[0]]
	assert.Equal(t, "C", *slot.SelectedOption)
}

func TestSaveAnswerUnknownQuestion(t *testing.T) {
	f := newAttemptFixture(t)
	err := f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, uuid.New(), model.SaveAnswerRequest{
		SelectedOption: strptr("A"),
	})
	assert.ErrorIs(t, err, ErrQuestionNotInPackage)
}

func TestSaveAnswerForeignAttemptIndistinguishable(t *testing.T) {
	f := newAttemptFixture(t)
	err := f.svc.SaveAnswer(context.Background(), 2, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("A"),
	})
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestSaveAnswerAfterDeadlineLocksAndTimesOut(t *testing.T) {
	f := newAttemptFixture(t)
	f.expire()

	err := f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("A"),
	})
	assert.ErrorIs(t, err, ErrAttemptLocked)

	reloaded, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusTimedOut, reloaded.Status, "overdue attempt finalized on access")
	assert.Nil(t, f.attempts.answers[f.attempt.ID][f.qids[0]].AnsweredAt, "post-deadline write rejected, not applied")
}

func TestSubmitCompletesAndIsIdempotent(t *testing.T) {
	f := newAttemptFixture(t)

	first, err := f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusCompleted, first.Status)

	again, err := f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusCompleted, again.Status)
	assert.Equal(t, first.FinishedAt.Unix(), again.FinishedAt.Unix(), "retried submit does not re-finalize")
}

func TestSubmitAfterDeadlineRecordsTimeout(t *testing.T) {
	f := newAttemptFixture(t)
	f.expire()

	attempt, err := f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusTimedOut, attempt.Status)
}

func TestGetActiveHidesExpiredAttempt(t *testing.T) {
	f := newAttemptFixture(t)

	active, err := f.svc.GetActive(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, f.attempt.ID, active.ID)

	f.expire()
	active, err = f.svc.GetActive(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	active, err = f.svc.GetActive(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSaveAnswerAfterTerminationRejected(t *testing.T) {
	f := newAttemptFixture(t)
	_, err := f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)

	err = f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[0], model.SaveAnswerRequest{
		SelectedOption: strptr("A"),
	})
	assert.ErrorIs(t, err, ErrAttemptLocked)
	assert.Nil(t, f.attempts.answers[f.attempt.ID][f.qids[0]].AnsweredAt, "finished attempt accepts no writes")
}

func TestDeadlineFallsBackToStoreAndHealsCache(t *testing.T) {
	f := newAttemptFixture(t)

	deadline, err := f.svc.Deadline(context.Background(), f.attempt.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, f.attempt.ServerDeadline, deadline, time.Second)

	cached, ok := f.cache.GetDeadline(context.Background(), f.attempt.ID)
	require.True(t, ok, "cache healed after miss")
	assert.Equal(t, deadline, cached)
}

func TestDeadlineRefusesTerminalAttempt(t *testing.T) {
	f := newAttemptFixture(t)

	_, err := f.svc.Deadline(context.Background(), f.attempt.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)
	_, ok := f.cache.GetDeadline(context.Background(), f.attempt.ID)
	require.False(t, ok, "finalization drops the cached deadline")

	// The original deadline is still in the future, but a finished attempt
	// has no deadline to serve and the cache must not be re-healed.
	_, err = f.svc.Deadline(context.Background(), f.attempt.ID)
	assert.ErrorIs(t, err, ErrAttemptLocked)
	_, ok = f.cache.GetDeadline(context.Background(), f.attempt.ID)
	assert.False(t, ok)
}

func TestGetOfflineBundleShape(t *testing.T) {
	f := newAttemptFixture(t)

	require.NoError(t, f.svc.SaveAnswer(context.Background(), 1, f.attempt.ID, f.qids[1], model.SaveAnswerRequest{
		SelectedOption: strptr("D"),
	}))

	bundle, err := f.svc.GetOfflineBundle(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, f.attempt.ID, bundle.AttemptID)
	assert.Len(t, bundle.Questions, 3)
	assert.Len(t, bundle.Answers, 3, "every pre-allocated slot ships, answered or not")
	assert.Greater(t, bundle.RemainingSeconds, int64(0))
	assert.Equal(t, 3, bundle.ViolationsLeft)

	_, cached := f.cache.GetBundle(context.Background(), f.pkg.ID)
	assert.True(t, cached, "question payload cached after first assembly")
}

func TestGetOfflineBundleLockedWhenTerminal(t *testing.T) {
	f := newAttemptFixture(t)
	_, err := f.svc.Submit(context.Background(), 1, f.attempt.ID)
	require.NoError(t, err)

	_, err = f.svc.GetOfflineBundle(context.Background(), 1, f.attempt.ID)
	assert.ErrorIs(t, err, ErrAttemptLocked)
}

func TestPrewarmBundlesFillsCache(t *testing.T) {
	f := newAttemptFixture(t)

	require.NoError(t, f.svc.PrewarmBundles(context.Background(), []uuid.UUID{f.pkg.ID}))
	_, ok := f.cache.GetBundle(context.Background(), f.pkg.ID)
	assert.True(t, ok)
}
