package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdmissionFixture() (*AdmissionService, *fakePackages, *fakeAttempts, *fakeCache) {
	packages := newFakePackages()
	attempts := newFakeAttempts(packages)
	cache := newFakeCache()
	svc := NewAdmissionService(packages, attempts, cache, zerolog.Nop())
	return svc, packages, attempts, cache
}

func paidPackage() *model.ExamPackage {
	return &model.ExamPackage{
		ID:              uuid.New(),
		Title:           "Tryout UTBK 1",
		DurationMinutes: 90,
		Status:          model.PackageStatusPublished,
	}
}

func TestStartAttemptDebitsPaidPackage(t *testing.T) {
	svc, packages, attempts, cache := newAdmissionFixture()
	pkg := paidPackage()
	packages.addPackage(pkg, uuid.New(), uuid.New())
	attempts.credits[1] = 2

	attempt, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusInProgress, attempt.Status)
	assert.Equal(t, 1, attempts.credits[1], "exactly one unit debited")
	assert.Len(t, attempts.answers[attempt.ID], 2, "answer slots pre-allocated")
	assert.True(t, attempt.ServerDeadline.After(attempt.ServerStartedAt))

	_, cached := cache.GetDeadline(context.Background(), attempt.ID)
	assert.True(t, cached, "deadline cached at admission")
}

func TestStartAttemptFreePackageSkipsDebit(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	pkg.IsFree = true
	packages.addPackage(pkg, uuid.New())

	_, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	require.NoError(t, err)
	assert.Zero(t, attempts.debits)
}

func TestStartAttemptDirectAccessBypassesDebit(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	packages.addPackage(pkg, uuid.New())
	packages.grantAccess(1, pkg.ID)

	_, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	require.NoError(t, err)
	assert.Zero(t, attempts.debits)
}

func TestStartAttemptInsufficientCredits(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	packages.addPackage(pkg, uuid.New())

	_, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Empty(t, attempts.attempts, "no attempt row without a successful debit")
}

func TestStartAttemptUnpublishedPackage(t *testing.T) {
	svc, packages, _, _ := newAdmissionFixture()
	pkg := paidPackage()
	pkg.Status = model.PackageStatusDraft
	packages.addPackage(pkg)

	_, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = svc.StartAttempt(context.Background(), 1, uuid.New())
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestStartAttemptRejectsSecondActive(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	packages.addPackage(pkg, uuid.New())
	attempts.credits[1] = 5

	_, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	require.NoError(t, err)

	_, err = svc.StartAttempt(context.Background(), 1, pkg.ID)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.Equal(t, 4, attempts.credits[1], "second start must not debit")
}

func TestStartAttemptMaxAttemptsReached(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	pkg.MaxAttempts = 1
	packages.addPackage(pkg, uuid.New())
	attempts.credits[1] = 5

	first, err := svc.StartAttempt(context.Background(), 1, pkg.ID)
	require.NoError(t, err)
	_, err = attempts.Finish(context.Background(), first.ID, model.AttemptStatusCompleted)
	require.NoError(t, err)

	_, err = svc.StartAttempt(context.Background(), 1, pkg.ID)
	assert.ErrorIs(t, err, ErrMaxAttemptsReached)
}

// Concurrent double-starts settle to exactly one attempt and one debit,
// regardless of how the advisory pre-checks interleave.
func TestStartAttemptConcurrentDoubleStart(t *testing.T) {
	svc, packages, attempts, _ := newAdmissionFixture()
	pkg := paidPackage()
	packages.addPackage(pkg, uuid.New())
	attempts.credits[1] = 10

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.StartAttempt(context.Background(), 1, pkg.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyInProgress)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, attempts.debits)
	assert.Len(t, attempts.attempts, 1)
}
