package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/repository"
)

// In-memory doubles for the store interfaces. Mutations hold one mutex, so
// each call is atomic exactly the way the real per-call transactions are.

type fakePackages struct {
	packages  map[uuid.UUID]*model.ExamPackage
	questions map[uuid.UUID][]model.QuestionForTaker
	access    map[uuid.UUID]map[int]bool
}

func newFakePackages() *fakePackages {
	return &fakePackages{
		packages:  make(map[uuid.UUID]*model.ExamPackage),
		questions: make(map[uuid.UUID][]model.QuestionForTaker),
		access:    make(map[uuid.UUID]map[int]bool),
	}
}

func (f *fakePackages) addPackage(pkg *model.ExamPackage, questionIDs ...uuid.UUID) {
	f.packages[pkg.ID] = pkg
	for i, qid := range questionIDs {
		f.questions[pkg.ID] = append(f.questions[pkg.ID], model.QuestionForTaker{
			ID:           qid,
			QuestionText: "q",
			QuestionType: model.QuestionTypeMultipleChoice,
			Options:      json.RawMessage(`["a","b","c","d"]`),
			OrderNum:     i + 1,
		})
	}
}

func (f *fakePackages) GetByID(_ context.Context, id uuid.UUID) (*model.ExamPackage, error) {
	pkg, ok := f.packages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *pkg
	return &cp, nil
}

func (f *fakePackages) ListQuestionsForTaker(_ context.Context, packageID uuid.UUID) ([]model.QuestionForTaker, error) {
	return f.questions[packageID], nil
}

func (f *fakePackages) HasDirectAccess(_ context.Context, userID int, packageID uuid.UUID) (bool, error) {
	return f.access[packageID][userID], nil
}

func (f *fakePackages) grantAccess(userID int, packageID uuid.UUID) {
	if f.access[packageID] == nil {
		f.access[packageID] = make(map[int]bool)
	}
	f.access[packageID][userID] = true
}

// fakeAttempts implements AdmissionStore, AttemptStore, ViolationLog, and
// SyncStore against plain maps.
type fakeAttempts struct {
	mu       sync.Mutex
	packages *fakePackages
	attempts map[uuid.UUID]*model.ExamAttempt
	answers  map[uuid.UUID]map[uuid.UUID]*model.ExamAnswer
	log      map[uuid.UUID][]model.AttemptViolation
	audit    map[uuid.UUID]model.SyncItem
	credits  map[int]int
	debits   int
}

func newFakeAttempts(packages *fakePackages) *fakeAttempts {
	return &fakeAttempts{
		packages: packages,
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
		answers:  make(map[uuid.UUID]map[uuid.UUID]*model.ExamAnswer),
		log:      make(map[uuid.UUID][]model.AttemptViolation),
		audit:    make(map[uuid.UUID]model.SyncItem),
		credits:  make(map[int]int),
	}
}

func (f *fakeAttempts) activeLocked(userID int, packageID uuid.UUID) *model.ExamAttempt {
	for _, a := range f.attempts {
		if a.UserID == userID && a.PackageID == packageID && a.Status == model.AttemptStatusInProgress {
			return a
		}
	}
	return nil
}

func (f *fakeAttempts) HasActive(_ context.Context, userID int, packageID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked(userID, packageID) != nil, nil
}

func (f *fakeAttempts) CountUsed(_ context.Context, userID int, packageID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	used := 0
	for _, a := range f.attempts {
		if a.UserID == userID && a.PackageID == packageID && a.Status != model.AttemptStatusAbandoned {
			used++
		}
	}
	return used, nil
}

func (f *fakeAttempts) Admit(_ context.Context, userID int, pkg *model.ExamPackage, debit bool) (*model.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.activeLocked(userID, pkg.ID) != nil {
		return nil, repository.ErrActiveAttemptExists
	}
	if debit {
		if f.credits[userID] < 1 {
			return nil, repository.ErrInsufficientCredits
		}
		f.credits[userID]--
		f.debits++
	}

	now := time.Now()
	a := &model.ExamAttempt{
		ID:              uuid.New(),
		UserID:          userID,
		PackageID:       pkg.ID,
		Status:          model.AttemptStatusInProgress,
		ServerStartedAt: now,
		ServerDeadline:  now.Add(time.Duration(pkg.DurationMinutes) * time.Minute),
		CreatedAt:       now,
	}
	f.attempts[a.ID] = a

	f.answers[a.ID] = make(map[uuid.UUID]*model.ExamAnswer)
	for _, q := range f.packages.questions[pkg.ID] {
		f.answers[a.ID][q.ID] = &model.ExamAnswer{AttemptID: a.ID, QuestionID: q.ID}
	}
	return a, nil
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) GetActiveByUser(_ context.Context, userID int) (*model.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.UserID == userID && a.Status == model.AttemptStatusInProgress {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAttempts) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.ExamAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamAnswer
	for _, ans := range f.answers[attemptID] {
		out = append(out, *ans)
	}
	return out, nil
}

func (f *fakeAttempts) UpsertAnswer(_ context.Context, attemptID, questionID uuid.UUID, selected, essay *string, flagged bool, answeredAt time.Time) (repository.ProjectionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.attempts[attemptID]
	slot, slotExists := f.answers[attemptID][questionID]
	live := a != nil && a.Status == model.AttemptStatusInProgress && a.ServerDeadline.After(time.Now())

	switch {
	case !slotExists:
		return repository.ProjectionUnknownSlot, nil
	case !live:
		return repository.ProjectionStale, nil
	case slot.AnsweredAt != nil && slot.AnsweredAt.After(answeredAt):
		return repository.ProjectionSuperseded, nil
	}

	slot.SelectedOption = selected
	slot.EssayText = essay
	slot.Flagged = flagged
	at := answeredAt
	slot.AnsweredAt = &at
	slot.UpdatedAt = time.Now()
	return repository.ProjectionApplied, nil
}

func (f *fakeAttempts) Finish(_ context.Context, attemptID uuid.UUID, status model.AttemptStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Status = status
	now := time.Now()
	a.FinishedAt = &now
	return true, nil
}

// ViolationLog implementation.

func (f *fakeAttempts) Append(_ context.Context, attemptID uuid.UUID, kind model.ViolationKind, message string, occurredAt time.Time, ceiling int) (*repository.AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	alreadyTerminal := a.Status.Terminal()

	f.log[attemptID] = append(f.log[attemptID], model.AttemptViolation{
		ID:         int64(len(f.log[attemptID]) + 1),
		AttemptID:  attemptID,
		Kind:       kind,
		Message:    message,
		OccurredAt: occurredAt,
		CreatedAt:  time.Now(),
	})
	a.ViolationCount++

	terminated := false
	if a.ViolationCount >= ceiling && a.Status == model.AttemptStatusInProgress {
		a.Status = model.AttemptStatusTimedOut
		now := time.Now()
		a.FinishedAt = &now
		terminated = true
	}

	return &repository.AppendResult{
		Count:           a.ViolationCount,
		Terminated:      terminated,
		AlreadyTerminal: alreadyTerminal,
	}, nil
}

func (f *fakeAttempts) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.AttemptViolation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AttemptViolation, len(f.log[attemptID]))
	copy(out, f.log[attemptID])
	return out, nil
}

// SyncStore implementation.

func (f *fakeAttempts) ApplyAnswerItem(_ context.Context, userID int, item model.SyncItem, p model.AnswerSyncPayload) (repository.ProjectionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.audit[item.ItemID]; !seen {
		f.audit[item.ItemID] = item
	}

	a := f.attempts[item.AttemptID]
	slot, slotExists := f.answers[item.AttemptID][p.QuestionID]
	live := a != nil && a.Status == model.AttemptStatusInProgress && a.ServerDeadline.After(time.Now())

	switch {
	case !slotExists:
		return repository.ProjectionUnknownSlot, nil
	case !live:
		return repository.ProjectionStale, nil
	case slot.AnsweredAt != nil && slot.AnsweredAt.After(p.AnsweredAt):
		return repository.ProjectionSuperseded, nil
	}

	slot.SelectedOption = p.SelectedOption
	slot.EssayText = p.EssayText
	slot.Flagged = p.Flagged
	at := p.AnsweredAt
	slot.AnsweredAt = &at
	slot.UpdatedAt = time.Now()
	return repository.ProjectionApplied, nil
}

func (f *fakeAttempts) ApplySubmitItem(_ context.Context, userID int, item model.SyncItem) (repository.ProjectionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.audit[item.ItemID]; !seen {
		f.audit[item.ItemID] = item
	}

	a := f.attempts[item.AttemptID]
	if a == nil || a.Status != model.AttemptStatusInProgress {
		return repository.ProjectionStale, nil
	}
	a.Status = model.AttemptStatusCompleted
	now := time.Now()
	a.FinishedAt = &now
	return repository.ProjectionApplied, nil
}

// fakeCache is a SessionCache over maps, tracking drops.
type fakeCache struct {
	mu        sync.Mutex
	deadlines map[uuid.UUID]time.Time
	bundles   map[uuid.UUID][]byte
	dropped   map[uuid.UUID]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		deadlines: make(map[uuid.UUID]time.Time),
		bundles:   make(map[uuid.UUID][]byte),
		dropped:   make(map[uuid.UUID]int),
	}
}

func (c *fakeCache) SetDeadline(_ context.Context, attemptID uuid.UUID, deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines[attemptID] = deadline
}

func (c *fakeCache) GetDeadline(_ context.Context, attemptID uuid.UUID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deadlines[attemptID]
	return d, ok
}

func (c *fakeCache) SetBundle(_ context.Context, packageID uuid.UUID, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles[packageID] = payload
}

func (c *fakeCache) GetBundle(_ context.Context, packageID uuid.UUID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bundles[packageID]
	return b, ok
}

func (c *fakeCache) DropAttempt(_ context.Context, attemptID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadlines, attemptID)
	c.dropped[attemptID]++
}
