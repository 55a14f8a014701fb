package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. IN_PROGRESS is the only
// non-terminal state; transitions out of it are one-way.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusTimedOut   AttemptStatus = "TIMED_OUT"
	AttemptStatusAbandoned  AttemptStatus = "ABANDONED"
)

// Terminal reports whether the status accepts no further mutation.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptStatusInProgress
}

// ExamAttempt is one timed instance of a user taking a package.
// ServerDeadline is computed once at admission and never recomputed;
// any client countdown is advisory only.
type ExamAttempt struct {
	ID              uuid.UUID     `json:"id"`
	UserID          int           `json:"user_id"`
	PackageID       uuid.UUID     `json:"package_id"`
	Status          AttemptStatus `json:"status"`
	ServerStartedAt time.Time     `json:"server_started_at"`
	ServerDeadline  time.Time     `json:"server_deadline"`
	ViolationCount  int           `json:"violation_count"`
	Score           *float64      `json:"score,omitempty"`
	TotalCorrect    *int          `json:"total_correct,omitempty"`
	TotalWrong      *int          `json:"total_wrong,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ExamAnswer is one pre-allocated answer slot. A row exists for every
// question of the package from the moment the attempt is created, so
// "unanswered" (AnsweredAt == nil) is distinguishable from "not yet loaded".
// Fields are overwritten, never accumulated.
type ExamAnswer struct {
	AttemptID      uuid.UUID  `json:"attempt_id"`
	QuestionID     uuid.UUID  `json:"question_id"`
	SelectedOption *string    `json:"selected_option,omitempty"`
	EssayText      *string    `json:"essay_text,omitempty"`
	Flagged        bool       `json:"flagged"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SaveAnswerRequest is the payload for a live answer write.
// AnsweredAt carries the client-side write instant so concurrent sources
// (live vs. replayed offline items) converge last-write-wins.
type SaveAnswerRequest struct {
	SelectedOption *string    `json:"selected_option" binding:"omitempty,option_key"`
	EssayText      *string    `json:"essay_text" binding:"omitempty,max=10000"`
	Flagged        bool       `json:"flagged"`
	AnsweredAt     *time.Time `json:"answered_at" binding:"omitempty"`
}

// OfflineBundle carries everything a client needs to render and answer the
// exam with zero further network access.
type OfflineBundle struct {
	AttemptID        uuid.UUID          `json:"attempt_id"`
	PackageID        uuid.UUID          `json:"package_id"`
	Title            string             `json:"title"`
	Questions        []QuestionForTaker `json:"questions"`
	Answers          []ExamAnswer       `json:"answers"`
	ServerDeadline   time.Time          `json:"server_deadline"`
	RemainingSeconds int64              `json:"remaining_seconds"`
	ViolationsLeft   int                `json:"violations_left"`
}
