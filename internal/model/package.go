package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PackageStatus enumerates the publication states of an exam package.
type PackageStatus string

const (
	PackageStatusDraft     PackageStatus = "DRAFT"
	PackageStatusPublished PackageStatus = "PUBLISHED"
	PackageStatusArchived  PackageStatus = "ARCHIVED"
)

// ExamPackage is the definition of a purchasable timed exam. It is owned by
// the content-management service; the session engine only reads it and treats
// it as immutable for the lifetime of an attempt.
type ExamPackage struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Section         string        `json:"section"`
	DurationMinutes int           `json:"duration_minutes"`
	PassingScore    float64       `json:"passing_score"`
	IsFree          bool          `json:"is_free"`
	MaxAttempts     int           `json:"max_attempts"`
	QuestionCount   int           `json:"question_count"`
	Status          PackageStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Question is a single ordered question inside a package.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	PackageID     uuid.UUID       `json:"package_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option,omitempty"`
	OrderNum      int             `json:"order_num"`
}

// QuestionForTaker is a question with the correct answer stripped,
// safe to ship inside the offline bundle.
type QuestionForTaker struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options"`
	OrderNum     int             `json:"order_num"`
}

// PackageAccess records a user's direct entitlement to a package
// (bundle purchase, voucher). Unexpired access bypasses the credit debit.
type PackageAccess struct {
	ID        int64      `json:"id"`
	UserID    int        `json:"user_id"`
	PackageID uuid.UUID  `json:"package_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
