package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind classifies a detected client-side malpractice signal.
type ViolationKind string

const (
	ViolationTabHidden      ViolationKind = "TAB_HIDDEN"
	ViolationFocusLost      ViolationKind = "FOCUS_LOST"
	ViolationViewportShrunk ViolationKind = "VIEWPORT_SHRUNK"
	ViolationSplitScreen    ViolationKind = "SPLIT_SCREEN"
	ViolationClipboard      ViolationKind = "CLIPBOARD"
	ViolationContextMenu    ViolationKind = "CONTEXT_MENU"
	ViolationDevtoolsKeys   ViolationKind = "DEVTOOLS_KEYS"
)

// knownViolationKinds is the closed set accepted by the report endpoint.
var knownViolationKinds = map[ViolationKind]bool{
	ViolationTabHidden:      true,
	ViolationFocusLost:      true,
	ViolationViewportShrunk: true,
	ViolationSplitScreen:    true,
	ViolationClipboard:      true,
	ViolationContextMenu:    true,
	ViolationDevtoolsKeys:   true,
}

// Known reports whether the kind is one the server accepts.
func (k ViolationKind) Known() bool {
	return knownViolationKinds[k]
}

// AttemptViolation is one row in the append-only per-attempt violation log.
// ExamAttempt.ViolationCount is incremented in the same transaction that
// appends a row; it is never decremented or reset.
type AttemptViolation struct {
	ID         int64         `json:"id"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	Kind       ViolationKind `json:"kind"`
	Message    string        `json:"message"`
	OccurredAt time.Time     `json:"occurred_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ReportViolationRequest is the payload for the fire-and-forget report endpoint.
type ReportViolationRequest struct {
	Kind       ViolationKind `json:"kind" binding:"required,max=32"`
	Message    string        `json:"message" binding:"max=500"`
	OccurredAt *time.Time    `json:"occurred_at" binding:"omitempty"`
}
