package proctor

import (
	"time"

	"github.com/proktora/proktora-backend/internal/model"
)

// Violation is a single detected integrity event, ready to report.
type Violation struct {
	Kind       model.ViolationKind `json:"kind"`
	Message    string              `json:"message"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Outcome is the server's accumulation state echoed back per report.
type Outcome struct {
	Count      int  `json:"count"`
	Ceiling    int  `json:"ceiling"`
	Remaining  int  `json:"remaining"`
	Terminated bool `json:"terminated"`
}
