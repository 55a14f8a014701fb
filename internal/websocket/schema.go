package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client→server message shape; which fields
// matter depends on Action.
type RequestPayload struct {
	Action Action `json:"action"`

	// Autosave fields.
	QuestionID     string     `json:"question_id,omitempty"`
	SelectedOption *string    `json:"selected_option,omitempty"`
	EssayText      *string    `json:"essay_text,omitempty"`
	Flagged        bool       `json:"flagged,omitempty"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`

	// Violation fields.
	Kind       string     `json:"kind,omitempty"`
	Message    string     `json:"message,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventViolation Event = "violation"
	EventFinalized Event = "finalized"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// ViolationResponse echoes the server-side accumulation state so the client
// can render the remaining-tolerance warning.
type ViolationResponse struct {
	Event      Event `json:"event"`
	Count      int   `json:"count"`
	Ceiling    int   `json:"ceiling"`
	Remaining  int   `json:"remaining"`
	Terminated bool  `json:"terminated"`
}

type FinalizedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// PongResponse carries the authoritative remaining time so the client clock
// can resync on every heartbeat.
type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
