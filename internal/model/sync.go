package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncType tags the kind of payload carried by an offline sync item.
type SyncType string

const (
	SyncTypeAnswer SyncType = "ANSWER"
	SyncTypeSubmit SyncType = "SUBMIT"
)

// SyncItem is one queued client write being replayed. The client generates
// ItemID once when the item is enqueued; the server audits by that ID, which
// makes replays converge instead of duplicating.
type SyncItem struct {
	ItemID    uuid.UUID       `json:"item_id" binding:"required"`
	AttemptID uuid.UUID       `json:"attempt_id" binding:"required"`
	SyncType  SyncType        `json:"sync_type" binding:"required,oneof=ANSWER SUBMIT"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
	QueuedAt  time.Time       `json:"queued_at" binding:"required"`
}

// AnswerSyncPayload is the Payload shape for SyncTypeAnswer items.
type AnswerSyncPayload struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *string   `json:"selected_option,omitempty"`
	EssayText      *string   `json:"essay_text,omitempty"`
	Flagged        bool      `json:"flagged"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// SyncBatchRequest is the body of the batch reconciliation endpoint.
type SyncBatchRequest struct {
	Items []SyncItem `json:"items" binding:"required,min=1,max=200,dive"`
}

// SyncItemStatus is the per-item acknowledgment the client keys its local
// queue cleanup on.
//
//   - ACKED: projected into the answer store; drop from the local queue.
//   - SKIPPED_STALE: durably audited but the attempt no longer accepts
//     writes; drop from the local queue, do not count as projected.
//   - REJECTED: not accepted (malformed, foreign attempt); retry or surface.
type SyncItemStatus string

const (
	SyncItemAcked        SyncItemStatus = "ACKED"
	SyncItemSkippedStale SyncItemStatus = "SKIPPED_STALE"
	SyncItemRejected     SyncItemStatus = "REJECTED"
)

// SyncItemResult is one per-item acknowledgment in the batch response.
type SyncItemResult struct {
	ItemID uuid.UUID      `json:"item_id"`
	Status SyncItemStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

// SyncAudit is the durable server-side record of a raw sync item,
// written before (and regardless of) projection.
type SyncAudit struct {
	ItemID     uuid.UUID       `json:"item_id"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	UserID     int             `json:"user_id"`
	SyncType   SyncType        `json:"sync_type"`
	Payload    json.RawMessage `json:"payload"`
	QueuedAt   time.Time       `json:"queued_at"`
	ReceivedAt time.Time       `json:"received_at"`
}
