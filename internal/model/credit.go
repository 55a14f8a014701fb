package model

import (
	"time"

	"github.com/google/uuid"
)

// UserCredit holds a user's spendable attempt quota.
// Both counters are guarded by CHECK (>= 0) constraints in the database;
// every mutation goes through a conditional UPDATE so they can never go negative.
type UserCredit struct {
	UserID      int       `json:"user_id"`
	FreeUnits   int       `json:"free_units"`
	PaidBalance int       `json:"paid_balance"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreditReason tags a credit history entry with its business cause.
type CreditReason string

const (
	CreditReasonSignupBonus   CreditReason = "SIGNUP_BONUS"
	CreditReasonReferralBonus CreditReason = "REFERRAL_BONUS"
	CreditReasonPurchase      CreditReason = "PURCHASE"
	CreditReasonUsage         CreditReason = "USAGE"
	CreditReasonRefund        CreditReason = "REFUND"
	CreditReasonAdminAdjust   CreditReason = "ADMIN_ADJUSTMENT"
)

// CreditHistory is one immutable row in the append-only credit log.
// Every debit/credit against UserCredit is paired with exactly one entry.
type CreditHistory struct {
	ID           int64        `json:"id"`
	UserID       int          `json:"user_id"`
	Delta        int          `json:"delta"`
	BalanceAfter int          `json:"balance_after"`
	Reason       CreditReason `json:"reason"`
	RefAttemptID *uuid.UUID   `json:"ref_attempt_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// CreditOverview is the response shape for the credit read endpoint.
type CreditOverview struct {
	FreeUnits   int             `json:"free_units"`
	PaidBalance int             `json:"paid_balance"`
	History     []CreditHistory `json:"history"`
}
