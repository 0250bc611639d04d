package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger reason codes. Every coin mutation carries exactly one.
const (
	ReasonSignupBonus       = "signup_bonus"
	ReasonTaskEscrow        = "task_escrow"
	ReasonTaskRefund        = "task_refund"
	ReasonSubmissionEarning = "submission_earning"
	ReasonWithdrawalPayout  = "withdrawal_payout"
	ReasonCoinPurchase      = "coin_purchase"
)

// LedgerEntry records one applied balance delta. Amount is signed.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	AccountEmail string    `json:"account_email"`
	Reason       string    `json:"reason"`
	SourceID     uuid.UUID `json:"source_id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerStatement is an account's current balance and the entries that produced it, newest first.
type LedgerStatement struct {
	Email   string         `json:"email"`
	Balance int64          `json:"coin"`
	Entries []*LedgerEntry `json:"entries"`
}
