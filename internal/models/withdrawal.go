package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal status enums.
const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
)

type Withdrawal struct {
	ID              uuid.UUID  `json:"id"`
	WorkerEmail     string     `json:"worker_email"`
	WorkerName      string     `json:"worker_name"`
	CoinAmount      int64      `json:"withdrawal_coin"`
	CashAmountCents int64      `json:"withdrawal_amount_cents"`
	PaymentSystem   string     `json:"payment_system"`
	AccountNumber   string     `json:"account_number"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"withdraw_date"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

// WithdrawalFilter narrows withdrawal listings; empty fields match everything.
type WithdrawalFilter struct {
	WorkerEmail string
	Status      string
}
