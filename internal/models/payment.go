package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is a settled external payment. TransactionID is unique.
type PaymentRecord struct {
	ID            uuid.UUID `json:"id"`
	TransactionID string    `json:"transaction_id"`
	SessionID     string    `json:"session_id"`
	BuyerEmail    string    `json:"buyer_email"`
	Coin          int64     `json:"coin"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
}
