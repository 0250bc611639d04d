// Package payment is the port to the external payment provider.
package payment

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when the provider has no session with the given id.
var ErrSessionNotFound = errors.New("checkout session not found")

// StatusPaid is the session payment status that allows settlement.
const StatusPaid = "paid"

// Metadata keys written at checkout and read back at settlement.
const (
	MetaBuyerEmail = "buyer_email"
	MetaCoins      = "coin"
)

// CheckoutRequest describes a coin package purchase.
type CheckoutRequest struct {
	BuyerEmail  string
	Coins       int64
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}

// Session is the provider's view of a checkout session. BuyerEmail and Coins
// come from the metadata set at checkout; Coins is zero when it cannot be parsed.
type Session struct {
	ID            string
	Status        string
	AmountCents   int64
	Currency      string
	TransactionID string
	BuyerEmail    string
	Coins         int64
}

// Paid reports whether the session's payment completed.
func (s *Session) Paid() bool { return s.Status == StatusPaid }

type Provider interface {
	// CreateCheckout opens a hosted checkout and returns the URL to redirect the buyer to.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}
