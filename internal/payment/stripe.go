package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

// Stripe is a Provider backed by Stripe Checkout.
type Stripe struct {
	sessions session.Client
}

// NewStripe builds a Stripe provider. A nil backend uses the live API backend.
func NewStripe(key string, backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{sessions: session.Client{B: backend, Key: key}}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(req.BuyerEmail),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%d coins", req.Coins)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata(MetaBuyerEmail, req.BuyerEmail)
	params.AddMetadata(MetaCoins, strconv.FormatInt(req.Coins, 10))

	cs, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return cs.URL, nil
}

func (s *Stripe) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get checkout session %s: %w", id, err)
	}

	out := &Session{
		ID:          cs.ID,
		Status:      string(cs.PaymentStatus),
		AmountCents: cs.AmountTotal,
		Currency:    string(cs.Currency),
		BuyerEmail:  cs.Metadata[MetaBuyerEmail],
	}
	if cs.PaymentIntent != nil {
		out.TransactionID = cs.PaymentIntent.ID
	}
	if n, err := strconv.ParseInt(cs.Metadata[MetaCoins], 10, 64); err == nil {
		out.Coins = n
	}
	return out, nil
}
