package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/payment"
	"github.com/tasknest/backend/internal/repository"
)

// DefaultCoinPackages maps purchasable coin quantities to their price in cents.
var DefaultCoinPackages = map[int64]int64{
	10:   100,
	150:  1000,
	500:  2000,
	1000: 3500,
}

// Settlement outcomes reported to Metrics.
const (
	OutcomeSettled         = "settled"
	OutcomeAlreadySettled  = "already_settled"
	OutcomeUnpaid          = "unpaid"
	OutcomeInvalidMetadata = "invalid_metadata"
	OutcomeProviderError   = "provider_error"
)

// SettleResult is the outcome of SettlePayment. Settled is false when the
// provider has not taken the payment yet.
type SettleResult struct {
	Settled        bool                  `json:"settled"`
	AlreadySettled bool                  `json:"already_settled"`
	Record         *models.PaymentRecord `json:"record,omitempty"`
	Balance        int64                 `json:"coin,omitempty"`
}

// PaymentConfig holds checkout settings.
type PaymentConfig struct {
	Packages   map[int64]int64
	Currency   string
	SiteDomain string
}

type PaymentService struct {
	base
	provider payment.Provider
	payments PaymentStore
	cfg      PaymentConfig
}

func NewPaymentService(d Deps, provider payment.Provider, payments PaymentStore, cfg PaymentConfig) *PaymentService {
	if len(cfg.Packages) == 0 {
		cfg.Packages = DefaultCoinPackages
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.SiteDomain = strings.TrimRight(cfg.SiteDomain, "/")
	return &PaymentService{base: newBase(d), provider: provider, payments: payments, cfg: cfg}
}

// CreateCheckout opens a provider checkout for one coin package and returns its URL.
func (s *PaymentService) CreateCheckout(ctx context.Context, buyer string, coins int64) (string, error) {
	price, ok := s.cfg.Packages[coins]
	if !ok {
		return "", apperr.InvalidArgument("unknown coin package")
	}
	ctx, cancel := s.read(ctx)
	defer cancel()

	url, err := s.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		BuyerEmail:  buyer,
		Coins:       coins,
		AmountCents: price,
		Currency:    s.cfg.Currency,
		SuccessURL:  s.cfg.SiteDomain + "/dashboard/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.SiteDomain + "/dashboard/payment-cancel",
	})
	if err != nil {
		s.logger.Error("create checkout session", "buyer", buyer, "error", err)
		return "", apperr.Wrap(apperr.KindUpstreamUnavailable, "payment provider unavailable", err)
	}
	return url, nil
}

// SettlePayment credits the buyer for a paid checkout session exactly once per
// provider transaction id. Repeated calls return the stored record.
func (s *PaymentService) SettlePayment(ctx context.Context, caller, sessionID string) (*SettleResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.InvalidArgument("session_id is required")
	}
	readCtx, cancel := s.read(ctx)
	defer cancel()

	sess, err := s.provider.GetSession(readCtx, sessionID)
	if errors.Is(err, payment.ErrSessionNotFound) {
		return nil, apperr.NotFound("checkout session not found")
	}
	if err != nil {
		s.metrics.Settlement(OutcomeProviderError)
		s.logger.Error("fetch checkout session", "session_id", sessionID, "error", err)
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "payment provider unavailable", err)
	}

	if sess.TransactionID != "" {
		rec, err := s.payments.GetByTransactionID(readCtx, sess.TransactionID)
		if err == nil {
			s.metrics.Settlement(OutcomeAlreadySettled)
			return &SettleResult{AlreadySettled: true, Record: rec}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, s.classify("settle payment", err)
		}
	}
	if !sess.Paid() {
		s.metrics.Settlement(OutcomeUnpaid)
		return &SettleResult{}, nil
	}
	if sess.TransactionID == "" || sess.BuyerEmail == "" || sess.Coins <= 0 {
		s.metrics.Settlement(OutcomeInvalidMetadata)
		s.logger.Warn("paid session with unusable metadata", "session_id", sessionID, "buyer", sess.BuyerEmail, "coin", sess.Coins)
		return nil, apperr.UpstreamUnavailable("payment session is missing buyer or coin metadata")
	}

	rec := &models.PaymentRecord{
		ID:            uuid.New(),
		TransactionID: sess.TransactionID,
		SessionID:     sess.ID,
		BuyerEmail:    sess.BuyerEmail,
		Coin:          sess.Coins,
		AmountCents:   sess.AmountCents,
		Currency:      sess.Currency,
	}
	var balance int64
	lost := false
	err = s.inTx(ctx, "settle payment", func(ctx context.Context, u *unit) error {
		created, err := s.payments.CreateTx(ctx, u.tx, rec)
		if err != nil {
			return err
		}
		if !created {
			lost = true
			return apperr.New(apperr.KindConflict, "payment already settled")
		}
		balance, err = u.apply(ctx, ledger.Delta{
			Account:  rec.BuyerEmail,
			Amount:   rec.Coin,
			Reason:   models.ReasonCoinPurchase,
			SourceID: rec.ID,
		})
		return err
	})
	if lost {
		ctx, cancel := s.read(ctx)
		defer cancel()
		stored, err := s.payments.GetByTransactionID(ctx, sess.TransactionID)
		if err != nil {
			return nil, s.classify("settle payment", err)
		}
		s.metrics.Settlement(OutcomeAlreadySettled)
		s.logger.Warn("duplicate settlement", "session_id", sessionID, "transaction_id", sess.TransactionID, "caller", caller)
		return &SettleResult{AlreadySettled: true, Record: stored}, nil
	}
	if err != nil {
		return nil, err
	}
	s.metrics.Settlement(OutcomeSettled)
	s.logger.Info("payment settled", "transaction_id", rec.TransactionID, "buyer", rec.BuyerEmail, "coin", rec.Coin, "caller", caller)
	return &SettleResult{Settled: true, Record: rec, Balance: balance}, nil
}

// History returns the buyer's payments, newest first.
func (s *PaymentService) History(ctx context.Context, buyer string) ([]*models.PaymentRecord, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.payments.ListByBuyer(ctx, buyer)
	if err != nil {
		return nil, s.classify("payment history", err)
	}
	return list, nil
}
