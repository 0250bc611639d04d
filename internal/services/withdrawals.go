package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
)

// WithdrawalInput is a worker's cash-out request.
type WithdrawalInput struct {
	CoinAmount      int64  `json:"withdrawal_coin"`
	CashAmountCents int64  `json:"withdrawal_amount_cents"`
	PaymentSystem   string `json:"payment_system"`
	AccountNumber   string `json:"account_number"`
}

type WithdrawalService struct {
	base
	withdrawals WithdrawalStore
	accounts    AccountStore
}

func NewWithdrawalService(d Deps, withdrawals WithdrawalStore, accounts AccountStore) *WithdrawalService {
	return &WithdrawalService{base: newBase(d), withdrawals: withdrawals, accounts: accounts}
}

// Request records a pending withdrawal. The balance is only checked on approval.
func (s *WithdrawalService) Request(ctx context.Context, worker string, in WithdrawalInput) (*models.Withdrawal, error) {
	if in.CoinAmount <= 0 {
		return nil, apperr.InvalidArgument("withdrawal_coin must be > 0")
	}
	if in.CashAmountCents < 0 {
		return nil, apperr.InvalidArgument("withdrawal_amount_cents must be >= 0")
	}
	ctx, cancel := s.read(ctx)
	defer cancel()

	acc, err := s.accounts.GetByEmail(ctx, worker)
	if err != nil {
		return nil, s.classify("request withdrawal", notFoundAs(err, "account not found"))
	}
	w := &models.Withdrawal{
		ID:              uuid.New(),
		WorkerEmail:     worker,
		WorkerName:      acc.DisplayName,
		CoinAmount:      in.CoinAmount,
		CashAmountCents: in.CashAmountCents,
		PaymentSystem:   strings.TrimSpace(in.PaymentSystem),
		AccountNumber:   strings.TrimSpace(in.AccountNumber),
		Status:          models.WithdrawalStatusPending,
	}
	if err := s.withdrawals.Create(ctx, w); err != nil {
		return nil, s.classify("request withdrawal", err)
	}
	s.logger.Info("withdrawal requested", "withdrawal_id", w.ID, "worker", worker, "coin", w.CoinAmount)
	return w, nil
}

// Approve debits the worker and marks the withdrawal approved. An insufficient
// balance rolls everything back and leaves the withdrawal pending.
func (s *WithdrawalService) Approve(ctx context.Context, admin string, id uuid.UUID) (*models.Withdrawal, error) {
	var w *models.Withdrawal
	err := s.inTx(ctx, "approve withdrawal", func(ctx context.Context, u *unit) error {
		var err error
		w, err = s.withdrawals.GetByIDForUpdate(ctx, u.tx, id)
		if err != nil {
			return notFoundAs(err, "withdrawal not found")
		}
		if w.Status != models.WithdrawalStatusPending {
			return apperr.InvalidTransition("withdrawal already " + w.Status)
		}
		if _, err := u.apply(ctx, ledger.Delta{
			Account:  w.WorkerEmail,
			Amount:   -w.CoinAmount,
			Reason:   models.ReasonWithdrawalPayout,
			SourceID: w.ID,
		}); err != nil {
			return err
		}
		ok, err := s.withdrawals.TransitionTx(ctx, u.tx, id, models.WithdrawalStatusPending, models.WithdrawalStatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidTransition("withdrawal is no longer pending")
		}
		w.Status = models.WithdrawalStatusApproved
		return u.notify(ctx, w.WorkerEmail,
			fmt.Sprintf("Your withdrawal request of %s USD has been approved", formatCents(w.CashAmountCents)),
			models.RouteWithdrawals)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal approved", "withdrawal_id", id, "admin", admin, "worker", w.WorkerEmail, "coin", w.CoinAmount)
	return w, nil
}

// List returns withdrawals matching f. Non-admins only see their own.
func (s *WithdrawalService) List(ctx context.Context, caller policy.Principal, f models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	if !caller.IsAdmin() {
		if f.WorkerEmail != "" && f.WorkerEmail != caller.Identity {
			return nil, apperr.Forbidden("cannot list another identity's withdrawals")
		}
		f.WorkerEmail = caller.Identity
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.withdrawals.List(ctx, f)
	if err != nil {
		return nil, s.classify("list withdrawals", err)
	}
	return list, nil
}

// Pending returns every pending withdrawal, newest first.
func (s *WithdrawalService) Pending(ctx context.Context) ([]*models.Withdrawal, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.withdrawals.List(ctx, models.WithdrawalFilter{Status: models.WithdrawalStatusPending})
	if err != nil {
		return nil, s.classify("list pending withdrawals", err)
	}
	return list, nil
}

// formatCents renders minor units as a decimal amount, e.g. 1250 -> "12.50".
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
