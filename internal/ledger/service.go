// Package ledger applies coin deltas to account balances. It is the only code
// path that changes accounts.coin, and every change leaves a ledger entry.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasknest/backend/internal/models"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the account balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAccountNotFound is returned when the delta targets an unknown account.
	ErrAccountNotFound = errors.New("account not found")
)

// Delta is one signed balance change. Negative amounts are debits.
type Delta struct {
	Account  string
	Amount   int64
	Reason   string
	SourceID uuid.UUID
}

// Store is the persistence the ledger needs; *Repository implements it.
type Store interface {
	LockBalance(ctx context.Context, tx pgx.Tx, email string) (int64, error)
	DeductCoins(ctx context.Context, tx pgx.Tx, email string, amount int64) (int64, error)
	AddCoins(ctx context.Context, tx pgx.Tx, email string, amount int64) (int64, error)
	CreateEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

type Service interface {
	Apply(ctx context.Context, tx pgx.Tx, d Delta) (balanceAfter int64, err error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// Apply locks the account row, applies d and records a ledger entry, all inside tx.
// A zero amount returns the current balance and writes nothing.
func (s *service) Apply(ctx context.Context, tx pgx.Tx, d Delta) (int64, error) {
	balance, err := s.store.LockBalance(ctx, tx, d.Account)
	if err != nil {
		return 0, err
	}
	if d.Amount == 0 {
		return balance, nil
	}

	var newBalance int64
	if d.Amount < 0 {
		if balance < -d.Amount {
			return 0, ErrInsufficientBalance
		}
		newBalance, err = s.store.DeductCoins(ctx, tx, d.Account, -d.Amount)
	} else {
		newBalance, err = s.store.AddCoins(ctx, tx, d.Account, d.Amount)
	}
	if err != nil {
		return 0, err
	}

	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountEmail: d.Account,
		Reason:       d.Reason,
		SourceID:     d.SourceID,
		Amount:       d.Amount,
		BalanceAfter: newBalance,
	}
	if err := s.store.CreateEntryTx(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("record %s delta: %w", d.Reason, err)
	}
	return newBalance, nil
}
