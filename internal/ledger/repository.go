package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

// Repository owns every statement that touches accounts.coin and ledger_entries.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LockBalance locks the account row and returns its balance. Call within a transaction.
func (r *Repository) LockBalance(ctx context.Context, tx pgx.Tx, email string) (int64, error) {
	var coin int64
	err := tx.QueryRow(ctx, `SELECT coin FROM accounts WHERE email = $1 FOR UPDATE`, email).Scan(&coin)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return coin, err
}

// DeductCoins atomically deducts amount if the balance covers it and returns the new balance.
func (r *Repository) DeductCoins(ctx context.Context, tx pgx.Tx, email string, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET coin = coin - $1, updated_at = now()
		WHERE email = $2 AND coin >= $1
		RETURNING coin
	`, amount, email).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}

// AddCoins adds amount to the account and returns the new balance.
func (r *Repository) AddCoins(ctx context.Context, tx pgx.Tx, email string, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET coin = coin + $1, updated_at = now()
		WHERE email = $2
		RETURNING coin
	`, amount, email).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return newBalance, err
}

// CreateEntryTx inserts a ledger entry inside the given transaction.
func (r *Repository) CreateEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_email, reason, source_id, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountEmail, e.Reason, e.SourceID, e.Amount, e.BalanceAfter).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByAccount returns an account's entries, newest first.
func (r *Repository) ListByAccount(ctx context.Context, email string) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_email, reason, source_id, amount, balance_after, created_at
		FROM ledger_entries WHERE account_email = $1 ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountEmail, &e.Reason, &e.SourceID, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
