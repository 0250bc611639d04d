package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

const withdrawalColumns = `id, worker_email, worker_name, coin_amount, cash_amount_cents, payment_system, account_number, status, created_at, approved_at`

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(&w.ID, &w.WorkerEmail, &w.WorkerName, &w.CoinAmount, &w.CashAmountCents,
		&w.PaymentSystem, &w.AccountNumber, &w.Status, &w.CreatedAt, &w.ApprovedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawals (id, worker_email, worker_name, coin_amount, cash_amount_cents, payment_system, account_number, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, w.ID, w.WorkerEmail, w.WorkerName, w.CoinAmount, w.CashAmountCents, w.PaymentSystem, w.AccountNumber, w.Status).Scan(&w.CreatedAt)
}

// GetByIDForUpdate locks the withdrawal row. Call within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
}

// TransitionTx moves the withdrawal between statuses. It returns false when the
// withdrawal is no longer in the from status.
func (r *WithdrawalRepo) TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE withdrawals SET status = $3, approved_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition withdrawal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns withdrawals matching f, newest first.
func (r *WithdrawalRepo) List(ctx context.Context, f models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	var conds []string
	var args []any
	if f.WorkerEmail != "" {
		args = append(args, f.WorkerEmail)
		conds = append(conds, "worker_email = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}
