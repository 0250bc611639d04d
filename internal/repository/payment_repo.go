package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

const paymentColumns = `id, transaction_id, session_id, buyer_email, coin, amount_cents, currency, paid_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	if err := row.Scan(&p.ID, &p.TransactionID, &p.SessionID, &p.BuyerEmail, &p.Coin, &p.AmountCents, &p.Currency, &p.PaidAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PaymentRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentRecord, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
}

// CreateTx inserts the record inside the caller's transaction. It returns false,
// without error, when a record for the same transaction id already exists.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (id, transaction_id, session_id, buyer_email, coin, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING paid_at
	`, p.ID, p.TransactionID, p.SessionID, p.BuyerEmail, p.Coin, p.AmountCents, p.Currency).Scan(&p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return true, nil
}

// ListByBuyer returns a buyer's payments, most recent first.
func (r *PaymentRepo) ListByBuyer(ctx context.Context, buyerEmail string) ([]*models.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE buyer_email = $1 ORDER BY paid_at DESC
	`, buyerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
