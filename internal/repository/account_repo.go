package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

const accountColumns = `id, email, display_name, role, coin, photo_url, bio, banner_url, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.Coin, &a.PhotoURL, &a.Bio, &a.BannerURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// CreateTx inserts the account with a zero balance. It returns false when the
// email is already registered; the signup bonus is applied by the caller through the ledger.
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, role, coin, photo_url, bio, banner_url)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.Role, a.PhotoURL, a.Bio, a.BannerURL).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert account: %w", err)
	}
	return true, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// GetByEmailTx reads the account inside tx without locking it.
func (r *AccountRepo) GetByEmailTx(ctx context.Context, tx pgx.Tx, email string) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// List returns accounts newest first. A non-empty search matches display name or
// email case-insensitively.
func (r *AccountRepo) List(ctx context.Context, search string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if search != "" {
		query += ` WHERE display_name ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

// TopWorkers returns the workers with the highest coin balances.
func (r *AccountRepo) TopWorkers(ctx context.Context, limit int) ([]*models.Account, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE role = 'worker' ORDER BY coin DESC, created_at ASC LIMIT $1
	`, limit)
}

func (r *AccountRepo) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *AccountRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile sets only the provided fields and returns the updated account.
func (r *AccountRepo) UpdateProfile(ctx context.Context, id uuid.UUID, p models.ProfileUpdate) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET
			display_name = COALESCE($2, display_name),
			bio = COALESCE($3, bio),
			photo_url = COALESCE($4, photo_url),
			banner_url = COALESCE($5, banner_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns,
		id, p.DisplayName, p.Bio, p.PhotoURL, p.BannerURL))
}

// GetByIDForUpdate locks the account row. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// OpenObligationsTx counts what still ties coins to email: live tasks with open
// slots, pending submissions on either side and pending withdrawals.
func (r *AccountRepo) OpenObligationsTx(ctx context.Context, tx pgx.Tx, email string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM tasks
				WHERE buyer_email = $1 AND deleted_at IS NULL AND required_workers > 0)
			+ (SELECT count(*) FROM submissions
				WHERE status = 'pending' AND (buyer_email = $1 OR worker_email = $1))
			+ (SELECT count(*) FROM withdrawals
				WHERE status = 'pending' AND worker_email = $1)
	`, email).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open obligations: %w", err)
	}
	return n, nil
}

func (r *AccountRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
