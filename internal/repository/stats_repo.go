package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

// StatsRepo runs the aggregate queries behind the dashboards.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func (r *StatsRepo) Admin(ctx context.Context) (*models.AdminStats, error) {
	var s models.AdminStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM accounts WHERE role = 'worker'),
			(SELECT count(*) FROM accounts WHERE role = 'buyer'),
			(SELECT COALESCE(SUM(coin), 0) FROM accounts),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM payments)
	`).Scan(&s.WorkerCount, &s.BuyerCount, &s.TotalCoin, &s.TotalPaymentsCents)
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	return &s, nil
}

func (r *StatsRepo) Buyer(ctx context.Context, email string) (*models.BuyerStats, error) {
	var s models.BuyerStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM tasks WHERE buyer_email = $1 AND deleted_at IS NULL),
			(SELECT COALESCE(SUM(required_workers), 0) FROM tasks WHERE buyer_email = $1 AND deleted_at IS NULL),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE buyer_email = $1)
	`, email).Scan(&s.TaskCount, &s.PendingTask, &s.TotalPaymentCents)
	if err != nil {
		return nil, fmt.Errorf("buyer stats: %w", err)
	}
	return &s, nil
}

func (r *StatsRepo) Worker(ctx context.Context, email string) (*models.WorkerStats, error) {
	var s models.WorkerStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(payable_amount) FILTER (WHERE status = 'approved'), 0)
		FROM submissions WHERE worker_email = $1
	`, email).Scan(&s.TotalSubmission, &s.PendingSubmission, &s.TotalEarning)
	if err != nil {
		return nil, fmt.Errorf("worker stats: %w", err)
	}
	return &s, nil
}
