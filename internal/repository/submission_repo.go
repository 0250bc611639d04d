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

const submissionColumns = `id, task_id, task_title, payable_amount, worker_email, worker_name, buyer_email, buyer_name, details, status, created_at, judged_at`

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(&s.ID, &s.TaskID, &s.TaskTitle, &s.PayableAmount, &s.WorkerEmail, &s.WorkerName,
		&s.BuyerEmail, &s.BuyerName, &s.Details, &s.Status, &s.CreatedAt, &s.JudgedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SubmissionRepo) CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error {
	return tx.QueryRow(ctx, `
		INSERT INTO submissions (id, task_id, task_title, payable_amount, worker_email, worker_name, buyer_email, buyer_name, details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, s.ID, s.TaskID, s.TaskTitle, s.PayableAmount, s.WorkerEmail, s.WorkerName, s.BuyerEmail, s.BuyerName, s.Details, s.Status).Scan(&s.CreatedAt)
}

// GetByIDForUpdate locks the submission row. Call within a transaction.
func (r *SubmissionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	return scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
}

// TransitionTx moves the submission from one status to another. It returns
// false when the submission is no longer in the from status.
func (r *SubmissionRepo) TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE submissions SET status = $3, judged_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition submission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns submissions matching f, newest first.
func (r *SubmissionRepo) List(ctx context.Context, f models.SubmissionFilter) ([]*models.Submission, error) {
	where, args := submissionWhere(f)
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions`+where+` ORDER BY created_at DESC`, args...)
}

// ListByWorkerPage returns one page of a worker's submissions and the worker's total count.
func (r *SubmissionRepo) ListByWorkerPage(ctx context.Context, workerEmail string, offset, limit int) ([]*models.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM submissions WHERE worker_email = $1`, workerEmail).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	list, err := r.list(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE worker_email = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3
	`, workerEmail, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func submissionWhere(f models.SubmissionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	add("worker_email", f.WorkerEmail)
	add("buyer_email", f.BuyerEmail)
	add("status", f.Status)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SubmissionRepo) list(ctx context.Context, query string, args ...any) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
