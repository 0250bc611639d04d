package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/models"
)

const taskColumns = `id, buyer_email, buyer_name, title, detail, submission_info, image_url, required_workers, payable_amount, completion_date, created_at, updated_at, deleted_at, COALESCE(deletion_reason, '')`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.BuyerEmail, &t.BuyerName, &t.Title, &t.Detail, &t.SubmissionInfo, &t.ImageURL,
		&t.RequiredWorkers, &t.PayableAmount, &t.CompletionDate, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt, &t.DeletionReason)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// CreateTx inserts a task inside the caller's transaction.
func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, buyer_email, buyer_name, title, detail, submission_info, image_url, required_workers, payable_amount, completion_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.BuyerEmail, t.BuyerName, t.Title, t.Detail, t.SubmissionInfo, t.ImageURL, t.RequiredWorkers, t.PayableAmount, t.CompletionDate).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns a task that has not been removed.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND deleted_at IS NULL`, id))
}

// GetByIDForUpdate locks the task row, removed or not. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
}

// MarkDeletedTx removes the task. It returns false if the task was already removed.
func (r *TaskRepo) MarkDeletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET deleted_at = now(), deletion_reason = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark task deleted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimSlotTx takes one open slot. It returns false when no slot is left or the task is removed.
func (r *TaskRepo) ClaimSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET required_workers = required_workers - 1, updated_at = now()
		WHERE id = $1 AND required_workers > 0 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSlotTx reopens one slot. It returns false when the task is removed.
func (r *TaskRepo) ReleaseSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET required_workers = required_workers + 1, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateDetails edits the descriptive fields of a live task owned by buyerEmail.
func (r *TaskRepo) UpdateDetails(ctx context.Context, id uuid.UUID, buyerEmail string, u models.TaskUpdate) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks SET
			title = COALESCE($3, title),
			detail = COALESCE($4, detail),
			submission_info = COALESCE($5, submission_info),
			updated_at = now()
		WHERE id = $1 AND buyer_email = $2 AND deleted_at IS NULL
		RETURNING `+taskColumns,
		id, buyerEmail, u.Title, u.Detail, u.SubmissionInfo))
}

// List returns live tasks, latest completion date first, optionally for one buyer.
func (r *TaskRepo) List(ctx context.Context, buyerEmail string) ([]*models.Task, error) {
	if buyerEmail != "" {
		return r.list(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE deleted_at IS NULL AND buyer_email = $1
			ORDER BY completion_date DESC NULLS LAST, created_at DESC
		`, buyerEmail)
	}
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE deleted_at IS NULL
		ORDER BY completion_date DESC NULLS LAST, created_at DESC
	`)
}

// ListAvailable returns live tasks with at least one open slot, newest first.
func (r *TaskRepo) ListAvailable(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE deleted_at IS NULL AND required_workers > 0
		ORDER BY created_at DESC
	`)
}

func (r *TaskRepo) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
