package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
)

// TaskInput is what a buyer supplies when posting a task.
type TaskInput struct {
	Title           string     `json:"task_title"`
	Detail          string     `json:"task_detail"`
	SubmissionInfo  string     `json:"submission_info"`
	ImageURL        string     `json:"task_image_url"`
	RequiredWorkers int        `json:"required_workers"`
	PayableAmount   int64      `json:"payable_amount"`
	CompletionDate  *time.Time `json:"completion_date"`
}

// Validate checks the input and returns the escrow total it requires.
func (in TaskInput) Validate() (int64, error) {
	if strings.TrimSpace(in.Title) == "" {
		return 0, apperr.InvalidArgument("task_title is required")
	}
	if in.RequiredWorkers < 0 {
		return 0, apperr.InvalidArgument("required_workers must be >= 0")
	}
	if in.PayableAmount < 0 {
		return 0, apperr.InvalidArgument("payable_amount must be >= 0")
	}
	if in.RequiredWorkers > math.MaxInt32 {
		return 0, apperr.InvalidArgument("required_workers is too large")
	}
	if in.PayableAmount > 0 && int64(in.RequiredWorkers) > math.MaxInt64/in.PayableAmount {
		return 0, apperr.InvalidArgument("required_workers x payable_amount overflows")
	}
	return int64(in.RequiredWorkers) * in.PayableAmount, nil
}

type TaskService struct {
	base
	tasks    TaskStore
	accounts AccountStore
}

func NewTaskService(d Deps, tasks TaskStore, accounts AccountStore) *TaskService {
	return &TaskService{base: newBase(d), tasks: tasks, accounts: accounts}
}

// Post escrows required_workers x payable_amount from the buyer and creates the task.
func (s *TaskService) Post(ctx context.Context, buyer string, in TaskInput) (*models.Task, error) {
	total, err := in.Validate()
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:              uuid.New(),
		BuyerEmail:      buyer,
		Title:           strings.TrimSpace(in.Title),
		Detail:          in.Detail,
		SubmissionInfo:  in.SubmissionInfo,
		ImageURL:        in.ImageURL,
		RequiredWorkers: in.RequiredWorkers,
		PayableAmount:   in.PayableAmount,
		CompletionDate:  in.CompletionDate,
	}
	err = s.inTx(ctx, "post task", func(ctx context.Context, u *unit) error {
		acc, err := s.accounts.GetByEmailTx(ctx, u.tx, buyer)
		if err != nil {
			return notFoundAs(err, "account not found")
		}
		task.BuyerName = acc.DisplayName

		if _, err := u.apply(ctx, ledger.Delta{
			Account:  buyer,
			Amount:   -total,
			Reason:   models.ReasonTaskEscrow,
			SourceID: task.ID,
		}); err != nil {
			return err
		}
		return s.tasks.CreateTx(ctx, u.tx, task)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task posted", "task_id", task.ID, "buyer", buyer, "escrow", total)
	return task, nil
}

// Delete removes the buyer's own task and refunds the escrow still held for its
// open slots. It returns the refunded amount.
func (s *TaskService) Delete(ctx context.Context, buyer string, id uuid.UUID) (int64, error) {
	var refund int64
	err := s.inTx(ctx, "delete task", func(ctx context.Context, u *unit) error {
		task, err := s.tasks.GetByIDForUpdate(ctx, u.tx, id)
		if err != nil {
			return notFoundAs(err, "task not found")
		}
		if task.BuyerEmail != buyer {
			return apperr.Forbidden("task belongs to another buyer")
		}
		if task.Deleted() {
			return apperr.InvalidTransition("task already removed")
		}
		ok, err := s.tasks.MarkDeletedTx(ctx, u.tx, id, models.TaskDeletionCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidTransition("task already removed")
		}
		refund = task.Escrow()
		_, err = u.apply(ctx, ledger.Delta{
			Account:  buyer,
			Amount:   refund,
			Reason:   models.ReasonTaskRefund,
			SourceID: id,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("task deleted", "task_id", id, "buyer", buyer, "refund", refund)
	return refund, nil
}

// AdminDelete removes any task without refunding it. It returns the escrow forfeited.
func (s *TaskService) AdminDelete(ctx context.Context, admin string, id uuid.UUID) (int64, error) {
	var forfeited int64
	err := s.inTx(ctx, "moderate task", func(ctx context.Context, u *unit) error {
		task, err := s.tasks.GetByIDForUpdate(ctx, u.tx, id)
		if err != nil {
			return notFoundAs(err, "task not found")
		}
		if task.Deleted() {
			return apperr.InvalidTransition("task already removed")
		}
		ok, err := s.tasks.MarkDeletedTx(ctx, u.tx, id, models.TaskDeletionModerated)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidTransition("task already removed")
		}
		forfeited = task.Escrow()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if forfeited > 0 {
		s.logger.Warn("task removed by admin, escrow forfeited", "task_id", id, "admin", admin, "forfeited", forfeited)
		s.metrics.CoinsForfeited(forfeited)
	}
	return forfeited, nil
}

// Update edits the descriptive fields of the buyer's own live task.
func (s *TaskService) Update(ctx context.Context, buyer string, id uuid.UUID, u models.TaskUpdate) (*models.Task, error) {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return nil, apperr.InvalidArgument("task_title cannot be empty")
	}
	ctx, cancel := s.read(ctx)
	defer cancel()

	current, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, s.classify("update task", notFoundAs(err, "task not found"))
	}
	if current.BuyerEmail != buyer {
		return nil, apperr.Forbidden("task belongs to another buyer")
	}
	task, err := s.tasks.UpdateDetails(ctx, id, buyer, u)
	if err != nil {
		// Removed between the read and the update.
		return nil, s.classify("update task", notFoundAs(err, "task not found"))
	}
	return task, nil
}

// List returns live tasks, optionally for one buyer, latest completion date first.
func (s *TaskService) List(ctx context.Context, buyerEmail string) ([]*models.Task, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	tasks, err := s.tasks.List(ctx, buyerEmail)
	if err != nil {
		return nil, s.classify("list tasks", err)
	}
	return tasks, nil
}

// Available returns live tasks with open slots, newest first.
func (s *TaskService) Available(ctx context.Context) ([]*models.Task, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	tasks, err := s.tasks.ListAvailable(ctx)
	if err != nil {
		return nil, s.classify("list available tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, s.classify("get task", notFoundAs(err, "task not found"))
	}
	return task, nil
}
