package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
)

// Paging defaults for PaginatedSubmissions.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// SubmissionInput is what a worker supplies when submitting work for a task.
type SubmissionInput struct {
	TaskID  uuid.UUID `json:"task_id"`
	Details string    `json:"submission_details"`
}

type SubmissionService struct {
	base
	submissions SubmissionStore
	tasks       TaskStore
	accounts    AccountStore
}

func NewSubmissionService(d Deps, submissions SubmissionStore, tasks TaskStore, accounts AccountStore) *SubmissionService {
	return &SubmissionService{base: newBase(d), submissions: submissions, tasks: tasks, accounts: accounts}
}

// Submit claims one open slot on the task and records a pending submission.
// Payable amount, title and buyer are copied from the task.
func (s *SubmissionService) Submit(ctx context.Context, worker string, in SubmissionInput) (*models.Submission, error) {
	if in.TaskID == uuid.Nil {
		return nil, apperr.InvalidArgument("task_id is required")
	}
	var sub *models.Submission
	err := s.inTx(ctx, "submit", func(ctx context.Context, u *unit) error {
		acc, err := s.accounts.GetByEmailTx(ctx, u.tx, worker)
		if err != nil {
			return notFoundAs(err, "account not found")
		}
		task, err := s.tasks.GetByIDForUpdate(ctx, u.tx, in.TaskID)
		if err != nil {
			return notFoundAs(err, "task not found")
		}
		ok, err := s.tasks.ClaimSlotTx(ctx, u.tx, task.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidTransition("task has no open slots")
		}

		sub = &models.Submission{
			ID:            uuid.New(),
			TaskID:        task.ID,
			TaskTitle:     task.Title,
			PayableAmount: task.PayableAmount,
			WorkerEmail:   worker,
			WorkerName:    acc.DisplayName,
			BuyerEmail:    task.BuyerEmail,
			BuyerName:     task.BuyerName,
			Details:       in.Details,
			Status:        models.SubmissionStatusPending,
		}
		if err := s.submissions.CreateTx(ctx, u.tx, sub); err != nil {
			return err
		}
		return u.notify(ctx, task.BuyerEmail,
			fmt.Sprintf("New submission received for task: %s", task.Title),
			models.RouteBuyerHome)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission created", "submission_id", sub.ID, "task_id", sub.TaskID, "worker", worker)
	return sub, nil
}

// lockPending loads the submission for update and checks that buyer may judge it.
func (s *SubmissionService) lockPending(ctx context.Context, u *unit, buyer string, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.submissions.GetByIDForUpdate(ctx, u.tx, id)
	if err != nil {
		return nil, notFoundAs(err, "submission not found")
	}
	if sub.BuyerEmail != buyer {
		return nil, apperr.Forbidden("submission belongs to another buyer")
	}
	if sub.Status != models.SubmissionStatusPending {
		return nil, apperr.InvalidTransition("submission already " + sub.Status)
	}
	return sub, nil
}

func (s *SubmissionService) transition(ctx context.Context, u *unit, id uuid.UUID, to string) error {
	ok, err := s.submissions.TransitionTx(ctx, u.tx, id, models.SubmissionStatusPending, to)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidTransition("submission is no longer pending")
	}
	return nil
}

// Approve credits the worker the submission's payable amount.
func (s *SubmissionService) Approve(ctx context.Context, buyer string, id uuid.UUID) (*models.Submission, error) {
	var sub *models.Submission
	err := s.inTx(ctx, "approve submission", func(ctx context.Context, u *unit) error {
		var err error
		if sub, err = s.lockPending(ctx, u, buyer, id); err != nil {
			return err
		}
		if err := s.transition(ctx, u, id, models.SubmissionStatusApproved); err != nil {
			return err
		}
		if _, err := u.apply(ctx, ledger.Delta{
			Account:  sub.WorkerEmail,
			Amount:   sub.PayableAmount,
			Reason:   models.ReasonSubmissionEarning,
			SourceID: sub.ID,
		}); err != nil {
			return err
		}
		sub.Status = models.SubmissionStatusApproved
		return u.notify(ctx, sub.WorkerEmail,
			fmt.Sprintf("You have earned %d coins from %s for completing %s", sub.PayableAmount, sub.BuyerName, sub.TaskTitle),
			models.RouteWorkerHome)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission approved", "submission_id", id, "worker", sub.WorkerEmail, "amount", sub.PayableAmount)
	return sub, nil
}

// Reject returns the slot to the task. When the task has been removed the slot
// cannot reopen, so its payable is refunded to the buyer instead.
func (s *SubmissionService) Reject(ctx context.Context, buyer string, id uuid.UUID) (*models.Submission, error) {
	var sub *models.Submission
	var refunded int64
	err := s.inTx(ctx, "reject submission", func(ctx context.Context, u *unit) error {
		var err error
		if sub, err = s.lockPending(ctx, u, buyer, id); err != nil {
			return err
		}
		if err := s.transition(ctx, u, id, models.SubmissionStatusRejected); err != nil {
			return err
		}
		reopened, err := s.tasks.ReleaseSlotTx(ctx, u.tx, sub.TaskID)
		if err != nil {
			return err
		}
		if !reopened {
			refunded = sub.PayableAmount
			if _, err := u.apply(ctx, ledger.Delta{
				Account:  sub.BuyerEmail,
				Amount:   refunded,
				Reason:   models.ReasonTaskRefund,
				SourceID: sub.ID,
			}); err != nil {
				return err
			}
		}
		sub.Status = models.SubmissionStatusRejected
		return u.notify(ctx, sub.WorkerEmail,
			fmt.Sprintf("Your submission for %s was rejected by %s", sub.TaskTitle, sub.BuyerName),
			models.RouteMySubmissions)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission rejected", "submission_id", id, "worker", sub.WorkerEmail, "refunded", refunded)
	return sub, nil
}

// List returns submissions matching f. Non-admin callers only see rows where
// they are the worker or the buyer; with no filter they get their own.
func (s *SubmissionService) List(ctx context.Context, caller policy.Principal, f models.SubmissionFilter) ([]*models.Submission, error) {
	if !caller.IsAdmin() {
		switch {
		case f.WorkerEmail == "" && f.BuyerEmail == "":
			if caller.Role == models.RoleBuyer {
				f.BuyerEmail = caller.Identity
			} else {
				f.WorkerEmail = caller.Identity
			}
		case f.WorkerEmail != "" && f.WorkerEmail != caller.Identity && f.BuyerEmail != caller.Identity:
			return nil, apperr.Forbidden("cannot list another identity's submissions")
		case f.BuyerEmail != "" && f.BuyerEmail != caller.Identity && f.WorkerEmail != caller.Identity:
			return nil, apperr.Forbidden("cannot list another identity's submissions")
		}
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.submissions.List(ctx, f)
	if err != nil {
		return nil, s.classify("list submissions", err)
	}
	return list, nil
}

// Paginated returns one page of the worker's submissions, newest first.
// page defaults to 1; limit defaults to DefaultPageLimit and is capped at MaxPageLimit.
func (s *SubmissionService) Paginated(ctx context.Context, worker string, page, limit int) (*models.SubmissionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page > math.MaxInt/limit {
		return nil, apperr.InvalidArgument("page is out of range")
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, total, err := s.submissions.ListByWorkerPage(ctx, worker, (page-1)*limit, limit)
	if err != nil {
		return nil, s.classify("paginate submissions", err)
	}
	if list == nil {
		list = []*models.Submission{}
	}
	return &models.SubmissionPage{
		Submissions: list,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  (total + limit - 1) / limit,
	}, nil
}
