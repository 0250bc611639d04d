package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
	"github.com/tasknest/backend/internal/services"
)

// SubmissionEngine is the subset of the submission service the handler needs.
type SubmissionEngine interface {
	Submit(ctx context.Context, worker string, in services.SubmissionInput) (*models.Submission, error)
	Approve(ctx context.Context, buyer string, id uuid.UUID) (*models.Submission, error)
	Reject(ctx context.Context, buyer string, id uuid.UUID) (*models.Submission, error)
	List(ctx context.Context, caller policy.Principal, f models.SubmissionFilter) ([]*models.Submission, error)
	Paginated(ctx context.Context, worker string, page, limit int) (*models.SubmissionPage, error)
}

// SubmissionHandler serves /submissions endpoints.
type SubmissionHandler struct {
	Submissions SubmissionEngine
	Logger      *slog.Logger
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in services.SubmissionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	sub, err := h.Submissions.Submit(r.Context(), principal(r).Identity, in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /submissions?workerEmail=&buyerEmail=&status=.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subs, err := h.Submissions.List(r.Context(), principal(r), models.SubmissionFilter{
		WorkerEmail: q.Get("workerEmail"),
		BuyerEmail:  q.Get("buyerEmail"),
		Status:      q.Get("status"),
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Paginated handles GET /submissions/paginated?email=&page=&limit=.
func (h *SubmissionHandler) Paginated(w http.ResponseWriter, r *http.Request) {
	email, err := self(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	limit, err := queryInt(r, "limit", services.DefaultPageLimit)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	out, err := h.Submissions.Paginated(r.Context(), email, page, limit)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SubmissionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.judge(w, r, h.Submissions.Approve)
}

func (h *SubmissionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.judge(w, r, h.Submissions.Reject)
}

func (h *SubmissionHandler) judge(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, uuid.UUID) (*models.Submission, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	sub, err := fn(r.Context(), principal(r).Identity, id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
