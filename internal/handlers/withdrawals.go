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

// WithdrawalEngine is the subset of the withdrawal service the handler needs.
type WithdrawalEngine interface {
	Request(ctx context.Context, worker string, in services.WithdrawalInput) (*models.Withdrawal, error)
	Approve(ctx context.Context, admin string, id uuid.UUID) (*models.Withdrawal, error)
	List(ctx context.Context, caller policy.Principal, f models.WithdrawalFilter) ([]*models.Withdrawal, error)
	Pending(ctx context.Context) ([]*models.Withdrawal, error)
}

// WithdrawalHandler serves /withdrawals endpoints.
type WithdrawalHandler struct {
	Withdrawals WithdrawalEngine
	Logger      *slog.Logger
}

func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	var in services.WithdrawalInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	wd, err := h.Withdrawals.Request(r.Context(), principal(r).Identity, in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// List handles GET /withdrawals?email=&status=.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Withdrawals.List(r.Context(), principal(r), models.WithdrawalFilter{
		WorkerEmail: q.Get("email"),
		Status:      q.Get("status"),
	})
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WithdrawalHandler) Pending(w http.ResponseWriter, r *http.Request) {
	out, err := h.Withdrawals.Pending(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Approve handles PATCH /withdrawals/{id}/approve. The worker is debited on approval.
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	wd, err := h.Withdrawals.Approve(r.Context(), principal(r).Identity, id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
