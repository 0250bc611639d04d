package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/services"
)

// AccountEngine is the subset of the account service the handler needs.
type AccountEngine interface {
	Create(ctx context.Context, identity string, in services.AccountInput) (*models.Account, bool, error)
	Get(ctx context.Context, email string) (*models.Account, error)
	Role(ctx context.Context, email string) (string, error)
	TopWorkers(ctx context.Context) ([]*models.Account, error)
	List(ctx context.Context, search string) ([]*models.Account, error)
	UpdateRole(ctx context.Context, admin string, id uuid.UUID, role string) error
	UpdateProfile(ctx context.Context, caller string, id uuid.UUID, p models.ProfileUpdate) (*models.Account, error)
	Delete(ctx context.Context, admin string, id uuid.UUID) error
	Ledger(ctx context.Context, email string) (*models.LedgerStatement, error)
}

// AccountHandler serves /users endpoints.
type AccountHandler struct {
	Accounts AccountEngine
	Logger   *slog.Logger
}

type createAccountResponse struct {
	Created bool            `json:"created"`
	Account *models.Account `json:"account"`
}

// Create handles POST /users.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.AccountInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	acc, created, err := h.Accounts.Create(r.Context(), principal(r).Identity, in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, createAccountResponse{Created: created, Account: acc})
}

// List handles GET /users?search=.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accs, err := h.Accounts.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, accs)
}

// TopWorkers handles GET /users/top/workers.
func (h *AccountHandler) TopWorkers(w http.ResponseWriter, r *http.Request) {
	accs, err := h.Accounts.TopWorkers(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, accs)
}

// Get handles GET /users/{id}, where the segment is the account email. Only the owner may read it.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	email, err := self(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	acc, err := h.Accounts.Get(r.Context(), email)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Role handles GET /users/{id}/role, where the segment is the account email.
func (h *AccountHandler) Role(w http.ResponseWriter, r *http.Request) {
	role, err := h.Accounts.Role(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": role})
}

// UpdateRole handles PATCH /users/{id}/role.
func (h *AccountHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Accounts.UpdateRole(r.Context(), principal(r).Identity, id, body.Role); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": body.Role})
}

// UpdateProfile handles PATCH /users/{id}/profile.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var p models.ProfileUpdate
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	acc, err := h.Accounts.UpdateProfile(r.Context(), principal(r).Identity, id, p)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Delete handles DELETE /users/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Accounts.Delete(r.Context(), principal(r).Identity, id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ledger handles GET /ledger?email=. Only the owner may read their statement.
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	email, err := self(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	st, err := h.Accounts.Ledger(r.Context(), email)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
