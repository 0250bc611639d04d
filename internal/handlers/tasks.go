package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/services"
)

// TaskEngine is the subset of the task service the handler needs.
type TaskEngine interface {
	Post(ctx context.Context, buyer string, in services.TaskInput) (*models.Task, error)
	Delete(ctx context.Context, buyer string, id uuid.UUID) (int64, error)
	AdminDelete(ctx context.Context, admin string, id uuid.UUID) (int64, error)
	Update(ctx context.Context, buyer string, id uuid.UUID, u models.TaskUpdate) (*models.Task, error)
	List(ctx context.Context, buyerEmail string) ([]*models.Task, error)
	Available(ctx context.Context) ([]*models.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// TaskHandler serves /tasks endpoints.
type TaskHandler struct {
	Tasks  TaskEngine
	Logger *slog.Logger
}

// --- POST /tasks ---

// Post handles POST /tasks. The escrow is debited in the same transaction as the insert.
func (h *TaskHandler) Post(w http.ResponseWriter, r *http.Request) {
	var in services.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Post(r.Context(), principal(r).Identity, in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// --- GET /tasks, /tasks/available, /tasks/{id} ---

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.List(r.Context(), r.URL.Query().Get("buyerEmail"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Available(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.Available(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- PATCH /tasks/{id} ---

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	var u models.TaskUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Update(r.Context(), principal(r).Identity, id, u)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- DELETE /tasks/{id}, /tasks/admin/{id} ---

// Delete refunds the remaining escrow to the owning buyer.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	refund, err := h.Tasks.Delete(r.Context(), principal(r).Identity, id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"refund": refund})
}

// AdminDelete removes the task without refunding the buyer.
func (h *TaskHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	forfeited, err := h.Tasks.AdminDelete(r.Context(), principal(r).Identity, id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"forfeited": forfeited})
}
