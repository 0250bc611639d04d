package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/models"
)

type NotificationEngine interface {
	List(ctx context.Context, recipient string) ([]*models.Notification, error)
	Delete(ctx context.Context, recipient string, id uuid.UUID) error
}

type NotificationHandler struct {
	Notifications NotificationEngine
	Logger        *slog.Logger
}

// List handles GET /notifications?email=.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	email, err := self(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	out, err := h.Notifications.List(r.Context(), email)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /notifications/{id}. Only the recipient may delete.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := h.Notifications.Delete(r.Context(), principal(r).Identity, id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
