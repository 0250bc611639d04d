// Package dashboard serves the aggregate statistics behind the admin, buyer
// and worker home pages.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/middleware"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
	"github.com/tasknest/backend/internal/repository"
)

// StatsStore runs the aggregate queries.
type StatsStore interface {
	Admin(ctx context.Context) (*models.AdminStats, error)
	Buyer(ctx context.Context, email string) (*models.BuyerStats, error)
	Worker(ctx context.Context, email string) (*models.WorkerStats, error)
}

type Handler struct {
	stats   StatsStore
	timeout time.Duration
	log     *slog.Logger
}

// NewHandler bounds every stats query by timeout; zero means repository.DefaultTimeout.
func NewHandler(stats StatsStore, timeout time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{stats: stats, timeout: timeout, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	err = repository.Classify("stats query", err)
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("stats query failed", "error", err)
	}
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{
		"error": apperr.Message(err),
		"code":  string(apperr.KindOf(err)),
	})
}

// selfEmail returns the ?email= query value after checking it names the caller.
func selfEmail(r *http.Request) (string, error) {
	p := middleware.PrincipalFromCtx(r.Context())
	email := r.URL.Query().Get("email")
	if email == "" {
		email = p.Identity
	}
	if err := policy.Authorize(p, policy.Self(email)); err != nil {
		return "", err
	}
	return email, nil
}

// GET /users/stats/admin
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := repository.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	s, err := h.stats.Admin(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GET /tasks/stats/buyer?email=
func (h *Handler) BuyerStats(w http.ResponseWriter, r *http.Request) {
	email, err := selfEmail(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := repository.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	s, err := h.stats.Buyer(ctx, email)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GET /submissions/stats/worker?email=
func (h *Handler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	email, err := selfEmail(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	ctx, cancel := repository.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	s, err := h.stats.Worker(ctx, email)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
