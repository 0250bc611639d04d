// Package router maps the HTTP surface onto handlers and composes the
// authentication and role guards in front of them.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/auth"
	"github.com/tasknest/backend/internal/dashboard"
	"github.com/tasknest/backend/internal/handlers"
	"github.com/tasknest/backend/internal/metrics"
	"github.com/tasknest/backend/internal/middleware"
	"github.com/tasknest/backend/internal/models"
)

type Handlers struct {
	Accounts      *handlers.AccountHandler
	Tasks         *handlers.TaskHandler
	Submissions   *handlers.SubmissionHandler
	Withdrawals   *handlers.WithdrawalHandler
	Payments      *handlers.PaymentHandler
	Notifications *handlers.NotificationHandler
	Dashboard     *dashboard.Handler
}

type Config struct {
	Verifier auth.Verifier
	Accounts middleware.AccountLookup
	// Pool backs the balance precheck on task posting.
	Pool *pgxpool.Pool
	// StoreTimeout bounds the precheck's balance lookup.
	StoreTimeout time.Duration
	Metrics      *metrics.Metrics
	RateLimiter  *middleware.RateLimiter
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

var (
	buyer  = middleware.RequireRole(models.RoleBuyer)
	worker = middleware.RequireRole(models.RoleWorker)
	admin  = middleware.RequireRole(models.RoleAdmin)
	// verified admits any caller with a valid token, account or not.
	verified = middleware.RequireRole()
)

func New(cfg Config, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	r.Get("/healthz", healthz(cfg.Ready))

	throttle := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		throttle = cfg.RateLimiter.Handler
	}

	// Public.
	r.Group(func(r chi.Router) {
		r.Use(throttle)
		r.Get("/users/top/workers", h.Accounts.TopWorkers)
		r.Get("/users/{id}/role", h.Accounts.Role)
		r.Get("/tasks", h.Tasks.List)
		r.Get("/tasks/available", h.Tasks.Available)
		r.Get("/tasks/{id}", h.Tasks.Get)
	})

	// Authenticated.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Verifier, cfg.Accounts, cfg.Logger))
		r.Use(throttle)

		r.With(admin).Get("/users", h.Accounts.List)
		r.With(verified).Post("/users", h.Accounts.Create)
		r.With(admin).Get("/users/stats/admin", h.Dashboard.AdminStats)
		r.With(verified).Get("/users/{id}", h.Accounts.Get)
		r.With(admin).Patch("/users/{id}/role", h.Accounts.UpdateRole)
		r.With(verified).Patch("/users/{id}/profile", h.Accounts.UpdateProfile)
		r.With(admin).Delete("/users/{id}", h.Accounts.Delete)
		r.With(verified).Get("/ledger", h.Accounts.Ledger)

		r.With(buyer, middleware.TaskCheck(cfg.Pool, cfg.StoreTimeout)).Post("/tasks", h.Tasks.Post)
		r.With(buyer).Patch("/tasks/{id}", h.Tasks.Update)
		r.With(buyer).Delete("/tasks/{id}", h.Tasks.Delete)
		r.With(admin).Delete("/tasks/admin/{id}", h.Tasks.AdminDelete)
		r.With(buyer).Get("/tasks/stats/buyer", h.Dashboard.BuyerStats)

		r.With(verified).Get("/submissions", h.Submissions.List)
		r.With(worker).Get("/submissions/paginated", h.Submissions.Paginated)
		r.With(worker).Post("/submissions", h.Submissions.Submit)
		r.With(buyer).Patch("/submissions/{id}/approve", h.Submissions.Approve)
		r.With(buyer).Patch("/submissions/{id}/reject", h.Submissions.Reject)
		r.With(worker).Get("/submissions/stats/worker", h.Dashboard.WorkerStats)

		r.With(buyer).Post("/payment-checkout-session", h.Payments.Checkout)
		r.With(verified).Patch("/payment-success", h.Payments.Settle)
		r.With(verified).Get("/payments", h.Payments.History)

		r.With(verified).Get("/withdrawals", h.Withdrawals.List)
		r.With(admin).Get("/withdrawals/pending", h.Withdrawals.Pending)
		r.With(worker).Post("/withdrawals", h.Withdrawals.Request)
		r.With(admin).Patch("/withdrawals/{id}/approve", h.Withdrawals.Approve)

		r.With(verified).Get("/notifications", h.Notifications.List)
		r.With(verified).Delete("/notifications/{id}", h.Notifications.Delete)
	})

	return r
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
