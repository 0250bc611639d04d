package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/auth"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
	"github.com/tasknest/backend/internal/repository"
)

type contextKey string

const (
	ctxAccountKey   contextKey = "account"
	ctxPrincipalKey contextKey = "principal"
)

// AccountLookup resolves a verified identity to its account.
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Authenticate verifies the Bearer token and stores the caller's principal in
// the request context. A verified identity without an account is admitted
// with an empty role so it can create one.
func Authenticate(v auth.Verifier, accounts AccountLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, apperr.Unauthorized("missing or malformed Authorization header"))
				return
			}
			email, err := v.Verify(r.Context(), raw)
			if err != nil {
				writeError(w, apperr.Unauthorized("invalid token"))
				return
			}

			p := policy.Principal{Identity: email}
			ctx := r.Context()
			acc, err := accounts.GetByEmail(ctx, email)
			switch {
			case err == nil:
				p.Role = acc.Role
				ctx = WithAccount(ctx, acc)
			case errors.Is(err, repository.ErrNotFound):
			default:
				logger.Error("resolve principal", "identity", email, "error", err)
				writeError(w, apperr.Wrap(apperr.KindTransient, "account lookup failed", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// RequireRole admits only principals holding one of roles. With no roles any
// verified principal passes.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	rule := policy.Allow(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := policy.Authorize(PrincipalFromCtx(r.Context()), rule); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFromCtx returns the authenticated account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(ctxAccountKey).(*models.Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

// PrincipalFromCtx returns the caller, or the zero Principal when unauthenticated.
func PrincipalFromCtx(ctx context.Context) policy.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(policy.Principal)
	return p
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p policy.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": apperr.Message(err),
		"code":  string(apperr.KindOf(err)),
	})
}
