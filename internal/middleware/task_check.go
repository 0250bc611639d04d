package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/repository"
)

// maxTaskBody caps the request body TaskCheck will buffer.
const maxTaskBody = 1 << 20

type parsedTask struct {
	RequiredWorkers int64 `json:"required_workers"`
	PayableAmount   int64 `json:"payable_amount"`
}

// TaskCheck rejects task postings that are malformed or plainly unaffordable
// before they reach the ledger. It reads the body and replaces r.Body so
// the handler can decode it again. The balance lookup is bounded by timeout.
// The ledger remains the source of truth.
func TaskCheck(pool *pgxpool.Pool, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromCtx(r.Context())
			if !p.Verified() {
				writeError(w, apperr.Unauthorized("missing or invalid credential"))
				return
			}

			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTaskBody))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, apperr.TooLarge("request body is too large"))
					return
				}
				writeError(w, apperr.InvalidArgument("failed to read body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedTask
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				writeError(w, apperr.InvalidArgument("invalid JSON body"))
				return
			}
			if peek.RequiredWorkers < 0 || peek.PayableAmount < 0 {
				writeError(w, apperr.InvalidArgument("required_workers and payable_amount cannot be negative"))
				return
			}
			if peek.PayableAmount > 0 && peek.RequiredWorkers > math.MaxInt64/peek.PayableAmount {
				writeError(w, apperr.InvalidArgument("escrow total overflows"))
				return
			}

			if total := peek.RequiredWorkers * peek.PayableAmount; total > 0 {
				ctx, cancel := repository.WithTimeout(r.Context(), timeout)
				balance, err := balanceFn(ctx, pool, p.Identity)
				cancel()
				if errors.Is(err, repository.ErrNotFound) {
					writeError(w, apperr.NotFound("account not found"))
					return
				}
				if err != nil {
					writeError(w, repository.Classify("check balance", err))
					return
				}
				if balance < total {
					writeError(w, apperr.InsufficientBalance("insufficient balance"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// balanceFn reads the caller's current balance.
// Tests can replace this to avoid hitting a real database.
var balanceFn = defaultBalance

func defaultBalance(ctx context.Context, pool *pgxpool.Pool, email string) (int64, error) {
	var coin int64
	err := pool.QueryRow(ctx, `SELECT coin FROM accounts WHERE email = $1`, email).Scan(&coin)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	return coin, err
}
