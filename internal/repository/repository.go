package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tasknest/backend/internal/apperr"
)

// ErrNotFound is returned when a lookup by id or key matches no row.
var ErrNotFound = errors.New("not found")

// DefaultTimeout bounds a store call when the caller configured none.
const DefaultTimeout = 5 * time.Second

type rowScanner interface {
	Scan(dest ...any) error
}

// notFound maps pgx.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// WithTimeout derives the context a single store call runs under.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Classify maps a store failure onto an apperr kind. Errors that already carry
// a kind pass through; anything unrecognised becomes KindInternal under op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTransient, "store timed out, retry later", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return apperr.Wrap(apperr.KindConflict, "concurrent update, retry", err)
		}
	}
	if pgconn.SafeToRetry(err) {
		return apperr.Wrap(apperr.KindTransient, "store unavailable, retry later", err)
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}
