// Package services is the ledger and lifecycle engine. Every operation that
// moves coins runs in one transaction: rows are locked, guards are checked,
// deltas go through ledger.Service and notifications are enqueued before commit.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/repository"
)

// DefaultTimeout bounds each engine operation when Deps.Timeout is zero.
const DefaultTimeout = repository.DefaultTimeout

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier enqueues a notification inside tx. It must only become visible once tx commits.
type Notifier interface {
	Notify(ctx context.Context, tx pgx.Tx, n models.Notification) error
}

// Metrics receives engine counters after a transaction has committed.
type Metrics interface {
	LedgerDelta(reason string, amount int64)
	Settlement(outcome string)
	CoinsForfeited(amount int64)
}

type nopMetrics struct{}

func (nopMetrics) LedgerDelta(string, int64) {}
func (nopMetrics) Settlement(string)         {}
func (nopMetrics) CoinsForfeited(int64)      {}

// AccountStore is the account persistence the engine needs; *repository.AccountRepo implements it.
type AccountStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByEmailTx(ctx context.Context, tx pgx.Tx, email string) (*models.Account, error)
	List(ctx context.Context, search string) ([]*models.Account, error)
	TopWorkers(ctx context.Context, limit int) ([]*models.Account, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, p models.ProfileUpdate) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	OpenObligationsTx(ctx context.Context, tx pgx.Tx, email string) (int, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// LedgerReader reads recorded ledger entries; *ledger.Repository implements it.
type LedgerReader interface {
	ListByAccount(ctx context.Context, email string) ([]*models.LedgerEntry, error)
}

type TaskStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	MarkDeletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error)
	ClaimSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ReleaseSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, buyerEmail string, u models.TaskUpdate) (*models.Task, error)
	List(ctx context.Context, buyerEmail string) ([]*models.Task, error)
	ListAvailable(ctx context.Context) ([]*models.Task, error)
}

type SubmissionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
	List(ctx context.Context, f models.SubmissionFilter) ([]*models.Submission, error)
	ListByWorkerPage(ctx context.Context, workerEmail string, offset, limit int) ([]*models.Submission, int, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
	List(ctx context.Context, f models.WithdrawalFilter) ([]*models.Withdrawal, error)
}

type PaymentStore interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentRecord, error)
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) (bool, error)
	ListByBuyer(ctx context.Context, buyerEmail string) ([]*models.PaymentRecord, error)
}

// Deps are the collaborators shared by every engine service.
type Deps struct {
	DB       TxBeginner
	Ledger   ledger.Service
	Notifier Notifier
	Metrics  Metrics
	Logger   *slog.Logger
	Timeout  time.Duration
}

type base struct {
	db       TxBeginner
	ledger   ledger.Service
	notifier Notifier
	metrics  Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

func newBase(d Deps) base {
	b := base{
		db:       d.DB,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logger:   d.Logger,
		timeout:  d.Timeout,
	}
	if b.metrics == nil {
		b.metrics = nopMetrics{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	return b
}

// unit is one engine transaction. Deltas are remembered so metrics are only
// recorded once the transaction commits.
type unit struct {
	tx       pgx.Tx
	ledger   ledger.Service
	notifier Notifier
	deltas   []ledger.Delta
}

func (u *unit) apply(ctx context.Context, d ledger.Delta) (int64, error) {
	bal, err := u.ledger.Apply(ctx, u.tx, d)
	if err != nil {
		return 0, err
	}
	if d.Amount != 0 {
		u.deltas = append(u.deltas, d)
	}
	return bal, nil
}

func (u *unit) notify(ctx context.Context, to, message, route string) error {
	if u.notifier == nil {
		return nil
	}
	err := u.notifier.Notify(ctx, u.tx, models.Notification{
		ID:          uuid.New(),
		ToEmail:     to,
		Message:     message,
		ActionRoute: route,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// inTx runs fn inside one transaction bounded by the store timeout. Any error
// from fn rolls the transaction back and is classified into an apperr kind.
func (b *base) inTx(ctx context.Context, op string, fn func(ctx context.Context, u *unit) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return b.classify(op, err)
	}
	defer tx.Rollback(ctx)

	u := &unit{tx: tx, ledger: b.ledger, notifier: b.notifier}
	if err := fn(ctx, u); err != nil {
		return b.classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return b.classify(op, err)
	}
	for _, d := range u.deltas {
		b.metrics.LedgerDelta(d.Reason, d.Amount)
	}
	return nil
}

// read bounds a non-transactional store call by the store timeout.
func (b *base) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// classify maps store and ledger errors onto the apperr taxonomy. Errors that
// already carry a kind pass through unchanged.
func (b *base) classify(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return apperr.Wrap(apperr.KindInsufficientBalance, "insufficient balance", err)
	case errors.Is(err, ledger.ErrAccountNotFound):
		return apperr.Wrap(apperr.KindNotFound, "account not found", err)
	}
	err = repository.Classify(op, err)
	if apperr.KindOf(err) == apperr.KindInternal {
		b.logger.Error("engine operation failed", "op", op, "error", err)
	}
	return err
}

// notFoundAs maps repository.ErrNotFound to a NotFound error with msg.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, msg, err)
	}
	return err
}
