// Package notify is the transactional outbox for user notifications. Services
// enqueue a river job inside their own transaction and a worker stores the
// notification once that transaction has committed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/tasknest/backend/internal/models"
)

// QueueName is the river queue notification jobs run on.
const QueueName = "notifications"

type StoreNotificationArgs struct {
	ID          uuid.UUID `json:"id"`
	ToEmail     string    `json:"to_email"`
	Message     string    `json:"message"`
	ActionRoute string    `json:"action_route"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StoreNotificationArgs) Kind() string { return "store_notification" }

func (StoreNotificationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueName, MaxAttempts: 10}
}

func argsFrom(n models.Notification) StoreNotificationArgs {
	return StoreNotificationArgs{
		ID:          n.ID,
		ToEmail:     n.ToEmail,
		Message:     n.Message,
		ActionRoute: n.ActionRoute,
		CreatedAt:   n.CreatedAt,
	}
}

func (a StoreNotificationArgs) notification() *models.Notification {
	return &models.Notification{
		ID:          a.ID,
		ToEmail:     a.ToEmail,
		Message:     a.Message,
		ActionRoute: a.ActionRoute,
		CreatedAt:   a.CreatedAt,
	}
}

// Store persists a notification. Creating the same id twice must be a no-op
// because river may run a job more than once.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

type Worker struct {
	river.WorkerDefaults[StoreNotificationArgs]
	store  Store
	logger *slog.Logger
}

func NewWorker(store Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, logger: logger}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[StoreNotificationArgs]) error {
	args := job.Args
	if args.ToEmail == "" || args.ID == uuid.Nil {
		w.logger.Warn("dropping malformed notification", "job_id", job.ID, "notification_id", args.ID)
		return river.JobCancel(errors.New("notification has no recipient or id"))
	}
	if err := w.store.Create(ctx, args.notification()); err != nil {
		return fmt.Errorf("store notification %s: %w", args.ID, err)
	}
	return nil
}

// InsertTxFunc enqueues a StoreNotification job within tx. Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args StoreNotificationArgs) error

// Enqueuer implements the services notifier on top of river.
type Enqueuer struct {
	insert InsertTxFunc
}

func NewEnqueuer(insert InsertTxFunc) *Enqueuer {
	return &Enqueuer{insert: insert}
}

func (e *Enqueuer) Notify(ctx context.Context, tx pgx.Tx, n models.Notification) error {
	if n.ToEmail == "" {
		return errors.New("notification recipient is required")
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return e.insert(ctx, tx, argsFrom(n))
}
