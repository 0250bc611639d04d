// Package app assembles the stores, services and job queue shared by the API
// server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/tasknest/backend/internal/auth"
	"github.com/tasknest/backend/internal/config"
	"github.com/tasknest/backend/internal/dashboard"
	"github.com/tasknest/backend/internal/handlers"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/metrics"
	"github.com/tasknest/backend/internal/middleware"
	"github.com/tasknest/backend/internal/migrate"
	"github.com/tasknest/backend/internal/notify"
	"github.com/tasknest/backend/internal/payment"
	"github.com/tasknest/backend/internal/repository"
	"github.com/tasknest/backend/internal/router"
	"github.com/tasknest/backend/internal/services"
)

type Options struct {
	// Work starts notification workers. Without it the river client only inserts jobs.
	Work bool
}

type App struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	River   *river.Client[pgx.Tx]
	Auth    auth.Service

	AccountRepo *repository.AccountRepo
	Stats       *repository.StatsRepo

	Accounts      *services.AccountService
	Tasks         *services.TaskService
	Submissions   *services.SubmissionService
	Withdrawals   *services.WithdrawalService
	Payments      *services.PaymentService
	Notifications *services.NotificationService
}

// Connect opens and pings the database pool.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema and river migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := migrate.Up(pool); err != nil {
		return err
	}
	return migrate.River(ctx, pool)
}

// New wires every component on top of pool.
func New(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics.New(),
		Auth:    auth.NewService(cfg.JWTSecret, cfg.JWTIssuer),
	}

	accountRepo := repository.NewAccountRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	ledgerRepo := ledger.NewRepository(pool)
	a.AccountRepo = accountRepo
	a.Stats = repository.NewStatsRepo(pool)

	riverCfg := &river.Config{Logger: logger}
	if opts.Work {
		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewWorker(notificationRepo, logger))
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			notify.QueueName: {MaxWorkers: cfg.NotificationWorkers},
		}
	}
	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	a.River = client

	enqueuer := notify.NewEnqueuer(func(ctx context.Context, tx pgx.Tx, args notify.StoreNotificationArgs) error {
		_, err := client.InsertTx(ctx, tx, args, nil)
		return err
	})

	if cfg.StripeSecretKey == "" {
		logger.Warn("stripe secret key not set, checkout and settlement will fail")
	}

	deps := services.Deps{
		DB:       pool,
		Ledger:   ledger.NewService(ledgerRepo),
		Notifier: enqueuer,
		Metrics:  a.Metrics,
		Logger:   logger,
		Timeout:  cfg.StoreTimeout,
	}
	a.Accounts = services.NewAccountService(deps, accountRepo, ledgerRepo)
	a.Tasks = services.NewTaskService(deps, taskRepo, accountRepo)
	a.Submissions = services.NewSubmissionService(deps, submissionRepo, taskRepo, accountRepo)
	a.Withdrawals = services.NewWithdrawalService(deps, withdrawalRepo, accountRepo)
	a.Payments = services.NewPaymentService(deps, payment.NewStripe(cfg.StripeSecretKey, nil), paymentRepo, services.PaymentConfig{
		Packages:   cfg.CoinPackages,
		Currency:   cfg.Currency,
		SiteDomain: cfg.SiteDomain,
	})
	a.Notifications = services.NewNotificationService(deps, notificationRepo)
	return a, nil
}

// Handler returns the full HTTP surface wrapped in CORS.
func (a *App) Handler() http.Handler {
	log := a.Logger
	h := router.New(router.Config{
		Verifier:     a.Auth,
		Accounts:     a.AccountRepo,
		Pool:         a.Pool,
		StoreTimeout: a.Config.StoreTimeout,
		Metrics:      a.Metrics,
		RateLimiter:  middleware.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst, log),
		Ready:        a.Pool.Ping,
		Logger:       log,
	}, router.Handlers{
		Accounts:      &handlers.AccountHandler{Accounts: a.Accounts, Logger: log},
		Tasks:         &handlers.TaskHandler{Tasks: a.Tasks, Logger: log},
		Submissions:   &handlers.SubmissionHandler{Submissions: a.Submissions, Logger: log},
		Withdrawals:   &handlers.WithdrawalHandler{Withdrawals: a.Withdrawals, Logger: log},
		Payments:      &handlers.PaymentHandler{Payments: a.Payments, Logger: log},
		Notifications: &handlers.NotificationHandler{Notifications: a.Notifications, Logger: log},
		Dashboard:     dashboard.NewHandler(a.Stats, a.Config.StoreTimeout, log),
	})

	return cors.New(cors.Options{
		AllowedOrigins:   a.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(h)
}

// Start runs the river workers until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.River.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("start river: %w", err)
	}
	return nil
}

// Stop drains in-flight jobs.
func (a *App) Stop(ctx context.Context) error {
	return a.River.Stop(ctx)
}
