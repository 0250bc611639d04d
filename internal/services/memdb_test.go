package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/payment"
	"github.com/tasknest/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// memDB is an in-memory stand-in for Postgres. Transactions are serialized by
// txMu, which plays the role of the row locks; every write inside a
// transaction registers an undo closure so Rollback restores the prior state.
// Notifications enqueued in a transaction are only stored on Commit.
// ---------------------------------------------------------------------------

type memDB struct {
	txMu sync.Mutex

	mu            sync.Mutex
	accounts      map[string]*models.Account
	tasks         map[uuid.UUID]*models.Task
	submissions   map[uuid.UUID]*models.Submission
	withdrawals   map[uuid.UUID]*models.Withdrawal
	payments      map[string]*models.PaymentRecord
	entries       []*models.LedgerEntry
	notifications []models.Notification
	fail          map[string]error
	clock         time.Time
}

func newMemDB() *memDB {
	return &memDB{
		accounts:    make(map[string]*models.Account),
		tasks:       make(map[uuid.UUID]*models.Task),
		submissions: make(map[uuid.UUID]*models.Submission),
		withdrawals: make(map[uuid.UUID]*models.Withdrawal),
		payments:    make(map[string]*models.PaymentRecord),
		fail:        make(map[string]error),
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// now returns a strictly increasing timestamp. Caller holds mu.
func (db *memDB) now() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

// failWith makes the named operation return err until cleared.
func (db *memDB) failWith(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail[op] = err
}

func (db *memDB) failure(op string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.fail[op]
}

func (db *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := db.failure("begin"); err != nil {
		return nil, err
	}
	db.txMu.Lock()
	return &memTx{db: db}, nil
}

func onUndo(tx pgx.Tx, fn func()) {
	if mt, ok := tx.(*memTx); ok {
		mt.undo = append(mt.undo, fn)
	}
}

// --- seed and inspection helpers ---

func (db *memDB) seedAccount(email, role string, coin int64) *models.Account {
	db.mu.Lock()
	defer db.mu.Unlock()
	a := &models.Account{ID: uuid.New(), Email: email, DisplayName: strings.Split(email, "@")[0], Role: role, Coin: coin, CreatedAt: db.now()}
	db.accounts[email] = a
	cp := *a
	return &cp
}

func (db *memDB) balance(email string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	if a, ok := db.accounts[email]; ok {
		return a.Coin
	}
	return 0
}

func (db *memDB) totalCoin() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var sum int64
	for _, a := range db.accounts {
		sum += a.Coin
	}
	return sum
}

// escrowHeld sums the coins still held for live tasks' open slots and pending submissions.
func (db *memDB) escrowHeld() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var sum int64
	for _, t := range db.tasks {
		if t.DeletedAt == nil {
			sum += int64(t.RequiredWorkers) * t.PayableAmount
		}
	}
	for _, s := range db.submissions {
		if s.Status == models.SubmissionStatusPending {
			sum += s.PayableAmount
		}
	}
	return sum
}

func (db *memDB) ledgerSum(email string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var sum int64
	for _, e := range db.entries {
		if e.AccountEmail == email {
			sum += e.Amount
		}
	}
	return sum
}

func (db *memDB) entriesFor(email string) []*models.LedgerEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range db.entries {
		if e.AccountEmail == email {
			out = append(out, e)
		}
	}
	return out
}

func (db *memDB) notificationsFor(email string) []models.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Notification
	for _, n := range db.notifications {
		if n.ToEmail == email {
			out = append(out, n)
		}
	}
	return out
}

func (db *memDB) task(id uuid.UUID) models.Task {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.tasks[id]
}

func (db *memDB) submission(id uuid.UUID) models.Submission {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.submissions[id]
}

func (db *memDB) withdrawal(id uuid.UUID) models.Withdrawal {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.withdrawals[id]
}

// ---------------------------------------------------------------------------
// memTx satisfies pgx.Tx; only Commit/Rollback carry behaviour.
// ---------------------------------------------------------------------------

type memTx struct {
	db       *memDB
	undo     []func()
	onCommit []func()
	done     bool
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if err := t.db.failure("commit"); err != nil {
		t.rollback()
		return err
	}
	for _, fn := range t.onCommit {
		fn()
	}
	t.done = true
	t.db.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.rollback()
	return nil
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.db.txMu.Unlock()
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// ---------------------------------------------------------------------------
// Store views. Each one implements a single store interface over memDB.
// ---------------------------------------------------------------------------

type memLedger struct{ *memDB }

func (m memLedger) LockBalance(_ context.Context, _ pgx.Tx, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	return a.Coin, nil
}

func (m memLedger) DeductCoins(_ context.Context, tx pgx.Tx, email string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok || a.Coin < amount {
		return 0, ledger.ErrInsufficientBalance
	}
	a.Coin -= amount
	onUndo(tx, func() { m.mu.Lock(); a.Coin += amount; m.mu.Unlock() })
	return a.Coin, nil
}

func (m memLedger) AddCoins(_ context.Context, tx pgx.Tx, email string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	a.Coin += amount
	onUndo(tx, func() { m.mu.Lock(); a.Coin -= amount; m.mu.Unlock() })
	return a.Coin, nil
}

func (m memLedger) ListByAccount(_ context.Context, email string) ([]*models.LedgerEntry, error) {
	entries := m.entriesFor(email)
	out := make([]*models.LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m memLedger) CreateEntryTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if err := m.failure("ledger.entry"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.CreatedAt = m.now()
	m.entries = append(m.entries, &cp)
	n := len(m.entries)
	onUndo(tx, func() { m.mu.Lock(); m.entries = m.entries[:n-1]; m.mu.Unlock() })
	return nil
}

type memAccounts struct{ *memDB }

func (m memAccounts) CreateTx(_ context.Context, tx pgx.Tx, a *models.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Email]; ok {
		return false, nil
	}
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	cp.Coin = 0
	m.accounts[a.Email] = &cp
	onUndo(tx, func() { m.mu.Lock(); delete(m.accounts, a.Email); m.mu.Unlock() })
	return true, nil
}

func (m memAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAccounts) GetByEmailTx(ctx context.Context, _ pgx.Tx, email string) (*models.Account, error) {
	return m.GetByEmail(ctx, email)
}

func (m memAccounts) List(_ context.Context, search string) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search = strings.ToLower(search)
	var out []*models.Account
	for _, a := range m.accounts {
		if search == "" || strings.Contains(strings.ToLower(a.DisplayName), search) || strings.Contains(strings.ToLower(a.Email), search) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m memAccounts) TopWorkers(_ context.Context, limit int) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.Role == models.RoleWorker {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coin > out[j].Coin })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memAccounts) find(id uuid.UUID) *models.Account {
	for _, a := range m.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m memAccounts) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return repository.ErrNotFound
	}
	a.Role = role
	return nil
}

func (m memAccounts) UpdateProfile(_ context.Context, id uuid.UUID, p models.ProfileUpdate) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return nil, repository.ErrNotFound
	}
	if p.DisplayName != nil {
		a.DisplayName = *p.DisplayName
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.PhotoURL != nil {
		a.PhotoURL = *p.PhotoURL
	}
	if p.BannerURL != nil {
		a.BannerURL = *p.BannerURL
	}
	cp := *a
	return &cp, nil
}

func (m memAccounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m memAccounts) OpenObligationsTx(_ context.Context, _ pgx.Tx, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.BuyerEmail == email && t.DeletedAt == nil && t.RequiredWorkers > 0 {
			n++
		}
	}
	for _, s := range m.submissions {
		if s.Status == models.SubmissionStatusPending && (s.BuyerEmail == email || s.WorkerEmail == email) {
			n++
		}
	}
	for _, w := range m.withdrawals {
		if w.Status == models.WithdrawalStatusPending && w.WorkerEmail == email {
			n++
		}
	}
	return n, nil
}

func (m memAccounts) DeleteTx(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return repository.ErrNotFound
	}
	delete(m.accounts, a.Email)
	onUndo(tx, func() { m.mu.Lock(); m.accounts[a.Email] = a; m.mu.Unlock() })
	return nil
}

type memTasks struct{ *memDB }

func (m memTasks) CreateTx(_ context.Context, tx pgx.Tx, t *models.Task) error {
	if err := m.failure("tasks.create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.tasks[t.ID] = &cp
	onUndo(tx, func() { m.mu.Lock(); delete(m.tasks, t.ID); m.mu.Unlock() })
	return nil
}

func (m memTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m memTasks) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m memTasks) MarkDeletedTx(_ context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	now := m.now()
	t.DeletedAt = &now
	t.DeletionReason = reason
	onUndo(tx, func() { m.mu.Lock(); t.DeletedAt = nil; t.DeletionReason = ""; m.mu.Unlock() })
	return true, nil
}

func (m memTasks) ClaimSlotTx(_ context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.DeletedAt != nil || t.RequiredWorkers <= 0 {
		return false, nil
	}
	t.RequiredWorkers--
	onUndo(tx, func() { m.mu.Lock(); t.RequiredWorkers++; m.mu.Unlock() })
	return true, nil
}

func (m memTasks) ReleaseSlotTx(_ context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	t.RequiredWorkers++
	onUndo(tx, func() { m.mu.Lock(); t.RequiredWorkers--; m.mu.Unlock() })
	return true, nil
}

func (m memTasks) UpdateDetails(_ context.Context, id uuid.UUID, buyerEmail string, u models.TaskUpdate) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.DeletedAt != nil || t.BuyerEmail != buyerEmail {
		return nil, repository.ErrNotFound
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Detail != nil {
		t.Detail = *u.Detail
	}
	if u.SubmissionInfo != nil {
		t.SubmissionInfo = *u.SubmissionInfo
	}
	cp := *t
	return &cp, nil
}

func (m memTasks) List(_ context.Context, buyerEmail string) ([]*models.Task, error) {
	return m.filter(func(t *models.Task) bool { return buyerEmail == "" || t.BuyerEmail == buyerEmail }), nil
}

func (m memTasks) ListAvailable(_ context.Context) ([]*models.Task, error) {
	return m.filter(func(t *models.Task) bool { return t.RequiredWorkers > 0 }), nil
}

func (m memTasks) filter(keep func(*models.Task) bool) []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if t.DeletedAt == nil && keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memSubmissions struct{ *memDB }

func (m memSubmissions) CreateTx(_ context.Context, tx pgx.Tx, s *models.Submission) error {
	if err := m.failure("submissions.create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = m.now()
	cp := *s
	m.submissions[s.ID] = &cp
	onUndo(tx, func() { m.mu.Lock(); delete(m.submissions, s.ID); m.mu.Unlock() })
	return nil
}

func (m memSubmissions) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m memSubmissions) TransitionTx(_ context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	now := m.now()
	s.JudgedAt = &now
	onUndo(tx, func() { m.mu.Lock(); s.Status = from; s.JudgedAt = nil; m.mu.Unlock() })
	return true, nil
}

func (m memSubmissions) List(_ context.Context, f models.SubmissionFilter) ([]*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Submission
	for _, s := range m.submissions {
		if (f.WorkerEmail == "" || s.WorkerEmail == f.WorkerEmail) &&
			(f.BuyerEmail == "" || s.BuyerEmail == f.BuyerEmail) &&
			(f.Status == "" || s.Status == f.Status) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m memSubmissions) ListByWorkerPage(ctx context.Context, worker string, offset, limit int) ([]*models.Submission, int, error) {
	all, _ := m.List(ctx, models.SubmissionFilter{WorkerEmail: worker})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type memWithdrawals struct{ *memDB }

func (m memWithdrawals) Create(_ context.Context, w *models.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.CreatedAt = m.now()
	cp := *w
	m.withdrawals[w.ID] = &cp
	return nil
}

func (m memWithdrawals) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m memWithdrawals) TransitionTx(_ context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok || w.Status != from {
		return false, nil
	}
	w.Status = to
	now := m.now()
	w.ApprovedAt = &now
	onUndo(tx, func() { m.mu.Lock(); w.Status = from; w.ApprovedAt = nil; m.mu.Unlock() })
	return true, nil
}

func (m memWithdrawals) List(_ context.Context, f models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range m.withdrawals {
		if (f.WorkerEmail == "" || w.WorkerEmail == f.WorkerEmail) && (f.Status == "" || w.Status == f.Status) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memPayments struct{ *memDB }

func (m memPayments) GetByTransactionID(_ context.Context, txid string) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m memPayments) CreateTx(_ context.Context, tx pgx.Tx, p *models.PaymentRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.TransactionID]; ok {
		return false, nil
	}
	p.PaidAt = m.now()
	cp := *p
	m.payments[p.TransactionID] = &cp
	onUndo(tx, func() { m.mu.Lock(); delete(m.payments, p.TransactionID); m.mu.Unlock() })
	return true, nil
}

func (m memPayments) ListByBuyer(_ context.Context, buyer string) ([]*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentRecord
	for _, p := range m.payments {
		if p.BuyerEmail == buyer {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out, nil
}

// memNotifier stores notifications when the enclosing transaction commits.
type memNotifier struct{ *memDB }

func (m memNotifier) Notify(_ context.Context, tx pgx.Tx, n models.Notification) error {
	if err := m.failure("notify"); err != nil {
		return err
	}
	store := func() { m.mu.Lock(); m.notifications = append(m.notifications, n); m.mu.Unlock() }
	if mt, ok := tx.(*memTx); ok {
		mt.onCommit = append(mt.onCommit, store)
		return nil
	}
	store()
	return nil
}

type memNotifications struct{ *memDB }

func (m memNotifications) ListByRecipient(_ context.Context, email string) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range m.notificationsFor(email) {
		out = append(out, &n)
	}
	return out, nil
}

func (m memNotifications) DeleteForRecipient(_ context.Context, id uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.ID == id && n.ToEmail == email {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// ---------------------------------------------------------------------------
// Metrics recorder and payment provider fakes.
// ---------------------------------------------------------------------------

type recMetrics struct {
	mu          sync.Mutex
	deltas      map[string]int64
	settlements map[string]int
	forfeited   int64
}

func newRecMetrics() *recMetrics {
	return &recMetrics{deltas: map[string]int64{}, settlements: map[string]int{}}
}

func (r *recMetrics) LedgerDelta(reason string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas[reason] += amount
}

func (r *recMetrics) Settlement(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements[outcome]++
}

func (r *recMetrics) CoinsForfeited(amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forfeited += amount
}

func (r *recMetrics) settled(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settlements[outcome]
}

func (r *recMetrics) delta(reason string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deltas[reason]
}

type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*payment.Session
	err       error
	checkouts []payment.CheckoutRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*payment.Session{}}
}

func (p *fakeProvider) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.checkouts = append(p.checkouts, req)
	return fmt.Sprintf("https://checkout.example.com/cs_%d", len(p.checkouts)), nil
}

func (p *fakeProvider) GetSession(_ context.Context, id string) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (p *fakeProvider) addPaid(id, buyer string, coins, cents int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = &payment.Session{
		ID: id, Status: payment.StatusPaid, AmountCents: cents, Currency: "usd",
		TransactionID: "pi_" + id, BuyerEmail: buyer, Coins: coins,
	}
}

// ---------------------------------------------------------------------------
// engine wires every service over one memDB.
// ---------------------------------------------------------------------------

type engine struct {
	db            *memDB
	metrics       *recMetrics
	provider      *fakeProvider
	accounts      *AccountService
	tasks         *TaskService
	submissions   *SubmissionService
	withdrawals   *WithdrawalService
	payments      *PaymentService
	notifications *NotificationService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := newMemDB()
	m := newRecMetrics()
	prov := newFakeProvider()
	d := Deps{
		DB:       db,
		Ledger:   ledger.NewService(memLedger{db}),
		Notifier: memNotifier{db},
		Metrics:  m,
		Timeout:  time.Second,
	}
	return &engine{
		db:            db,
		metrics:       m,
		provider:      prov,
		accounts:      NewAccountService(d, memAccounts{db}, memLedger{db}),
		tasks:         NewTaskService(d, memTasks{db}, memAccounts{db}),
		submissions:   NewSubmissionService(d, memSubmissions{db}, memTasks{db}, memAccounts{db}),
		withdrawals:   NewWithdrawalService(d, memWithdrawals{db}, memAccounts{db}),
		payments:      NewPaymentService(d, prov, memPayments{db}, PaymentConfig{SiteDomain: "https://tasknest.example/"}),
		notifications: NewNotificationService(d, memNotifications{db}),
	}
}

// postTask posts a task for buyer and fails the test on error.
func (e *engine) postTask(t *testing.T, buyer string, workers int, pay int64) *models.Task {
	t.Helper()
	task, err := e.tasks.Post(context.Background(), buyer, TaskInput{Title: "Label images", RequiredWorkers: workers, PayableAmount: pay})
	if err != nil {
		t.Fatalf("post task: %v", err)
	}
	return task
}

func (e *engine) submit(t *testing.T, worker string, taskID uuid.UUID) *models.Submission {
	t.Helper()
	sub, err := e.submissions.Submit(context.Background(), worker, SubmissionInput{TaskID: taskID, Details: "done"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return sub
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind: got %q, want %q (err=%v)", got, kind, err)
	}
}
