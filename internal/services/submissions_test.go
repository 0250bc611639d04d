package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
)

func TestSubmit_ClaimsSlotAndNotifiesBuyer(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 2, 15)

	sub := e.submit(t, workerEmail, task.ID)

	if sub.Status != models.SubmissionStatusPending || sub.PayableAmount != 15 || sub.BuyerEmail != buyerEmail || sub.TaskTitle != task.Title {
		t.Errorf("submission should copy task fields: %+v", sub)
	}
	if got := e.db.task(task.ID).RequiredWorkers; got != 1 {
		t.Errorf("required workers: got %d, want 1", got)
	}
	notes := e.db.notificationsFor(buyerEmail)
	if len(notes) != 1 || notes[0].ActionRoute != models.RouteBuyerHome || !strings.Contains(notes[0].Message, task.Title) {
		t.Errorf("buyer notification: %+v", notes)
	}
}

func TestSubmit_NoSlotsLeft(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 10)
	e.submit(t, workerEmail, task.ID)

	_, err := e.submissions.Submit(context.Background(), workerEmail, SubmissionInput{TaskID: task.ID})
	wantKind(t, err, apperr.KindInvalidTransition)

	_, err = e.submissions.Submit(context.Background(), workerEmail, SubmissionInput{TaskID: uuid.New()})
	wantKind(t, err, apperr.KindNotFound)

	_, err = e.submissions.Submit(context.Background(), workerEmail, SubmissionInput{})
	wantKind(t, err, apperr.KindInvalidArgument)
}

func TestSubmit_RemovedTask(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 2, 10)
	if _, err := e.tasks.Delete(context.Background(), buyerEmail, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := e.submissions.Submit(context.Background(), workerEmail, SubmissionInput{TaskID: task.ID})
	wantKind(t, err, apperr.KindInvalidTransition)
}

func TestSubmit_FailureEnqueuesNothing(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 2, 10)
	e.db.failWith("submissions.create", errors.New("connection reset"))

	_, err := e.submissions.Submit(context.Background(), workerEmail, SubmissionInput{TaskID: task.ID})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := e.db.task(task.ID).RequiredWorkers; got != 2 {
		t.Errorf("claimed slot must roll back, got %d", got)
	}
	if got := len(e.db.notificationsFor(buyerEmail)); got != 0 {
		t.Errorf("failed submit must not notify, got %d", got)
	}
}

func TestApprove_CreditsWorkerOnce(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 15)
	sub := e.submit(t, workerEmail, task.ID)

	got, err := e.submissions.Approve(context.Background(), buyerEmail, sub.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != models.SubmissionStatusApproved {
		t.Errorf("status: got %q", got.Status)
	}
	if bal := e.db.balance(workerEmail); bal != 15 {
		t.Errorf("worker balance: got %d, want 15", bal)
	}
	notes := e.db.notificationsFor(workerEmail)
	if len(notes) != 1 || notes[0].ActionRoute != models.RouteWorkerHome || !strings.Contains(notes[0].Message, "15 coins") {
		t.Errorf("worker notification: %+v", notes)
	}

	_, err = e.submissions.Approve(context.Background(), buyerEmail, sub.ID)
	wantKind(t, err, apperr.KindInvalidTransition)
	_, err = e.submissions.Reject(context.Background(), buyerEmail, sub.ID)
	wantKind(t, err, apperr.KindInvalidTransition)
	if bal := e.db.balance(workerEmail); bal != 15 {
		t.Errorf("second approval must not re-credit, balance %d", bal)
	}
}

func TestApprove_Guards(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(otherBuyer, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 15)
	sub := e.submit(t, workerEmail, task.ID)

	_, err := e.submissions.Approve(context.Background(), otherBuyer, sub.ID)
	wantKind(t, err, apperr.KindForbidden)
	_, err = e.submissions.Approve(context.Background(), buyerEmail, uuid.New())
	wantKind(t, err, apperr.KindNotFound)

	if got := e.db.submission(sub.ID).Status; got != models.SubmissionStatusPending {
		t.Errorf("status must stay pending, got %q", got)
	}
}

func TestApprove_Concurrent(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 15)
	sub := e.submit(t, workerEmail, task.ID)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.submissions.Approve(context.Background(), buyerEmail, sub.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if apperr.KindOf(err) != apperr.KindInvalidTransition {
			t.Errorf("loser should see invalid_transition, got %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one approval should win, got %d", ok)
	}
	if bal := e.db.balance(workerEmail); bal != 15 {
		t.Errorf("worker credited %d, want exactly 15", bal)
	}
	if got := len(e.db.entriesFor(workerEmail)); got != 1 {
		t.Errorf("one earning entry expected, got %d", got)
	}
}

func TestApprove_NotificationFailureRollsBackCredit(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 15)
	sub := e.submit(t, workerEmail, task.ID)
	e.db.failWith("notify", errors.New("queue unavailable"))

	_, err := e.submissions.Approve(context.Background(), buyerEmail, sub.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	if bal := e.db.balance(workerEmail); bal != 0 {
		t.Errorf("credit must roll back, balance %d", bal)
	}
	if got := e.db.submission(sub.ID).Status; got != models.SubmissionStatusPending {
		t.Errorf("status must roll back to pending, got %q", got)
	}
}

func TestReject_ReopensSlot(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 1, 10)
	sub := e.submit(t, workerEmail, task.ID)

	got, err := e.submissions.Reject(context.Background(), buyerEmail, sub.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.SubmissionStatusRejected {
		t.Errorf("status: got %q", got.Status)
	}
	if rw := e.db.task(task.ID).RequiredWorkers; rw != 1 {
		t.Errorf("slot should reopen, required workers %d", rw)
	}
	if bal := e.db.balance(buyerEmail); bal != 40 {
		t.Errorf("buyer balance must be unchanged by a reject, got %d", bal)
	}
	if bal := e.db.balance(workerEmail); bal != 0 {
		t.Errorf("worker must not be paid, got %d", bal)
	}
	notes := e.db.notificationsFor(workerEmail)
	if len(notes) != 1 || notes[0].ActionRoute != models.RouteMySubmissions {
		t.Errorf("worker notification: %+v", notes)
	}
}

func TestReject_RemovedTaskRefundsBuyer(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 50)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 2, 10) // 50 -> 30
	sub := e.submit(t, workerEmail, task.ID)
	if _, err := e.tasks.Delete(context.Background(), buyerEmail, task.ID); err != nil { // refunds the open slot: 40
		t.Fatalf("delete: %v", err)
	}

	if _, err := e.submissions.Reject(context.Background(), buyerEmail, sub.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if bal := e.db.balance(buyerEmail); bal != 50 {
		t.Errorf("pending payable should return to the buyer, balance %d", bal)
	}
}

func TestListSubmissions_Scoping(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 100)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	e.db.seedAccount("w2@example.com", models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 3, 10)
	e.submit(t, workerEmail, task.ID)
	e.submit(t, "w2@example.com", task.ID)

	worker := policy.Principal{Identity: workerEmail, Role: models.RoleWorker}
	mine, err := e.submissions.List(context.Background(), worker, models.SubmissionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].WorkerEmail != workerEmail {
		t.Errorf("worker should only see their own: %+v", mine)
	}

	_, err = e.submissions.List(context.Background(), worker, models.SubmissionFilter{WorkerEmail: "w2@example.com"})
	wantKind(t, err, apperr.KindForbidden)

	buyer := policy.Principal{Identity: buyerEmail, Role: models.RoleBuyer}
	theirs, _ := e.submissions.List(context.Background(), buyer, models.SubmissionFilter{Status: models.SubmissionStatusPending})
	if len(theirs) != 2 {
		t.Errorf("buyer should see both submissions, got %d", len(theirs))
	}

	admin := policy.Principal{Identity: adminEmail, Role: models.RoleAdmin}
	all, _ := e.submissions.List(context.Background(), admin, models.SubmissionFilter{WorkerEmail: "w2@example.com"})
	if len(all) != 1 {
		t.Errorf("admin filter: got %d", len(all))
	}
}

func TestPaginatedSubmissions(t *testing.T) {
	e := newEngine(t)
	e.db.seedAccount(buyerEmail, models.RoleBuyer, 1000)
	e.db.seedAccount(workerEmail, models.RoleWorker, 0)
	task := e.postTask(t, buyerEmail, 25, 1)
	for i := 0; i < 23; i++ {
		e.submit(t, workerEmail, task.ID)
	}

	page, err := e.submissions.Paginated(context.Background(), workerEmail, 3, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if page.Total != 23 || page.TotalPages != 3 || len(page.Submissions) != 3 || page.Page != 3 {
		t.Errorf("page 3: %+v", page)
	}

	page, _ = e.submissions.Paginated(context.Background(), workerEmail, 0, 0)
	if page.Page != 1 || page.Limit != DefaultPageLimit || len(page.Submissions) != 10 {
		t.Errorf("defaults: page %d limit %d len %d", page.Page, page.Limit, len(page.Submissions))
	}

	page, _ = e.submissions.Paginated(context.Background(), workerEmail, 1, 1000)
	if page.Limit != MaxPageLimit || page.TotalPages != 1 {
		t.Errorf("limit cap: %+v", page)
	}

	page, _ = e.submissions.Paginated(context.Background(), "nobody@example.com", 1, 10)
	if page.Total != 0 || page.TotalPages != 0 || page.Submissions == nil {
		t.Errorf("empty page should have a non-nil list: %+v", page)
	}

	for _, tt := range []struct{ page, limit int }{
		{math.MaxInt / 5, 100},
		{math.MaxInt, 1},
		{math.MaxInt/DefaultPageLimit + 1, 0},
	} {
		_, err = e.submissions.Paginated(context.Background(), workerEmail, tt.page, tt.limit)
		wantKind(t, err, apperr.KindInvalidArgument)
	}
}
