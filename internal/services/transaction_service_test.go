package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetd/internal/core"
)

func newTransactionService(store *fakeStore, pub Publisher, now time.Time) *TransactionService {
	notifier := NewNotificationService(store, store, pub)
	limits := NewLimitService(store, store, notifier)
	svc := NewTransactionService(store, limits, notifier)
	svc.now = func() time.Time { return now }
	return svc
}

func TestTransactionService_CreateExpenseRunsLimitCheck(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTransactionService(store, &fakePublisher{}, now)

	store.limits = []core.CategoryLimit{
		{ID: 1, UserID: 1, Amount: core.Money{Cents: 100_000}, StartDay: 1},
	}

	stored, err := svc.Create(ctx, core.Transaction{
		UserID:     1,
		Type:       core.Expense,
		Amount:     core.Money{Cents: 85_000},
		OccurredAt: now.Add(-time.Hour),
		Purpose:    "furniture",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if stored.ID == 0 {
		t.Error("stored transaction should have an id")
	}

	notifs, _ := store.ListNotifications(ctx, 1)
	if len(notifs) != 1 {
		t.Fatalf("expected synchronous limit check to dispatch, got %d notifications", len(notifs))
	}
}

func TestTransactionService_CreateIncomeSkipsLimitCheck(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTransactionService(store, &fakePublisher{}, now)

	store.limits = []core.CategoryLimit{
		{ID: 1, UserID: 1, Amount: core.Money{Cents: 100_000}, StartDay: 1},
	}
	// Ledger already past the threshold, but income must not re-evaluate.
	addExpense(store, 1, nil, 95_000, now.Add(-time.Hour))

	if _, err := svc.Create(ctx, core.Transaction{
		UserID:     1,
		Type:       core.Income,
		Amount:     core.Money{Cents: 200_000},
		OccurredAt: now,
		Purpose:    "salary",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got := store.notificationCount(); got != 0 {
		t.Fatalf("income creation must not trigger warnings, got %d", got)
	}
}

func TestTransactionService_CreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTransactionService(store, &fakePublisher{}, time.Now())

	_, err := svc.Create(ctx, core.Transaction{
		UserID:  1,
		Type:    core.Expense,
		Amount:  core.Money{Cents: 0},
		Purpose: "bad",
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := store.transactionCount(); got != 0 {
		t.Fatalf("invalid transaction must not be stored, got %d rows", got)
	}
}

func TestTransactionService_DeleteExpenseSupersedesNotifications(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTransactionService(store, &fakePublisher{}, now)

	store.limits = []core.CategoryLimit{
		{ID: 1, UserID: 1, Amount: core.Money{Cents: 100_000}, StartDay: 1},
	}

	keep, err := svc.Create(ctx, core.Transaction{
		UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 45_000},
		OccurredAt: now.Add(-2 * time.Hour), Purpose: "groceries",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	drop, err := svc.Create(ctx, core.Transaction{
		UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 40_000},
		OccurredAt: now.Add(-time.Hour), Purpose: "electronics",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got := store.notificationCount(); got != 1 {
		t.Fatalf("expected one warning at 85%%, got %d", got)
	}

	// Deleting the second expense drops the aggregate to 45%; the stale
	// warning is superseded and nothing re-fires.
	if err := svc.Delete(ctx, 1, drop.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := store.notificationCount(); got != 0 {
		t.Fatalf("expected warnings to be reset after delete, got %d", got)
	}

	// Deleting the remaining row leaves a clean slate too.
	if err := svc.Delete(ctx, 1, keep.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := store.transactionCount(); got != 0 {
		t.Fatalf("expected empty ledger, got %d rows", got)
	}
}

func TestTransactionService_DeleteStillCrossedRefires(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTransactionService(store, &fakePublisher{}, now)

	store.limits = []core.CategoryLimit{
		{ID: 1, UserID: 1, Amount: core.Money{Cents: 100_000}, StartDay: 1},
	}

	big, _ := svc.Create(ctx, core.Transaction{
		UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 90_000},
		OccurredAt: now.Add(-2 * time.Hour), Purpose: "rent",
	})
	small, _ := svc.Create(ctx, core.Transaction{
		UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 5_000},
		OccurredAt: now.Add(-time.Hour), Purpose: "lunch",
	})
	_ = big

	// Aggregate stays at 90% after the delete: the re-evaluation must
	// dispatch a fresh warning for the current data.
	if err := svc.Delete(ctx, 1, small.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := store.notificationCount(); got != 1 {
		t.Fatalf("expected a re-dispatched warning, got %d", got)
	}
}

func TestTransactionService_DeleteUnknownTransaction(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTransactionService(store, &fakePublisher{}, time.Now())

	err := svc.Delete(ctx, 1, 42)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionService_ListRequiresUser(t *testing.T) {
	svc := newTransactionService(newFakeStore(), &fakePublisher{}, time.Now())
	if _, err := svc.List(context.Background(), core.TransactionFilter{}); err == nil {
		t.Fatal("expected error when filter has no user")
	}
}
