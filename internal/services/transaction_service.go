package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetd/internal/core"
)

// TransactionService is the ingestion entry point of the monitor. Creating
// an expense triggers the synchronous limit check for its owner; deleting
// one supersedes earlier warnings and re-evaluates from the current ledger.
type TransactionService struct {
	ledger        Ledger
	limits        *LimitService
	notifications *NotificationService

	now func() time.Time
}

func NewTransactionService(ledger Ledger, limits *LimitService, notifications *NotificationService) *TransactionService {
	return &TransactionService{
		ledger:        ledger,
		limits:        limits,
		notifications: notifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and persists a transaction, then runs the limit check for
// expense rows. A failing check never fails the create: the row is committed
// and the periodic sweep re-covers the evaluation.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	stored, err := s.ledger.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", stored.ID,
		"user_id", stored.UserID,
		"type", stored.Type,
		"amount_cents", stored.Amount.Cents,
		"regular", stored.Regular)

	if stored.Type == core.Expense {
		if err := s.limits.CheckLimits(ctx, stored.UserID, s.now()); err != nil {
			slog.ErrorContext(ctx, "Post-create limit check failed",
				"user_id", stored.UserID,
				"error", err)
		}
	}

	return stored, nil
}

// Get returns one of the user's transactions.
func (s *TransactionService) Get(ctx context.Context, userID, id int64) (core.Transaction, error) {
	return s.ledger.GetTransaction(ctx, userID, id)
}

// List returns the user's transactions matching the filter.
func (s *TransactionService) List(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.UserID <= 0 {
		return nil, core.ErrInvalidUser
	}
	return s.ledger.FindTransactions(ctx, f)
}

// Delete removes a transaction. Removing an expense invalidates the cycle
// aggregates its warnings were based on, so the user's notifications are
// reset and limits re-evaluated against the remaining ledger.
func (s *TransactionService) Delete(ctx context.Context, userID, id int64) error {
	tx, err := s.ledger.GetTransaction(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	if err := s.ledger.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"id", id,
		"user_id", userID)

	if tx.Type != core.Expense {
		return nil
	}

	if err := s.notifications.Reset(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to reset notifications after delete",
			"user_id", userID,
			"error", err)
		return nil
	}

	if err := s.limits.CheckLimits(ctx, userID, s.now()); err != nil {
		slog.ErrorContext(ctx, "Post-delete limit check failed",
			"user_id", userID,
			"error", err)
	}

	return nil
}
