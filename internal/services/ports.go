package services

import (
	"context"
	"time"

	"budgetd/internal/core"
)

// Ports for outbound collaborators. internal/storage implements the store
// ports over SQLite; internal/amqp implements Publisher. Tests substitute
// in-memory fakes.
type (
	Ledger interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id int64) error
		FindTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
		// SumExpenses returns the total amount over rows matching the
		// filter, zero when nothing matches.
		SumExpenses(ctx context.Context, f core.TransactionFilter) (core.Money, error)
		// FindRecurringTemplates returns the latest occurrence of every
		// recurring chain (rows flagged regular, one per distinct
		// owner/category/type/amount/purpose combination).
		FindRecurringTemplates(ctx context.Context) ([]core.Transaction, error)
		// OccurrenceExists reports whether the template already has an
		// occurrence at the given instant.
		OccurrenceExists(ctx context.Context, tpl core.Transaction, occurredAt time.Time) (bool, error)
	}

	LimitStore interface {
		FindLimitsByUser(ctx context.Context, userID int64) ([]core.CategoryLimit, error)
		// ListLimitUsers returns every user that has at least one
		// configured limit, for the periodic safety-net sweep.
		ListLimitUsers(ctx context.Context) ([]int64, error)
	}

	CategoryLookup interface {
		// CategoryName resolves a display name. ok is false when the
		// category is not configured; that is not an error.
		CategoryName(ctx context.Context, id int64) (name string, ok bool, err error)
	}

	NotificationStore interface {
		// InsertNotification writes at most one row per (user, limit,
		// cycle start) and returns the stored row. inserted is false when
		// a notification for that key already exists.
		InsertNotification(ctx context.Context, n core.Notification) (stored core.Notification, inserted bool, err error)
		NotificationExists(ctx context.Context, userID, limitID int64, cycleStart time.Time) (bool, error)
		ListNotifications(ctx context.Context, userID int64) ([]core.Notification, error)
		DeleteNotifications(ctx context.Context, userID int64) error
	}

	// Publisher pushes a persisted notification to the real-time topic.
	// Delivery is best effort; a failed publish never invalidates the row.
	Publisher interface {
		PublishNotification(ctx context.Context, n core.Notification) error
	}
)
