package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetd/internal/core"
)

// NotificationService persists limit warnings and pushes them to the
// real-time topic. The stored row is the source of truth: a publish failure
// is logged and swallowed, the notification stays queryable either way.
type NotificationService struct {
	store      NotificationStore
	categories CategoryLookup
	publisher  Publisher
}

func NewNotificationService(store NotificationStore, categories CategoryLookup, publisher Publisher) *NotificationService {
	return &NotificationService{
		store:      store,
		categories: categories,
		publisher:  publisher,
	}
}

// Dispatch records the warning for the given limit and cycle and publishes
// it. At most one notification exists per (user, limit, cycle start); when
// one is already there the call is a no-op.
func (s *NotificationService) Dispatch(ctx context.Context, limit core.CategoryLimit, cycle core.CycleWindow) error {
	n := core.Notification{
		UserID:     limit.UserID,
		LimitID:    limit.ID,
		CycleStart: cycle.Start,
		Message:    s.buildMessage(ctx, limit),
		CreatedAt:  time.Now().UTC(),
	}

	stored, inserted, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if !inserted {
		slog.DebugContext(ctx, "Notification already dispatched this cycle",
			"user_id", limit.UserID,
			"limit_id", limit.ID,
			"cycle_start", cycle.Start.Format("2006-01-02"))
		return nil
	}

	slog.InfoContext(ctx, "Limit warning recorded",
		"user_id", stored.UserID,
		"limit_id", stored.LimitID,
		"message", stored.Message)

	if s.publisher == nil {
		slog.WarnContext(ctx, "No publisher configured, skipping live push",
			"notification_id", stored.ID)
		return nil
	}

	if err := s.publisher.PublishNotification(ctx, stored); err != nil {
		// Best effort: the row is persisted, clients fetch it on next load.
		slog.ErrorContext(ctx, "Failed to publish notification",
			"notification_id", stored.ID,
			"user_id", stored.UserID,
			"error", err)
	}

	return nil
}

// AlreadyDispatched reports whether a notification for this limit was
// recorded inside the given cycle.
func (s *NotificationService) AlreadyDispatched(ctx context.Context, limit core.CategoryLimit, cycle core.CycleWindow) (bool, error) {
	return s.store.NotificationExists(ctx, limit.UserID, limit.ID, cycle.Start)
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID int64) ([]core.Notification, error) {
	if userID <= 0 {
		return nil, core.ErrInvalidUser
	}
	return s.store.ListNotifications(ctx, userID)
}

// Reset bulk-deletes the user's notifications. Called when their ledger
// changes in a way that supersedes earlier warnings, e.g. an expense was
// deleted; the next evaluation re-dispatches whatever still applies.
func (s *NotificationService) Reset(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return core.ErrInvalidUser
	}
	return s.store.DeleteNotifications(ctx, userID)
}

func (s *NotificationService) buildMessage(ctx context.Context, limit core.CategoryLimit) string {
	scope := "all expenses"
	if limit.CategoryID != nil {
		name, ok, err := s.categories.CategoryName(ctx, *limit.CategoryID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Category lookup failed, using generic phrasing",
				"category_id", *limit.CategoryID,
				"error", err)
		case ok:
			scope = "category " + name
		}
	}
	return fmt.Sprintf("Your limit for %s has reached %.0f%%.", scope, core.WarnRatio*100)
}
