package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetd/internal/core"
)

// DefaultSweepConcurrency bounds how many users the safety-net sweep
// evaluates in parallel.
const DefaultSweepConcurrency = 4

// LimitService evaluates configured spending limits against the current
// billing cycle's expense aggregate and dispatches warnings on threshold
// crossings.
//
// Evaluation for the same (user, limit) pair is serialized through a keyed
// mutex so concurrent triggers (API-driven check vs. periodic sweep) cannot
// both decide "not yet notified". The unique notification key in the store
// is the structural backstop should that ever race anyway.
type LimitService struct {
	ledger   Ledger
	limits   LimitStore
	notifier *NotificationService

	sweepConcurrency int

	mu    sync.Mutex
	locks map[limitKey]*sync.Mutex
}

type limitKey struct {
	userID  int64
	limitID int64
}

func NewLimitService(ledger Ledger, limits LimitStore, notifier *NotificationService) *LimitService {
	return &LimitService{
		ledger:           ledger,
		limits:           limits,
		notifier:         notifier,
		sweepConcurrency: DefaultSweepConcurrency,
		locks:            make(map[limitKey]*sync.Mutex),
	}
}

// SetSweepConcurrency overrides the sweep's parallelism. Values below one
// fall back to serial evaluation.
func (s *LimitService) SetSweepConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.sweepConcurrency = n
}

// CheckLimits evaluates every limit of one user against the billing cycle
// containing now. Limits are independent: a failure evaluating one is logged
// and the rest still run.
func (s *LimitService) CheckLimits(ctx context.Context, userID int64, now time.Time) error {
	if userID <= 0 {
		return core.ErrInvalidUser
	}

	limits, err := s.limits.FindLimitsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("find limits for user %d: %w", userID, err)
	}

	for _, limit := range limits {
		if err := s.evaluate(ctx, limit, now); err != nil {
			slog.ErrorContext(ctx, "Limit evaluation failed",
				"user_id", userID,
				"limit_id", limit.ID,
				"error", err)
		}
	}

	return nil
}

// RunLimitSweep re-checks every user that has configured limits. It is the
// periodic safety net behind the synchronous per-transaction checks. Users
// are evaluated in parallel and isolated from each other: one stuck or
// failing user never blocks or aborts the others.
func (s *LimitService) RunLimitSweep(ctx context.Context, now time.Time) error {
	users, err := s.limits.ListLimitUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users with limits: %w", err)
	}

	slog.InfoContext(ctx, "Running limit sweep",
		"users", len(users),
		"sweep_date", now.Format("2006-01-02"))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepConcurrency)

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			if err := s.CheckLimits(ctx, userID, now); err != nil {
				slog.ErrorContext(ctx, "Limit sweep failed for user",
					"user_id", userID,
					"error", err)
			}
			// Failures stay per-user; never cancel the group.
			return nil
		})
	}

	return g.Wait()
}

func (s *LimitService) evaluate(ctx context.Context, limit core.CategoryLimit, now time.Time) error {
	lock := s.lockFor(limit)
	lock.Lock()
	defer lock.Unlock()

	cycle := core.BillingCycle(now, limit.StartDay)

	spent, err := s.ledger.SumExpenses(ctx, core.TransactionFilter{
		UserID:     limit.UserID,
		CategoryID: limit.CategoryID,
		Type:       core.Expense,
		From:       cycle.Start,
		To:         cycle.End,
	})
	if err != nil {
		return fmt.Errorf("aggregate expenses: %w", err)
	}

	if !core.Crossed(spent, limit.Amount) {
		return nil
	}

	// Dedup state is derived from the notification store, so a cycle
	// rollover re-arms the warning without any flag on the limit itself.
	exists, err := s.notifier.AlreadyDispatched(ctx, limit, cycle)
	if err != nil {
		return fmt.Errorf("check notification state: %w", err)
	}
	if exists {
		return nil
	}

	slog.InfoContext(ctx, "Limit threshold crossed",
		"user_id", limit.UserID,
		"limit_id", limit.ID,
		"spent_cents", spent.Cents,
		"limit_cents", limit.Amount.Cents,
		"cycle_start", cycle.Start.Format("2006-01-02"))

	return s.notifier.Dispatch(ctx, limit, cycle)
}

func (s *LimitService) lockFor(limit core.CategoryLimit) *sync.Mutex {
	key := limitKey{userID: limit.UserID, limitID: limit.ID}

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
