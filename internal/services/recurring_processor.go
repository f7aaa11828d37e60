package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetd/internal/core"
)

// RecurringProcessor materializes concrete ledger rows from transactions
// flagged regular.
//
// The ledger hands back the latest occurrence of each recurring chain, so
// a chain is due exactly when one calendar month has passed since that
// occurrence. Each sweep advances a due chain by a single occurrence; a
// chain that missed several periods catches up incrementally across sweeps
// rather than in one batch. Re-running a sweep without the clock moving
// inserts nothing, because the fresh occurrence becomes the chain's latest
// and is not yet due itself.
type RecurringProcessor struct {
	ledger Ledger
	limits *LimitService
}

func NewRecurringProcessor(ledger Ledger, limits *LimitService) *RecurringProcessor {
	return &RecurringProcessor{
		ledger: ledger,
		limits: limits,
	}
}

// ProcessDue runs one materialization sweep and returns how many occurrences
// were inserted. One broken template never halts the sweep: it is logged and
// skipped, the remaining templates still run.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.ledger.FindRecurringTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("find recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"total", len(templates),
		"processing_date", now.Format("2006-01-02"))

	materialized := 0
	touched := make(map[int64]bool)

	for _, tpl := range templates {
		inserted, err := p.materialize(ctx, tpl, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring transaction",
				"template_id", tpl.ID,
				"user_id", tpl.UserID,
				"error", err)
			continue
		}
		if !inserted {
			continue
		}

		materialized++
		if tpl.Type == core.Expense {
			touched[tpl.UserID] = true
		}
	}

	// Synchronous path: new expense rows can push a cycle aggregate over
	// the warning threshold, so re-evaluate the affected owners now.
	for userID := range touched {
		if err := p.limits.CheckLimits(ctx, userID, now); err != nil {
			slog.ErrorContext(ctx, "Limit check after materialization failed",
				"user_id", userID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring sweep complete",
		"materialized", materialized,
		"total_checked", len(templates))

	return materialized, nil
}

func (p *RecurringProcessor) materialize(ctx context.Context, tpl core.Transaction, now time.Time) (bool, error) {
	if err := tpl.Validate(); err != nil {
		// Data inconsistency in the template; skip it, keep sweeping.
		slog.WarnContext(ctx, "Skipping invalid recurring template",
			"template_id", tpl.ID,
			"user_id", tpl.UserID,
			"error", err)
		return false, nil
	}

	next := core.NextOccurrence(tpl.OccurredAt, now)
	if next.After(now) {
		return false, nil
	}

	// Guards against a concurrent duplicate sweep racing this one.
	exists, err := p.ledger.OccurrenceExists(ctx, tpl, next)
	if err != nil {
		return false, fmt.Errorf("check existing occurrence: %w", err)
	}
	if exists {
		return false, nil
	}

	occurrence := core.Transaction{
		UserID:     tpl.UserID,
		CategoryID: tpl.CategoryID,
		Type:       tpl.Type,
		Amount:     tpl.Amount,
		OccurredAt: next,
		Purpose:    tpl.Purpose,
		Regular:    tpl.Regular,
	}

	stored, err := p.ledger.InsertTransaction(ctx, occurrence)
	if err != nil {
		return false, fmt.Errorf("insert occurrence: %w", err)
	}

	slog.InfoContext(ctx, "Materialized recurring transaction",
		"id", stored.ID,
		"template_id", tpl.ID,
		"user_id", stored.UserID,
		"amount_cents", stored.Amount.Cents,
		"occurred_at", stored.OccurredAt.Format("2006-01-02"))

	return true, nil
}
