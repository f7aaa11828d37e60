package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID         int64
		UserID     int64
		CategoryID *int64 // nil means uncategorized
		Type       TransactionType
		Amount     Money
		OccurredAt time.Time
		Purpose    string
		Regular    bool // marks a template for recurring materialization
	}

	CategoryLimit struct {
		ID         int64
		UserID     int64
		CategoryID *int64 // nil means the limit covers the whole expense ledger
		Amount     Money
		StartDay   int // day of month the billing cycle resets (1-31)
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	Notification struct {
		ID         int64
		UserID     int64
		LimitID    int64
		CycleStart time.Time
		Message    string
		CreatedAt  time.Time
	}
)

// TransactionFilter selects ledger rows. Zero-valued fields are ignored;
// the populated ones compose with AND semantics. CategoryID left nil leaves
// the category unconstrained, matching categorized and uncategorized rows
// alike. From/To bound OccurredAt as a half-open interval [From, To).
type TransactionFilter struct {
	UserID      int64
	CategoryID  *int64
	Type        TransactionType
	From        time.Time
	To          time.Time
	MinAmount   Money
	PurposeLike string
}

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrZeroDate      = errors.New("date cannot be zero")
	ErrEmptyPurpose  = errors.New("empty purpose")
	ErrInvalidUser   = errors.New("invalid user id")
	ErrNotFound      = errors.New("not found")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Float64 returns the amount in whole currency units for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float64() float64 {
	return float64(m.Cents) / 100.0
}

func (t TransactionType) Validate() error {
	switch t {
	case Expense, Income:
		return nil
	default:
		return ErrInvalidType
	}
}

func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroDate
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Purpose)) == 0 {
		return ErrEmptyPurpose
	}
	if len(t.Purpose) > 200 {
		return errors.New("purpose too long (max 200 characters)")
	}
	return nil
}

func (l CategoryLimit) Validate() error {
	if l.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := l.Amount.Validate(); err != nil {
		return err
	}
	if l.StartDay < 1 || l.StartDay > 31 {
		return errors.New("start day must be between 1 and 31")
	}
	return nil
}
