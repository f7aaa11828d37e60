package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"budgetd/internal/core"
)

// fakeStore is an in-memory implementation of the store ports for tests.
type fakeStore struct {
	mu sync.Mutex

	nextTxID     int64
	transactions []core.Transaction

	limits     []core.CategoryLimit
	categories map[int64]string

	nextNotifID   int64
	notifications []core.Notification

	// error injection
	sumErrUser       int64
	sumErr           error
	findTemplatesErr error
	insertTxErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{categories: make(map[int64]string)}
}

func (f *fakeStore) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertTxErr != nil {
		return core.Transaction{}, f.insertTxErr
	}
	f.nextTxID++
	tx.ID = f.nextTxID
	f.transactions = append(f.transactions, tx)
	return tx, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.ID == id && tx.UserID == userID {
			return tx, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (f *fakeStore) DeleteTransaction(_ context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tx := range f.transactions {
		if tx.ID == id && tx.UserID == userID {
			f.transactions = append(f.transactions[:i], f.transactions[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeStore) FindTransactions(_ context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Transaction
	for _, tx := range f.transactions {
		if matches(tx, filter) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) SumExpenses(_ context.Context, filter core.TransactionFilter) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil && (f.sumErrUser == 0 || f.sumErrUser == filter.UserID) {
		return core.Money{}, f.sumErr
	}
	var total int64
	for _, tx := range f.transactions {
		if matches(tx, filter) {
			total += tx.Amount.Cents
		}
	}
	return core.Money{Cents: total}, nil
}

func (f *fakeStore) FindRecurringTemplates(_ context.Context) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findTemplatesErr != nil {
		return nil, f.findTemplatesErr
	}
	latest := make(map[chainKey]core.Transaction)
	for _, tx := range f.transactions {
		if !tx.Regular {
			continue
		}
		key := chainOf(tx)
		if cur, ok := latest[key]; !ok || tx.OccurredAt.After(cur.OccurredAt) {
			latest[key] = tx
		}
	}
	out := make([]core.Transaction, 0, len(latest))
	for _, tx := range latest {
		out = append(out, tx)
	}
	return out, nil
}

func (f *fakeStore) OccurrenceExists(_ context.Context, tpl core.Transaction, occurredAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := chainOf(tpl)
	for _, tx := range f.transactions {
		if chainOf(tx) == want && tx.OccurredAt.Equal(occurredAt) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindLimitsByUser(_ context.Context, userID int64) ([]core.CategoryLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.CategoryLimit
	for _, l := range f.limits {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListLimitUsers(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, l := range f.limits {
		if !seen[l.UserID] {
			seen[l.UserID] = true
			out = append(out, l.UserID)
		}
	}
	return out, nil
}

func (f *fakeStore) CategoryName(_ context.Context, id int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.categories[id]
	return name, ok, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n core.Notification) (core.Notification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.notifications {
		if existing.UserID == n.UserID && existing.LimitID == n.LimitID && existing.CycleStart.Equal(n.CycleStart) {
			return existing, false, nil
		}
	}
	f.nextNotifID++
	n.ID = f.nextNotifID
	f.notifications = append(f.notifications, n)
	return n, true, nil
}

func (f *fakeStore) NotificationExists(_ context.Context, userID, limitID int64, cycleStart time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.UserID == userID && n.LimitID == limitID && n.CycleStart.Equal(cycleStart) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID int64) ([]core.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteNotifications(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.notifications[:0]
	for _, n := range f.notifications {
		if n.UserID != userID {
			kept = append(kept, n)
		}
	}
	f.notifications = kept
	return nil
}

func (f *fakeStore) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func (f *fakeStore) transactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transactions)
}

type chainKey struct {
	userID   int64
	category int64
	hasCat   bool
	txType   core.TransactionType
	cents    int64
	purpose  string
}

func chainOf(tx core.Transaction) chainKey {
	key := chainKey{
		userID:  tx.UserID,
		txType:  tx.Type,
		cents:   tx.Amount.Cents,
		purpose: tx.Purpose,
	}
	if tx.CategoryID != nil {
		key.category = *tx.CategoryID
		key.hasCat = true
	}
	return key
}

func matches(tx core.Transaction, f core.TransactionFilter) bool {
	if f.UserID != 0 && tx.UserID != f.UserID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.CategoryID != nil {
		if tx.CategoryID == nil || *tx.CategoryID != *f.CategoryID {
			return false
		}
	}
	if !f.From.IsZero() && tx.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.OccurredAt.Before(f.To) {
		return false
	}
	if f.MinAmount.Cents > 0 && tx.Amount.Cents < f.MinAmount.Cents {
		return false
	}
	return true
}

// fakePublisher records published notifications and can fail on demand.
type fakePublisher struct {
	mu        sync.Mutex
	published []core.Notification
	err       error
}

func (p *fakePublisher) PublishNotification(_ context.Context, n core.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

var errBoom = errors.New("boom")
