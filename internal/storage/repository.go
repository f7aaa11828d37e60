package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"budgetd/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is how instants are stored. Everything is UTC and truncated to
// seconds, so string comparison in SQL matches chronological order.
const timeLayout = time.RFC3339

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertTransaction implements services.Ledger.
func (r *Repository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, category_id, type, amount_cents, occurred_at, purpose, regular)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, nullableID(tx.CategoryID), string(tx.Type), tx.Amount.Cents,
		encodeTime(tx.OccurredAt), tx.Purpose, boolToInt(tx.Regular))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	tx.ID = id
	tx.OccurredAt = tx.OccurredAt.UTC().Truncate(time.Second)

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents)

	return tx, nil
}

// GetTransaction implements services.Ledger.
func (r *Repository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, category_id, type, amount_cents, occurred_at, purpose, regular
		FROM transactions
		WHERE id = ? AND user_id = ?`, id, userID)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// DeleteTransaction implements services.Ledger.
func (r *Repository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// FindTransactions implements services.Ledger.
func (r *Repository) FindTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	where, args := filterWhere(f)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, type, amount_cents, occurred_at, purpose, regular
		FROM transactions
		WHERE `+where+`
		ORDER BY occurred_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SumExpenses implements services.Ledger. Returns zero when nothing matches.
func (r *Repository) SumExpenses(ctx context.Context, f core.TransactionFilter) (core.Money, error) {
	where, args := filterWhere(f)
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE `+where, args...).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// FindRecurringTemplates implements services.Ledger: the latest occurrence
// of every recurring chain, one row per distinct
// owner/category/type/amount/purpose combination flagged regular.
func (r *Repository) FindRecurringTemplates(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, type, amount_cents, MAX(occurred_at) AS occurred_at, purpose, regular
		FROM transactions
		WHERE regular = 1
		GROUP BY user_id, category_id, type, amount_cents, purpose`)
	if err != nil {
		return nil, fmt.Errorf("find recurring templates: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// OccurrenceExists implements services.Ledger.
func (r *Repository) OccurrenceExists(ctx context.Context, tpl core.Transaction, occurredAt time.Time) (bool, error) {
	categoryClause := "category_id IS NULL"
	args := []any{tpl.UserID, string(tpl.Type), tpl.Amount.Cents, tpl.Purpose, encodeTime(occurredAt)}
	if tpl.CategoryID != nil {
		categoryClause = "category_id = ?"
		args = append(args, *tpl.CategoryID)
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = ? AND type = ? AND amount_cents = ? AND purpose = ?
			  AND occurred_at = ? AND `+categoryClause+`
		)`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check occurrence: %w", err)
	}
	return exists, nil
}

// CreateCategoryLimit persists a limit after validating it. Limit rows are
// written by callers outside the monitor; the sweep only reads them.
func (r *Repository) CreateCategoryLimit(ctx context.Context, l core.CategoryLimit) (core.CategoryLimit, error) {
	if err := l.Validate(); err != nil {
		return core.CategoryLimit{}, fmt.Errorf("validate limit: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO category_limits (user_id, category_id, amount_cents, start_day)
		VALUES (?, ?, ?, ?)`,
		l.UserID, nullableID(l.CategoryID), l.Amount.Cents, l.StartDay)
	if err != nil {
		return core.CategoryLimit{}, fmt.Errorf("insert limit: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return core.CategoryLimit{}, fmt.Errorf("limit id: %w", err)
	}
	return l, nil
}

// DeleteCategoryLimit removes a user's limit.
func (r *Repository) DeleteCategoryLimit(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM category_limits WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete limit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete limit: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("limit %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// FindLimitsByUser implements services.LimitStore.
func (r *Repository) FindLimitsByUser(ctx context.Context, userID int64) ([]core.CategoryLimit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, amount_cents, start_day
		FROM category_limits
		WHERE user_id = ?
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("find limits: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryLimit
	for rows.Next() {
		var l core.CategoryLimit
		var category sql.NullInt64
		if err := rows.Scan(&l.ID, &l.UserID, &category, &l.Amount.Cents, &l.StartDay); err != nil {
			return nil, fmt.Errorf("scan limit: %w", err)
		}
		if category.Valid {
			id := category.Int64
			l.CategoryID = &id
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListLimitUsers implements services.LimitStore.
func (r *Repository) ListLimitUsers(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM category_limits ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list limit users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateCategory persists a category for name resolution in notifications.
func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)`, c.UserID, c.Name)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	return c, nil
}

// CategoryName implements services.CategoryLookup. A missing category is
// reported through ok, not as an error.
func (r *Repository) CategoryName(ctx context.Context, id int64) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM categories WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("category name: %w", err)
	}
	return name, true, nil
}

// InsertNotification implements services.NotificationStore. The unique key
// on (user_id, limit_id, cycle_start) makes the insert a no-op when a
// notification for that cycle already exists; the existing row is returned
// with inserted = false.
func (r *Repository) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, bool, error) {
	cycleStart := encodeTime(n.CycleStart)
	createdAt := encodeTime(n.CreatedAt)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, limit_id, cycle_start, message, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, limit_id, cycle_start) DO NOTHING`,
		n.UserID, n.LimitID, cycleStart, n.Message, createdAt)
	if err != nil {
		return core.Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}
	if affected == 0 {
		existing, err := r.getNotification(ctx, n.UserID, n.LimitID, cycleStart)
		if err != nil {
			return core.Notification{}, false, err
		}
		return existing, false, nil
	}

	n.ID, err = res.LastInsertId()
	if err != nil {
		return core.Notification{}, false, fmt.Errorf("notification id: %w", err)
	}
	n.CycleStart = n.CycleStart.UTC().Truncate(time.Second)
	n.CreatedAt = n.CreatedAt.UTC().Truncate(time.Second)
	return n, true, nil
}

// NotificationExists implements services.NotificationStore.
func (r *Repository) NotificationExists(ctx context.Context, userID, limitID int64, cycleStart time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = ? AND limit_id = ? AND cycle_start = ?
		)`, userID, limitID, encodeTime(cycleStart)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return exists, nil
}

// ListNotifications implements services.NotificationStore, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID int64) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, limit_id, cycle_start, message, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNotifications implements services.NotificationStore.
func (r *Repository) DeleteNotifications(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (r *Repository) getNotification(ctx context.Context, userID, limitID int64, cycleStart string) (core.Notification, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, limit_id, cycle_start, message, created_at
		FROM notifications
		WHERE user_id = ? AND limit_id = ? AND cycle_start = ?`,
		userID, limitID, cycleStart)
	n, err := scanNotification(row)
	if err != nil {
		return core.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// filterWhere turns a typed filter into a WHERE clause. All populated
// fields compose with AND semantics.
func filterWhere(f core.TransactionFilter) (string, []any) {
	clauses := make([]string, 0, 7)
	args := make([]any, 0, 7)

	if f.UserID != 0 {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, encodeTime(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "occurred_at < ?")
		args = append(args, encodeTime(f.To))
	}
	if f.MinAmount.Cents > 0 {
		clauses = append(clauses, "amount_cents >= ?")
		args = append(args, f.MinAmount.Cents)
	}
	if f.PurposeLike != "" {
		clauses = append(clauses, "purpose LIKE ?")
		args = append(args, "%"+f.PurposeLike+"%")
	}

	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var category sql.NullInt64
	var txType, occurredAt string
	var regular int

	if err := row.Scan(&tx.ID, &tx.UserID, &category, &txType,
		&tx.Amount.Cents, &occurredAt, &tx.Purpose, &regular); err != nil {
		return core.Transaction{}, err
	}

	if category.Valid {
		id := category.Int64
		tx.CategoryID = &id
	}
	tx.Type = core.TransactionType(txType)
	tx.Regular = regular != 0

	t, err := decodeTime(occurredAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode occurred_at: %w", err)
	}
	tx.OccurredAt = t

	return tx, nil
}

func scanNotification(row rowScanner) (core.Notification, error) {
	var n core.Notification
	var cycleStart, createdAt string

	if err := row.Scan(&n.ID, &n.UserID, &n.LimitID, &cycleStart, &n.Message, &createdAt); err != nil {
		return core.Notification{}, err
	}

	cs, err := decodeTime(cycleStart)
	if err != nil {
		return core.Notification{}, fmt.Errorf("decode cycle_start: %w", err)
	}
	ca, err := decodeTime(createdAt)
	if err != nil {
		return core.Notification{}, fmt.Errorf("decode created_at: %w", err)
	}
	n.CycleStart = cs
	n.CreatedAt = ca
	return n, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
