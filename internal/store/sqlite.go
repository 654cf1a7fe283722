package store

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

	"github.com/google/uuid"
	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/identity"
	_ "modernc.org/sqlite"
)

const orderColumns = `row_number, order_id, created_at, customer_name, phone, items, total,
	status, region, address, notified_status, payment_method, notes, origin, transport_address`

// SQLiteLedger implements Ledger using a local SQLite database.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed ledger.
func NewSQLite(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc applies _pragma on every new pooled connection, so each one
	// waits on a busy database instead of failing with SQLITE_BUSY.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := &SQLiteLedger{db: db, now: time.Now}
	if err := ledger.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return ledger, nil
}

func (s *SQLiteLedger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		row_number INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		phone_digits TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL DEFAULT '',
		total TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		notified_status TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		transport_address TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_phone_digits ON orders(phone_digits);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, notified_status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteLedger) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Append inserts a new pending order and returns its row number.
// Busy/locked errors are retried with exponential backoff.
func (s *SQLiteLedger) Append(ctx context.Context, order *domain.OrderPayload) (int, error) {
	origin := order.Origin
	if origin == "" {
		origin = domain.DefaultOrigin
	}
	now := s.now()

	query := `
	INSERT INTO orders (
		order_id, created_at, customer_name, phone, phone_digits, items, total,
		status, region, address, notified_status, payment_method, notes, origin,
		transport_address, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?)`

	var result sql.Result
	err := withConflictRetry(ctx, "append order", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			uuid.NewString(), domain.LedgerTimestamp(now), order.CustomerName,
			order.Phone, identity.Digits(order.Phone), order.Items, order.Total,
			string(domain.StatusPending), order.Region, order.Address,
			order.PaymentMethod, order.Notes, origin, order.TransportAddress,
			now.Unix(),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get inserted row: %w", err)
	}
	return int(id), nil
}

// FindLatestByPhone returns the newest order whose phone matches in either suffix direction.
func (s *SQLiteLedger) FindLatestByPhone(ctx context.Context, phone string) (*domain.LedgerOrder, error) {
	digits := identity.Digits(phone)
	if digits == "" {
		return nil, nil
	}

	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE phone_digits != ''
		  AND (? LIKE '%' || phone_digits OR phone_digits LIKE '%' || ?)
		ORDER BY row_number DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, digits, digits)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}
	return order, nil
}

// FindPendingNotifications returns orders whose status has not been announced yet.
func (s *SQLiteLedger) FindPendingNotifications(ctx context.Context) ([]domain.LedgerOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE upper(trim(status)) IN (?, ?)
		  AND upper(trim(notified_status)) != upper(trim(status))
		ORDER BY row_number`

	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusAccepted), string(domain.StatusOutForDelivery))
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close pending notification rows", "error", closeErr)
		}
	}()

	var orders []domain.LedgerOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending notification row: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending notifications: %w", err)
	}

	return pendingFromRows(orders), nil
}

// MarkNotified records that status has been announced for row.
// Busy/locked errors are retried with exponential backoff.
func (s *SQLiteLedger) MarkNotified(ctx context.Context, row int, status domain.Status) error {
	return withConflictRetry(ctx, "mark notified", func() error {
		return s.updateColumn(ctx, "notified_status", row, string(status))
	})
}

// UpdateStatus changes the workflow status of row.
func (s *SQLiteLedger) UpdateStatus(ctx context.Context, row int, status domain.Status) error {
	return withConflictRetry(ctx, "update status", func() error {
		return s.updateColumn(ctx, "status", row, string(status))
	})
}

func (s *SQLiteLedger) updateColumn(ctx context.Context, column string, row int, value string) error {
	// column is always one of the two literals above, never user input.
	query := `UPDATE orders SET ` + column + ` = ?, updated_at = ? WHERE row_number = ?`
	result, err := s.db.ExecContext(ctx, query, value, s.now().Unix(), row)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("row %d: %w", row, ErrRowNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.LedgerOrder, error) {
	var o domain.LedgerOrder
	err := row.Scan(
		&o.Row, &o.ID, &o.CreatedAt, &o.CustomerName, &o.Phone, &o.Items, &o.Total,
		&o.Status, &o.Region, &o.Address, &o.NotifiedStatus, &o.PaymentMethod,
		&o.Notes, &o.Origin, &o.TransportAddress,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// withConflictRetry retries fn while SQLite reports a busy or locked database.
func withConflictRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !isConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("Ledger write hit a locked database, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries, err)
}

var _ Ledger = (*SQLiteLedger)(nil)

// isConflictError reports SQLITE_BUSY and "database is locked" errors, both of
// which clear once the competing writer finishes.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
