package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jubot-ia/orderbot/internal/domain"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := NewSQLite(filepath.Join(t.TempDir(), "data", "orders.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestSQLiteAppendAndFindLatest(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	first, err := ledger.Append(ctx, &domain.OrderPayload{
		CustomerName: "Ana",
		Phone:        "5541999998888",
		Items:        "1x Pizza",
		Total:        "50,00",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := ledger.Append(ctx, &domain.OrderPayload{
		CustomerName: "Ana",
		Phone:        "5541999998888",
		Items:        "2x Pizza",
		Total:        "100,00",
		Origin:       "Balcao",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second <= first {
		t.Fatalf("expected increasing rows, got %d then %d", first, second)
	}

	// Local form of the same number must still match.
	got, err := ledger.FindLatestByPhone(ctx, "41999998888")
	if err != nil {
		t.Fatalf("FindLatestByPhone: %v", err)
	}
	if got == nil {
		t.Fatal("expected an order, got nil")
	}
	if got.Row != second || got.Items != "2x Pizza" {
		t.Errorf("got row %d items %q, want row %d items %q", got.Row, got.Items, second, "2x Pizza")
	}
	if got.Status != string(domain.StatusPending) {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusPending)
	}
	if got.Origin != "Balcao" {
		t.Errorf("Origin = %q, want Balcao", got.Origin)
	}
	if got.ID == "" || got.CreatedAt == "" {
		t.Error("expected generated ID and timestamp")
	}
}

func TestSQLiteAppendDefaultsOrigin(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	if _, err := ledger.Append(ctx, &domain.OrderPayload{Phone: "5511912345678"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := ledger.FindLatestByPhone(ctx, "5511912345678")
	if err != nil || got == nil {
		t.Fatalf("FindLatestByPhone: %v, %v", got, err)
	}
	if got.Origin != domain.DefaultOrigin {
		t.Errorf("Origin = %q, want %q", got.Origin, domain.DefaultOrigin)
	}
}

func TestSQLiteFindLatestNoMatch(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	if _, err := ledger.Append(ctx, &domain.OrderPayload{Phone: "5541999998888"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for _, phone := range []string{"5511912345678", "", "sem numero"} {
		got, err := ledger.FindLatestByPhone(ctx, phone)
		if err != nil {
			t.Fatalf("FindLatestByPhone(%q): %v", phone, err)
		}
		if got != nil {
			t.Errorf("FindLatestByPhone(%q) = row %d, want nil", phone, got.Row)
		}
	}
}

func TestSQLitePendingNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	row, err := ledger.Append(ctx, &domain.OrderPayload{Phone: "5541999998888", Items: "1x Pizza"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	pending, err := ledger.FindPendingNotifications(ctx)
	if err != nil {
		t.Fatalf("FindPendingNotifications: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending order should not need notification, got %d rows", len(pending))
	}

	if err := ledger.UpdateStatus(ctx, row, domain.StatusAccepted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	pending, err = ledger.FindPendingNotifications(ctx)
	if err != nil {
		t.Fatalf("FindPendingNotifications: %v", err)
	}
	if len(pending) != 1 || pending[0].Row != row {
		t.Fatalf("expected row %d pending, got %+v", row, pending)
	}

	if err := ledger.MarkNotified(ctx, row, domain.StatusAccepted); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	pending, err = ledger.FindPendingNotifications(ctx)
	if err != nil {
		t.Fatalf("FindPendingNotifications: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows after marking, got %d", len(pending))
	}

	if err := ledger.UpdateStatus(ctx, row, domain.StatusOutForDelivery); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	pending, err = ledger.FindPendingNotifications(ctx)
	if err != nil {
		t.Fatalf("FindPendingNotifications: %v", err)
	}
	if len(pending) != 1 || domain.Status(pending[0].Status) != domain.StatusOutForDelivery {
		t.Fatalf("expected out-for-delivery row pending, got %+v", pending)
	}
}

func TestSQLiteUpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	err := ledger.MarkNotified(ctx, 42, domain.StatusAccepted)
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("MarkNotified on missing row: got %v, want ErrRowNotFound", err)
	}
	err = ledger.UpdateStatus(ctx, 42, domain.StatusAccepted)
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("UpdateStatus on missing row: got %v, want ErrRowNotFound", err)
	}
}

func TestPendingFromRows(t *testing.T) {
	t.Parallel()

	rows := []domain.LedgerOrder{
		{Row: 2, Phone: "5541999998888", Status: " aceito ", NotifiedStatus: ""},
		{Row: 3, Phone: "5541999998888", Status: "ACEITO", NotifiedStatus: "ACEITO"},
		{Row: 4, Status: "ACEITO"},
		{Row: 5, TransportAddress: "x@s.whatsapp.net", Status: "SAIU PRA ENTREGA", NotifiedStatus: "ACEITO"},
		{Row: 6, Phone: "5541999998888", Status: "ENTREGUE"},
		{Row: 7, Phone: "5541999998888", Status: "PENDENTE CONFIRMACAO"},
	}

	got := pendingFromRows(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 pending rows, got %+v", got)
	}
	if got[0].Row != 2 || got[0].Status != string(domain.StatusAccepted) {
		t.Errorf("first pending = %+v, want row 2 with normalized status", got[0])
	}
	if got[1].Row != 5 {
		t.Errorf("second pending row = %d, want 5", got[1].Row)
	}
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("exec: SQLITE_BUSY (5)"), true},
		{errors.New("no such table"), false},
	}
	for _, tt := range tests {
		if got := isConflictError(tt.err); got != tt.want {
			t.Errorf("isConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithConflictRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withConflictRetry(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	calls = 0
	err = withConflictRetry(context.Background(), "test", func() error {
		calls++
		return ErrRowNotFound
	})
	if !errors.Is(err, ErrRowNotFound) || calls != 1 {
		t.Errorf("non-conflict error should not retry: err=%v calls=%d", err, calls)
	}
}

func TestSQLiteJournalModeIsWAL(t *testing.T) {
	ledger := newTestLedger(t)

	// Every pooled connection must carry the pragmas, not just the first one.
	ctx := context.Background()
	conns := make([]*sql.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := ledger.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn: %v", err)
		}
		conns = append(conns, conn)

		var mode string
		if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode: %v", err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Errorf("conn %d journal_mode = %q, want wal", i, mode)
		}

		var timeout int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("busy_timeout: %v", err)
		}
		if timeout != 5000 {
			t.Errorf("conn %d busy_timeout = %d, want 5000", i, timeout)
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func TestSQLiteConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	const (
		writers   = 16
		perWriter = 25
	)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		rows   = make(map[int]bool)
		failed []error
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			phone := fmt.Sprintf("55419%08d", w)
			for i := 0; i < perWriter; i++ {
				row, err := ledger.Append(ctx, &domain.OrderPayload{
					CustomerName: "Cliente",
					Phone:        phone,
					Items:        fmt.Sprintf("%dx Pizza", i+1),
					Total:        "50,00",
				})
				if err == nil {
					if err = ledger.UpdateStatus(ctx, row, domain.StatusAccepted); err == nil {
						err = ledger.MarkNotified(ctx, row, domain.StatusAccepted)
					}
				}

				mu.Lock()
				if err != nil {
					failed = append(failed, err)
				} else {
					rows[row] = true
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(failed) > 0 {
		t.Fatalf("%d of %d writes failed, first: %v", len(failed), writers*perWriter, failed[0])
	}
	if len(rows) != writers*perWriter {
		t.Fatalf("distinct rows = %d, want %d", len(rows), writers*perWriter)
	}

	pending, err := ledger.FindPendingNotifications(ctx)
	if err != nil {
		t.Fatalf("FindPendingNotifications: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after every row was marked", len(pending))
	}
}
