package notify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/store"
)

type sent struct {
	address string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	fail bool
}

func (f *fakeSender) Send(_ context.Context, address, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bridge offline")
	}
	f.msgs = append(f.msgs, sent{address, text})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func newLedger(t *testing.T) *store.SQLiteLedger {
	t.Helper()
	ledger, err := store.NewSQLite(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestOneNotificationPerTransition(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	sender := &fakeSender{}
	w := NewWatcher(ledger, sender, time.Second)

	row, err := ledger.Append(ctx, &domain.OrderPayload{
		CustomerName: "Ana",
		Phone:        "5541999998888",
		Items:        "1x Pizza",
		Total:        "50,00",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	poll := func(n int) {
		for i := 0; i < n; i++ {
			w.PollOnce(ctx)
		}
	}

	poll(3)
	if sender.count() != 0 {
		t.Fatalf("pending order must not notify, got %d", sender.count())
	}

	if err := ledger.UpdateStatus(ctx, row, domain.StatusAccepted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	poll(5)
	if sender.count() != 1 {
		t.Fatalf("after ACEITO sent %d, want 1", sender.count())
	}

	if err := ledger.UpdateStatus(ctx, row, domain.StatusOutForDelivery); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	poll(5)
	if sender.count() != 2 {
		t.Fatalf("after SAIU PRA ENTREGA sent %d, want 2", sender.count())
	}

	if err := ledger.UpdateStatus(ctx, row, domain.StatusDelivered); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	poll(3)
	if sender.count() != 2 {
		t.Fatalf("delivered must not notify, sent %d", sender.count())
	}

	if got := sender.msgs[0].address; got != "5541999998888@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	if !strings.Contains(sender.msgs[0].text, "Ana") || !strings.Contains(sender.msgs[0].text, "aceito") {
		t.Errorf("accepted text = %q", sender.msgs[0].text)
	}
	if !strings.Contains(sender.msgs[1].text, "saiu para entrega") {
		t.Errorf("delivery text = %q", sender.msgs[1].text)
	}
}

func TestSendFailureLeavesMarker(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	sender := &fakeSender{fail: true}
	w := NewWatcher(ledger, sender, time.Second)

	row, err := ledger.Append(ctx, &domain.OrderPayload{Phone: "41999998888", Items: "1x Pizza"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ledger.UpdateStatus(ctx, row, domain.StatusAccepted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	res := w.PollOnce(ctx)
	if res.Failed != 1 || res.Sent != 0 {
		t.Fatalf("result = %+v", res)
	}

	sender.fail = false
	res = w.PollOnce(ctx)
	if res.Sent != 1 {
		t.Fatalf("retry result = %+v", res)
	}
	if got := sender.msgs[0].address; got != "5541999998888@s.whatsapp.net" {
		t.Errorf("fallback address = %q", got)
	}
	if res := w.PollOnce(ctx); res.Pending != 0 {
		t.Errorf("row still pending after mark: %+v", res)
	}
}

type staticLedger struct {
	rows   []domain.LedgerOrder
	marked []int
}

func (s *staticLedger) FindPendingNotifications(context.Context) ([]domain.LedgerOrder, error) {
	return s.rows, nil
}

func (s *staticLedger) MarkNotified(_ context.Context, row int, _ domain.Status) error {
	s.marked = append(s.marked, row)
	return nil
}

func TestPollOnceSkipsUnresolvableRows(t *testing.T) {
	ledger := &staticLedger{rows: []domain.LedgerOrder{
		{Row: 2, Status: "ACEITO"},
		{Row: 3, Status: "CANCELADO", Phone: "5541999998888"},
		{Row: 4, Status: "ACEITO", TransportAddress: "5541988887777@s.whatsapp.net", CustomerName: "unknown"},
	}}
	sender := &fakeSender{}
	w := NewWatcher(ledger, sender, 0)

	res := w.PollOnce(context.Background())
	if res.Skipped != 2 || res.Sent != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(ledger.marked) != 1 || ledger.marked[0] != 4 {
		t.Errorf("marked = %v, want [4]", ledger.marked)
	}
	if strings.Contains(sender.msgs[0].text, "unknown") {
		t.Errorf("sentinel name leaked: %q", sender.msgs[0].text)
	}
	if w.interval != DefaultInterval {
		t.Errorf("interval = %v", w.interval)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status domain.Status
		name   string
		want   string
		ok     bool
	}{
		{domain.StatusAccepted, "Ana", "Olá, Ana! Seu pedido foi aceito", true},
		{domain.StatusAccepted, "", "Olá! Seu pedido foi aceito", true},
		{domain.StatusOutForDelivery, "UNKNOWN", "Olá! Seu pedido saiu para entrega", true},
		{domain.StatusPending, "Ana", "", false},
		{domain.StatusDelivered, "Ana", "", false},
	}
	for _, tt := range tests {
		got, ok := Message(tt.status, tt.name)
		if ok != tt.ok || !strings.HasPrefix(got, tt.want) {
			t.Errorf("Message(%q, %q) = %q, %v", tt.status, tt.name, got, ok)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ledger := &staticLedger{}
	w := NewWatcher(ledger, &fakeSender{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
