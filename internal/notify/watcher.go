// Package notify pushes order status changes to customers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/identity"
	"github.com/jubot-ia/orderbot/internal/transport"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 20 * time.Second

// Ledger is the part of the order ledger the watcher needs.
type Ledger interface {
	FindPendingNotifications(ctx context.Context) ([]domain.LedgerOrder, error)
	MarkNotified(ctx context.Context, row int, status domain.Status) error
}

// Result summarizes one poll cycle.
type Result struct {
	Pending  int
	Sent     int
	Skipped  int
	Failed   int
	MarkErrs int
}

// Watcher scans the ledger for status changes not yet announced. It keeps no
// state between polls; the ledger's notified-status column is the only record.
type Watcher struct {
	ledger   Ledger
	sender   transport.Sender
	interval time.Duration
}

// NewWatcher creates a watcher. A non-positive interval means DefaultInterval.
func NewWatcher(ledger Ledger, sender transport.Sender, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{ledger: ledger, sender: sender, interval: interval}
}

// StartWatcher runs the poll loop in a background goroutine until ctx is done.
func StartWatcher(ctx context.Context, ledger Ledger, sender transport.Sender, interval time.Duration) *Watcher {
	w := NewWatcher(ledger, sender, interval)
	go w.Run(ctx)
	return w
}

// Run polls on every tick. Cycles never overlap: a slow cycle delays the next tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	slog.Info("Notification watcher started", "interval", w.interval)

	for {
		select {
		case <-ticker.C:
			res := w.PollOnce(ctx)
			if res.Pending > 0 {
				slog.Info("Notification cycle completed",
					"pending", res.Pending,
					"sent", res.Sent,
					"skipped", res.Skipped,
					"failed", res.Failed)
			}
		case <-ctx.Done():
			slog.Info("Notification watcher shutting down", "reason", ctx.Err())
			return
		}
	}
}

// PollOnce runs a single notification cycle.
func (w *Watcher) PollOnce(ctx context.Context) Result {
	var res Result

	rows, err := w.ledger.FindPendingNotifications(ctx)
	if err != nil {
		slog.Error("Notification watcher failed to read pending rows", "error", err)
		return res
	}
	res.Pending = len(rows)

	for _, row := range rows {
		if ctx.Err() != nil {
			return res
		}

		status := domain.NormalizeStatus(row.Status)
		text, ok := Message(status, row.CustomerName)
		if !ok {
			res.Skipped++
			continue
		}

		address := row.TransportAddress
		if address == "" {
			address = identity.AddressForPhone(row.Phone)
		}
		if address == "" {
			slog.Warn("Notification skipped, no address for row", "row", row.Row)
			res.Skipped++
			continue
		}

		if err := w.sender.Send(ctx, address, text); err != nil {
			slog.Warn("Notification send failed, will retry next cycle",
				"row", row.Row,
				"status", status,
				"error", err)
			res.Failed++
			continue
		}
		res.Sent++

		if err := w.ledger.MarkNotified(ctx, row.Row, status); err != nil {
			slog.Error("Failed to mark row as notified",
				"row", row.Row,
				"status", status,
				"error", err)
			res.MarkErrs++
			continue
		}
		slog.Info("Status notification sent", "row", row.Row, "status", status, "to", address)
	}
	return res
}

// Message renders the notification for status. It returns false for
// statuses that are not announced.
func Message(status domain.Status, name string) (string, bool) {
	greeting := "Olá!"
	if n := strings.TrimSpace(name); n != "" && !strings.EqualFold(n, domain.UnknownCustomerName) {
		greeting = fmt.Sprintf("Olá, %s!", n)
	}

	switch status {
	case domain.StatusAccepted:
		return greeting + " Seu pedido foi aceito e já está sendo preparado. 🍕", true
	case domain.StatusOutForDelivery:
		return greeting + " Seu pedido saiu para entrega e logo chega até você. 🛵", true
	default:
		return "", false
	}
}
