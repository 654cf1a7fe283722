// Package store provides the order ledger interface and its implementations.
package store

import (
	"context"
	"errors"

	"github.com/jubot-ia/orderbot/internal/domain"
)

// ErrRowNotFound is returned when a targeted row does not exist.
var ErrRowNotFound = errors.New("ledger row not found")

// Ledger defines the durable order store.
type Ledger interface {
	// Append inserts a new order with the pending status and returns its row handle.
	Append(ctx context.Context, order *domain.OrderPayload) (int, error)

	// FindLatestByPhone returns the most recent order whose phone matches in either
	// suffix direction, or nil when there is none.
	FindLatestByPhone(ctx context.Context, phone string) (*domain.LedgerOrder, error)

	// FindPendingNotifications returns rows whose notifiable status differs from
	// their notified-status marker.
	FindPendingNotifications(ctx context.Context) ([]domain.LedgerOrder, error)

	// MarkNotified writes status into the row's notified-status marker.
	MarkNotified(ctx context.Context, row int, status domain.Status) error

	// UpdateStatus changes the workflow status of a row.
	UpdateStatus(ctx context.Context, row int, status domain.Status) error

	// Ping verifies the ledger is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// pendingFromRows filters rows that still need a status notification.
// Rows with neither a phone nor a transport address are left out.
func pendingFromRows(rows []domain.LedgerOrder) []domain.LedgerOrder {
	var pending []domain.LedgerOrder
	for _, row := range rows {
		if row.Phone == "" && row.TransportAddress == "" {
			continue
		}
		if !row.NeedsNotification() {
			continue
		}
		row.Status = string(domain.NormalizeStatus(row.Status))
		pending = append(pending, row)
	}
	return pending
}
