package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jubot-ia/orderbot/internal/domain"
)

// Appender is the ledger write used by the registrar.
type Appender interface {
	Append(ctx context.Context, order *domain.OrderPayload) (int, error)
}

// Result describes what Register did with a payload.
type Result struct {
	Row     int
	Skipped bool
}

// Registrar persists extracted orders, skipping re-confirmations of the
// order last registered in the same session.
type Registrar struct {
	ledger Appender
}

// NewRegistrar creates a registrar writing to ledger.
func NewRegistrar(ledger Appender) *Registrar {
	return &Registrar{ledger: ledger}
}

// Register fills defaults from the session and identity, then appends the
// order unless its fingerprint matches the last registered one. The session
// is updated only after a successful append.
func (r *Registrar) Register(ctx context.Context, sess *domain.Session, ident domain.CustomerIdentity, payload *domain.OrderPayload) (Result, error) {
	applyDefaults(payload, sess, ident)

	fingerprint := payload.Fingerprint()
	if sess.LastRegisteredFingerprint != "" && fingerprint == sess.LastRegisteredFingerprint {
		slog.Info("Order already registered in this session, skipping",
			"customer_id", sess.CustomerID)
		return Result{Skipped: true}, nil
	}

	row, err := r.ledger.Append(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("append order for %s: %w", sess.CustomerID, err)
	}

	sess.LastKnownOrder = payload.Snapshot()
	sess.LastRegisteredFingerprint = fingerprint
	if sess.CustomerName == "" && payload.CustomerName != domain.UnknownCustomerName {
		sess.CustomerName = payload.CustomerName
	}

	slog.Info("Order registered",
		"customer_id", sess.CustomerID,
		"row", row,
		"total", payload.Total)
	return Result{Row: row}, nil
}

func applyDefaults(p *domain.OrderPayload, sess *domain.Session, ident domain.CustomerIdentity) {
	if strings.TrimSpace(p.CustomerName) == "" {
		p.CustomerName = sess.CustomerName
	}
	if strings.TrimSpace(p.CustomerName) == "" {
		p.CustomerName = domain.UnknownCustomerName
	}
	if p.Phone == "" {
		p.Phone = ident.DisplayPhone
	}
	if p.Origin == "" {
		p.Origin = domain.DefaultOrigin
	}
	if p.TransportAddress == "" {
		p.TransportAddress = ident.CanonicalID
	}
}
