// Package domain contains the core data types shared by the ordering agent.
package domain

import (
	"strings"
	"time"
)

// Status is the workflow value stored in the ledger status column.
type Status string

const (
	StatusPending        Status = "PENDENTE CONFIRMACAO"
	StatusAccepted       Status = "ACEITO"
	StatusOutForDelivery Status = "SAIU PRA ENTREGA"
	StatusDelivered      Status = "ENTREGUE"
)

// KnownStatuses are the values offered in the ledger status dropdown.
var KnownStatuses = []Status{StatusPending, StatusAccepted, StatusOutForDelivery, StatusDelivered}

// NormalizeStatus upper-cases and trims a raw ledger status.
func NormalizeStatus(raw string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(raw)))
}

// Notifiable reports whether a transition into s triggers an outbound message.
func (s Status) Notifiable() bool {
	return s == StatusAccepted || s == StatusOutForDelivery
}

const (
	// UnknownCustomerName is stored when neither the payload nor the session knows the name.
	UnknownCustomerName = "unknown"
	// DefaultOrigin is recorded when the agent does not name the order channel.
	DefaultOrigin = "WhatsApp"
)

// OrderPayload is an order the agent asked to register.
type OrderPayload struct {
	CustomerName     string `json:"nome" validate:"max=200"`
	Phone            string `json:"telefone" validate:"max=32"`
	Region           string `json:"regiao" validate:"max=200"`
	Items            string `json:"itens" validate:"max=2000"`
	Total            string `json:"total" validate:"max=64"`
	Address          string `json:"endereco" validate:"max=2000"`
	PaymentMethod    string `json:"formaPagamento" validate:"max=200"`
	Notes            string `json:"observacoes" validate:"max=2000"`
	Origin           string `json:"origem" validate:"max=64"`
	TransportAddress string `json:"-"`
}

// Fingerprint is the in-session equality key used to spot re-confirmations.
func (p *OrderPayload) Fingerprint() string {
	return strings.Join([]string{p.Items, p.Total, p.Address, p.PaymentMethod}, "|")
}

// Snapshot extracts the recurring-customer fields.
func (p *OrderPayload) Snapshot() *OrderSnapshot {
	return &OrderSnapshot{
		Name:    p.CustomerName,
		Region:  p.Region,
		Address: p.Address,
	}
}

// LedgerOrder is one row of the order ledger.
type LedgerOrder struct {
	Row              int
	ID               string
	CreatedAt        string
	CustomerName     string
	Phone            string
	Items            string
	Total            string
	Status           string
	Region           string
	Address          string
	NotifiedStatus   string
	PaymentMethod    string
	Notes            string
	Origin           string
	TransportAddress string
}

// Snapshot extracts the recurring-customer fields.
func (o *LedgerOrder) Snapshot() *OrderSnapshot {
	return &OrderSnapshot{
		Name:    o.CustomerName,
		Region:  o.Region,
		Address: o.Address,
	}
}

// NeedsNotification reports whether the row's status has not been announced yet.
func (o *LedgerOrder) NeedsNotification() bool {
	status := NormalizeStatus(o.Status)
	return status.Notifiable() && NormalizeStatus(o.NotifiedStatus) != status
}

// HasKnownName reports whether the stored name can be used to greet the customer.
func (o *LedgerOrder) HasKnownName() bool {
	name := strings.TrimSpace(o.CustomerName)
	return name != "" && !strings.EqualFold(name, UnknownCustomerName)
}

// LedgerTimestamp formats t the way the ledger's date column expects.
func LedgerTimestamp(t time.Time) string {
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		t = t.In(loc)
	}
	return t.Format("02/01/2006, 15:04:05")
}
