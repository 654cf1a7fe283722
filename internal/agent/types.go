// Package agent generates customer replies with a chat completion model.
package agent

import (
	"time"

	"github.com/jubot-ia/orderbot/internal/domain"
)

// FallbackReply is sent when the model returns no content.
const FallbackReply = "Desculpe, tive um probleminha para responder agora. Pode repetir, por favor?"

// Request is everything the model needs to answer one customer message.
type Request struct {
	CustomerID string
	// History holds the turns before Message, oldest first.
	History          []domain.Turn
	Message          string
	HasMedia         bool
	CustomerName     string
	Phone            string
	LastOrder        *domain.OrderSnapshot
	AddressConfirmed bool
	FirstInteraction bool
}

// Reply is the parsed model output. Order is set when the model asked to
// register an order; PayloadErr is set when it tried to and the block was unusable.
type Reply struct {
	Text       string
	Order      *domain.OrderPayload
	PayloadErr error
}

// Config holds agent configuration.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4.1-mini",
		Temperature: 0.4,
		Timeout:     60 * time.Second,
	}
}
