// Package transport connects the service to the chat network.
package transport

import (
	"context"
	"errors"
)

// ErrNoBridge is returned by Send when no bridge is connected.
var ErrNoBridge = errors.New("no chat bridge connected")

// Inbound is one message received from a customer.
type Inbound struct {
	From     string `json:"from"`
	Text     string `json:"text"`
	HasMedia bool   `json:"has_media"`
}

// Sender delivers text to a transport address.
type Sender interface {
	Send(ctx context.Context, address, text string) error
}

// InboundFunc receives messages as they arrive.
type InboundFunc func(ctx context.Context, msg Inbound)
