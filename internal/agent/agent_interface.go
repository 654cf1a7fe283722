package agent

import (
	"context"
)

// Gateway defines the interface for reply generation.
// This interface is implemented by the OpenAI client.
type Gateway interface {
	// Generate answers one customer message. Errors are transport or API
	// failures; a malformed order block is reported in Reply.PayloadErr.
	Generate(ctx context.Context, req Request) (*Reply, error)
}

// Ensure OpenAIGateway implements Gateway.
var _ Gateway = (*OpenAIGateway)(nil)
