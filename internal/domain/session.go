package domain

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// OrderSnapshot is the part of a previous order reused for recurring customers.
type OrderSnapshot struct {
	Name    string `json:"nome"`
	Region  string `json:"regiao"`
	Address string `json:"endereco"`
}

// Session holds the conversation state for one customer.
type Session struct {
	CustomerID                string
	CustomerName              string
	History                   []Turn
	Initialized               bool
	LastKnownOrder            *OrderSnapshot
	LastRegisteredFingerprint string
	AddressConfirmed          bool
	CreatedAt                 time.Time
	LastActivityAt            time.Time
}

// NewSession returns an empty, not yet hydrated session.
func NewSession(customerID string) *Session {
	now := time.Now()
	return &Session{
		CustomerID:     customerID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Append records a turn in the full history.
func (s *Session) Append(role Role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	s.LastActivityAt = time.Now()
}

// RecentHistory returns a copy of the last n turns.
func (s *Session) RecentHistory(n int) []Turn {
	start := 0
	if n >= 0 && len(s.History) > n {
		start = len(s.History) - n
	}
	out := make([]Turn, len(s.History)-start)
	copy(out, s.History[start:])
	return out
}

// LastAssistantTurn returns the content of the most recent assistant turn, or "".
func (s *Session) LastAssistantTurn() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i].Content
		}
	}
	return ""
}

// IsFirstInteraction reports whether nothing has been exchanged yet.
func (s *Session) IsFirstInteraction() bool {
	return len(s.History) == 0
}
