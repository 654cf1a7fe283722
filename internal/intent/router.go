package intent

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jubot-ia/orderbot/internal/domain"
)

// Intent is the routing decision for one inbound message.
type Intent int

const (
	Generic Intent = iota
	Closing
	StatusQuery
)

func (i Intent) String() string {
	switch i {
	case Closing:
		return "closing"
	case StatusQuery:
		return "status_query"
	default:
		return "generic"
	}
}

// Router classifies messages and infers session facts from them.
type Router struct {
	classifier Classifier
}

// NewRouter creates a router. A nil classifier selects the rule-based one.
func NewRouter(c Classifier) *Router {
	if c == nil {
		c = NewRuleClassifier()
	}
	return &Router{classifier: c}
}

// Classify returns Closing, StatusQuery or Generic, checked in that order.
func (r *Router) Classify(_ *domain.Session, text string) Intent {
	switch {
	case r.classifier.IsClosing(text):
		return Closing
	case r.classifier.IsStatusQuery(text):
		return StatusQuery
	default:
		return Generic
	}
}

// Infer updates the session from what the customer just said. It must run
// before the current message is appended to history.
func (r *Router) Infer(sess *domain.Session, text string) {
	trimmed := strings.TrimSpace(text)
	previous := sess.LastAssistantTurn()

	if previous != "" && trimmed != "" && r.classifier.IsNameQuestion(previous) &&
		utf8.RuneCountInString(trimmed) <= maxShortReply {
		sess.CustomerName = trimmed
		slog.Debug("Adopted reply as customer name", "customer_id", sess.CustomerID)
	}

	// An explicit introduction wins over the reply-to-question guess.
	if name, ok := r.classifier.ExtractName(trimmed); ok {
		sess.CustomerName = name
		slog.Debug("Adopted introduced customer name", "customer_id", sess.CustomerID)
	}

	if !sess.AddressConfirmed && previous != "" &&
		r.classifier.IsAddressReconfirmQuestion(previous) && r.classifier.IsConfirmation(trimmed) {
		sess.AddressConfirmed = true
		slog.Debug("Recurring address confirmed", "customer_id", sess.CustomerID)
	}
}
