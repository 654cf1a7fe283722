// Package conversation coordinates one customer message from arrival to reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jubot-ia/orderbot/internal/agent"
	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/identity"
	"github.com/jubot-ia/orderbot/internal/intent"
	"github.com/jubot-ia/orderbot/internal/order"
	"github.com/jubot-ia/orderbot/internal/session"
	"github.com/jubot-ia/orderbot/internal/transport"
)

// HistoryWindow is how many past turns the agent sees.
const HistoryWindow = 10

// ErrRateLimited is returned when a customer exceeds the inbound message limit.
var ErrRateLimited = errors.New("customer rate limited")

// OrderLedger is the part of the ledger the conversation flow reads and writes.
type OrderLedger interface {
	session.OrderLookup
	order.Appender
}

// Handler runs the per-message flow. Calls for the same customer must not
// overlap; Dispatcher guarantees that.
type Handler struct {
	sessions  *session.Store
	router    *intent.Router
	gateway   agent.Gateway
	ledger    OrderLedger
	registrar *order.Registrar
	sender    transport.Sender
	log       agent.ConversationLogger
	limiter   *RateLimiter
}

// NewHandler creates a message handler.
func NewHandler(sessions *session.Store, router *intent.Router, gateway agent.Gateway, ledger OrderLedger, sender transport.Sender, conversationLogger agent.ConversationLogger) *Handler {
	if router == nil {
		router = intent.NewRouter(nil)
	}
	if conversationLogger == nil {
		conversationLogger, _ = agent.NewConversationLogger(agent.ConversationLogConfig{}, nil)
	}
	return &Handler{
		sessions:  sessions,
		router:    router,
		gateway:   gateway,
		ledger:    ledger,
		registrar: order.NewRegistrar(ledger),
		sender:    sender,
		log:       conversationLogger,
	}
}

// SetRateLimiter enables per-customer inbound throttling.
func (h *Handler) SetRateLimiter(limiter *RateLimiter) {
	h.limiter = limiter
}

// Handle processes one inbound message. Failures are logged and returned;
// no error text is ever sent to the customer.
func (h *Handler) Handle(ctx context.Context, msg transport.Inbound) error {
	ident := identity.Normalize(msg.From)
	if ident.CanonicalID == "" {
		slog.Warn("Dropping inbound message without sender")
		return nil
	}
	if h.limiter != nil && !h.limiter.Allow(ident.CanonicalID) {
		slog.Warn("Inbound message rate limited", "customer_id", ident.CanonicalID)
		return ErrRateLimited
	}

	sess := h.sessions.Get(ident.CanonicalID)
	session.Hydrate(ctx, sess, ident.DisplayPhone, h.ledger)

	text := strings.TrimSpace(msg.Text)
	recorded := text
	if recorded == "" {
		recorded = EmptyMessageMarker
	}
	h.logTurn(ident.CanonicalID, "inbound", "customer_message", recorded, map[string]any{"has_media": msg.HasMedia})

	h.router.Infer(sess, text)

	kind := h.router.Classify(sess, text)
	slog.Debug("Inbound message classified", "customer_id", ident.CanonicalID, "intent", kind.String())

	switch kind {
	case intent.Closing:
		sess.Append(domain.RoleUser, recorded)
		sess.Append(domain.RoleAssistant, ClosingReply)
		return h.reply(ctx, ident, ClosingReply, kind)

	case intent.StatusQuery:
		latest, err := h.ledger.FindLatestByPhone(ctx, ident.DisplayPhone)
		if err != nil {
			slog.Error("Status lookup failed", "customer_id", ident.CanonicalID, "error", err)
			return fmt.Errorf("status lookup: %w", err)
		}
		answer := StatusReply(latest)
		sess.Append(domain.RoleUser, recorded)
		sess.Append(domain.RoleAssistant, answer)
		return h.reply(ctx, ident, answer, kind)

	default:
		return h.handleGeneric(ctx, sess, ident, text, recorded, msg.HasMedia)
	}
}

func (h *Handler) handleGeneric(ctx context.Context, sess *domain.Session, ident domain.CustomerIdentity, text, recorded string, hasMedia bool) error {
	history := sess.RecentHistory(HistoryWindow)
	firstInteraction := sess.IsFirstInteraction()
	sess.Append(domain.RoleUser, recorded)

	message := text
	if message == "" {
		message = MediaOnlyPlaceholder
	}

	start := time.Now()
	reply, err := h.gateway.Generate(ctx, agent.Request{
		CustomerID:       ident.CanonicalID,
		History:          history,
		Message:          message,
		HasMedia:         hasMedia,
		CustomerName:     sess.CustomerName,
		Phone:            ident.DisplayPhone,
		LastOrder:        sess.LastKnownOrder,
		AddressConfirmed: sess.AddressConfirmed,
		FirstInteraction: firstInteraction,
	})
	if err != nil {
		slog.Error("Agent call failed", "customer_id", ident.CanonicalID, "error", err)
		return fmt.Errorf("generate reply: %w", err)
	}
	slog.Debug("Agent replied", "customer_id", ident.CanonicalID, "duration", time.Since(start))

	if reply.PayloadErr != nil {
		slog.Warn("Discarding malformed order block", "customer_id", ident.CanonicalID, "error", reply.PayloadErr)
	}
	if reply.Order != nil {
		res, err := h.registrar.Register(ctx, sess, ident, reply.Order)
		if err != nil {
			slog.Error("Failed to register order", "customer_id", ident.CanonicalID, "error", err)
		} else if !res.Skipped {
			h.logTurn(ident.CanonicalID, "internal", "order_registered", reply.Order.Items, map[string]any{"row": res.Row, "total": reply.Order.Total})
		}
	}

	sess.Append(domain.RoleAssistant, reply.Text)
	if reply.Text == "" {
		slog.Warn("Agent reply had no customer-visible text", "customer_id", ident.CanonicalID)
		return nil
	}
	return h.reply(ctx, ident, reply.Text, intent.Generic)
}

func (h *Handler) reply(ctx context.Context, ident domain.CustomerIdentity, text string, kind intent.Intent) error {
	if err := h.sender.Send(ctx, ident.CanonicalID, text); err != nil {
		slog.Error("Failed to send reply", "customer_id", ident.CanonicalID, "error", err)
		return fmt.Errorf("send reply: %w", err)
	}
	h.logTurn(ident.CanonicalID, "outbound", "assistant_message", text, map[string]any{"intent": kind.String()})
	return nil
}

func (h *Handler) logTurn(customerID, direction, eventType, content string, meta map[string]any) {
	h.log.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		CustomerID: customerID,
		Channel:    "whatsapp",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}
