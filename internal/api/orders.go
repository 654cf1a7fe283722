package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/identity"
	"github.com/jubot-ia/orderbot/internal/store"
	"github.com/jubot-ia/orderbot/internal/transport"
)

// OrderHandler handles the ledger and message endpoints.
type OrderHandler struct {
	*Handler
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(base *Handler) *OrderHandler {
	return &OrderHandler{Handler: base}
}

// RegisterRoutes registers order routes.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders/latest", h.LatestOrder)
		r.Patch("/orders/{row}/status", h.UpdateStatus)
		r.Get("/sessions/count", h.SessionCount)
		r.Post("/messages", h.SubmitMessage)
	})
}

type orderResponse struct {
	Row            int    `json:"row"`
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	CustomerName   string `json:"customer_name"`
	Phone          string `json:"phone"`
	Items          string `json:"items"`
	Total          string `json:"total"`
	Status         string `json:"status"`
	NotifiedStatus string `json:"notified_status"`
	Region         string `json:"region,omitempty"`
	Address        string `json:"address,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Origin         string `json:"origin"`
}

func toOrderResponse(o *domain.LedgerOrder) orderResponse {
	return orderResponse{
		Row:            o.Row,
		ID:             o.ID,
		CreatedAt:      o.CreatedAt,
		CustomerName:   o.CustomerName,
		Phone:          o.Phone,
		Items:          o.Items,
		Total:          o.Total,
		Status:         o.Status,
		NotifiedStatus: o.NotifiedStatus,
		Region:         o.Region,
		Address:        o.Address,
		PaymentMethod:  o.PaymentMethod,
		Notes:          o.Notes,
		Origin:         o.Origin,
	}
}

// LatestOrder returns the newest order for ?phone=.
func (h *OrderHandler) LatestOrder(w http.ResponseWriter, r *http.Request) {
	phone := identity.NormalizePhone(r.URL.Query().Get("phone"))
	if phone == "" {
		Error(w, http.StatusBadRequest, "phone is required")
		return
	}

	order, err := h.ledger.FindLatestByPhone(r.Context(), phone)
	if err != nil {
		slog.Error("Failed to look up latest order", "error", err, "phone", phone)
		Error(w, http.StatusBadGateway, "ledger unavailable")
		return
	}
	if order == nil {
		Error(w, http.StatusNotFound, "no order for phone")
		return
	}
	JSON(w, http.StatusOK, toOrderResponse(order))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus sets the workflow status of a ledger row. The watcher picks
// up notifiable changes on its next cycle.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row < 1 {
		Error(w, http.StatusBadRequest, "invalid row")
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	status := domain.NormalizeStatus(req.Status)
	if status == "" {
		Error(w, http.StatusBadRequest, "status is required")
		return
	}

	if err := h.ledger.UpdateStatus(r.Context(), row, status); err != nil {
		if errors.Is(err, store.ErrRowNotFound) {
			Error(w, http.StatusNotFound, "row not found")
			return
		}
		slog.Error("Failed to update order status", "error", err, "row", row)
		Error(w, http.StatusBadGateway, "ledger unavailable")
		return
	}

	slog.Info("Order status updated", "row", row, "status", status)
	JSON(w, http.StatusOK, map[string]interface{}{
		"row":    row,
		"status": status,
	})
}

// SessionCount reports how many customer sessions are live.
func (h *OrderHandler) SessionCount(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]int{"sessions": h.sessions.Len()})
}

// SubmitMessage accepts an inbound message from a webhook-style bridge.
func (h *OrderHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var msg transport.Inbound
	if err := decodeJSON(w, r, &msg); err != nil {
		Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(msg.From) == "" {
		Error(w, http.StatusBadRequest, "from is required")
		return
	}
	if !h.inbound.Submit(msg) {
		Error(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
