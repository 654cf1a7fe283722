// Package api provides the HTTP operations surface for the order bot.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/jubot-ia/orderbot/internal/session"
	"github.com/jubot-ia/orderbot/internal/store"
	"github.com/jubot-ia/orderbot/internal/transport"
)

// Submitter queues an inbound message for handling.
type Submitter interface {
	Submit(msg transport.Inbound) bool
}

// Handler provides common handler utilities.
type Handler struct {
	ledger   store.Ledger
	sessions *session.Store
	inbound  Submitter
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(ledger store.Ledger, sessions *session.Store, inbound Submitter) *Handler {
	return &Handler{
		ledger:   ledger,
		sessions: sessions,
		inbound:  inbound,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
