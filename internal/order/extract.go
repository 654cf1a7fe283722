// Package order extracts order payloads from agent replies and registers them in the ledger.
package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jubot-ia/orderbot/internal/domain"
)

// Marker precedes the JSON order block in an agent reply.
const Marker = "[[REGISTRAR_PEDIDO]]"

// ErrMalformedPayload is returned when the block after the marker cannot be used.
var ErrMalformedPayload = errors.New("malformed order payload")

var validate = validator.New()

// Extract splits an agent reply into the customer-visible text and the
// optional order payload. Everything from the marker on is removed from the
// text. When the block is malformed the text is still returned together with
// an error wrapping ErrMalformedPayload.
func Extract(raw string) (string, *domain.OrderPayload, error) {
	idx := strings.Index(raw, Marker)
	if idx < 0 {
		return strings.TrimSpace(raw), nil, nil
	}

	text := strings.TrimSpace(raw[:idx])
	block := raw[idx+len(Marker):]

	start := strings.IndexByte(block, '{')
	if start < 0 {
		return text, nil, fmt.Errorf("%w: no JSON object after marker", ErrMalformedPayload)
	}

	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(block[start:]))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return text, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	payload := &domain.OrderPayload{
		CustomerName:  field(fields, "nome"),
		Phone:         field(fields, "telefone"),
		Region:        field(fields, "regiao"),
		Items:         field(fields, "itens"),
		Total:         field(fields, "total"),
		Address:       field(fields, "endereco"),
		PaymentMethod: field(fields, "formaPagamento"),
		Notes:         field(fields, "observacoes"),
		Origin:        field(fields, "origem"),
	}
	if err := validate.Struct(payload); err != nil {
		return text, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return text, payload, nil
}

// field reads key as trimmed text. Numbers keep their literal form; absent
// keys, nulls, and nested values become "".
func field(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
