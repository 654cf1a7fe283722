package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jubot-ia/orderbot/internal/domain"
)

const confirmedReply = `Pedido confirmado! Já vamos preparar. 🍕

[[REGISTRAR_PEDIDO]]
{"nome":"Ana","telefone":"5541999998888","regiao":"Centro","endereco":"Rua A, 10","itens":"1x Pizza","total":"50,00","formaPagamento":"Pix","observacoes":"sem observação","origem":"WhatsApp"}`

func TestExtractWithoutMarker(t *testing.T) {
	t.Parallel()

	text, payload, err := Extract("  Olá! Qual o seu nome?  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected no payload, got %+v", payload)
	}
	if text != "Olá! Qual o seu nome?" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractPayload(t *testing.T) {
	t.Parallel()

	text, payload, err := Extract(confirmedReply)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if strings.Contains(text, Marker) || strings.Contains(text, "{") {
		t.Errorf("text still contains the block: %q", text)
	}
	if text != "Pedido confirmado! Já vamos preparar. 🍕" {
		t.Errorf("text = %q", text)
	}
	if payload == nil {
		t.Fatal("expected payload")
	}
	if payload.Items != "1x Pizza" || payload.Total != "50,00" || payload.Region != "Centro" ||
		payload.PaymentMethod != "Pix" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestExtractNumericTotalAndMissingFields(t *testing.T) {
	t.Parallel()

	_, payload, err := Extract(Marker + `{"itens":"2x Suco","total":16.5}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if payload.Total != "16.5" {
		t.Errorf("Total = %q, want 16.5", payload.Total)
	}
	if payload.CustomerName != "" || payload.Address != "" || payload.Origin != "" {
		t.Errorf("missing fields should be empty: %+v", payload)
	}
}

func TestExtractMalformedKeepsText(t *testing.T) {
	t.Parallel()

	tests := []string{
		"Obrigado!\n[[REGISTRAR_PEDIDO]]\n{\"nome\": \"Ana\",",
		"Obrigado!\n[[REGISTRAR_PEDIDO]]\nsem json aqui",
		"Obrigado!\n[[REGISTRAR_PEDIDO]]\n{\"itens\":\"" + strings.Repeat("x", 2001) + "\"}",
	}
	for _, raw := range tests {
		text, payload, err := Extract(raw)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
		if payload != nil {
			t.Errorf("expected nil payload, got %+v", payload)
		}
		if text != "Obrigado!" {
			t.Errorf("text = %q, want Obrigado!", text)
		}
	}
}

type fakeAppender struct {
	appended []domain.OrderPayload
	err      error
}

func (f *fakeAppender) Append(_ context.Context, o *domain.OrderPayload) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.appended = append(f.appended, *o)
	return len(f.appended) + 1, nil
}

var testIdentity = domain.CustomerIdentity{
	CanonicalID:  "5541999998888@s.whatsapp.net",
	DisplayPhone: "5541999998888",
}

func TestRegisterSkipsIdenticalReconfirmation(t *testing.T) {
	t.Parallel()

	ledger := &fakeAppender{}
	reg := NewRegistrar(ledger)
	sess := domain.NewSession(testIdentity.CanonicalID)

	var fingerprints []string
	for i := 0; i < 2; i++ {
		_, payload, err := Extract(confirmedReply)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		fingerprints = append(fingerprints, payload.Fingerprint())
		if _, err := reg.Register(context.Background(), sess, testIdentity, payload); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if len(ledger.appended) != 1 {
		t.Fatalf("appends = %d, want 1", len(ledger.appended))
	}
	if fingerprints[0] != fingerprints[1] {
		t.Errorf("fingerprints differ: %q vs %q", fingerprints[0], fingerprints[1])
	}
	if sess.LastRegisteredFingerprint != fingerprints[0] {
		t.Errorf("session fingerprint = %q", sess.LastRegisteredFingerprint)
	}
}

func TestRegisterSecondBlockIsSkipped(t *testing.T) {
	t.Parallel()

	ledger := &fakeAppender{}
	reg := NewRegistrar(ledger)
	sess := domain.NewSession(testIdentity.CanonicalID)

	first := &domain.OrderPayload{Items: "1x Pizza", Total: "50,00"}
	res, err := reg.Register(context.Background(), sess, testIdentity, first)
	if err != nil || res.Skipped {
		t.Fatalf("first Register = %+v, %v", res, err)
	}

	second := &domain.OrderPayload{Items: "1x Pizza", Total: "50,00"}
	res, err = reg.Register(context.Background(), sess, testIdentity, second)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if !res.Skipped {
		t.Error("expected second registration skipped")
	}
	if len(ledger.appended) != 1 {
		t.Errorf("appends = %d, want 1", len(ledger.appended))
	}
}

func TestRegisterDifferentOrderAppends(t *testing.T) {
	t.Parallel()

	ledger := &fakeAppender{}
	reg := NewRegistrar(ledger)
	sess := domain.NewSession(testIdentity.CanonicalID)

	for _, items := range []string{"1x Pizza", "2x Pizza"} {
		if _, err := reg.Register(context.Background(), sess, testIdentity,
			&domain.OrderPayload{Items: items, Total: "50,00"}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if len(ledger.appended) != 2 {
		t.Fatalf("appends = %d, want 2", len(ledger.appended))
	}
}

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sessionName string
		payloadName string
		want        string
	}{
		{"payload name wins", "Bia", "Ana", "Ana"},
		{"session name fallback", "Bia", "", "Bia"},
		{"unknown sentinel", "", "", domain.UnknownCustomerName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ledger := &fakeAppender{}
			sess := domain.NewSession(testIdentity.CanonicalID)
			sess.CustomerName = tt.sessionName

			_, err := NewRegistrar(ledger).Register(context.Background(), sess, testIdentity,
				&domain.OrderPayload{CustomerName: tt.payloadName, Items: "1x Pizza"})
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			got := ledger.appended[0]
			if got.CustomerName != tt.want {
				t.Errorf("CustomerName = %q, want %q", got.CustomerName, tt.want)
			}
			if got.Origin != domain.DefaultOrigin {
				t.Errorf("Origin = %q, want %q", got.Origin, domain.DefaultOrigin)
			}
			if got.Phone != testIdentity.DisplayPhone || got.TransportAddress != testIdentity.CanonicalID {
				t.Errorf("identity defaults not applied: %+v", got)
			}
		})
	}
}

func TestRegisterAppendFailureLeavesSessionUntouched(t *testing.T) {
	t.Parallel()

	ledger := &fakeAppender{err: errors.New("quota exceeded")}
	sess := domain.NewSession(testIdentity.CanonicalID)

	_, err := NewRegistrar(ledger).Register(context.Background(), sess, testIdentity,
		&domain.OrderPayload{Items: "1x Pizza"})
	if err == nil {
		t.Fatal("expected error")
	}
	if sess.LastRegisteredFingerprint != "" || sess.LastKnownOrder != nil {
		t.Error("session must not record a failed append")
	}
}
