package conversation

import (
	"fmt"
	"strings"

	"github.com/jubot-ia/orderbot/internal/domain"
)

// Canned replies for the paths that bypass the agent.
const (
	ClosingReply    = "Por nada, estou à disposição! 🙂"
	NoOrderReply    = "Não encontrei nenhum pedido recente no seu número. Quer fazer um pedido agora? 😄"
	pendingReply    = "Seu pedido foi recebido e está aguardando confirmação do restaurante. ⏳"
	acceptedReply   = "Seu pedido foi aceito e já está sendo preparado! 🍕"
	deliveringReply = "Seu pedido saiu para entrega e logo chega até você! 🛵"
	deliveredReply  = "Seu pedido consta como entregue. Bom apetite! 😋"
	rawStatusReply  = "Status atual do seu pedido: %s"

	// EmptyMessageMarker is recorded in history for messages without text.
	EmptyMessageMarker = "[mensagem vazia]"
	// MediaOnlyPlaceholder is what the agent sees for a media-only message.
	MediaOnlyPlaceholder = "(sem texto, apenas mídia)"
)

var statusReplies = []struct {
	prefix string
	reply  string
}{
	{"PENDENTE", pendingReply},
	{"ACEITO", acceptedReply},
	{"SAIU", deliveringReply},
	{"ENTREGUE", deliveredReply},
}

// StatusReply renders the answer to a status query for the latest order.
func StatusReply(latest *domain.LedgerOrder) string {
	if latest == nil {
		return NoOrderReply
	}
	status := domain.NormalizeStatus(latest.Status)
	for _, s := range statusReplies {
		if strings.HasPrefix(string(status), s.prefix) {
			return s.reply
		}
	}
	return fmt.Sprintf(rawStatusReply, strings.TrimSpace(latest.Status))
}
