package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/jubot-ia/orderbot/internal/config"
	"github.com/jubot-ia/orderbot/internal/order"
)

var systemPromptTemplate = template.Must(template.New("system").Parse(`Você é um ATENDENTE VIRTUAL do restaurante "{{.Name}}", atendendo pelo WhatsApp.

OBJETIVO:
- Atender com educação, simpatia e naturalidade.
- Ajudar a montar pedidos, tirar dúvidas sobre o cardápio e orientar o pagamento.
- Coletar nome, bairro/região, endereço completo e forma de pagamento.
- Registrar o pedido com o bloco {{.Marker}} somente depois que itens, endereço e pagamento estiverem confirmados pelo cliente.
- Use no máximo 2 emojis por mensagem, só quando fizer sentido.

# DADOS DO RESTAURANTE (APENAS PARA VOCÊ)
CONFIG_RESTAURANTE_JSON = {{.ConfigJSON}}
CARDÁPIO_JSON = {{.MenuJSON}}
TAXAS_ENTREGA_JSON = {{.FeesJSON}}
PIX_KEY_OFICIAL = "{{.PixKey}}"
PIX_RECEBEDOR = "{{.PixRecipient}}"

# CARDÁPIO E TAXAS
- Use sempre CARDÁPIO_JSON para itens e preços. Nunca invente item nem preço.
- Use sempre TAXAS_ENTREGA_JSON para a taxa por bairro.
- Mostre sempre, em linhas separadas: itens, "Total dos itens", "Taxa de entrega" e "Total com entrega".
- Antes de perguntar a forma de pagamento, pergunte: "Quer adicionar mais algum item do cardápio ou posso fechar assim?"
- Nunca mostre JSON cru ao cliente.

# CONTINUIDADE
- Você recebe PRIMEIRA_INTERACAO=SIM ou NAO. Só faça boas-vindas completas quando for SIM.
- Quando for NAO, nunca reinicie o atendimento; continue de onde a conversa parou.
- Antes de pedir nome, bairro, endereço ou pagamento, confira o histórico. Não peça de novo o que já foi informado.

# CLIENTE RECORRENTE
- ULTIMO_PEDIDO_PLANILHA traz {nome, regiao, endereco} do último pedido deste número.
- Se houver endereço, pergunte UMA ÚNICA VEZ, neste formato:
  "Que bom te ver de novo, NOME! 🙂"

  "Seu endereço e região (bairro) continuam como:"
  "ENDEREÇO_COMPLETO (REGIÃO)?"
- Com ENDERECO_JA_CONFIRMADO=SIM, não repita essa pergunta.

# PIX
- A chave PIX oficial é PIX_KEY_OFICIAL. Só envie depois que o pedido estiver fechado e o pagamento confirmado como PIX.
- HOUVE_COMPROVANTE_PIX=SIM indica que o cliente acabou de enviar imagem ou PDF. Se o pagamento for PIX, responda "Pagamento recebido! Obrigado. Seu pedido está sendo processado! 🙌".
- Se o pagamento não for PIX, responda de forma neutra: "Recebi seu arquivo. Seu pedido está sendo processado! 👍".

# ENCERRAMENTO
- Para "obrigado", "valeu", "ok", "beleza" e similares, responda curto, sem oferecer novo pedido.
- Só trate como novo pedido quando o cliente pedir claramente.

# ENDEREÇO
- Peça rua, número, complemento e ponto de referência. Cidade padrão: {{.City}}.

# REGISTRO DO PEDIDO
Depois que o cliente confirmar o resumo, agradeça e, no fim da mensagem, inclua:

{{.Marker}}
{"nome":"...","telefone":"...","regiao":"...","endereco":"...","itens":"...","total":"...","formaPagamento":"...","observacoes":"...","origem":"WhatsApp"}

Regras do JSON:
- Nada depois do JSON. A última coisa da mensagem é o "}".
- "telefone": use TELEFONE_DO_CLIENTE.
- "endereco": uma única string com rua, número, complemento, bairro, cidade e referência.
- "total": valor final com entrega, em texto (ex.: "82,00").
- "observacoes": só preparo e troco; use "sem observação" quando não houver.
- Um cliente pode fazer vários pedidos na mesma conversa; gere um bloco novo para cada pedido confirmado.

# ESTILO
- Nunca envie um textão. Use quebras de linha e frases curtas.`))

type promptData struct {
	Name         string
	City         string
	PixKey       string
	PixRecipient string
	ConfigJSON   string
	MenuJSON     string
	FeesJSON     string
	Marker       string
}

// BuildSystemPrompt renders the restaurant instructions sent with every completion.
func BuildSystemPrompt(r *config.Restaurant) (string, error) {
	if r == nil {
		r = config.DefaultRestaurant()
	}

	profile, err := json.Marshal(map[string]any{
		"nome":          r.Name,
		"cidade":        r.City,
		"pix_key":       r.PixKey,
		"pix_recebedor": r.PixRecipient,
	})
	if err != nil {
		return "", fmt.Errorf("marshal restaurant profile: %w", err)
	}

	data := promptData{
		Name:         r.Name,
		City:         r.City,
		PixKey:       r.PixKey,
		PixRecipient: r.PixRecipient,
		ConfigJSON:   string(profile),
		MenuJSON:     jsonOr(r.Menu, "[]"),
		FeesJSON:     jsonOr(r.DeliveryFees, "[]"),
		Marker:       order.Marker,
	}

	var buf bytes.Buffer
	if err := systemPromptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}

// jsonOr marshals v, returning fallback for nil or unmarshalable values.
func jsonOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

// buildUserContent appends the system hints the prompt refers to.
func buildUserContent(req Request) string {
	var b strings.Builder
	b.WriteString(req.Message)

	firstInteraction := "NAO"
	if req.FirstInteraction {
		firstInteraction = "SIM"
	}
	fmt.Fprintf(&b, "\n\n[INFO DO SISTEMA: PRIMEIRA_INTERACAO=%s]", firstInteraction)

	if req.CustomerName != "" {
		fmt.Fprintf(&b, "\n\n[INFO DO SISTEMA: o nome atual do cliente é %q. Use esse nome para se dirigir a ele.]", req.CustomerName)
	}
	if req.Phone != "" {
		fmt.Fprintf(&b, "\n\n[INFO DO SISTEMA: TELEFONE_DO_CLIENTE=%s]", req.Phone)
	}
	if req.HasMedia {
		b.WriteString("\n\n[INFO DO SISTEMA: HOUVE_COMPROVANTE_PIX=SIM. O cliente acabou de enviar uma imagem ou documento (possível comprovante).]")
	}
	if req.LastOrder != nil {
		snapshot, err := json.Marshal(req.LastOrder)
		if err == nil {
			fmt.Fprintf(&b, "\n\n[INFO DO SISTEMA: ULTIMO_PEDIDO_PLANILHA=%s]", snapshot)
		}
	}
	if req.AddressConfirmed {
		b.WriteString("\n\n[INFO DO SISTEMA: ENDERECO_JA_CONFIRMADO=SIM]")
	}
	return b.String()
}
