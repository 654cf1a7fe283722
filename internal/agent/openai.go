package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jubot-ia/orderbot/internal/config"
	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/order"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGateway implements Gateway using the OpenAI chat completions API.
type OpenAIGateway struct {
	client       *openai.Client
	model        string
	temperature  float32
	systemPrompt string
}

// NewOpenAI creates a gateway answering on behalf of restaurant.
func NewOpenAI(cfg Config, restaurant *config.Restaurant) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	defaults := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaults.Temperature
	}

	prompt, err := BuildSystemPrompt(restaurant)
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIGateway{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		systemPrompt: prompt,
	}, nil
}

// Generate sends the conversation to the model and parses the order block out of the answer.
func (g *OpenAIGateway) Generate(ctx context.Context, req Request) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: g.systemPrompt,
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: buildUserContent(req),
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var content string
	if len(resp.Choices) > 0 {
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if content == "" {
		slog.Warn("Empty completion, using fallback reply", "customer_id", req.CustomerID, "model", g.model)
		return &Reply{Text: FallbackReply}, nil
	}

	text, payload, perr := order.Extract(content)
	slog.Debug("Agent reply generated",
		"customer_id", req.CustomerID,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"has_order", payload != nil)

	return &Reply{Text: text, Order: payload, PayloadErr: perr}, nil
}
