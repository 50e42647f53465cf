// Package completion generates answers with a text-completion service.
package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/openai"
	"go.uber.org/zap"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer produces a reply to a user message under a system instruction.
type Completer interface {
	Complete(ctx context.Context, system, message string) (string, error)
	// CompleteWithHistory places prior turns between the system instruction and the message.
	CompleteWithHistory(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error)
}

// New builds the completer selected by cfg.Provider.
func New(cfg config.CompletionConfig, logger *zap.Logger) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAICompleter(cfg, logger)
	case config.ProviderMock:
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
}

// OpenAICompleter calls the chat completions endpoint.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAICompleter returns a completer for cfg.Model. Fails when no API key is configured.
func NewOpenAICompleter(cfg config.CompletionConfig, logger *zap.Logger) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("failed to create openai completer: %w", openai.ErrMissingAPIKey)
	}
	client := openai.NewClient(cfg.BaseURL, cfg.APIKey,
		openai.WithTimeout(cfg.Timeout),
		openai.WithLogger(logger))
	return newOpenAICompleter(client, cfg.Model, cfg.MaxTokens, cfg.TemperatureOrDefault()), nil
}

func newOpenAICompleter(client *openai.Client, model string, maxTokens int, temperature float64) *OpenAICompleter {
	return &OpenAICompleter{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete sends the system instruction and the message as the only two turns.
func (c *OpenAICompleter) Complete(ctx context.Context, system, message string) (string, error) {
	return c.CompleteWithHistory(ctx, system, nil, message)
}

// CompleteWithHistory sends system, history and message in that order.
func (c *OpenAICompleter) CompleteWithHistory(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error) {
	temperature := c.temperature
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(system, history, message),
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	}
	out, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return out, nil
}

func buildMessages(system string, history []models.ChatMessage, message string) []openai.Message {
	msgs := make([]openai.Message, 0, len(history)+2)
	msgs = append(msgs, openai.Message{Role: RoleSystem, Content: system})
	for _, h := range history {
		msgs = append(msgs, openai.Message{Role: h.Role, Content: h.Content})
	}
	return append(msgs, openai.Message{Role: RoleUser, Content: message})
}
