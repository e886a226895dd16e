package assessment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/domain/service"
	"FinPulse/pkg/config"
)

type AnthropicReasoner struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewAnthropicReasoner(cfg config.LLMConfig, httpClient *http.Client) *AnthropicReasoner {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicReasoner{
		client:      anthropic.NewClient(opts...),
		model:       cfg.ModelOrDefault(),
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}
}

func (r *AnthropicReasoner) Model() string { return r.model }

func (r *AnthropicReasoner) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(r.temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("anthropic", apiErr.StatusCode, err)
		}
		return "", classifyTransport("anthropic", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &models.MalformedResponseError{Reason: "no text content in reply"}
	}
	return sb.String(), nil
}

// NewReasoner picks the client for cfg.Provider.
func NewReasoner(cfg config.LLMConfig, httpClient *http.Client) service.Reasoner {
	if cfg.Provider == "anthropic" {
		return NewAnthropicReasoner(cfg, httpClient)
	}
	return NewOpenAIReasoner(cfg, httpClient)
}

var _ service.Reasoner = (*AnthropicReasoner)(nil)
