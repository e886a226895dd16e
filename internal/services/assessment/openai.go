package assessment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/domain/service"
	"FinPulse/pkg/config"
)

// OpenAIReasoner talks to any OpenAI-compatible chat completions API
// (DeepSeek, OpenAI, self-hosted gateways).
type OpenAIReasoner struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewOpenAIReasoner(cfg config.LLMConfig, httpClient *http.Client) *OpenAIReasoner {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := cfg.BaseURLOrDefault(); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIReasoner{
		client:      openai.NewClient(opts...),
		model:       cfg.ModelOrDefault(),
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}
}

func (r *OpenAIReasoner) Model() string { return r.model }

func (r *OpenAIReasoner) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(r.temperature),
		MaxTokens:   openai.Int(r.maxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("openai", apiErr.StatusCode, err)
		}
		return "", classifyTransport("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", &models.MalformedResponseError{Reason: "no choices in reply"}
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyStatus maps an API status onto the retry taxonomy.
func classifyStatus(provider string, code int, err error) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusConflict,
		code == http.StatusTooManyRequests, code >= 500:
		return &models.TransientError{Err: fmt.Errorf("%s status %d: %w", provider, code, err)}
	}
	return fmt.Errorf("%s rejected request with status %d: %w", provider, code, err)
}

// classifyTransport treats everything without a status as a network failure,
// except cancellation of the caller.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &models.TransientError{Err: fmt.Errorf("%s: %w", provider, err)}
}

var _ service.Reasoner = (*OpenAIReasoner)(nil)
