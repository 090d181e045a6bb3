// Package anthropic adapts the Anthropic Messages API to domain.Completer.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/metrics"
)

const systemPrompt = "You extract structured data from clinical trial protocols. Respond with strict JSON only."

// Messager is the part of the SDK client the completer uses.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Provider    string
	Logger      *zap.Logger
}

// Completer implements domain.Completer over the Messages API.
type Completer struct {
	messages    Messager
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	provider    string
	logger      *zap.Logger
}

// NewCompleter creates a completer with its own SDK client. SDK retries are
// disabled: the resilience policy owns retrying.
func NewCompleter(cfg *Config) *Completer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return NewCompleterWithMessager(&client.Messages, cfg)
}

// NewCompleterWithMessager creates a completer over an existing messager.
func NewCompleterWithMessager(m Messager, cfg *Config) *Completer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "anthropic"
	}
	return &Completer{
		messages:    m,
		model:       anthropic.Model(cfg.Model),
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		provider:    provider,
		logger:      logger,
	}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, prompt, schemaHint string) (domain.CompletionResult, error) {
	system := systemPrompt
	if schemaHint != "" {
		system += "\nThe JSON object must have this shape:\n" + schemaHint
	}

	model := string(c.model)
	start := time.Now()
	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(c.temperature),
	})
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, model, "error").Inc()
		return domain.CompletionResult{}, c.providerError(err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, model, "error").Inc()
		return domain.CompletionResult{}, &domain.ProviderError{
			Provider:  c.provider,
			Retryable: true,
			Kind:      domain.ErrLLMProviderError,
			Err:       errors.New("empty completion"),
		}
	}

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	metrics.LLMRequestsTotal.WithLabelValues(c.provider, model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.provider, model).Observe(duration.Seconds())
	metrics.LLMTokensTotal.WithLabelValues(c.provider, model, "prompt").Add(float64(promptTokens))
	metrics.LLMTokensTotal.WithLabelValues(c.provider, model, "completion").Add(float64(completionTokens))

	c.logger.Debug("Completion finished",
		zap.String("provider", c.provider),
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
	)

	return domain.CompletionResult{
		Text:             sb.String(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func (c *Completer) providerError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Provider:   c.provider,
			StatusCode: apiErr.StatusCode,
			// 529 overloaded is covered by >= 500
			Retryable: domain.RetryableStatus(apiErr.StatusCode),
			Kind:      domain.ErrLLMProviderError,
			Err:       fmt.Errorf("messages API: %w", err),
		}
	}
	return &domain.ProviderError{
		Provider:  c.provider,
		Retryable: true,
		Kind:      domain.ErrLLMProviderError,
		Err:       fmt.Errorf("messages request: %w", err),
	}
}
