package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// parseAPIError converts a client error into a domain.ProviderError of the
// given kind (embedding or llm) so that the HTTP layer maps it to 502 and the
// retry policy can tell transient failures apart.
func parseAPIError(provider string, kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return &domain.ProviderError{
			Provider:   provider,
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  domain.RetryableStatus(reqErr.HTTPStatusCode),
			Kind:       kind,
			Err:        fmt.Errorf("API error %d: %s", reqErr.HTTPStatusCode, detail),
		}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Provider:   provider,
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  domain.RetryableStatus(apiErr.HTTPStatusCode),
			Kind:       kind,
			Err:        fmt.Errorf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message),
		}
	}

	// transport-level failure (connection refused, reset): worth another try
	return &domain.ProviderError{
		Provider:  provider,
		Retryable: true,
		Kind:      kind,
		Err:       fmt.Errorf("request failed: %w", err),
	}
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
