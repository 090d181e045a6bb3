package domain

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage for error attribution.
type Stage string

// Pipeline stages.
const (
	StageExtraction Stage = "extraction"
	StageRetrieval  Stage = "retrieval"
	StageEstimation Stage = "estimation"
)

var (
	// ErrExtraction signals an unrecoverable extraction failure.
	ErrExtraction = errors.New("extraction failed")
	// ErrRetrieval signals a failed comparator lookup.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrEstimation signals a broken estimator invariant.
	ErrEstimation = errors.New("estimation failed")
	// ErrTimeout signals an external call that exceeded the caller's budget.
	ErrTimeout = errors.New("timeout")
	// ErrIndex signals corpus index misuse.
	ErrIndex = errors.New("index error")
	// ErrDimensionMismatch signals a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyDocument signals a protocol document without readable text.
	ErrEmptyDocument = errors.New("empty document")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a language-model provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrRetriesExhausted signals that bounded retries gave up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrLLMBudgetExceeded signals a spent language-model token budget.
	ErrLLMBudgetExceeded = errors.New("llm token budget exceeded")
	// ErrNotFound signals a missing trial.
	ErrNotFound = errors.New("not found")
)

// ExtractionError wraps the cause of an unrecoverable extraction failure.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extraction: " + e.Err.Error() }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is reports ErrExtraction as this error's kind.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// RetrievalError wraps the cause of a failed retrieval.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is reports ErrRetrieval as this error's kind.
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// TimeoutError is the timeout subtype of a stage's failure kind: it matches
// ErrTimeout and the stage sentinel (ErrExtraction, ErrRetrieval) with errors.Is.
type TimeoutError struct {
	Stage Stage
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, ErrTimeout.Error(), e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is matches ErrTimeout and the sentinel of the stage that timed out.
func (e *TimeoutError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return true
	case ErrExtraction:
		return e.Stage == StageExtraction
	case ErrRetrieval:
		return e.Stage == StageRetrieval
	}
	return false
}

// IndexError reports corpus index misuse (empty build input, mixed dimensions).
type IndexError struct {
	Reason string
}

func (e *IndexError) Error() string { return ErrIndex.Error() + ": " + e.Reason }

// Is reports ErrIndex as this error's kind.
func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

// Is matches ErrDimensionMismatch and, as a kind of index misuse, ErrIndex.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch || target == ErrIndex
}

// EstimationError reports an internal invariant violation inside the estimator.
type EstimationError struct {
	Reason string
}

func (e *EstimationError) Error() string { return ErrEstimation.Error() + ": " + e.Reason }

// Is reports ErrEstimation as this error's kind.
func (e *EstimationError) Is(target error) bool { return target == ErrEstimation }

// StageError attributes a pipeline failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ProviderError is returned by transport adapters. Retryable marks transient
// failures (rate limits, 5xx, network) that a retry policy may repeat.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsRetryable reports whether err carries a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// RetryableStatus classifies an HTTP status code returned by a provider.
func RetryableStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}
