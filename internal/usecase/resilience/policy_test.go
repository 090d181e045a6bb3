package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		BreakerFailures: 100,
	}
}

func transient() error {
	return &domain.ProviderError{
		Provider: "test", StatusCode: 503, Retryable: true,
		Kind: domain.ErrLLMProviderError, Err: errors.New("unavailable"),
	}
}

func permanent() error {
	return &domain.ProviderError{
		Provider: "test", StatusCode: 400, Retryable: false,
		Kind: domain.ErrLLMProviderError, Err: errors.New("bad request"),
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := New("test", fastConfig(), nil)
	var calls atomic.Int32

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", transient()
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls.Load() != 3 {
		t.Errorf("got %q after %d calls", got, calls.Load())
	}
}

func TestDo_RetriesExhausted(t *testing.T) {
	p := New("test", fastConfig(), nil)
	var calls atomic.Int32

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, transient()
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Error("exhausted error must still carry the provider kind")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	p := New("test", fastConfig(), nil)
	var calls atomic.Int32

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, permanent()
	})
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if errors.Is(err, domain.ErrRetriesExhausted) {
		t.Error("non-retryable error must not be reported as exhausted")
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 400 {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestDo_BreakerOpens(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Hour
	p := New("test", cfg, nil)

	var calls atomic.Int32
	op := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, transient()
	}
	for range 2 {
		_, _ = Do(context.Background(), p, op)
	}

	_, err := Do(context.Background(), p, op)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker must not call the provider, calls = %d", calls.Load())
	}
}

func TestDo_ClientErrorsDoNotTripBreaker(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerFailures = 1
	p := New("test", cfg, nil)

	for range 3 {
		_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 0, permanent() })
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatal("breaker opened on client errors")
		}
	}
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	cfg := fastConfig()
	cfg.AttemptTimeout = 5 * time.Millisecond
	p := New("test", cfg, nil)
	var calls atomic.Int32

	got, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestDo_CallerDeadline(t *testing.T) {
	p := New("test", fastConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, domain.ErrRetriesExhausted) {
		t.Error("caller deadline must not be reported as exhausted retries")
	}
}

type stubCompleter struct {
	calls atomic.Int32
	errs  []error
}

func (s *stubCompleter) Complete(context.Context, string, string) (domain.CompletionResult, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return domain.CompletionResult{}, s.errs[n]
	}
	return domain.CompletionResult{Text: "{}"}, nil
}

func TestCompleter_RetriesTransient(t *testing.T) {
	inner := &stubCompleter{errs: []error{transient()}}
	c := NewCompleter(inner, New("llm", fastConfig(), nil))

	res, err := c.Complete(context.Background(), "p", "")
	if err != nil || res.Text != "{}" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", inner.calls.Load())
	}
}

type stubEmbedder struct {
	calls atomic.Int32
}

func (s *stubEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	if s.calls.Add(1) == 1 {
		return domain.EmbeddingResult{}, transient()
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func TestEmbedder_BatchFallsBackUnderPolicy(t *testing.T) {
	inner := &stubEmbedder{}
	e := NewEmbedder(inner, New("emb", fastConfig(), nil))

	res, err := e.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("embeddings = %d", len(res.Embeddings))
	}
}
