package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/db"
	"github.com/kailas-cloud/trialfit/internal/db/memory"
	"github.com/kailas-cloud/trialfit/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	var setKey string
	var setTTL time.Duration
	ms.setFn = func(_ context.Context, key string, _ []byte, ttl time.Duration) error {
		setKey, setTTL = key, ttl
		return nil
	}

	result, err := ce.Embed(ctx, "disease: NSCLC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !strings.HasPrefix(setKey, cacheKeyPrefix+"test-model:") {
		t.Errorf("cache key not scoped by model: %q", setKey)
	}
	if setTTL != time.Hour {
		t.Errorf("ttl = %v", setTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), "disease: NSCLC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("connection refused") }
	ms.setFn = func(context.Context, string, []byte, time.Duration) error { return errors.New("connection refused") }

	res, err := ce.Embed(context.Background(), "x")
	if err != nil || len(res.Embedding) != 1 {
		t.Fatalf("cache failures must not fail embedding: %v", err)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, _ := newTestCachedEmbedder(t, inner)

	if _, err := ce.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.7}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return []byte{1, 2, 3}, nil }

	res, err := ce.Embed(context.Background(), "x")
	if err != nil || res.Embedding[0] != 0.7 {
		t.Fatalf("expected inner vector, got %v, %v", res.Embedding, err)
	}
}

// --- BatchEmbed tests ---

func TestBatchEmbed_OnlyMissesReachInner(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 5,
		TotalTokens:  5,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getMultiFn = func(_ context.Context, keys []string) ([][]byte, error) {
		out := make([][]byte, len(keys))
		out[1] = vectorToCacheBytes([]float32{0.9, 0.9})
		return out, nil
	}
	var stored []db.KVItem
	ms.setMultiFn = func(_ context.Context, items []db.KVItem, _ time.Duration) error {
		stored = items
		return nil
	}

	res, err := ce.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 || res.Embeddings[1][0] != 0.9 || res.Embeddings[2][0] != 0.1 {
		t.Fatalf("unexpected embeddings: %v", res.Embeddings)
	}
	if inner.batchCalls != 1 || strings.Join(inner.batchTexts, ",") != "a,c" {
		t.Errorf("inner got %d calls with %v", inner.batchCalls, inner.batchTexts)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 cache puts, got %d", len(stored))
	}
	if res.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10", res.TotalTokens)
	}
}

func TestBatchEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getMultiFn = func(_ context.Context, keys []string) ([][]byte, error) {
		out := make([][]byte, len(keys))
		for i := range out {
			out[i] = vectorToCacheBytes([]float32{1})
		}
		return out, nil
	}

	res, err := ce.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil || len(res.Embeddings) != 2 {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if inner.batchCalls != 0 {
		t.Error("inner must not be called when everything is cached")
	}
}

func TestBatchEmbed_InnerCountMismatch(t *testing.T) {
	inner := &mockEmbedder{batchResult: domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}}}
	ce, _ := newTestCachedEmbedder(t, inner)

	if _, err := ce.BatchEmbed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for count mismatch")
	}
}

func TestBatchEmbed_WithMemoryStore(t *testing.T) {
	store, err := memory.NewStore(100)
	if err != nil {
		t.Fatal(err)
	}
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5, 0.5}, TotalTokens: 3}}
	ce := New(inner, store, "m", 0, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := ce.BatchEmbed(ctx, []string{"x", "y"}); err != nil {
		t.Fatal(err)
	}
	res, err := ce.BatchEmbed(ctx, []string{"y", "x"})
	if err != nil {
		t.Fatal(err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("second batch should be served from cache, inner calls = %d", inner.batchCalls)
	}
	if res.TotalTokens != 0 {
		t.Errorf("cached batch reported %d tokens", res.TotalTokens)
	}

	// single Embed shares the cache with batches
	single, err := ce.Embed(ctx, "x")
	if err != nil || single.TotalTokens != 0 {
		t.Errorf("expected cache hit, got %+v, %v", single, err)
	}
}
