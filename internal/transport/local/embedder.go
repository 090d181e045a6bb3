// Package local provides an offline embedder for development and tests.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/trialfit/internal/domain"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 256

// HashingEmbedder maps text to a bag of hashed unigrams and bigrams. The
// vector is L2-normalized and identical text always yields the same vector.
// Empty text yields the zero vector.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder producing dim-dimensional vectors.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashingEmbedder{dim: dim}
}

// Dimensions returns the vector size.
func (e *HashingEmbedder) Dimensions() int { return e.dim }

// Embed implements domain.Embedder.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	tokens := tokenize(text)
	return domain.EmbeddingResult{
		Embedding:    e.vector(tokens),
		PromptTokens: len(tokens),
		TotalTokens:  len(tokens),
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *HashingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		res, err := e.Embed(ctx, t)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *HashingEmbedder) HealthCheck(context.Context) error { return nil }

func (e *HashingEmbedder) vector(tokens []string) []float32 {
	acc := make([]float64, e.dim)
	add := func(feature string, weight float64) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		// top bit picks the sign so collisions cancel instead of pile up
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1
		}
		acc[sum%uint64(e.dim)] += sign * weight
	}
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
