package health

import "context"

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an embedding or language-model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexSizer reports how many trials the corpus index holds.
type IndexSizer interface {
	Len() int
}
