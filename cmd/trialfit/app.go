package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/config"
	"github.com/kailas-cloud/trialfit/internal/db"
	"github.com/kailas-cloud/trialfit/internal/db/memory"
	dbRedis "github.com/kailas-cloud/trialfit/internal/db/redis"
	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/metrics"
	budgetrepo "github.com/kailas-cloud/trialfit/internal/repository/budget"
	corpusrepo "github.com/kailas-cloud/trialfit/internal/repository/corpus"
	"github.com/kailas-cloud/trialfit/internal/repository/embcache"
	anthropicLLM "github.com/kailas-cloud/trialfit/internal/transport/anthropic"
	"github.com/kailas-cloud/trialfit/internal/transport/local"
	openaiProv "github.com/kailas-cloud/trialfit/internal/transport/openai"
	corpusuc "github.com/kailas-cloud/trialfit/internal/usecase/corpus"
	embeddinguc "github.com/kailas-cloud/trialfit/internal/usecase/embedding"
	extractionuc "github.com/kailas-cloud/trialfit/internal/usecase/extraction"
	feasibilityuc "github.com/kailas-cloud/trialfit/internal/usecase/feasibility"
	healthuc "github.com/kailas-cloud/trialfit/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/trialfit/internal/usecase/pipeline"
	"github.com/kailas-cloud/trialfit/internal/usecase/resilience"
	retrievaluc "github.com/kailas-cloud/trialfit/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/trialfit/internal/usecase/usage"
)

// app is the composition root shared by the serve, run and index commands.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	registry   *schema.Registry
	cache      db.Store
	sqlite     *corpusrepo.SQLiteStore
	llm        domain.Completer
	docEmbed   domain.Embedder
	queryEmbed domain.Embedder
	corpus     *corpusuc.Service
	extraction *extractionuc.Service
	retrieval  *retrievaluc.Service
	pipeline   *pipelineuc.Service
	health     *healthuc.Service
	usage      *usageuc.Service
}

// newApp wires every component and loads the corpus into the index.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterPipelineMetrics()

	a := &app{cfg: cfg, logger: logger, registry: schema.Default()}

	cache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.cache = cache

	// Single budget tracker shared by the completer chain and the usage report.
	var budget *usageuc.BudgetTracker
	if cfg.LLM.Budget.Enabled() {
		action := usageuc.BudgetActionWarn
		if cfg.LLM.Budget.Action == "reject" {
			action = usageuc.BudgetActionReject
		}
		budget = usageuc.NewBudgetTracker(
			cfg.LLM.Provider, cfg.LLM.Budget.DailyTokenLimit, cfg.LLM.Budget.MonthlyTokenLimit, action, logger,
		)
		if cache != nil {
			budget.WithStore(ctx, budgetrepo.New(cache, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
	}

	a.llm = buildCompleter(cfg.LLM, budget, logger)

	// Pass a nil interface, not a typed nil pointer, when no budget is configured.
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	a.usage = usageuc.New(budgetReader, cfg.LLM.Provider)
	a.docEmbed = buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, cache, cfg.Cache, logger)
	a.queryEmbed = buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, cache, cfg.Cache, logger)
	logger.Info("Providers configured",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("cache", cfg.Cache.Driver),
	)

	// Corpus source; sqlite doubles as the store for trials added over HTTP.
	var (
		src   corpusuc.Source
		saver corpusuc.Saver
	)
	switch cfg.Corpus.Source {
	case "sqlite":
		store, err := corpusrepo.OpenSQLite(cfg.Corpus.Path, a.registry, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sqlite = store
		src, saver = store, store
	default:
		src = corpusrepo.NewJSONLSource(cfg.Corpus.Path, a.registry, logger)
	}

	a.corpus, err = corpusuc.New(a.docEmbed, cfg.Embedding.Dimensions, saver, logger.Named("corpus"))
	if err != nil {
		a.Close()
		return nil, err
	}
	stats, err := a.corpus.Load(ctx, src)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	logger.Info("Corpus loaded",
		zap.String("source", cfg.Corpus.Source),
		zap.String("path", cfg.Corpus.Path),
		zap.Int("trials", stats.Trials),
		zap.Int("skipped", stats.Skipped),
	)

	a.extraction = extractionuc.New(a.llm, a.registry, extractionuc.Config{
		ChunkChars:   cfg.Extraction.ChunkChars,
		ChunkOverlap: cfg.Extraction.ChunkOverlap,
		Concurrency:  cfg.Extraction.Concurrency,
	}, logger.Named("extraction"))

	a.retrieval = retrievaluc.New(a.queryEmbed, a.corpus.Catalog(), retrievaluc.Config{
		OversampleFactor: cfg.Retrieval.OversampleFactor,
		MinSimilarity:    cfg.Retrieval.MinSimilarity,
	}, logger.Named("retrieval"))

	fcfg := feasibilityConfig(cfg.Feasibility)
	if err := fcfg.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("feasibility config: %w", err)
	}
	estimator := feasibilityuc.New(fcfg)

	a.pipeline = pipelineuc.New(a.extraction, a.retrieval, estimator, a.corpus.Index(), pipelineuc.Config{
		ExtractTimeout:  time.Duration(cfg.Extraction.TimeoutSec) * time.Second,
		RetrieveTimeout: time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		DefaultK:        cfg.Retrieval.K,
	}, logger.Named("pipeline"))

	var llmChecker healthuc.ProviderChecker
	if hc, ok := a.llm.(domain.HealthChecker); ok {
		llmChecker = hc
	}
	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	a.health = healthuc.New(cachePinger, newEmbeddingHealthChecker(a.docEmbed), llmChecker, a.corpus.Index())

	return a, nil
}

// Close releases the cache connection and the corpus database.
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("Failed to close corpus database", zap.Error(err))
		}
	}
}

// similar binds the retrieval service to the process-wide index.
func (a *app) similar() *similarFinder {
	return &similarFinder{svc: a.retrieval, idx: a.corpus.Index()}
}

type similarFinder struct {
	svc *retrievaluc.Service
	idx retrievaluc.Index
}

func (f *similarFinder) SimilarTo(trialID string, k int) ([]trial.Comparator, error) {
	return f.svc.Similar(f.idx, trialID, k)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// openCache creates the embedding cache backend. Driver "none" returns nil.
func openCache(ctx context.Context, cfg config.CacheConfig) (db.Store, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis cache not ready: %w", err)
		}
		return store, nil
	default:
		store, err := memory.NewStore(cfg.LRUSize)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		return store, nil
	}
}

// buildCompleter assembles the language-model chain: provider -> Resilience -> Budget.
func buildCompleter(cfg config.LLMConfig, budget *usageuc.BudgetTracker, logger *zap.Logger) domain.Completer {
	var base domain.Completer
	switch cfg.Provider {
	case "anthropic":
		base = anthropicLLM.NewCompleter(&anthropicLLM.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Provider:    cfg.Provider,
			Logger:      logger,
		})
	default:
		base = openaiProv.NewCompleter(&openaiProv.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Provider:    cfg.Provider,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
			Logger:      logger,
		})
	}
	policy := resilience.New("llm", resilienceConfig(cfg.Resilience), logger)
	var chain domain.Completer = resilience.NewCompleter(base, policy)

	// Budget is outermost so a refused call never reaches the rate limiter.
	if budget != nil {
		chain = usageuc.NewBudgetedCompleter(chain, budget)
	}
	return &healthyCompleter{Completer: chain, base: base}
}

// healthyCompleter exposes the provider health check through the wrappers.
type healthyCompleter struct {
	domain.Completer
	base domain.Completer
}

func (c *healthyCompleter) HealthCheck(ctx context.Context) error {
	if hc, ok := c.base.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// buildEmbedder assembles the decorator chain:
// provider -> Resilience -> Cached -> Instrumented -> Instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
	store db.Store,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder
	model := cfg.Model
	switch cfg.Provider {
	case "openai":
		base := openaiProv.NewEmbedder(&openaiProv.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
		// Resilience sits on the transport so cache hits skip the rate limiter.
		embedder = resilience.NewEmbedder(base, resilience.New("embedding", resilienceConfig(cfg.Resilience), logger))
	default:
		embedder = local.NewHashingEmbedder(cfg.Dimensions)
		model = fmt.Sprintf("hashing-%d", cfg.Dimensions)
	}

	// Cached
	if store != nil {
		embedder = embcache.New(embedder, store, model,
			time.Duration(cacheCfg.TTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (metrics + dimension check)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, model, cfg.Dimensions, logger)

	// Instruction prefix is outermost: the cache key includes the instruction
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

func resilienceConfig(c config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: time.Duration(c.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(c.MaxIntervalMs) * time.Millisecond,
		AttemptTimeout:  time.Duration(c.AttemptTimeoutSec) * time.Second,
		RateLimit:       c.RateLimit,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: time.Duration(c.BreakerCooldownSec) * time.Second,
	}
}

// feasibilityConfig maps the YAML section onto the estimator config.
// Validate has already rejected unknown metric names.
func feasibilityConfig(c config.FeasibilityConfig) feasibilityuc.Config {
	out := feasibilityuc.Config{
		Z:                     c.Z,
		PriorVarianceFraction: c.PriorVarianceFraction,
		HighMinComparators:    c.High.MinComparators,
		HighSimilarityFloor:   c.High.SimilarityFloor,
		MediumMinComparators:  c.Medium.MinComparators,
		MediumSimilarityFloor: c.Medium.SimilarityFloor,
		Priors:                make(map[trial.Metric]feasibilityuc.Prior, len(c.Priors)),
	}
	for name, p := range c.Priors {
		m, err := trial.ParseMetric(name)
		if err != nil {
			continue
		}
		out.Priors[m] = feasibilityuc.Prior{Point: p.Point, Min: p.Min, Max: p.Max}
	}
	out.ApplyDefaults()
	return out
}
