// Package app wires configuration into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/consensus"
	"NarrativeScanner/internal/discovery"
	"NarrativeScanner/internal/infrastructure/collector"
	"NarrativeScanner/internal/infrastructure/embed"
	"NarrativeScanner/internal/infrastructure/llm"
	"NarrativeScanner/internal/infrastructure/scheduler"
	"NarrativeScanner/internal/infrastructure/storage"
	"NarrativeScanner/internal/lifecycle"
	"NarrativeScanner/internal/logging"
	"NarrativeScanner/internal/ports"
	"NarrativeScanner/internal/scanner"
	"NarrativeScanner/internal/sentiment"
	"NarrativeScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	store     *storage.SQLiteRepository
}

// New builds a runnable application instance. Providers without credentials
// are skipped, so a bare environment still runs with lexical fallbacks.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	classifier := buildClassifierChain(ctx, cfg, baseLogger)
	embedder := buildEmbedder(ctx, cfg, baseLogger)

	registry := scanner.NewRegistry()
	registry.Register(collector.NewHeadlineScanner(nil))
	source := collector.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "collector"))

	scorer := sentiment.NewScorer()

	engine := discovery.NewEngine(discovery.EngineDeps{
		Filter:    discovery.NewRelevanceFilter(cfg.Narrative.RelevancePercentile),
		Themes:    discovery.NewThemeExtractor(classifier, baseLogger.With("component", "themes")),
		Clusters:  discovery.NewClusterBuilder(embedder, baseLogger.With("component", "clusters")),
		Builder:   discovery.NewNarrativeBuilder(scorer),
		Documents: store,
		Logger:    baseLogger.With("component", "discovery"),
	})

	tracker := lifecycle.NewTracker(lifecycle.TrackerDeps{
		Documents: store,
		Prices:    store,
		Repo:      store,
		Scorer:    scorer,
		Config:    cfg.Narrative,
		Logger:    baseLogger.With("component", "lifecycle"),
	})

	analyzer := consensus.NewAnalyzer(consensus.AnalyzerDeps{
		Tracker:      tracker,
		Orchestrator: consensus.NewOrchestrator(classifier, cfg.Consensus, baseLogger.With("component", "panel")),
		Repo:         store,
		Config:       cfg.Hybrid,
		Logger:       baseLogger.With("component", "consensus"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Collector:  source,
		Store:      store,
		Documents:  store,
		Repository: store,
		Engine:     engine,
		Tracker:    tracker,
		Analyzer:   analyzer,
		TopN:       cfg.Narrative.TopNarratives,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	app := &Application{cfg: cfg, pipeline: pipeline, store: store}
	if !cfg.Scheduler.RunOnce {
		driver := scheduler.NewIntervalScheduler(cfg.Scheduler.IntervalHours)
		app.scheduler = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))
	}
	return app, nil
}

// Run executes once immediately, or starts the recurring schedule and
// blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	if a.scheduler == nil {
		return a.pipeline.ProcessDay(ctx, time.Now())
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}

// buildClassifierChain orders providers by preference: Groq first for speed,
// Gemini as fallback. Both are optional.
func buildClassifierChain(ctx context.Context, cfg config.Config, log *slog.Logger) ports.TextClassifier {
	chain := llm.NewChain(log.With("component", "llm.chain"))

	if cfg.Providers.Groq.APIKey != "" {
		chain.Add(llm.NewOpenAIClient(cfg.Providers.Groq), cfg.Providers.Groq.RateLimit)
	}
	if cfg.Providers.GenAI.APIKey != "" {
		client, err := llm.NewGenAIClient(ctx, cfg.Providers.GenAI)
		if err != nil {
			log.Warn("genai classifier unavailable", "error", err)
		} else {
			chain.Add(client, cfg.Providers.GenAI.RateLimit)
		}
	}

	if chain.Len() == 0 {
		log.Info("no classifier providers configured, lexical fallbacks will be used")
	}
	return chain
}

// buildEmbedder chains the cloud embedding model ahead of the local Ollama
// server. Failures at call time fall through link by link, mirroring the
// classifier chain.
func buildEmbedder(ctx context.Context, cfg config.Config, log *slog.Logger) ports.EmbeddingProvider {
	chain := embed.NewChain(log.With("component", "embed.chain"))

	if cfg.Providers.GenAI.APIKey != "" {
		provider, err := embed.NewGenAIProvider(ctx, cfg.Providers.GenAI)
		if err != nil {
			log.Warn("genai embedder unavailable", "error", err)
		} else {
			chain.Add(provider)
		}
	}
	chain.Add(embed.NewOllamaProvider(cfg.Providers.Ollama))
	return chain
}
