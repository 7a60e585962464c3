package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

// EngineDeps wires the pipeline stages into the discovery engine.
type EngineDeps struct {
	Filter    *RelevanceFilter
	Themes    *ThemeExtractor
	Clusters  *ClusterBuilder
	Builder   *NarrativeBuilder
	Documents ports.DocumentSource
	Logger    *slog.Logger
}

// Engine runs the full discovery pipeline: validate, score relevance,
// extract themes, cluster, build narratives, rank.
type Engine struct {
	filter    *RelevanceFilter
	themes    *ThemeExtractor
	clusters  *ClusterBuilder
	builder   *NarrativeBuilder
	documents ports.DocumentSource
	logger    *slog.Logger
}

// NewEngine constructs the discovery pipeline.
func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		filter:    deps.Filter,
		themes:    deps.Themes,
		clusters:  deps.Clusters,
		builder:   deps.Builder,
		documents: deps.Documents,
		logger:    deps.Logger,
	}
}

// Discover turns a raw document batch into the top n narratives plus run
// statistics. Batches with fewer than MinBatchSize usable documents abort
// with domain.ErrDataInsufficient and empty (not nil-panicking) results.
func (e *Engine) Discover(ctx context.Context, docs []domain.Evidence, topN int) ([]domain.Narrative, domain.DiscoveryStats, error) {
	start := time.Now()
	stats := domain.DiscoveryStats{TotalAnalyzed: len(docs)}

	valid := e.filter.Validate(docs)
	stats.ValidDocuments = len(valid)
	e.debug("validation complete", "input", len(docs), "valid", len(valid))

	if len(valid) < MinBatchSize {
		stats.ProcessingSeconds = time.Since(start).Seconds()
		return nil, stats, fmt.Errorf("discovery: %d valid documents: %w", len(valid), domain.ErrDataInsufficient)
	}

	relevant := e.filter.Filter(valid)
	stats.RelevantDocuments = len(relevant)
	e.debug("relevance filtering complete", "relevant", len(relevant))

	if len(relevant) < MinBatchSize {
		stats.ProcessingSeconds = time.Since(start).Seconds()
		return nil, stats, fmt.Errorf("discovery: %d relevant documents: %w", len(relevant), domain.ErrDataInsufficient)
	}

	themes := e.themes.Extract(ctx, relevant)
	stats.ThemesExtracted = len(themes)
	e.debug("theme extraction complete", "themes", len(themes))

	clusters, err := e.clusters.Clusters(ctx, relevant)
	if err != nil {
		stats.ProcessingSeconds = time.Since(start).Seconds()
		return nil, stats, fmt.Errorf("cluster documents: %w", err)
	}
	stats.ClustersFormed = len(clusters)

	narratives := e.builder.Build(clusters, relevant)
	ranked := e.builder.Rank(narratives, topN)

	if err := e.assignEvidence(ctx, ranked, narratives, clusters, relevant); err != nil {
		return nil, stats, err
	}

	stats.ProcessingSeconds = time.Since(start).Seconds()
	e.debug("discovery complete", "narratives", len(ranked), "seconds", stats.ProcessingSeconds)
	return ranked, stats, nil
}

// assignEvidence writes narrative IDs back onto the documents of every
// cluster that survived ranking. Build walks clusters in order and skips
// groups below two documents, so the same walk recovers the pairing; Rank
// copies values and keeps IDs.
func (e *Engine) assignEvidence(ctx context.Context, ranked, all []domain.Narrative, clusters [][]int, relevant []RelevanceResult) error {
	if e.documents == nil {
		return nil
	}

	keep := map[string]bool{}
	for _, n := range ranked {
		keep[n.ID] = true
	}

	built := make([][]int, 0, len(clusters))
	for _, cluster := range clusters {
		if len(cluster) >= 2 {
			built = append(built, cluster)
		}
	}

	for i, n := range all {
		if !keep[n.ID] || i >= len(built) {
			continue
		}

		for _, idx := range built[i] {
			if err := e.documents.AssignNarrative(ctx, relevant[idx].Evidence.ID, n.ID); err != nil {
				return fmt.Errorf("assign narrative %s: %w", n.ID, err)
			}
		}
	}

	return nil
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
