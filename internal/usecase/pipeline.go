// Package usecase orchestrates the daily run: collect evidence, discover
// narratives, advance lifecycles, and produce consensus verdicts.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NarrativeScanner/internal/consensus"
	"NarrativeScanner/internal/discovery"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/lifecycle"
	"NarrativeScanner/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Collector  ports.Collector
	Store      ports.EvidenceStore
	Documents  ports.DocumentSource
	Repository ports.NarrativeRepository
	Engine     *discovery.Engine
	Tracker    *lifecycle.Tracker
	Analyzer   *consensus.Analyzer
	TopN       int
	Logger     *slog.Logger
}

// Pipeline implements the narrative-scanning workflow.
type Pipeline struct {
	collector  ports.Collector
	store      ports.EvidenceStore
	documents  ports.DocumentSource
	repository ports.NarrativeRepository
	engine     *discovery.Engine
	tracker    *lifecycle.Tracker
	analyzer   *consensus.Analyzer
	topN       int
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		collector:  deps.Collector,
		store:      deps.Store,
		documents:  deps.Documents,
		repository: deps.Repository,
		engine:     deps.Engine,
		tracker:    deps.Tracker,
		analyzer:   deps.Analyzer,
		topN:       deps.TopN,
		logger:     deps.Logger,
	}
}

// ProcessDay runs one complete pass for the given day. A batch too small
// for discovery is not an error for the run as a whole: existing
// narratives still get their lifecycle update.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) error {
	docs, err := p.collect(ctx, day)
	if err != nil {
		return err
	}

	if p.engine != nil && len(docs) > 0 {
		narratives, stats, err := p.engine.Discover(ctx, docs, p.topN)
		switch {
		case errors.Is(err, domain.ErrDataInsufficient):
			p.info("batch too small for discovery, skipping",
				"analyzed", stats.TotalAnalyzed, "valid", stats.ValidDocuments)
		case err != nil:
			return fmt.Errorf("discover narratives: %w", err)
		default:
			p.info("discovery complete",
				"narratives", len(narratives),
				"clusters", stats.ClustersFormed,
				"themes", stats.ThemesExtracted,
				"seconds", stats.ProcessingSeconds)
			if p.repository != nil {
				for _, n := range narratives {
					if err := p.repository.SaveNarrative(ctx, n); err != nil {
						return fmt.Errorf("save narrative %s: %w", n.ID, err)
					}
				}
			}
		}
	}

	return p.analyzeActive(ctx)
}

func (p *Pipeline) collect(ctx context.Context, day time.Time) ([]domain.Evidence, error) {
	if p.collector == nil {
		return nil, nil
	}

	docs, err := p.collector.Collect(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("collect evidence: %w", err)
	}
	p.info("collected evidence", "count", len(docs), "day", day.Format("2006-01-02"))

	if p.store != nil {
		for _, doc := range docs {
			if err := p.store.SaveEvidence(ctx, doc); err != nil {
				return nil, fmt.Errorf("persist evidence %s: %w", doc.ID, err)
			}
		}
	}
	return docs, nil
}

// analyzeActive advances every active narrative through the state machine
// and runs the consensus panel on each survivor.
func (p *Pipeline) analyzeActive(ctx context.Context) error {
	if p.repository == nil || p.tracker == nil {
		return nil
	}

	active, err := p.repository.ActiveNarratives(ctx)
	if err != nil {
		return fmt.Errorf("load active narratives: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	tracked, err := p.tracker.TrackAll(ctx, active)
	if err != nil {
		return fmt.Errorf("track narratives: %w", err)
	}

	if p.analyzer == nil {
		return nil
	}

	for _, n := range tracked {
		if n.Phase.Terminal() {
			continue
		}

		var evidence []domain.Evidence
		if p.documents != nil {
			since := n.LastUpdated.Add(-7 * 24 * time.Hour)
			evidence, err = p.documents.EvidenceForNarrative(ctx, n.ID, since)
			if err != nil {
				return fmt.Errorf("load evidence for %s: %w", n.ID, err)
			}
		}

		result, err := p.analyzer.Analyze(ctx, n, evidence)
		if err != nil {
			return fmt.Errorf("analyze narrative %s: %w", n.ID, err)
		}
		p.info("narrative verdict",
			"narrative", n.Name,
			"phase", result.Phase,
			"strength", result.Strength,
			"method", result.AnalysisMethod)
	}
	return nil
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}
