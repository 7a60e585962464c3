package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/lifecycle"
	"NarrativeScanner/internal/ports"
	"NarrativeScanner/internal/sentiment"
)

// Analyzer blends the panel's judgment with the metric state machine.
// The panel decides the phase when it is confident; otherwise the metric
// transition table does, and the result is marked as a fallback. Strength
// is always a weighted blend of both sources.
type Analyzer struct {
	tracker      *lifecycle.Tracker
	orchestrator *Orchestrator
	repo         ports.NarrativeRepository
	cfg          config.HybridConfig
	logger       *slog.Logger
	now          func() time.Time
}

type AnalyzerDeps struct {
	Tracker      *lifecycle.Tracker
	Orchestrator *Orchestrator
	Repo         ports.NarrativeRepository
	Config       config.HybridConfig
	Logger       *slog.Logger
}

func NewAnalyzer(deps AnalyzerDeps) *Analyzer {
	return &Analyzer{
		tracker:      deps.Tracker,
		orchestrator: deps.Orchestrator,
		repo:         deps.Repo,
		cfg:          deps.Config,
		logger:       deps.Logger,
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source in tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

// Analyze produces a consensus verdict for one narrative. Metric
// calculation errors are fatal because the fallback path depends on them;
// panel failures are not, they degrade into neutral votes inside the
// orchestrator.
func (a *Analyzer) Analyze(ctx context.Context, n domain.Narrative, evidence []domain.Evidence) (domain.ConsensusResult, error) {
	// Conflict detection needs the other active narratives.
	var others []domain.Narrative
	if a.repo != nil {
		active, err := a.repo.ActiveNarratives(ctx)
		if err != nil {
			return domain.ConsensusResult{}, fmt.Errorf("load active narratives: %w", err)
		}
		others = active
	}

	metrics, err := a.tracker.CalculateMetrics(ctx, n, others)
	if err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("calculate metrics: %w", err)
	}
	metricsPhase, _ := a.tracker.NextPhase(n, metrics)
	metricsStrength := a.tracker.Strength(metrics)

	outcome := a.orchestrator.RunPanel(ctx, n, evidence, metrics)

	result := domain.ConsensusResult{
		NarrativeID:      n.ID,
		Votes:            outcome.Votes,
		MinorityOpinions: outcome.MinorityOpinions,
		ConsensusLevel:   outcome.ConsensusLevel,
		Timestamp:        a.now(),
	}

	if outcome.Confidence >= a.cfg.HighConfidenceThreshold {
		result.Phase = outcome.Phase
		result.Confidence = outcome.Confidence
		result.AnalysisMethod = domain.MethodPanel
	} else {
		result.Phase = metricsPhase
		result.Confidence = a.cfg.FallbackConfidence
		result.AnalysisMethod = domain.MethodMetricsFallback
	}

	blended := a.cfg.PanelWeight*float64(outcome.Strength) + a.cfg.MetricsWeight*float64(metricsStrength)
	result.Strength = clampInt(int(blended+0.5), 0, 100)
	result.Explanation = a.explain(n, metrics, metricsStrength, outcome, result)

	a.info("consensus analysis complete",
		"narrative", n.Name,
		"phase", result.Phase,
		"strength", result.Strength,
		"confidence", result.Confidence,
		"method", result.AnalysisMethod,
		"rounds", outcome.Rounds)

	if a.repo != nil {
		// The stored lifecycle only moves forward, and entering death
		// stamps death_time. A verdict naming an earlier phase is kept in
		// the result as the panel's opinion but never written back.
		updated := n
		switch {
		case result.Phase == n.Phase:
		case n.Phase.Precedes(result.Phase):
			a.tracker.ApplyTransition(&updated, result.Phase)
		default:
			a.info("verdict phase ignored for persistence",
				"narrative", n.Name, "stored", n.Phase, "verdict", result.Phase)
		}
		updated.SetStrength(result.Strength)
		updated.LastUpdated = a.now()
		if err := a.repo.SaveNarrative(ctx, updated); err != nil {
			return result, fmt.Errorf("save narrative: %w", err)
		}
	}
	return result, nil
}

func (a *Analyzer) explain(n domain.Narrative, m lifecycle.Metrics, metricsStrength int, outcome PanelOutcome, result domain.ConsensusResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s assessed as %s (strength %d, confidence %.2f) via %s.\n",
		n.Name, result.Phase, result.Strength, result.Confidence, result.AnalysisMethod)
	fmt.Fprintf(&b, "Metrics: velocity %.2f/hr (%+.0f%% vs prior day), correlation %.2f, sentiment %+.2f (%s); metric strength %d.\n",
		m.CurrentVelocity, m.VelocityIncrease*100, m.PriceCorrelation,
		m.CurrentSentiment, sentiment.Label(m.CurrentSentiment), metricsStrength)

	tally := map[domain.Phase]int{}
	for _, v := range outcome.Votes {
		tally[v.Phase]++
	}
	fmt.Fprintf(&b, "Panel: %d/%d roles voted %s (%.0f%% agreement",
		tally[outcome.Phase], len(outcome.Votes), outcome.Phase, outcome.ConsensusLevel*100)
	if outcome.Rounds > 1 {
		b.WriteString(", after debate")
	}
	b.WriteString(").")

	if len(outcome.MinorityOpinions) > 0 {
		fmt.Fprintf(&b, " %d dissenting opinion(s):", len(outcome.MinorityOpinions))
		for _, v := range outcome.MinorityOpinions {
			fmt.Fprintf(&b, " %s saw %s;", v.Role, v.Phase)
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (a *Analyzer) info(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}
