package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/lifecycle"
	"NarrativeScanner/internal/ports"
)

// PanelOutcome is the synthesized position of the panel after 1-2 rounds.
type PanelOutcome struct {
	Phase            domain.Phase
	Strength         int
	Confidence       float64
	ConsensusLevel   float64
	Rounds           int
	Votes            []domain.PanelVote
	MinorityOpinions []domain.PanelVote
}

// Orchestrator fans a narrative out to every panel role, measures
// agreement, and runs a single debate round when the panel is split.
type Orchestrator struct {
	classifier ports.TextClassifier
	cfg        config.ConsensusConfig
	roles      []Role
	logger     *slog.Logger
}

func NewOrchestrator(classifier ports.TextClassifier, cfg config.ConsensusConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		cfg:        cfg,
		roles:      PanelRoles,
		logger:     logger,
	}
}

// RunPanel evaluates the narrative with every role concurrently. Each role
// gets its own timeout so one stalled provider call cannot starve the rest,
// and a failed role degrades to a neutral vote instead of failing the panel.
func (o *Orchestrator) RunPanel(ctx context.Context, n domain.Narrative, evidence []domain.Evidence, m lifecycle.Metrics) PanelOutcome {
	votes := o.evaluateAll(ctx, n, evidence, m, "")
	level := consensusLevel(votes)
	rounds := 1

	if level < o.cfg.AgreementThreshold {
		o.info("panel split, running debate round",
			"narrative", n.Name, "consensus", level)
		debate := debateContext(votes)
		votes = o.evaluateAll(ctx, n, evidence, m, debate)
		level = consensusLevel(votes)
		rounds = 2
	}

	phase := pluralityPhase(votes)
	outcome := PanelOutcome{
		Phase:          phase,
		Strength:       weightedStrength(votes),
		Confidence:     meanConfidence(votes) * level,
		ConsensusLevel: level,
		Rounds:         rounds,
		Votes:          votes,
	}
	for _, v := range votes {
		if v.Phase != phase {
			outcome.MinorityOpinions = append(outcome.MinorityOpinions, v)
		}
	}
	return outcome
}

func (o *Orchestrator) evaluateAll(ctx context.Context, n domain.Narrative, evidence []domain.Evidence, m lifecycle.Metrics, debate string) []domain.PanelVote {
	votes := make([]domain.PanelVote, len(o.roles))

	var g errgroup.Group
	for i, role := range o.roles {
		g.Go(func() error {
			votes[i] = o.evaluateRole(ctx, role, n, evidence, m, debate)
			return nil
		})
	}
	g.Wait()
	return votes
}

func (o *Orchestrator) evaluateRole(ctx context.Context, role Role, n domain.Narrative, evidence []domain.Evidence, m lifecycle.Metrics, debate string) domain.PanelVote {
	timeout := time.Duration(o.cfg.RoleTimeoutSeconds) * time.Second
	roleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := o.classifier.Complete(roleCtx, role.systemPrompt(), role.analysisPrompt(n, evidence, m, debate))
	if err != nil {
		o.info("role evaluation failed, substituting neutral vote",
			"role", role.Name, "narrative", n.Name, "error", err)
		return neutralVote(role.Name, fmt.Sprintf("evaluation failed: %v", err))
	}
	return parseVote(role.Name, raw)
}

// debateContext summarizes round-1 positions so each role can reconsider
// with the others' views in front of it.
func debateContext(votes []domain.PanelVote) string {
	var b strings.Builder
	b.WriteString("**Other analysts' initial assessments**:\n")
	for _, v := range votes {
		reasoning := v.Reasoning
		if len(reasoning) > 150 {
			reasoning = reasoning[:150] + "..."
		}
		fmt.Fprintf(&b, "- %s: phase=%s, strength=%d, confidence=%.2f. %s\n",
			v.Role, v.Phase, v.Strength, v.Confidence, reasoning)
	}
	b.WriteString("\nReconsider your assessment in light of the panel. You may keep or revise your position. Answer in the same format.")
	return b.String()
}

// consensusLevel is the share of votes backing the most common phase.
// With at least one vote it is always in [1/n, 1].
func consensusLevel(votes []domain.PanelVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	counts := map[domain.Phase]int{}
	best := 0
	for _, v := range votes {
		counts[v.Phase]++
		if counts[v.Phase] > best {
			best = counts[v.Phase]
		}
	}
	return float64(best) / float64(len(votes))
}

// pluralityPhase picks the most voted phase; ties break toward the phase
// with the larger aggregate confidence, then alphabetically for
// determinism.
func pluralityPhase(votes []domain.PanelVote) domain.Phase {
	if len(votes) == 0 {
		return domain.PhaseUnknown
	}
	counts := map[domain.Phase]int{}
	conf := map[domain.Phase]float64{}
	for _, v := range votes {
		counts[v.Phase]++
		conf[v.Phase] += v.Confidence
	}

	phases := make([]domain.Phase, 0, len(counts))
	for p := range counts {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool {
		a, b := phases[i], phases[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if conf[a] != conf[b] {
			return conf[a] > conf[b]
		}
		return a < b
	})
	return phases[0]
}

// weightedStrength averages vote strengths weighted by confidence.
func weightedStrength(votes []domain.PanelVote) int {
	var sum, weight float64
	for _, v := range votes {
		sum += float64(v.Strength) * v.Confidence
		weight += v.Confidence
	}
	if weight == 0 {
		return neutralStrength
	}
	return int(sum/weight + 0.5)
}

func meanConfidence(votes []domain.PanelVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range votes {
		sum += v.Confidence
	}
	return sum / float64(len(votes))
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}
