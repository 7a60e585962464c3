package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/lifecycle"
)

var testConsensusCfg = config.ConsensusConfig{
	AgreementThreshold: 0.6,
	RoleTimeoutSeconds: 5,
}

// scriptedClassifier answers per role (recognized by the system prompt) and
// per round, counting calls.
type scriptedClassifier struct {
	mu     sync.Mutex
	rounds map[string]int
	answer func(role string, round int) (string, error)
}

func (s *scriptedClassifier) Complete(_ context.Context, system, _ string) (string, error) {
	role := "unknown"
	for _, r := range PanelRoles {
		if strings.Contains(system, r.Specialty) {
			role = r.Name
			break
		}
	}

	s.mu.Lock()
	if s.rounds == nil {
		s.rounds = map[string]int{}
	}
	s.rounds[role]++
	round := s.rounds[role]
	s.mu.Unlock()

	return s.answer(role, round)
}

func (s *scriptedClassifier) Name() string { return "scripted" }

func (s *scriptedClassifier) calls(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds[role]
}

func voteText(phase string, strength int, confidence int) string {
	return fmt.Sprintf("PHASE: %s\nSTRENGTH: %d\nCONFIDENCE: %d\nREASONING: Scripted assessment for the test narrative.", phase, strength, confidence)
}

func TestRunPanelUnanimousSkipsDebate(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{answer: func(string, int) (string, error) {
		return voteText("growth", 70, 90), nil
	}}

	o := NewOrchestrator(classifier, testConsensusCfg, nil)
	outcome := o.RunPanel(context.Background(), domain.Narrative{Name: "Solar Demand"}, nil, lifecycle.Metrics{})

	assert.Equal(t, domain.PhaseGrowth, outcome.Phase)
	assert.Equal(t, 70, outcome.Strength)
	assert.InDelta(t, 1.0, outcome.ConsensusLevel, 0.001)
	assert.InDelta(t, 0.9, outcome.Confidence, 0.001)
	assert.Equal(t, 1, outcome.Rounds)
	assert.Empty(t, outcome.MinorityOpinions)
	require.Len(t, outcome.Votes, 5)

	for _, r := range PanelRoles {
		assert.Equal(t, 1, classifier.calls(r.Name))
	}
}

func TestRunPanelSplitTriggersDebate(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{answer: func(role string, round int) (string, error) {
		if round == 1 {
			// Five different phases: consensus 1/5, below threshold.
			phases := map[string]string{
				"fundamental": "birth",
				"sentiment":   "growth",
				"technical":   "peak",
				"risk":        "reversal",
				"macro":       "death",
			}
			return voteText(phases[role], 50, 80), nil
		}
		// Round two converges on growth except one holdout.
		if role == "risk" {
			return voteText("reversal", 40, 60), nil
		}
		return voteText("growth", 65, 85), nil
	}}

	o := NewOrchestrator(classifier, testConsensusCfg, nil)
	outcome := o.RunPanel(context.Background(), domain.Narrative{Name: "Mine Strike"}, nil, lifecycle.Metrics{})

	assert.Equal(t, 2, outcome.Rounds)
	assert.Equal(t, domain.PhaseGrowth, outcome.Phase)
	assert.InDelta(t, 0.8, outcome.ConsensusLevel, 0.001)
	require.Len(t, outcome.MinorityOpinions, 1)
	assert.Equal(t, "risk", outcome.MinorityOpinions[0].Role)

	for _, r := range PanelRoles {
		assert.Equal(t, 2, classifier.calls(r.Name))
	}
}

func TestRunPanelAllFailuresYieldsNeutralVotes(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{answer: func(string, int) (string, error) {
		return "", errors.New("provider down")
	}}

	o := NewOrchestrator(classifier, testConsensusCfg, nil)
	outcome := o.RunPanel(context.Background(), domain.Narrative{Name: "Dead Air"}, nil, lifecycle.Metrics{})

	require.Len(t, outcome.Votes, 5)
	for _, v := range outcome.Votes {
		assert.Equal(t, domain.PhaseUnknown, v.Phase)
		assert.InDelta(t, neutralConfidence, v.Confidence, 0.001)
	}

	// Unanimous unknown: full agreement at rock-bottom confidence.
	assert.Equal(t, domain.PhaseUnknown, outcome.Phase)
	assert.InDelta(t, 1.0, outcome.ConsensusLevel, 0.001)
	assert.InDelta(t, neutralConfidence, outcome.Confidence, 0.001)
	assert.Equal(t, neutralStrength, outcome.Strength)
}

func TestConsensusLevelBounds(t *testing.T) {
	t.Parallel()

	same := []domain.PanelVote{{Phase: domain.PhaseGrowth}, {Phase: domain.PhaseGrowth}, {Phase: domain.PhaseGrowth}}
	assert.InDelta(t, 1.0, consensusLevel(same), 0.001)

	split := []domain.PanelVote{{Phase: domain.PhaseBirth}, {Phase: domain.PhaseGrowth}, {Phase: domain.PhasePeak}}
	assert.InDelta(t, 1.0/3, consensusLevel(split), 0.001)

	assert.Zero(t, consensusLevel(nil))
}

func TestPluralityPhaseTieBreaksByConfidence(t *testing.T) {
	t.Parallel()

	votes := []domain.PanelVote{
		{Phase: domain.PhaseGrowth, Confidence: 0.5},
		{Phase: domain.PhaseGrowth, Confidence: 0.5},
		{Phase: domain.PhasePeak, Confidence: 0.9},
		{Phase: domain.PhasePeak, Confidence: 0.9},
	}
	assert.Equal(t, domain.PhasePeak, pluralityPhase(votes))
}

func TestWeightedStrengthIgnoresZeroConfidence(t *testing.T) {
	t.Parallel()

	votes := []domain.PanelVote{
		{Strength: 80, Confidence: 1.0},
		{Strength: 0, Confidence: 0},
	}
	assert.Equal(t, 80, weightedStrength(votes))

	assert.Equal(t, neutralStrength, weightedStrength([]domain.PanelVote{{Strength: 30, Confidence: 0}}))
}
