package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/sentiment"
)

var testCfg = config.NarrativeConfig{
	BirthToGrowthVelocity:   0.5,
	GrowthToPeakCorrelation: 0.8,
	SentimentDeclineDelta:   0.1,
	SentimentDeadZone:       0.1,
	MinStrengthForConflict:  40,
	VelocityWeight:          0.3,
	NewsWeight:              0.25,
	CorrelationWeight:       0.25,
	InstitutionalWeight:     0.2,
}

type fakeDocs struct {
	evidence []domain.Evidence
}

func (f *fakeDocs) EvidenceForNarrative(context.Context, string, time.Time) ([]domain.Evidence, error) {
	return f.evidence, nil
}

func (f *fakeDocs) AssignNarrative(context.Context, string, string) error { return nil }

type fakePrices struct {
	samples []domain.PriceSample
}

func (f *fakePrices) PricesSince(context.Context, time.Time) ([]domain.PriceSample, error) {
	return f.samples, nil
}

type repoSpy struct {
	saved []domain.Narrative
}

func (r *repoSpy) SaveNarrative(_ context.Context, n domain.Narrative) error {
	r.saved = append(r.saved, n)
	return nil
}

func (r *repoSpy) ActiveNarratives(context.Context) ([]domain.Narrative, error) {
	return nil, nil
}

type flatScorer struct{ score float64 }

func (f flatScorer) Score(string) float64 { return f.score }

func newTestTracker(docs *fakeDocs, prices *fakePrices, repo *repoSpy, now time.Time) *Tracker {
	deps := TrackerDeps{Config: testCfg, Scorer: flatScorer{}}
	if docs != nil {
		deps.Documents = docs
	}
	if prices != nil {
		deps.Prices = prices
	}
	if repo != nil {
		deps.Repo = repo
	}
	tr := NewTracker(deps)
	tr.SetClock(func() time.Time { return now })
	return tr
}

func mentionsAt(now time.Time, hoursAgo ...float64) []domain.Evidence {
	docs := make([]domain.Evidence, len(hoursAgo))
	for i, h := range hoursAgo {
		docs[i] = domain.Evidence{
			ID:          "e",
			Title:       "mention",
			PublishedAt: now.Add(-time.Duration(h * float64(time.Hour))),
		}
	}
	return docs
}

func TestSentimentTrendLabels(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	docs := &fakeDocs{evidence: []domain.Evidence{
		{ID: "1", Title: "silver prices crash on panic selling", PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "2", Title: "silver prices surge to record", PublishedAt: now.Add(-30 * time.Hour)},
	}}
	tr := NewTracker(TrackerDeps{Documents: docs, Scorer: sentiment.NewScorer(), Config: testCfg})
	tr.SetClock(func() time.Time { return now })

	m, err := tr.CalculateMetrics(context.Background(), domain.Narrative{ID: "n"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "declining", m.SentimentTrend)
	assert.True(t, m.SentimentDeclining)
	assert.Less(t, m.SentimentChange, -testCfg.SentimentDeclineDelta)

	// One empty bucket leaves the trend stable.
	docs.evidence = docs.evidence[:1]
	m, err = tr.CalculateMetrics(context.Background(), domain.Narrative{ID: "n"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stable", m.SentimentTrend)
	assert.False(t, m.SentimentDeclining)
}

func TestVelocityRatio(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	docs := &fakeDocs{evidence: mentionsAt(now, 2, 5, 10, 30, 40)}
	tr := newTestTracker(docs, nil, nil, now)

	m, err := tr.CalculateMetrics(context.Background(), domain.Narrative{ID: "n"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, m.Mentions24h)
	assert.Equal(t, 2, m.MentionsPrior24h)
	assert.Equal(t, 5, m.Mentions48h)
	assert.InDelta(t, 0.5, m.VelocityIncrease, 0.001)
	assert.InDelta(t, 3.0/24, m.CurrentVelocity, 0.001)
}

func TestVelocityRatioPriorZero(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	fresh := newTestTracker(&fakeDocs{evidence: mentionsAt(now, 1, 2)}, nil, nil, now)
	m, err := fresh.CalculateMetrics(context.Background(), domain.Narrative{ID: "n"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.VelocityIncrease, 0.001)

	silent := newTestTracker(&fakeDocs{}, nil, nil, now)
	m, err = silent.CalculateMetrics(context.Background(), domain.Narrative{ID: "n"}, nil)
	require.NoError(t, err)
	assert.Zero(t, m.VelocityIncrease)
}

func TestNextPhaseTransitions(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(nil, nil, nil, time.Now())

	cases := []struct {
		name    string
		phase   domain.Phase
		metrics Metrics
		want    domain.Phase
		moved   bool
	}{
		{"birth advances on velocity spike", domain.PhaseBirth, Metrics{VelocityIncrease: 0.6}, domain.PhaseGrowth, true},
		{"birth stays below threshold", domain.PhaseBirth, Metrics{VelocityIncrease: 0.3}, domain.PhaseBirth, false},
		{"birth stays at exact threshold", domain.PhaseBirth, Metrics{VelocityIncrease: 0.5}, domain.PhaseBirth, false},
		{"growth advances on correlation", domain.PhaseGrowth, Metrics{PriceCorrelation: 0.85}, domain.PhasePeak, true},
		{"growth stays on weak correlation", domain.PhaseGrowth, Metrics{PriceCorrelation: 0.5}, domain.PhaseGrowth, false},
		{"peak reverses on declining sentiment", domain.PhasePeak, Metrics{SentimentDeclining: true}, domain.PhaseReversal, true},
		{"peak reverses on conflict", domain.PhasePeak, Metrics{Conflicts: []Conflict{{NarrativeID: "x"}}}, domain.PhaseReversal, true},
		{"peak holds otherwise", domain.PhasePeak, Metrics{}, domain.PhasePeak, false},
		{"reversal dies on silence", domain.PhaseReversal, Metrics{Mentions48h: 0}, domain.PhaseDeath, true},
		{"reversal lingers with mentions", domain.PhaseReversal, Metrics{Mentions48h: 2}, domain.PhaseReversal, false},
		{"death is terminal", domain.PhaseDeath, Metrics{VelocityIncrease: 5, PriceCorrelation: 1}, domain.PhaseDeath, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, moved := tr.NextPhase(domain.Narrative{Phase: tc.phase}, tc.metrics)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.moved, moved)
		})
	}
}

func TestStrengthWeights(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(nil, nil, nil, time.Now())

	m := Metrics{CurrentVelocity: 2, Mentions24h: 10, PriceCorrelation: 0.8}
	// 20*0.3 + 50*0.25 + 80*0.25 + 50*0.2 = 48.5, truncated to 48.
	assert.Equal(t, 48, tr.Strength(m))

	// Saturated inputs clamp to 100.
	huge := Metrics{CurrentVelocity: 1000, Mentions24h: 1000, PriceCorrelation: 1}
	assert.LessOrEqual(t, tr.Strength(huge), 100)

	// Negative correlation contributes its magnitude.
	neg := Metrics{PriceCorrelation: -0.8}
	assert.Equal(t, tr.Strength(Metrics{PriceCorrelation: 0.8}), tr.Strength(neg))
}

func TestApplyTransitionRecordsHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(nil, nil, nil, now)

	n := domain.Narrative{ID: "n1", Name: "Solar Demand", Phase: domain.PhaseReversal}
	tr.ApplyTransition(&n, domain.PhaseDeath)

	assert.Equal(t, domain.PhaseDeath, n.Phase)
	require.NotNil(t, n.DeathTime)
	assert.Equal(t, now, *n.DeathTime)

	history := tr.History("n1")
	require.Len(t, history, 1)
	assert.Equal(t, domain.PhaseReversal, history[0].From)
	assert.Equal(t, domain.PhaseDeath, history[0].To)
}

func TestTrackAllAdvancesAndPersists(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &repoSpy{}
	// No recent evidence: a reversal narrative must die.
	tr := newTestTracker(&fakeDocs{}, nil, repo, now)

	input := []domain.Narrative{
		{ID: "r1", Name: "Fading Story", Phase: domain.PhaseReversal},
		{ID: "d1", Name: "Old Story", Phase: domain.PhaseDeath},
	}

	updated, err := tr.TrackAll(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, updated, 2)

	assert.Equal(t, domain.PhaseDeath, updated[0].Phase)
	assert.NotNil(t, updated[0].DeathTime)

	// The already-dead narrative is skipped entirely.
	assert.Equal(t, domain.PhaseDeath, updated[1].Phase)
	assert.Nil(t, updated[1].DeathTime)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "r1", repo.saved[0].ID)

	// Input slice is not mutated.
	assert.Equal(t, domain.PhaseReversal, input[0].Phase)
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(nil, nil, nil, time.Now())

	n := domain.Narrative{ID: "a", Name: "Bull Case", Sentiment: 0.5, Strength: 60}
	others := []domain.Narrative{
		{ID: "a", Name: "Bull Case", Phase: domain.PhaseGrowth, Sentiment: 0.5, Strength: 60},
		{ID: "b", Name: "Bear Case", Phase: domain.PhaseGrowth, Sentiment: -0.4, Strength: 70},
		{ID: "c", Name: "Weak Bear", Phase: domain.PhaseGrowth, Sentiment: -0.4, Strength: 20},
		{ID: "d", Name: "Born Bear", Phase: domain.PhaseBirth, Sentiment: -0.4, Strength: 80},
		{ID: "e", Name: "Mild View", Phase: domain.PhasePeak, Sentiment: -0.05, Strength: 80},
	}

	conflicts := tr.detectConflicts(n, others)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "b", conflicts[0].NarrativeID)
	assert.Equal(t, "Bear Case", conflicts[0].Winner)
	assert.Equal(t, 10, conflicts[0].StrengthDiff)
}

func TestCorrelateRequiresEnoughData(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 10, 0, 0, 0, time.UTC)
	}

	// Mentions rise 1, 2, 3 across three days while price rises with them.
	var evidence []domain.Evidence
	for d := 1; d <= 3; d++ {
		for i := 0; i < d; i++ {
			evidence = append(evidence, domain.Evidence{PublishedAt: day(d)})
		}
	}
	prices := []domain.PriceSample{
		{Timestamp: day(1), Price: 30},
		{Timestamp: day(2), Price: 32},
		{Timestamp: day(3), Price: 34},
	}

	r := correlate(evidence, prices)
	assert.InDelta(t, 1.0, r, 0.001)

	// Fewer than five documents reports zero.
	assert.Zero(t, correlate(evidence[:4], prices))

	// Fewer than three overlapping days reports zero.
	assert.Zero(t, correlate(evidence, prices[:2]))

	// No price variance reports zero.
	flat := []domain.PriceSample{
		{Timestamp: day(1), Price: 30},
		{Timestamp: day(2), Price: 30},
		{Timestamp: day(3), Price: 30},
	}
	assert.Zero(t, correlate(evidence, flat))
}
