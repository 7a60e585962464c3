// Package lifecycle owns the per-narrative phase state machine. Transitions
// only move forward through birth -> growth -> peak -> reversal -> death and
// are driven by freshly computed velocity, correlation, sentiment, and
// conflict metrics.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
	"NarrativeScanner/internal/sentiment"
)

const (
	correlationWindow = 7 * 24 * time.Hour
	minCorrelationDocs = 5
	minCorrelationDays = 3
	neutralInstitutional = 50
)

// Metrics carries everything the transition table needs for one narrative.
type Metrics struct {
	CurrentVelocity    float64    `json:"current_velocity"` // mentions per hour
	VelocityIncrease   float64    `json:"velocity_increase"`
	Mentions24h        int        `json:"mentions_24h"`
	MentionsPrior24h   int        `json:"mentions_prior_24h"`
	Mentions48h        int        `json:"mentions_48h"`
	PriceCorrelation   float64    `json:"price_correlation"`
	CurrentSentiment   float64    `json:"current_sentiment"`
	SentimentChange    float64    `json:"sentiment_change"`
	SentimentDeclining bool       `json:"sentiment_declining"`
	SentimentTrend     string     `json:"sentiment_trend"`
	Conflicts          []Conflict `json:"conflicts,omitempty"`
}

// Conflict describes an active narrative with opposing sentiment.
type Conflict struct {
	NarrativeID  string `json:"narrative_id"`
	Name         string `json:"name"`
	StrengthDiff int    `json:"strength_diff"`
	Winner       string `json:"winner"`
}

// TrackerDeps wires the collaborators the state machine reads from.
type TrackerDeps struct {
	Documents ports.DocumentSource
	Prices    ports.PriceSource
	Repo      ports.NarrativeRepository
	Scorer    ports.SentimentScorer
	Config    config.NarrativeConfig
	Logger    *slog.Logger
}

// Tracker recomputes metrics and applies phase transitions. A tracking pass
// over the same Tracker is serialized; construct one Tracker per process.
type Tracker struct {
	documents ports.DocumentSource
	prices    ports.PriceSource
	repo      ports.NarrativeRepository
	scorer    ports.SentimentScorer
	cfg       config.NarrativeConfig
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	history map[string][]domain.PhaseChange
}

// NewTracker constructs the lifecycle state machine.
func NewTracker(deps TrackerDeps) *Tracker {
	return &Tracker{
		documents: deps.Documents,
		prices:    deps.Prices,
		repo:      deps.Repo,
		scorer:    deps.Scorer,
		cfg:       deps.Config,
		logger:    deps.Logger,
		now:       time.Now,
		history:   map[string][]domain.PhaseChange{},
	}
}

// SetClock replaces the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// CalculateMetrics recomputes the full metric set for one narrative against
// the other currently known narratives.
func (t *Tracker) CalculateMetrics(ctx context.Context, n domain.Narrative, others []domain.Narrative) (Metrics, error) {
	now := t.now().UTC()

	var evidence []domain.Evidence
	if t.documents != nil {
		var err error
		evidence, err = t.documents.EvidenceForNarrative(ctx, n.ID, now.Add(-correlationWindow))
		if err != nil {
			return Metrics{}, fmt.Errorf("load evidence for %s: %w", n.ID, err)
		}
	}

	var prices []domain.PriceSample
	if t.prices != nil {
		var err error
		prices, err = t.prices.PricesSince(ctx, now.Add(-correlationWindow))
		if err != nil {
			return Metrics{}, fmt.Errorf("load prices: %w", err)
		}
	}

	m := Metrics{}
	t.fillVelocity(&m, evidence, now)
	m.PriceCorrelation = correlate(evidence, prices)
	t.fillSentiment(&m, evidence, now)
	m.Conflicts = t.detectConflicts(n, others)

	return m, nil
}

func (t *Tracker) fillVelocity(m *Metrics, evidence []domain.Evidence, now time.Time) {
	cutoff24 := now.Add(-24 * time.Hour)
	cutoff48 := now.Add(-48 * time.Hour)

	for _, e := range evidence {
		switch {
		case !e.PublishedAt.Before(cutoff24):
			m.Mentions24h++
			m.Mentions48h++
		case !e.PublishedAt.Before(cutoff48):
			m.MentionsPrior24h++
			m.Mentions48h++
		}
	}

	m.CurrentVelocity = float64(m.Mentions24h) / 24

	switch {
	case m.MentionsPrior24h > 0:
		m.VelocityIncrease = float64(m.Mentions24h-m.MentionsPrior24h) / float64(m.MentionsPrior24h)
	case m.Mentions24h > 0:
		m.VelocityIncrease = 1.0
	default:
		m.VelocityIncrease = 0.0
	}
}

func (t *Tracker) fillSentiment(m *Metrics, evidence []domain.Evidence, now time.Time) {
	if t.scorer == nil {
		m.SentimentTrend = "stable"
		return
	}

	cutoff24 := now.Add(-24 * time.Hour)
	cutoff48 := now.Add(-48 * time.Hour)

	var recent, prior []float64
	for _, e := range evidence {
		score := t.scorer.Score(e.Text())
		switch {
		case !e.PublishedAt.Before(cutoff24):
			recent = append(recent, score)
		case !e.PublishedAt.Before(cutoff48):
			prior = append(prior, score)
		}
	}

	m.CurrentSentiment = mean(recent)
	m.SentimentTrend = "stable"
	if len(recent) > 0 && len(prior) > 0 {
		m.SentimentChange, m.SentimentTrend = sentiment.Trend(mean(prior), mean(recent), t.cfg.SentimentDeclineDelta)
	}
	m.SentimentDeclining = m.SentimentTrend == "declining"
}

// detectConflicts finds active narratives (growth/peak, strength at or above
// the configured floor) whose sentiment has the opposite sign beyond the
// dead-zone.
func (t *Tracker) detectConflicts(n domain.Narrative, others []domain.Narrative) []Conflict {
	dz := t.cfg.SentimentDeadZone
	var conflicts []Conflict

	for _, other := range others {
		if other.ID == n.ID {
			continue
		}
		if other.Phase != domain.PhaseGrowth && other.Phase != domain.PhasePeak {
			continue
		}
		if other.Strength < t.cfg.MinStrengthForConflict {
			continue
		}

		opposing := (n.Sentiment > dz && other.Sentiment < -dz) ||
			(n.Sentiment < -dz && other.Sentiment > dz)
		if !opposing {
			continue
		}

		winner := n.Name
		if other.Strength > n.Strength {
			winner = other.Name
		}
		conflicts = append(conflicts, Conflict{
			NarrativeID:  other.ID,
			Name:         other.Name,
			StrengthDiff: abs(n.Strength - other.Strength),
			Winner:       winner,
		})
	}

	return conflicts
}

// NextPhase evaluates the transition table. It returns the target phase and
// true when a transition should occur. Death is terminal: no input produces
// an outgoing transition.
func (t *Tracker) NextPhase(n domain.Narrative, m Metrics) (domain.Phase, bool) {
	switch n.Phase {
	case domain.PhaseBirth:
		if m.VelocityIncrease > t.cfg.BirthToGrowthVelocity {
			return domain.PhaseGrowth, true
		}
	case domain.PhaseGrowth:
		if m.PriceCorrelation > t.cfg.GrowthToPeakCorrelation {
			return domain.PhasePeak, true
		}
	case domain.PhasePeak:
		if m.SentimentDeclining || len(m.Conflicts) > 0 {
			return domain.PhaseReversal, true
		}
	case domain.PhaseReversal:
		if m.Mentions48h == 0 {
			return domain.PhaseDeath, true
		}
	case domain.PhaseDeath:
		// terminal
	}
	return n.Phase, false
}

// Strength recomputes narrative strength from live metrics with the
// tracking-pass weights (velocity/news/correlation/institutional). The
// institutional alignment signal has no data source yet and stays at the
// neutral default.
func (t *Tracker) Strength(m Metrics) int {
	velocityScore := math.Min(m.CurrentVelocity*10, 100)
	newsScore := math.Min(float64(m.Mentions24h)*5, 100)
	correlationScore := math.Abs(m.PriceCorrelation) * 100

	strength := velocityScore*t.cfg.VelocityWeight +
		newsScore*t.cfg.NewsWeight +
		correlationScore*t.cfg.CorrelationWeight +
		neutralInstitutional*t.cfg.InstitutionalWeight

	if strength > 100 {
		strength = 100
	}
	if strength < 0 {
		strength = 0
	}
	return int(strength)
}

// ApplyTransition mutates the narrative into the new phase, stamping
// last_updated and, on death, death_time.
func (t *Tracker) ApplyTransition(n *domain.Narrative, to domain.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyTransition(n, to)
}

func (t *Tracker) applyTransition(n *domain.Narrative, to domain.Phase) {
	from := n.Phase
	now := t.now().UTC()

	n.Phase = to
	n.LastUpdated = now
	if to == domain.PhaseDeath {
		death := now
		n.DeathTime = &death
	}

	t.history[n.ID] = append(t.history[n.ID], domain.PhaseChange{From: from, To: to, At: now})
	t.info("narrative transitioned", "narrative", n.Name, "from", from, "to", to)
}

// History returns the recorded phase changes for a narrative.
func (t *Tracker) History(narrativeID string) []domain.PhaseChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.PhaseChange(nil), t.history[narrativeID]...)
}

// TrackAll runs one tracking pass: for every non-dead narrative it
// recomputes strength and sentiment, evaluates the transition table, and
// persists the result. Passes are serialized so concurrent callers cannot
// interleave updates to the same narrative.
func (t *Tracker) TrackAll(ctx context.Context, narratives []domain.Narrative) ([]domain.Narrative, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated := make([]domain.Narrative, len(narratives))
	copy(updated, narratives)

	for i := range updated {
		n := &updated[i]
		if n.Phase.Terminal() {
			continue
		}

		m, err := t.CalculateMetrics(ctx, *n, updated)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", n.ID, err)
		}

		n.SetStrength(t.Strength(m))
		n.SetSentiment(m.CurrentSentiment)
		n.MentionVelocity = m.CurrentVelocity
		n.PriceCorrelation = m.PriceCorrelation

		if to, ok := t.NextPhase(*n, m); ok {
			t.applyTransition(n, to)
		} else {
			n.LastUpdated = t.now().UTC()
		}

		if t.repo != nil {
			if err := t.repo.SaveNarrative(ctx, *n); err != nil {
				return nil, fmt.Errorf("save %s: %w", n.ID, err)
			}
		}
	}

	return updated, nil
}

// correlate computes the Pearson correlation between daily mention counts
// and daily mean price over the shared days. It needs at least
// minCorrelationDocs documents and minCorrelationDays overlapping days,
// otherwise it reports 0.
func correlate(evidence []domain.Evidence, prices []domain.PriceSample) float64 {
	if len(evidence) < minCorrelationDocs || len(prices) == 0 {
		return 0
	}

	mentions := map[string]float64{}
	for _, e := range evidence {
		mentions[e.PublishedAt.UTC().Format("2006-01-02")]++
	}

	priceSums := map[string]float64{}
	priceCounts := map[string]float64{}
	for _, p := range prices {
		day := p.Timestamp.UTC().Format("2006-01-02")
		priceSums[day] += p.Price
		priceCounts[day]++
	}

	var days []string
	for day := range mentions {
		if priceCounts[day] > 0 {
			days = append(days, day)
		}
	}
	if len(days) < minCorrelationDays {
		return 0
	}
	sort.Strings(days)

	xs := make([]float64, len(days))
	ys := make([]float64, len(days))
	for i, day := range days {
		xs[i] = mentions[day]
		ys[i] = priceSums[day] / priceCounts[day]
	}

	return pearson(xs, ys)
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	mx, my := mean(xs), mean(ys)

	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}

	if vx == 0 || vy == 0 || n == 0 {
		return 0
	}

	r := cov / math.Sqrt(vx*vy)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (t *Tracker) info(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Info(msg, args...)
	}
}
