package discovery

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

// Source credibility tiers, matched in order by substring against the
// provenance string. A provenance naming several outlets gets the first,
// highest tier. Unknown sources score 0.5.
var sourceCredibility = []struct {
	key   string
	score float64
}{
	{"reuters", 1.0},
	{"bloomberg", 0.95},
	{"wsj", 0.95},
	{"ft", 0.95},
	{"marketwatch", 0.9},
	{"cnbc", 0.85},
	{"forbes", 0.85},
	{"kitco", 0.85},
	{"investing.com", 0.8},
	{"yahoo", 0.75},
	{"seekingalpha", 0.65},
	{"reddit", 0.6},
	{"twitter", 0.5},
	{"telegram", 0.4},
	{"stocktwits", 0.4},
}

const unknownCredibility = 0.5

// Strength formula weights for freshly built narratives.
const (
	relevanceWeight   = 0.4
	credibilityWeight = 0.3
	velocityWeight    = 0.2
	sizeWeight        = 0.1
)

// NarrativeBuilder turns document clusters into narrative records with
// derived strength, credibility, sentiment, and velocity metrics.
type NarrativeBuilder struct {
	scorer ports.SentimentScorer
	now    func() time.Time
}

// NewNarrativeBuilder wires the sentiment capability. The clock can be
// overridden in tests via SetClock.
func NewNarrativeBuilder(scorer ports.SentimentScorer) *NarrativeBuilder {
	return &NarrativeBuilder{scorer: scorer, now: time.Now}
}

// SetClock replaces the time source, for deterministic velocity in tests.
func (b *NarrativeBuilder) SetClock(now func() time.Time) {
	b.now = now
}

// Build converts every cluster of at least two documents into a Narrative in
// phase birth.
func (b *NarrativeBuilder) Build(clusters [][]int, results []RelevanceResult) []domain.Narrative {
	narratives := make([]domain.Narrative, 0, len(clusters))

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		narratives = append(narratives, b.buildOne(cluster, results))
	}

	return narratives
}

// Rank sorts narratives by strength descending and returns the top n.
func (b *NarrativeBuilder) Rank(narratives []domain.Narrative, n int) []domain.Narrative {
	if n <= 0 {
		n = 5
	}

	ranked := append([]domain.Narrative(nil), narratives...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Strength > ranked[j].Strength })

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Strength reproduces the builder's weighted formula for a known metric set.
// Recomputing a narrative's strength from its own stored metrics returns the
// stored value within rounding.
func Strength(relevance, credibility, velocity, sizeShare float64) int {
	score := relevance*relevanceWeight +
		credibility*credibilityWeight +
		velocity*velocityWeight +
		sizeShare*100*sizeWeight

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score + 0.5)
}

func (b *NarrativeBuilder) buildOne(cluster []int, results []RelevanceResult) domain.Narrative {
	now := b.now().UTC()

	// Keyword frequency across the cluster drives the theme label.
	keywordCounts := map[string]int{}
	var relevanceSum, credibilitySum, sentimentSum, ageSum float64
	sourceSet := map[string]bool{}
	firstSeen := results[cluster[0]].Evidence.PublishedAt
	lastSeen := firstSeen

	for _, idx := range cluster {
		r := results[idx]
		for _, kw := range r.Matched {
			keywordCounts[kw]++
		}

		relevanceSum += r.Score
		credibilitySum += SourceCredibility(r.Evidence.Source)
		if b.scorer != nil {
			sentimentSum += b.scorer.Score(r.Evidence.Text())
		}
		ageSum += now.Sub(r.Evidence.PublishedAt).Hours()

		sourceSet[r.Evidence.Source] = true
		if r.Evidence.PublishedAt.Before(firstSeen) {
			firstSeen = r.Evidence.PublishedAt
		}
		if r.Evidence.PublishedAt.After(lastSeen) {
			lastSeen = r.Evidence.PublishedAt
		}
	}

	size := float64(len(cluster))
	avgRelevance := relevanceSum / size
	avgCredibility := credibilitySum / size * 100
	avgSentiment := sentimentSum / size
	meanAgeHours := ageSum / size
	velocity := 100 / (1 + meanAgeHours/24)

	topKeywords := rankKeywords(keywordCounts)

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	n := domain.Narrative{
		ID:              uuid.NewString(),
		Name:            themeLabel(topKeywords),
		Description:     describe(results[cluster[0]].Evidence),
		Phase:           domain.PhaseBirth,
		Credibility:     avgCredibility,
		MentionVelocity: velocity,
		Keywords:        topKeywords,
		Sources:         sources,
		EvidenceCount:   len(cluster),
		BirthTime:       firstSeen,
		LastUpdated:     now,
	}
	n.SetStrength(Strength(avgRelevance, avgCredibility, velocity, size/float64(len(results))))
	n.SetSentiment(avgSentiment)
	return n
}

// SourceCredibility looks up the credibility weight for a provenance string.
func SourceCredibility(source string) float64 {
	lower := strings.ToLower(source)
	for _, tier := range sourceCredibility {
		if strings.Contains(lower, tier.key) {
			return tier.score
		}
	}
	return unknownCredibility
}

func rankKeywords(counts map[string]int) []string {
	type kw struct {
		word  string
		count int
	}
	ranked := make([]kw, 0, len(counts))
	for word, count := range counts {
		ranked = append(ranked, kw{word, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	words := make([]string, 0, 5)
	for _, k := range ranked {
		words = append(words, k.word)
		if len(words) == 5 {
			break
		}
	}
	return words
}

func themeLabel(keywords []string) string {
	top := keywords
	if len(top) > 2 {
		top = top[:2]
	}
	if len(top) == 0 {
		return "Unnamed Narrative"
	}

	labels := make([]string, len(top))
	for i, kw := range top {
		labels[i] = titleCase(kw)
	}
	return strings.Join(labels, " + ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func describe(doc domain.Evidence) string {
	first := doc.Body
	if idx := strings.Index(first, "."); idx > 0 {
		first = first[:idx]
	} else if len(first) > 150 {
		first = first[:150]
	}

	desc := doc.Title + ". " + first + "."
	if len(desc) > 200 {
		desc = desc[:200]
	}
	return desc
}
