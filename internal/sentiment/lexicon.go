// Package sentiment provides a rule-based sentiment scorer in the style of
// VADER: a valence lexicon, negation flipping, and compound normalization.
// It needs no network and is the default SentimentScorer capability.
package sentiment

import (
	"math"
	"strings"

	"NarrativeScanner/internal/ports"
)

// normalization constant; keeps the compound score inside (-1,1).
const alpha = 15.0

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true,
	"without": true, "cannot": true, "cant": true, "wont": true,
	"isnt": true, "arent": true, "doesnt": true, "didnt": true,
}

// valence lexicon tuned for commodity market text. Values roughly follow
// VADER's -4..+4 scale.
var lexicon = map[string]float64{
	// positive
	"surge": 2.8, "surges": 2.8, "surged": 2.8,
	"rally": 2.5, "rallies": 2.5, "rallied": 2.5,
	"gain": 1.8, "gains": 1.8, "gained": 1.8,
	"rise": 1.6, "rises": 1.6, "rising": 1.6, "rose": 1.6,
	"soar": 3.0, "soars": 3.0, "soared": 3.0,
	"boom": 2.6, "booming": 2.6,
	"strong": 2.0, "stronger": 2.2, "strength": 1.8,
	"bullish": 2.6, "bull": 1.8,
	"record": 1.5, "breakout": 2.2, "upside": 1.8,
	"demand": 1.2, "growth": 1.8, "opportunity": 1.6,
	"optimism": 2.2, "optimistic": 2.2, "confidence": 1.8,
	"recovery": 1.8, "rebound": 2.0, "support": 1.0,
	"profit": 1.8, "profits": 1.8, "outperform": 2.0,

	// negative
	"crash": -3.2, "crashes": -3.2, "crashed": -3.2,
	"plunge": -2.8, "plunges": -2.8, "plunged": -2.8,
	"fall": -1.6, "falls": -1.6, "falling": -1.6, "fell": -1.6,
	"drop": -1.8, "drops": -1.8, "dropped": -1.8,
	"slump": -2.4, "slumps": -2.4, "slumped": -2.4,
	"weak": -2.0, "weaker": -2.2, "weakness": -1.8,
	"bearish": -2.6, "bear": -1.6,
	"fear": -2.4, "panic": -3.0, "collapse": -3.2,
	"shortage": -1.4, "crisis": -2.6, "strike": -1.8,
	"threat": -2.0, "threatens": -2.0, "risk": -1.4, "risks": -1.4,
	"loss": -2.0, "losses": -2.0, "selloff": -2.6,
	"decline": -1.8, "declines": -1.8, "declining": -1.8,
	"uncertainty": -1.6, "volatile": -1.2, "volatility": -1.0,
	"recession": -2.6, "inflation": -1.0, "downside": -1.8,
	"manipulation": -2.2, "dump": -2.2, "warning": -1.6,
}

// Scorer is a lexicon-based ports.SentimentScorer.
type Scorer struct{}

var _ ports.SentimentScorer = (*Scorer)(nil)

// NewScorer returns a ready-to-use lexicon scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the compound sentiment of text in [-1,1].
func (s *Scorer) Score(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var sum float64
	for i, tok := range tokens {
		valence, ok := lexicon[tok]
		if !ok {
			continue
		}

		// A negation within the two preceding tokens flips the valence.
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if negations[tokens[j]] {
				valence = -0.74 * valence
				break
			}
		}

		sum += valence
	}

	if sum == 0 {
		return 0
	}

	compound := sum / math.Sqrt(sum*sum+alpha)
	if compound > 1 {
		compound = 1
	}
	if compound < -1 {
		compound = -1
	}
	return compound
}

// Label buckets a compound score the way dashboards expect.
func Label(compound float64) string {
	switch {
	case compound >= 0.05:
		return "positive"
	case compound <= -0.05:
		return "negative"
	default:
		return "neutral"
	}
}

// Trend labels the shift from a prior to a current mean score. Shifts
// within bound in either direction are stable.
func Trend(prior, current, bound float64) (change float64, label string) {
	change = current - prior
	switch {
	case change > bound:
		return change, "improving"
	case change < -bound:
		return change, "declining"
	default:
		return change, "stable"
	}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:()[]\"'`")
		f = strings.ReplaceAll(f, "'", "")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
