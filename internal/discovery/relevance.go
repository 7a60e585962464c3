// Package discovery implements the narrative discovery pipeline: relevance
// filtering, theme extraction, density clustering, and narrative building.
package discovery

import (
	"sort"
	"strings"

	"NarrativeScanner/internal/domain"
)

// MinBatchSize is the smallest document batch discovery will cluster.
const MinBatchSize = 3

// Keyword weights for the tracked market. Core terms dominate; related
// assets contribute weakly.
var relevanceKeywords = map[string]float64{
	"silver": 3.0,
	"xag":    2.5,
	"slv":    2.5,
	"pslv":   2.0,

	"precious metals": 2.0,
	"commodity":       1.5,
	"futures":         1.5,
	"spot price":      2.0,

	"solar panels":      1.8,
	"electric vehicles": 1.8,
	"industrial demand": 2.0,
	"supply shortage":   2.5,
	"mining":            1.5,

	"etf":             1.5,
	"bullion":         2.0,
	"physical silver": 2.0,

	"gold":     0.8,
	"copper":   0.7,
	"platinum": 0.7,
}

var spamMarkers = []string{"click here", "buy now", "limited offer", "shocking"}

// RelevanceResult pairs a document with its relevance score and the keywords
// that produced it.
type RelevanceResult struct {
	Evidence domain.Evidence
	Score    float64
	Matched  []string
}

// RelevanceFilter validates raw documents and scores topical relevance.
type RelevanceFilter struct {
	keywords   map[string]float64
	percentile float64
}

// NewRelevanceFilter builds a filter that keeps documents at or above the
// given percentile of batch relevance (default 20, i.e. top 80%).
func NewRelevanceFilter(percentile float64) *RelevanceFilter {
	if percentile <= 0 || percentile >= 100 {
		percentile = 20
	}
	return &RelevanceFilter{keywords: relevanceKeywords, percentile: percentile}
}

// Validate drops documents that cannot be real articles: missing title or
// body, body shorter than 100 characters, or a spam-marker title.
func (f *RelevanceFilter) Validate(docs []domain.Evidence) []domain.Evidence {
	valid := make([]domain.Evidence, 0, len(docs))

	for _, doc := range docs {
		if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Body) == "" {
			continue
		}
		if len(doc.Body) < 100 {
			continue
		}

		title := strings.ToLower(doc.Title)
		spam := false
		for _, marker := range spamMarkers {
			if strings.Contains(title, marker) {
				spam = true
				break
			}
		}
		if spam {
			continue
		}

		valid = append(valid, doc)
	}

	return valid
}

// Score computes the weighted keyword relevance of one document: each
// keyword contributes weight x min(occurrences, 3), the total is doubled and
// capped at 100.
func (f *RelevanceFilter) Score(doc domain.Evidence) (float64, []string) {
	text := strings.ToLower(doc.Text())

	var score float64
	var matched []string
	for keyword, weight := range f.keywords {
		count := strings.Count(text, keyword)
		if count == 0 {
			continue
		}
		if count > 3 {
			count = 3
		}
		score += weight * float64(count)
		matched = append(matched, keyword)
	}

	score *= 2
	if score > 100 {
		score = 100
	}

	sort.Strings(matched)
	return score, matched
}

// Filter scores every document and keeps those at or above the batch's
// relevance percentile, sorted by score descending.
func (f *RelevanceFilter) Filter(docs []domain.Evidence) []RelevanceResult {
	scored := make([]RelevanceResult, 0, len(docs))
	scores := make([]float64, 0, len(docs))

	for _, doc := range docs {
		score, matched := f.Score(doc)
		scored = append(scored, RelevanceResult{Evidence: doc, Score: score, Matched: matched})
		scores = append(scores, score)
	}

	if len(scored) == 0 {
		return scored
	}

	threshold := percentile(scores, f.percentile)
	kept := scored[:0]
	for _, r := range scored {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
