package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

const themeSampleSize = 20

var staticThemes = []string{"Market Movement", "Price Analysis", "Supply Demand", "Industry News"}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "he": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "were": true, "will": true, "with": true,
	"after": true, "amid": true, "over": true, "new": true, "more": true,
	"says": true, "said": true, "could": true, "would": true, "than": true,
}

// ThemeExtractor derives candidate theme labels from a document sample,
// preferring a text classifier and falling back to TF-IDF terms.
type ThemeExtractor struct {
	classifier ports.TextClassifier
	logger     *slog.Logger
}

// NewThemeExtractor wires the classifier capability; classifier may be nil,
// in which case only the lexical fallback runs.
func NewThemeExtractor(classifier ports.TextClassifier, logger *slog.Logger) *ThemeExtractor {
	return &ThemeExtractor{classifier: classifier, logger: logger}
}

// Extract returns 5-8 short theme labels for the batch.
func (t *ThemeExtractor) Extract(ctx context.Context, results []RelevanceResult) []string {
	sample := results
	if len(sample) > themeSampleSize {
		sample = sample[:themeSampleSize]
	}

	if t.classifier != nil {
		themes, err := t.extractWithClassifier(ctx, sample)
		if err == nil && len(themes) > 0 {
			return themes
		}
		t.debug("classifier theme extraction failed, using lexical fallback", "error", err)
	}

	return t.extractLexical(results)
}

func (t *ThemeExtractor) extractWithClassifier(ctx context.Context, sample []RelevanceResult) ([]string, error) {
	var titles strings.Builder
	for i, r := range sample {
		fmt.Fprintf(&titles, "%d. %s\n", i+1, r.Evidence.Title)
	}

	prompt := fmt.Sprintf(`Analyze these %d market article titles and identify the main themes/narratives:

%s
Extract 5-8 distinct themes. For each theme, provide:
1. Theme name (2-4 words)
2. Brief description (one sentence)

Format as JSON:
[
  {"theme": "Industrial Demand Surge", "description": "Increased silver use in solar panels and EVs"},
  ...
]

Return ONLY the JSON array, no other text.`, len(sample), titles.String())

	raw, err := t.classifier.Complete(ctx, "You identify recurring narratives in commodity market news.", prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	raw = strings.TrimSpace(raw)

	var parsed []struct {
		Theme       string `json:"theme"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode themes: %w: %w", domain.ErrParse, err)
	}

	themes := make([]string, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.Theme) != "" {
			themes = append(themes, strings.TrimSpace(p.Theme))
		}
	}
	return themes, nil
}

// extractLexical ranks 1-3 word spans by TF-IDF weight and returns the top
// terms as theme labels. Deterministic; exercised directly by tests.
func (t *ThemeExtractor) extractLexical(results []RelevanceResult) []string {
	docs := make([][]string, 0, len(results))
	for _, r := range results {
		body := r.Evidence.Body
		if len(body) > 500 {
			body = body[:500]
		}
		docs = append(docs, ngramTerms(r.Evidence.Title+" "+body))
	}

	if len(docs) == 0 {
		return staticThemes
	}

	// Document frequency per term.
	df := map[string]int{}
	for _, terms := range docs {
		seen := map[string]bool{}
		for _, term := range terms {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	// Aggregate TF-IDF over the whole batch.
	weights := map[string]float64{}
	for _, terms := range docs {
		tf := map[string]int{}
		for _, term := range terms {
			tf[term]++
		}
		for term, count := range tf {
			idf := math.Log(float64(len(docs))/float64(df[term])) + 1
			weights[term] += float64(count) * idf
		}
	}

	type weighted struct {
		term   string
		weight float64
	}
	ranked := make([]weighted, 0, len(weights))
	for term, w := range weights {
		ranked = append(ranked, weighted{term, w})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].term < ranked[j].term
	})

	themes := make([]string, 0, 8)
	for _, r := range ranked {
		themes = append(themes, r.term)
		if len(themes) == 8 {
			break
		}
	}

	if len(themes) == 0 {
		return staticThemes
	}
	return themes
}

// ngramTerms yields lowercase 1-3 word spans with stopword-only and
// stopword-edged spans removed.
func ngramTerms(text string) []string {
	words := tokenizeWords(text)

	var terms []string
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			span := words[i : i+n]
			if stopwords[span[0]] || stopwords[span[n-1]] {
				continue
			}
			terms = append(terms, strings.Join(span, " "))
		}
	}
	return terms
}

func tokenizeWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:()[]{}\"'")
		if len(f) > 1 {
			words = append(words, f)
		}
	}
	return words
}

func (t *ThemeExtractor) debug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}
