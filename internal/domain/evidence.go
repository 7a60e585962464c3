package domain

import (
	"strings"
	"time"
)

// Evidence is a single collected document (news article or social post).
// It is owned by the ingestion side; the core only ever writes NarrativeID.
type Evidence struct {
	ID          string            `json:"id"`
	NarrativeID string            `json:"narrative_id,omitempty"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	URL         string            `json:"url,omitempty"`
	Source      string            `json:"source"`
	Author      string            `json:"author,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Text returns the title and body joined for scoring and embedding.
func (e Evidence) Text() string {
	return strings.TrimSpace(e.Title + " " + e.Body)
}

// PriceSample is one observation of the tracked commodity price.
type PriceSample struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
}

// DiscoveryStats summarizes one discovery run for callers.
type DiscoveryStats struct {
	TotalAnalyzed     int     `json:"total_analyzed"`
	ValidDocuments    int     `json:"valid_documents"`
	RelevantDocuments int     `json:"relevant_documents"`
	ThemesExtracted   int     `json:"themes_extracted"`
	ClustersFormed    int     `json:"clusters_formed"`
	ProcessingSeconds float64 `json:"processing_seconds"`
}
