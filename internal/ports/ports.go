package ports

import (
	"context"
	"time"

	"NarrativeScanner/internal/domain"
)

// DocumentSource gives the core read access to collected evidence and lets
// NarrativeBuilder persist narrative assignments back onto documents.
type DocumentSource interface {
	EvidenceForNarrative(ctx context.Context, narrativeID string, since time.Time) ([]domain.Evidence, error)
	AssignNarrative(ctx context.Context, evidenceID, narrativeID string) error
}

// PriceSource exposes the timestamped price series used for correlation.
type PriceSource interface {
	PricesSince(ctx context.Context, since time.Time) ([]domain.PriceSample, error)
}

// NarrativeRepository persists narrative records across tracking passes.
type NarrativeRepository interface {
	SaveNarrative(ctx context.Context, n domain.Narrative) error
	ActiveNarratives(ctx context.Context) ([]domain.Narrative, error)
}

// TextClassifier is a pluggable text-completion capability. Implementations
// return raw model output; callers own the parsing and the error fallback.
type TextClassifier interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// EmbeddingProvider turns text into fixed-length vectors for clustering.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// SentimentScorer returns a compound sentiment score in [-1,1] for a text.
// The default implementation is lexicon based and needs no network.
type SentimentScorer interface {
	Score(text string) float64
}

// EvidenceStore persists collected documents before discovery runs.
type EvidenceStore interface {
	SaveEvidence(ctx context.Context, e domain.Evidence) error
}

// Collector pulls fresh evidence from an upstream site or feed.
type Collector interface {
	Collect(ctx context.Context, day time.Time) ([]domain.Evidence, error)
}

// Scheduler drives the recurring scan job.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
