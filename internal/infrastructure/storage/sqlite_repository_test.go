package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"NarrativeScanner/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestEvidenceRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	e := domain.Evidence{
		ID:          "e1",
		Title:       "Silver climbs",
		Body:        "Industrial demand keeps rising.",
		URL:         "https://example.com/1",
		Source:      "kitco-news/silver",
		PublishedAt: published,
		Metadata:    map[string]string{"category": "silver"},
	}
	if err := repo.SaveEvidence(ctx, e); err != nil {
		t.Fatalf("save evidence: %v", err)
	}

	// Unassigned evidence is invisible to narrative queries.
	docs, err := repo.EvidenceForNarrative(ctx, "n1", published.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query evidence: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no assigned evidence, got %d", len(docs))
	}

	if err := repo.AssignNarrative(ctx, "e1", "n1"); err != nil {
		t.Fatalf("assign narrative: %v", err)
	}

	docs, err = repo.EvidenceForNarrative(ctx, "n1", published.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query evidence: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	got := docs[0]
	if got.Title != e.Title || got.NarrativeID != "n1" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if got.Metadata["category"] != "silver" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}

	// The since cutoff excludes older documents.
	docs, err = repo.EvidenceForNarrative(ctx, "n1", published.Add(time.Hour))
	if err != nil {
		t.Fatalf("query evidence: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected cutoff to exclude the document")
	}
}

func TestSaveEvidenceUpsert(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	e := domain.Evidence{ID: "e1", NarrativeID: "n1", Title: "First", Body: "b", PublishedAt: published}
	if err := repo.SaveEvidence(ctx, e); err != nil {
		t.Fatalf("save evidence: %v", err)
	}

	e.Title = "Updated"
	if err := repo.SaveEvidence(ctx, e); err != nil {
		t.Fatalf("resave evidence: %v", err)
	}

	docs, err := repo.EvidenceForNarrative(ctx, "n1", published.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query evidence: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "Updated" {
		t.Fatalf("upsert failed: %+v", docs)
	}
}

func TestPricesRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p := domain.PriceSample{Timestamp: base.Add(time.Duration(i) * time.Hour), Price: 30 + float64(i)}
		if err := repo.SavePrice(ctx, p); err != nil {
			t.Fatalf("save price: %v", err)
		}
	}

	prices, err := repo.PricesSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("query prices: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	if prices[0].Price != 31 {
		t.Fatalf("unexpected ordering: %+v", prices)
	}
}

func TestNarrativeRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	n := domain.Narrative{
		ID:              "n1",
		Name:            "Solar Demand",
		Description:     "Industrial offtake narrative.",
		Phase:           domain.PhaseGrowth,
		Strength:        70,
		Credibility:     85,
		Sentiment:       0.4,
		MentionVelocity: 2.5,
		Keywords:        []string{"silver", "solar panels"},
		Sources:         []string{"kitco-news/silver"},
		EvidenceCount:   6,
		BirthTime:       now.Add(-72 * time.Hour),
		LastUpdated:     now,
	}
	if err := repo.SaveNarrative(ctx, n); err != nil {
		t.Fatalf("save narrative: %v", err)
	}

	dead := n
	dead.ID = "n2"
	dead.Phase = domain.PhaseDeath
	death := now
	dead.DeathTime = &death
	if err := repo.SaveNarrative(ctx, dead); err != nil {
		t.Fatalf("save dead narrative: %v", err)
	}

	active, err := repo.ActiveNarratives(ctx)
	if err != nil {
		t.Fatalf("query narratives: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected only the live narrative, got %d", len(active))
	}

	got := active[0]
	if got.ID != "n1" || got.Phase != domain.PhaseGrowth || got.Strength != 70 {
		t.Fatalf("unexpected narrative: %+v", got)
	}
	if len(got.Keywords) != 2 || got.Keywords[1] != "solar panels" {
		t.Fatalf("keywords lost: %+v", got.Keywords)
	}
	if got.DeathTime != nil {
		t.Fatalf("live narrative should have no death time")
	}

	// Phase updates overwrite in place.
	n.Phase = domain.PhasePeak
	if err := repo.SaveNarrative(ctx, n); err != nil {
		t.Fatalf("update narrative: %v", err)
	}
	active, err = repo.ActiveNarratives(ctx)
	if err != nil {
		t.Fatalf("query narratives: %v", err)
	}
	if len(active) != 1 || active[0].Phase != domain.PhasePeak {
		t.Fatalf("phase update lost: %+v", active)
	}
}
