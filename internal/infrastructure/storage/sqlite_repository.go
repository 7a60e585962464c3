// Package storage persists evidence, prices, and narratives into SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

// SQLiteRepository is the single persistence backend. It serves evidence
// reads for metric calculation, price reads for correlation, and narrative
// round-trips across tracking passes.
type SQLiteRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var (
	_ ports.DocumentSource      = (*SQLiteRepository)(nil)
	_ ports.PriceSource         = (*SQLiteRepository)(nil)
	_ ports.NarrativeRepository = (*SQLiteRepository)(nil)
	_ ports.EvidenceStore       = (*SQLiteRepository)(nil)
)

// Open creates the database file if needed and ensures the schema.
func Open(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes through a single connection.
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := repo.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepository) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS evidence (
			id TEXT PRIMARY KEY,
			narrative_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMP NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_narrative ON evidence(narrative_id, published_at)`,
		`CREATE TABLE IF NOT EXISTS prices (
			observed_at TIMESTAMP PRIMARY KEY,
			price REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS narratives (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			strength INTEGER NOT NULL,
			credibility REAL NOT NULL DEFAULT 0,
			sentiment REAL NOT NULL DEFAULT 0,
			mention_velocity REAL NOT NULL DEFAULT 0,
			price_correlation REAL NOT NULL DEFAULT 0,
			keywords TEXT NOT NULL DEFAULT '[]',
			sources TEXT NOT NULL DEFAULT '[]',
			evidence_count INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			birth_time TIMESTAMP NOT NULL,
			last_updated TIMESTAMP NOT NULL,
			death_time TIMESTAMP
		)`,
	}

	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SaveEvidence upserts one collected document.
func (r *SQLiteRepository) SaveEvidence(ctx context.Context, e domain.Evidence) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query, args, err := r.builder.
		Insert("evidence").
		Columns("id", "narrative_id", "title", "body", "url", "source", "author", "published_at", "metadata").
		Values(e.ID, e.NarrativeID, e.Title, e.Body, e.URL, e.Source, e.Author, e.PublishedAt.UTC(), string(meta)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			narrative_id = excluded.narrative_id,
			title = excluded.title,
			body = excluded.body,
			metadata = excluded.metadata`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build evidence insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert evidence: %w", err)
	}
	return nil
}

// EvidenceForNarrative returns documents assigned to a narrative since the
// given time, oldest first.
func (r *SQLiteRepository) EvidenceForNarrative(ctx context.Context, narrativeID string, since time.Time) ([]domain.Evidence, error) {
	query, args, err := r.builder.
		Select("id", "narrative_id", "title", "body", "url", "source", "author", "published_at", "metadata").
		From("evidence").
		Where(sq.Eq{"narrative_id": narrativeID}).
		Where(sq.GtOrEq{"published_at": since.UTC()}).
		OrderBy("published_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build evidence select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []domain.Evidence
	for rows.Next() {
		var e domain.Evidence
		var meta string
		if err := rows.Scan(&e.ID, &e.NarrativeID, &e.Title, &e.Body, &e.URL, &e.Source, &e.Author, &e.PublishedAt, &meta); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// AssignNarrative links a stored document to a narrative.
func (r *SQLiteRepository) AssignNarrative(ctx context.Context, evidenceID, narrativeID string) error {
	query, args, err := r.builder.
		Update("evidence").
		Set("narrative_id", narrativeID).
		Where(sq.Eq{"id": evidenceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("assign narrative: %w", err)
	}
	return nil
}

// SavePrice upserts one price observation.
func (r *SQLiteRepository) SavePrice(ctx context.Context, p domain.PriceSample) error {
	query, args, err := r.builder.
		Insert("prices").
		Columns("observed_at", "price").
		Values(p.Timestamp.UTC(), p.Price).
		Suffix("ON CONFLICT (observed_at) DO UPDATE SET price = excluded.price").
		ToSql()
	if err != nil {
		return fmt.Errorf("build price insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}
	return nil
}

// PricesSince returns price observations newer than the given time.
func (r *SQLiteRepository) PricesSince(ctx context.Context, since time.Time) ([]domain.PriceSample, error) {
	query, args, err := r.builder.
		Select("observed_at", "price").
		From("prices").
		Where(sq.GtOrEq{"observed_at": since.UTC()}).
		OrderBy("observed_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build price select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SaveNarrative upserts the full narrative snapshot.
func (r *SQLiteRepository) SaveNarrative(ctx context.Context, n domain.Narrative) error {
	keywords, err := json.Marshal(n.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	sources, err := json.Marshal(n.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	var death any
	if n.DeathTime != nil {
		death = n.DeathTime.UTC()
	}

	query, args, err := r.builder.
		Insert("narratives").
		Columns("id", "name", "description", "phase", "strength", "credibility", "sentiment",
			"mention_velocity", "price_correlation", "keywords", "sources", "evidence_count",
			"parent_id", "birth_time", "last_updated", "death_time").
		Values(n.ID, n.Name, n.Description, string(n.Phase), n.Strength, n.Credibility, n.Sentiment,
			n.MentionVelocity, n.PriceCorrelation, string(keywords), string(sources), n.EvidenceCount,
			n.ParentID, n.BirthTime.UTC(), n.LastUpdated.UTC(), death).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			phase = excluded.phase,
			strength = excluded.strength,
			credibility = excluded.credibility,
			sentiment = excluded.sentiment,
			mention_velocity = excluded.mention_velocity,
			price_correlation = excluded.price_correlation,
			keywords = excluded.keywords,
			sources = excluded.sources,
			evidence_count = excluded.evidence_count,
			last_updated = excluded.last_updated,
			death_time = excluded.death_time`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build narrative insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert narrative: %w", err)
	}
	return nil
}

// ActiveNarratives returns every narrative that has not reached the death
// phase, strongest first.
func (r *SQLiteRepository) ActiveNarratives(ctx context.Context) ([]domain.Narrative, error) {
	query, args, err := r.builder.
		Select("id", "name", "description", "phase", "strength", "credibility", "sentiment",
			"mention_velocity", "price_correlation", "keywords", "sources", "evidence_count",
			"parent_id", "birth_time", "last_updated", "death_time").
		From("narratives").
		Where(sq.NotEq{"phase": string(domain.PhaseDeath)}).
		OrderBy("strength DESC, id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build narrative select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query narratives: %w", err)
	}
	defer rows.Close()

	var out []domain.Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanNarrative(rows *sql.Rows) (domain.Narrative, error) {
	var n domain.Narrative
	var phase, keywords, sources string
	var death sql.NullTime

	if err := rows.Scan(&n.ID, &n.Name, &n.Description, &phase, &n.Strength, &n.Credibility, &n.Sentiment,
		&n.MentionVelocity, &n.PriceCorrelation, &keywords, &sources, &n.EvidenceCount,
		&n.ParentID, &n.BirthTime, &n.LastUpdated, &death); err != nil {
		return domain.Narrative{}, fmt.Errorf("scan narrative: %w", err)
	}

	n.Phase = domain.Phase(strings.TrimSpace(phase))
	if death.Valid {
		t := death.Time
		n.DeathTime = &t
	}
	if err := json.Unmarshal([]byte(keywords), &n.Keywords); err != nil {
		return domain.Narrative{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &n.Sources); err != nil {
		return domain.Narrative{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return n, nil
}
