package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
	"NarrativeScanner/internal/scanner"
)

// StrategySource implements ports.Collector by fanning the configured sites
// out to their registered strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.Collector = (*StrategySource)(nil)

// NewStrategySource wires the strategy registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// Collect iterates over configured sites and executes their strategies.
func (s *StrategySource) Collect(ctx context.Context, day time.Time) ([]domain.Evidence, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("collector registry is not configured")
	}

	s.debug("collect evidence", "sites", len(s.sites), "day", day.Format("2006-01-02"))

	var aggregated []domain.Evidence
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Collector)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := scanner.Request{
			Day:        day,
			SiteName:   site.Name,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		}

		results, err := strategy.Collect(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("collect site %s: %w", site.Name, err)
		}

		for i := range results {
			if results[i].Source == "" {
				results[i].Source = site.Name
			}
		}
		s.debug("site produced evidence", "site", site.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("collection done", "total_documents", len(aggregated))
	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
