// Package collector implements the evidence collection strategies and the
// config-driven source that drives them.
package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/scanner"
)

// Default selectors match common news index markup. Sites with different
// markup override them through the site's options map.
const (
	defaultItemSelector  = "article"
	defaultTitleSelector = "h2, h3"
	defaultBodySelector  = "p"
	defaultLinkSelector  = "a"
)

// HeadlineScanner crawls news index pages and extracts headline entries as
// evidence documents. Selectors are configurable per site so one strategy
// covers most commodity news outlets.
type HeadlineScanner struct {
	client *http.Client
}

// NewHeadlineScanner wires an HTTP client; a 20 second timeout is applied
// when none is given.
func NewHeadlineScanner(client *http.Client) *HeadlineScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HeadlineScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HeadlineScanner) Name() string {
	return "headline"
}

// Collect walks each category URL and returns the entries found there.
// Index pages rarely carry precise timestamps, so entries are stamped with
// the requested day.
func (h *HeadlineScanner) Collect(ctx context.Context, req scanner.Request) ([]domain.Evidence, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	itemSel := option(req.Options, "itemSelector", defaultItemSelector)
	titleSel := option(req.Options, "titleSelector", defaultTitleSelector)
	bodySel := option(req.Options, "bodySelector", defaultBodySelector)
	linkSel := option(req.Options, "linkSelector", defaultLinkSelector)

	results := make([]domain.Evidence, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		doc, err := h.fetchDocument(ctx, cat.URL)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		doc.Find(itemSel).Each(func(_ int, item *goquery.Selection) {
			title := strings.TrimSpace(item.Find(titleSel).First().Text())
			if title == "" {
				return
			}

			href, _ := item.Find(linkSel).First().Attr("href")
			href = absoluteURL(cat.URL, href)
			key := href
			if key == "" {
				key = title
			}
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}

			body := strings.TrimSpace(item.Find(bodySel).Text())

			results = append(results, domain.Evidence{
				ID:          uuid.NewString(),
				Title:       title,
				Body:        body,
				URL:         href,
				Source:      fmt.Sprintf("%s/%s", req.SiteName, cat.Name),
				PublishedAt: req.Day.UTC(),
				Metadata:    map[string]string{"category": cat.Name},
			})
		})
	}

	return results, nil
}

func (h *HeadlineScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "NarrativeScanner/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("site returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func option(opts map[string]string, key, fallback string) string {
	if v, ok := opts[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}

	base = strings.TrimSuffix(base, "/")
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.Index(base[i+3:], "/"); j >= 0 {
			base = base[:i+3+j]
		}
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}
