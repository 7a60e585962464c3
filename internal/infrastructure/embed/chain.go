package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

// Chain tries embedding providers in order and serves the first success.
// A provider that fails at call time falls through to the next one, so a
// configured cloud provider with a dead endpoint never blocks clustering
// as long as a local fallback answers. It satisfies ports.EmbeddingProvider
// itself so callers never see which provider embedded.
type Chain struct {
	links  []ports.EmbeddingProvider
	logger *slog.Logger
}

var _ ports.EmbeddingProvider = (*Chain)(nil)

func NewChain(logger *slog.Logger) *Chain {
	return &Chain{logger: logger}
}

// Add appends a provider to the fall-through order.
func (c *Chain) Add(provider ports.EmbeddingProvider) *Chain {
	if provider != nil {
		c.links = append(c.links, provider)
	}
	return c
}

// Len reports the number of configured providers.
func (c *Chain) Len() int {
	return len(c.links)
}

// Name identifies the chain in logs.
func (c *Chain) Name() string {
	return "chain"
}

// Dimensions reports the vector width of the preferred provider. Every
// configured provider must emit the same width.
func (c *Chain) Dimensions() int {
	if len(c.links) == 0 {
		return 0
	}
	return c.links[0].Dimensions()
}

// Embed walks the chain until a provider answers.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(c.links) == 0 {
		return nil, fmt.Errorf("no embedding providers configured: %w", domain.ErrProviderUnavailable)
	}

	var errs []error
	for _, provider := range c.links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := provider.Embed(ctx, text)
		if err != nil {
			c.debug("embedding provider failed, trying next", "provider", provider.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		return v, nil
	}

	errs = append(errs, domain.ErrProviderUnavailable)
	return nil, errors.Join(errs...)
}

// EmbedBatch walks the chain until a provider answers for the whole batch.
// Batches are all-or-nothing per provider: a mid-batch failure retries the
// entire batch on the next provider so vectors never mix models.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(c.links) == 0 {
		return nil, fmt.Errorf("no embedding providers configured: %w", domain.ErrProviderUnavailable)
	}

	var errs []error
	for _, provider := range c.links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := provider.EmbedBatch(ctx, texts)
		if err != nil {
			c.debug("embedding provider failed, trying next", "provider", provider.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		return vectors, nil
	}

	errs = append(errs, domain.ErrProviderUnavailable)
	return nil, errors.Join(errs...)
}

func (c *Chain) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
