package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/ports"
)

// GenAIProvider embeds text with the Gemini embedding API. Vectors are
// requested with the clustering task type since that is their only use.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

var _ ports.EmbeddingProvider = (*GenAIProvider)(nil)

// NewGenAIProvider creates a Gemini-backed embedding provider.
func NewGenAIProvider(ctx context.Context, cfg config.GenAIConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai api key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIProvider{
		client: client,
		model:  cfg.EmbeddingModel,
	}, nil
}

// Embed requests a vector for one text.
func (p *GenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("genai embed returned no vectors")
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one request.
func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType: "CLUSTERING",
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed returned %d vectors for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimensions reports the vector width. gemini-embedding-001 produces 768.
func (p *GenAIProvider) Dimensions() int {
	return 768
}

func (p *GenAIProvider) Name() string {
	return fmt.Sprintf("genai:%s", p.model)
}
