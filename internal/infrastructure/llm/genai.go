package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"NarrativeScanner/internal/config"
	"NarrativeScanner/internal/ports"
)

// GenAIClient implements ports.TextClassifier on the Gemini API. It is the
// second link in the provider chain behind Groq.
type GenAIClient struct {
	client *genai.Client
	model  string
}

var _ ports.TextClassifier = (*GenAIClient)(nil)

// NewGenAIClient creates a Gemini-backed classifier.
func NewGenAIClient(ctx context.Context, cfg config.GenAIConfig) (*GenAIClient, error) {
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

	return &GenAIClient{
		client: client,
		model:  cfg.TextModel,
	}, nil
}

// Name identifies the provider in logs and chain diagnostics.
func (c *GenAIClient) Name() string {
	return "genai"
}

// Complete generates a response for the prompt with the system text as a
// system instruction.
func (c *GenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("genai client is nil")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generate content returned empty response")
	}
	return text, nil
}
