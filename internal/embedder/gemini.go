// Package embedder provides implementations of the embeddings.Provider
// interface. The Gemini backend uses the google.golang.org/genai SDK; the
// OpenAI, Azure and Ollama backends talk plain HTTP.
package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements embeddings.Provider using the Gemini embedding
// API. It is safe for concurrent use.
type GeminiEmbedder struct {
	client *genai.Client
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// dimensions is the requested output vector length.
	dimensions int
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI API key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-004").
	Model string
	// Dimensions is the requested vector length (0 = model default, 768).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder from the given config.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultGeminiDimensions
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dimensions: dims}, nil
}

// geminiTaskType maps pipeline task types onto the Gemini API's enum.
func geminiTaskType(taskType string) string {
	switch taskType {
	case "retrieval_query":
		return "RETRIEVAL_QUERY"
	default:
		return "RETRIEVAL_DOCUMENT"
	}
}

// EmbedText embeds a single text with the task-appropriate embedding mode.
func (e *GeminiEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{
		TaskType: geminiTaskType(taskType),
	}
	if e.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dimensions))
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embedder: empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the configured output vector length.
func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }
