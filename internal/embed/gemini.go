package embed

import (
	"context"

	"github.com/askdoc/askdoc/internal/gemini"
)

// GeminiEmbedder adapts the Gemini API client to the Embedder interface.
type GeminiEmbedder struct {
	client *gemini.Client
	model  string
	query  bool
}

// NewGeminiEmbedder creates a document-side embedder.
func NewGeminiEmbedder(client *gemini.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model}
}

// NewGeminiQueryEmbedder creates a query-side embedder. Document and query
// texts use different task types on the same model.
func NewGeminiQueryEmbedder(client *gemini.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, query: true}
}

// Embed generates an embedding via the Gemini API.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.query {
		return e.client.EmbedQuery(ctx, text)
	}
	return e.client.Embed(ctx, text)
}

// Dimensions returns the embedding width.
func (e *GeminiEmbedder) Dimensions() int {
	return e.client.Dimensions()
}

// ModelName returns the embedding model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
