// Package embed provides text embedding for the semantic index: the Gemini
// backend, an LRU cache wrapper, and a deterministic offline fallback.
package embed

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}
