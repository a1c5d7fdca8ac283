package embeddings

import "context"

// Embedder turns text into a fixed-length vector. Every vector produced by
// one Embedder has the same dimensionality.
type Embedder interface {
	Model() Model
	Embed(ctx context.Context, text string) ([]float64, error)
}
