package embeddings

import "fmt"

type Model string

const (
	AllMiniLM            Model = "all-minilm"
	NomicEmbedText       Model = "nomic-embed-text"
	Llama32              Model = "llama3.2"
	MxbaiEmbedLarge      Model = "mxbai-embed-large"
	SnowflakeArcticEmbed Model = "snowflake-arctic-embed"

	TextEmbedding3Small Model = "text-embedding-3-small"
	TextEmbedding3Large Model = "text-embedding-3-large"

	// Hash is the local feature-hashing embedder; it needs no model server.
	Hash Model = "hash"
)

var knownModels = map[Model]int{
	AllMiniLM:            384,
	NomicEmbedText:       768,
	Llama32:              3072,
	MxbaiEmbedLarge:      1024,
	SnowflakeArcticEmbed: 1024,
	TextEmbedding3Small:  1536,
	TextEmbedding3Large:  3072,
	Hash:                 DefaultHashDim,
}

func (m Model) Name() string {
	return string(m)
}

// Dim returns the embedding dimension of a known model, or 0.
func (m Model) Dim() int {
	return knownModels[m]
}

func ModelFromString(s string) (Model, error) {
	if _, ok := knownModels[Model(s)]; ok {
		return Model(s), nil
	}
	return "", fmt.Errorf("Unknown model: %s", s)
}
