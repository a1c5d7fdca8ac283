package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  Model
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds a client for baseURL. An empty baseURL uses the
// public OpenAI API; an empty apiKey falls back to OPENAI_API_KEY.
func NewOpenAIEmbedder(baseURL, apiKey string, model Model) *OpenAIEmbedder {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (e *OpenAIEmbedder) Model() Model {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model.Name()),
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to embed with openai: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("Failed to embed with openai: no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
