package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"
)

type OllamaEmbedder struct {
	oc      *ollama.Client
	model   Model
	version string
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to the Ollama server at addr and checks that it
// answers before any document is embedded.
func NewOllamaEmbedder(ctx context.Context, addr string, model Model, httpc *http.Client) (*OllamaEmbedder, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse ollama address: %w", err)
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	oc := ollama.NewClient(u, httpc)
	v, err := oc.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to get Ollama version: %w", err)
	}

	return &OllamaEmbedder{
		oc:      oc,
		model:   model,
		version: v,
	}, nil
}

// Version is the server version reported at construction.
func (e *OllamaEmbedder) Version() string {
	return e.version
}

func (e *OllamaEmbedder) Model() Model {
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := e.oc.Embeddings(ctx, &ollama.EmbeddingRequest{
		Model:  e.model.Name(),
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to embed with ollama: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("Failed to embed with ollama: empty embedding for model %s", e.model)
	}
	return res.Embedding, nil
}
