package embeddings

import (
	"context"
	"fmt"
	"sync"

	chroma "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"
)

type ChromaClient struct {
	ch         *chroma.Client
	emb        Embedder
	collection string

	mu   sync.Mutex
	coll *chroma.Collection
}

var _ Client = (*ChromaClient)(nil)

func NewChromaClient(addr string, collection string, emb Embedder) (*ChromaClient, error) {
	ch, err := chroma.NewClient(addr)
	if err != nil {
		return nil, err
	}
	return &ChromaClient{
		ch:         ch,
		emb:        emb,
		collection: collection,
	}, nil
}

// CreateSchema creates the collection, or attaches to it when it already
// exists.
func (c *ChromaClient) CreateSchema(ctx context.Context, cfg *SchemaConfig) error {
	coll, err := c.ch.CreateCollection(
		ctx,
		c.collection,
		map[string]any{},
		/*createOrGet=*/ true,
		newChromaEmbedder(c.emb),
		chromaDistance(cfg.metric()),
	)
	if err != nil {
		return fmt.Errorf("Failed to create ChromaDB collection: %w", err)
	}
	c.mu.Lock()
	c.coll = coll
	c.mu.Unlock()
	return nil
}

func (c *ChromaClient) DropSchema(ctx context.Context) error {
	if _, err := c.ch.DeleteCollection(ctx, c.collection); err != nil {
		return fmt.Errorf("Failed to drop ChromaDB collection: %w", err)
	}
	c.mu.Lock()
	c.coll = nil
	c.mu.Unlock()
	return nil
}

func (c *ChromaClient) InsertDocument(ctx context.Context, doc *Document) error {
	coll, err := c.getCollection(ctx)
	if err != nil {
		return err
	}
	v32 := f32(doc.Embedding)
	meta := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if _, err := coll.Add(
		ctx,
		[]*types.Embedding{{ArrayOfFloat32: &v32}},
		[]map[string]any{meta},
		[]string{doc.Text},
		[]string{doc.Id},
	); err != nil {
		return fmt.Errorf("Failed to add document: %w", err)
	}
	return nil
}

func (c *ChromaClient) FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error) {
	coll, err := c.getCollection(ctx)
	if err != nil {
		return nil, err
	}
	v32 := f32(embedding)
	res, err := coll.QueryWithOptions(ctx,
		types.WithQueryEmbedding(&types.Embedding{ArrayOfFloat32: &v32}),
		types.WithNResults(int32(k)),
		types.WithInclude(types.IDocuments, types.IMetadatas, types.IDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("Failed to query ChromaDB collection: %w", err)
	}

	docs := make([]*Document, 0, k)
	for i := 0; i < len(res.Documents); i++ {
		for j := 0; j < len(res.Documents[i]); j++ {
			doc := &Document{
				Text:     res.Documents[i][j],
				Metadata: map[string]string{},
			}
			if i < len(res.Ids) && j < len(res.Ids[i]) {
				doc.Id = res.Ids[i][j]
			}
			if i < len(res.Distances) && j < len(res.Distances[i]) {
				doc.Distance = float64(res.Distances[i][j])
			}
			if i < len(res.Metadatas) && j < len(res.Metadatas[i]) {
				for key, v := range res.Metadatas[i][j] {
					if s, ok := v.(string); ok {
						doc.Metadata[key] = s
					}
				}
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (c *ChromaClient) Count(ctx context.Context) (int, error) {
	coll, err := c.getCollection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("Failed to count ChromaDB collection: %w", err)
	}
	return int(n), nil
}

func (c *ChromaClient) Close() error {
	return nil
}

func (c *ChromaClient) getCollection(ctx context.Context) (*chroma.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coll != nil {
		return c.coll, nil
	}
	coll, err := c.ch.GetCollection(ctx, c.collection, newChromaEmbedder(c.emb))
	if err != nil {
		return nil, fmt.Errorf("Failed to get Chroma collection: %w", err)
	}
	c.coll = coll
	return coll, nil
}

func chromaDistance(m DistanceMetric) types.DistanceFunction {
	switch m {
	case DistanceCosine:
		return types.COSINE
	case DistanceIP:
		return types.IP
	default:
		return types.L2
	}
}

// chromaEmbedder lets the collection embed raw query texts with the same
// model the service uses for documents.
type chromaEmbedder struct {
	emb Embedder
}

var _ types.EmbeddingFunction = (*chromaEmbedder)(nil)

func newChromaEmbedder(emb Embedder) types.EmbeddingFunction {
	return &chromaEmbedder{
		emb: emb,
	}
}

func (e *chromaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]*types.Embedding, error) {
	embs := make([]*types.Embedding, 0, len(texts))
	for _, text := range texts {
		emb, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		embs = append(embs, emb)
	}
	return embs, nil
}

func (e *chromaEmbedder) EmbedQuery(ctx context.Context, text string) (*types.Embedding, error) {
	vector, err := e.emb.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	v32 := f32(vector)
	return &types.Embedding{
		ArrayOfFloat32: &v32,
	}, nil
}

func (e *chromaEmbedder) EmbedRecords(ctx context.Context, records []*types.Record, force bool) error {
	return fmt.Errorf("EmbedRecords is not supported")
}
