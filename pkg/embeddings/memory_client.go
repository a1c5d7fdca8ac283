package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient keeps documents in process memory. Nothing survives a restart.
type MemoryClient struct {
	mu     sync.RWMutex
	metric DistanceMetric
	docs   []*Document
}

var _ Client = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		metric: DistanceL2,
	}
}

func (c *MemoryClient) CreateSchema(ctx context.Context, cfg *SchemaConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metric = cfg.metric()
	return nil
}

func (c *MemoryClient) DropSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = nil
	return nil
}

func (c *MemoryClient) InsertDocument(ctx context.Context, doc *Document) error {
	if doc.Id == "" {
		return fmt.Errorf("Failed to insert document: empty id")
	}
	stored := *doc
	stored.Embedding = append([]float64(nil), doc.Embedding...)
	stored.Metadata = make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		stored.Metadata[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, &stored)
	return nil
}

func (c *MemoryClient) FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nearest(c.metric, embedding, c.docs, k), nil
}

func (c *MemoryClient) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

func (c *MemoryClient) Close() error {
	return nil
}
