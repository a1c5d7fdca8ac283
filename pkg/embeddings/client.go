package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Client is a document store addressed by a single collection. Inserts of
// distinct documents may run concurrently.
type Client interface {
	CreateSchema(ctx context.Context, cfg *SchemaConfig) error
	DropSchema(ctx context.Context) error
	InsertDocument(ctx context.Context, doc *Document) error
	// FindKNearest returns up to k documents ordered by ascending distance.
	// An empty collection yields an empty slice and no error.
	FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type DistanceMetric string

const (
	DistanceL2     DistanceMetric = "L2"
	DistanceCosine DistanceMetric = "COSINE"
	DistanceIP     DistanceMetric = "IP"
)

func DistanceMetricFromString(s string) (DistanceMetric, error) {
	switch m := DistanceMetric(strings.ToUpper(s)); m {
	case DistanceL2, DistanceCosine, DistanceIP:
		return m, nil
	case "":
		return DistanceL2, nil
	}
	return "", fmt.Errorf("Unknown distance metric: %s", s)
}

type SchemaConfig struct {
	IndexDim       int
	DistanceMetric DistanceMetric
}

func (c *SchemaConfig) metric() DistanceMetric {
	if c == nil || c.DistanceMetric == "" {
		return DistanceL2
	}
	return c.DistanceMetric
}
