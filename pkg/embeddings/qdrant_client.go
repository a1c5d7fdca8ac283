package embeddings

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const qdrantContentKey = "content"

// QdrantClient talks to Qdrant over its gRPC API.
type QdrantClient struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string

	mu     sync.RWMutex
	metric DistanceMetric
}

var _ Client = (*QdrantClient)(nil)

func NewQdrantClient(host string, port int, collection string) (*QdrantClient, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to qdrant: %w", err)
	}
	return &QdrantClient{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		metric:      DistanceL2,
	}, nil
}

func (c *QdrantClient) CreateSchema(ctx context.Context, cfg *SchemaConfig) error {
	c.mu.Lock()
	c.metric = cfg.metric()
	c.mu.Unlock()

	exists, err := c.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: c.collection,
	})
	if err != nil {
		return fmt.Errorf("Failed to check qdrant collection: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	if cfg == nil || cfg.IndexDim <= 0 {
		return fmt.Errorf("Failed to create qdrant collection: invalid dimension")
	}

	if _, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(cfg.IndexDim),
			Distance: qdrantDistance(cfg.metric()),
		}}},
	}); err != nil {
		return fmt.Errorf("Failed to create qdrant collection: %w", err)
	}
	return nil
}

func (c *QdrantClient) DropSchema(ctx context.Context) error {
	if _, err := c.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: c.collection}); err != nil {
		return fmt.Errorf("Failed to drop qdrant collection: %w", err)
	}
	return nil
}

func (c *QdrantClient) InsertDocument(ctx context.Context, doc *Document) error {
	payload := map[string]*pb.Value{
		qdrantContentKey: {Kind: &pb.Value_StringValue{StringValue: doc.Text}},
	}
	for k, v := range doc.Metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	wait := true
	if _, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: doc.Id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: f32(doc.Embedding)}}},
			Payload: payload,
		}},
	}); err != nil {
		return fmt.Errorf("Failed to upsert qdrant point: %w", err)
	}
	return nil
}

func (c *QdrantClient) FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.collection,
		Vector:         f32(embedding),
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to search qdrant collection: %w", err)
	}

	c.mu.RLock()
	metric := c.metric
	c.mu.RUnlock()

	docs := make([]*Document, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		doc := &Document{
			Id:       pt.GetId().GetUuid(),
			Metadata: map[string]string{},
			Distance: qdrantScoreToDistance(metric, pt.GetScore()),
		}
		for k, v := range pt.GetPayload() {
			if k == qdrantContentKey {
				doc.Text = v.GetStringValue()
			} else {
				doc.Metadata[k] = v.GetStringValue()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *QdrantClient) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := c.points.Count(ctx, &pb.CountPoints{
		CollectionName: c.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("Failed to count qdrant points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (c *QdrantClient) Close() error {
	return c.conn.Close()
}

func qdrantDistance(m DistanceMetric) pb.Distance {
	switch m {
	case DistanceCosine:
		return pb.Distance_Cosine
	case DistanceIP:
		return pb.Distance_Dot
	default:
		return pb.Distance_Euclid
	}
}

// qdrantScoreToDistance maps a Qdrant score onto the same scale the other
// clients report: squared L2, or 1 - similarity.
func qdrantScoreToDistance(m DistanceMetric, score float32) float64 {
	s := float64(score)
	switch m {
	case DistanceCosine, DistanceIP:
		return 1 - s
	default:
		return s * s
	}
}
