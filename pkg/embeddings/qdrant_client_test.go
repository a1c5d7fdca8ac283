package embeddings

import (
	"context"
	"net"
	"sync"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// fakeQdrant keeps points in insertion order and scores them 0.75, 0.5, ...
type fakeQdrant struct {
	mu      sync.Mutex
	created *pb.CreateCollection
	points  []*pb.PointStruct
}

func (f *fakeQdrant) snapshot() (*pb.CreateCollection, []*pb.PointStruct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, append([]*pb.PointStruct(nil), f.points...)
}

type fakeQdrantCollections struct {
	pb.UnimplementedCollectionsServer
	*fakeQdrant
}

type fakeQdrantPoints struct {
	pb.UnimplementedPointsServer
	*fakeQdrant
}

func (f fakeQdrantCollections) CollectionExists(ctx context.Context, req *pb.CollectionExistsRequest) (*pb.CollectionExistsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exists := f.created != nil && f.created.GetCollectionName() == req.GetCollectionName()
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: exists}}, nil
}

func (f fakeQdrantCollections) Create(ctx context.Context, req *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = req
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f fakeQdrantCollections) Delete(ctx context.Context, req *pb.DeleteCollection) (*pb.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = nil
	f.points = nil
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f fakeQdrantPoints) Upsert(ctx context.Context, req *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, req.GetPoints()...)
	return &pb.PointsOperationResponse{Result: &pb.UpdateResult{Status: pb.UpdateStatus_Completed}}, nil
}

func (f fakeQdrantPoints) Search(ctx context.Context, req *pb.SearchPoints) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*pb.ScoredPoint
	score := float32(0.75)
	for _, p := range f.points {
		if uint64(len(res)) == req.GetLimit() {
			break
		}
		res = append(res, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: score})
		score -= 0.25
	}
	return &pb.SearchResponse{Result: res}, nil
}

func (f fakeQdrantPoints) Count(ctx context.Context, req *pb.CountPoints) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &pb.CountResponse{Result: &pb.CountResult{Count: uint64(len(f.points))}}, nil
}

func startFakeQdrant(t *testing.T) (*fakeQdrant, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fake := &fakeQdrant{}
	s := grpc.NewServer()
	pb.RegisterCollectionsServer(s, fakeQdrantCollections{fakeQdrant: fake})
	pb.RegisterPointsServer(s, fakeQdrantPoints{fakeQdrant: fake})
	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return fake, lis.Addr().(*net.TCPAddr).Port
}

func TestQdrantClient_RoundTrip(t *testing.T) {
	fake, port := startFakeQdrant(t)
	ctx := context.Background()

	c, err := NewQdrantClient("127.0.0.1", port, "documents")
	if err != nil {
		t.Fatalf("NewQdrantClient: %v", err)
	}
	defer c.Close()

	if err := c.CreateSchema(ctx, &SchemaConfig{IndexDim: 3, DistanceMetric: DistanceCosine}); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	created, _ := fake.snapshot()
	params := created.GetVectorsConfig().GetParams()
	if params.GetSize() != 3 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("created with size %d distance %v, want 3 Cosine", params.GetSize(), params.GetDistance())
	}
	// A second call finds the collection and leaves it alone.
	if err := c.CreateSchema(ctx, &SchemaConfig{IndexDim: 3, DistanceMetric: DistanceCosine}); err != nil {
		t.Fatalf("CreateSchema again: %v", err)
	}

	docs := []*Document{
		{Id: "6f1c1d1e-0000-4000-8000-000000000001", Text: "alpha", Embedding: []float64{1, 0, 0}, Metadata: map[string]string{MetaFilename: "a.txt"}},
		{Id: "6f1c1d1e-0000-4000-8000-000000000002", Text: "beta", Embedding: []float64{0, 1, 0}, Metadata: map[string]string{MetaFilename: "b.txt"}},
	}
	for _, d := range docs {
		if err := c.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument(%s): %v", d.Id, err)
		}
	}
	_, points := fake.snapshot()
	if got := points[0].GetVectors().GetVector().GetData(); len(got) != 3 || got[0] != 1 {
		t.Errorf("stored vector = %v, want [1 0 0]", got)
	}

	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	got, err := c.FindKNearest(ctx, []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("FindKNearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	wantDist := []float64{0.25, 0.5}
	for i, want := range docs {
		if got[i].Id != want.Id || got[i].Text != want.Text {
			t.Errorf("result %d = (%s, %q), want (%s, %q)", i, got[i].Id, got[i].Text, want.Id, want.Text)
		}
		if got[i].Filename() != want.Metadata[MetaFilename] {
			t.Errorf("result %d Filename() = %q, want %q", i, got[i].Filename(), want.Metadata[MetaFilename])
		}
		if _, ok := got[i].Metadata[qdrantContentKey]; ok {
			t.Errorf("result %d carries the content payload key in metadata", i)
		}
		if got[i].Distance != wantDist[i] {
			t.Errorf("result %d Distance = %v, want %v", i, got[i].Distance, wantDist[i])
		}
	}

	if err := c.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if n, err := c.Count(ctx); err != nil || n != 0 {
		t.Errorf("Count() after drop = %d, %v; want 0", n, err)
	}
}

func TestQdrantClient_ScoreToDistance(t *testing.T) {
	tests := []struct {
		metric DistanceMetric
		score  float32
		want   float64
	}{
		{DistanceCosine, 0.75, 0.25},
		{DistanceIP, 0.5, 0.5},
		{DistanceL2, 2, 4},
	}
	for _, tt := range tests {
		if got := qdrantScoreToDistance(tt.metric, tt.score); got != tt.want {
			t.Errorf("qdrantScoreToDistance(%v, %v) = %v, want %v", tt.metric, tt.score, got, tt.want)
		}
	}
}
