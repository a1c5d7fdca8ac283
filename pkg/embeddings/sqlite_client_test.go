package embeddings

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteClient(t *testing.T, path string) *SQLiteClient {
	t.Helper()
	c, err := NewSQLiteClient(context.Background(), path, "documents")
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteClient_InvalidCollection(t *testing.T) {
	for _, name := range []string{
		"docs; DROP TABLE x",
		"",
		"9lives",
		"collections",
		"Collections",
		"sqlite_master",
	} {
		if _, err := NewSQLiteClient(context.Background(), ":memory:", name); err == nil {
			t.Errorf("NewSQLiteClient(%q): expected error", name)
		}
	}
}

func TestSQLiteClient_CollectionNamesShareDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	schema := &SchemaConfig{IndexDim: 2, DistanceMetric: DistanceCosine}

	var clients []*SQLiteClient
	for _, name := range []string{"notes", "collections_archive"} {
		c, err := NewSQLiteClient(ctx, path, name)
		if err != nil {
			t.Fatalf("NewSQLiteClient(%s): %v", name, err)
		}
		t.Cleanup(func() { c.Close() })
		if err := c.CreateSchema(ctx, schema); err != nil {
			t.Fatalf("CreateSchema(%s): %v", name, err)
		}
		clients = append(clients, c)
	}

	doc := &Document{Id: "a", Text: "alpha", Embedding: []float64{1, 0}}
	if err := clients[0].InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	for i, want := range []int{1, 0} {
		n, err := clients[i].Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != want {
			t.Errorf("client %d Count() = %d, want %d", i, n, want)
		}
	}
}

func TestSQLiteClient_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLiteClient(t, ":memory:")
	if err := c.CreateSchema(ctx, &SchemaConfig{IndexDim: 2, DistanceMetric: DistanceCosine}); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	docs := []*Document{
		{Id: "1", Text: "north", Embedding: []float64{0, 1}, Metadata: map[string]string{MetaFilename: "n.txt"}},
		{Id: "2", Text: "east", Embedding: []float64{1, 0}, Metadata: map[string]string{MetaFilename: "e.txt", MetaEmbeddingModel: "hash"}},
	}
	for _, d := range docs {
		if err := c.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	got, err := c.FindKNearest(ctx, []float64{2, 0.1}, 1)
	if err != nil {
		t.Fatalf("FindKNearest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Id != "2" || got[0].Text != "east" {
		t.Errorf("unexpected match: %+v", got[0])
	}
	if got[0].Metadata[MetaEmbeddingModel] != "hash" || got[0].Filename() != "e.txt" {
		t.Errorf("metadata not round-tripped: %v", got[0].Metadata)
	}
}

func TestSQLiteClient_EmptyCollection(t *testing.T) {
	c := newTestSQLiteClient(t, ":memory:")
	got, err := c.FindKNearest(context.Background(), []float64{1, 0}, 1)
	if err != nil {
		t.Fatalf("FindKNearest: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestSQLiteClient_DuplicateID(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLiteClient(t, ":memory:")
	doc := &Document{Id: "same", Text: "x", Embedding: []float64{1}}
	if err := c.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := c.InsertDocument(ctx, doc); err == nil {
		t.Error("expected error on duplicate id")
	}
}

func TestSQLiteClient_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store", "docs.db")

	c, err := NewSQLiteClient(ctx, path, "documents")
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	if err := c.CreateSchema(ctx, &SchemaConfig{IndexDim: 2, DistanceMetric: DistanceIP}); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if err := c.InsertDocument(ctx, &Document{Id: "1", Text: "kept", Embedding: []float64{0.5, 0.5}}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	c.Close()

	c = newTestSQLiteClient(t, path)
	if c.metric != DistanceIP {
		t.Errorf("metric = %s, want IP", c.metric)
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() after reopen = %d, want 1", n)
	}
}

func TestSQLiteClient_DropSchema(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLiteClient(t, ":memory:")
	if err := c.InsertDocument(ctx, &Document{Id: "1", Embedding: []float64{1}}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := c.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if err := c.CreateSchema(ctx, nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if n, _ := c.Count(ctx); n != 0 {
		t.Errorf("Count() after drop = %d, want 0", n)
	}
}
