package embeddings

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryClient_EmptyCollection(t *testing.T) {
	c := NewMemoryClient()
	docs, err := c.FindKNearest(context.Background(), []float64{1, 0}, 1)
	if err != nil {
		t.Fatalf("FindKNearest: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no results, got %d", len(docs))
	}
}

func TestMemoryClient_FindKNearest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	if err := c.CreateSchema(ctx, &SchemaConfig{IndexDim: 2}); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	docs := []*Document{
		{Id: "a", Text: "alpha", Embedding: []float64{1, 0}, Metadata: map[string]string{MetaFilename: "a.txt"}},
		{Id: "b", Text: "beta", Embedding: []float64{0, 1}, Metadata: map[string]string{MetaFilename: "b.txt"}},
		{Id: "c", Text: "gamma", Embedding: []float64{0.9, 0.1}},
	}
	for _, d := range docs {
		if err := c.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument(%s): %v", d.Id, err)
		}
	}

	got, err := c.FindKNearest(ctx, []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("FindKNearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Id != "a" || got[1].Id != "c" {
		t.Errorf("unexpected order: %s, %s", got[0].Id, got[1].Id)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("distances not ascending: %f > %f", got[0].Distance, got[1].Distance)
	}
	if got[0].Filename() != "a.txt" {
		t.Errorf("Filename() = %q, want a.txt", got[0].Filename())
	}
	if got[1].Filename() != "unknown" {
		t.Errorf("Filename() = %q, want unknown", got[1].Filename())
	}
}

func TestMemoryClient_InsertCopiesDocument(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	doc := &Document{Id: "a", Text: "alpha", Embedding: []float64{1, 0}, Metadata: map[string]string{MetaFilename: "a.txt"}}
	if err := c.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	doc.Embedding[0] = -1
	doc.Metadata[MetaFilename] = "changed.txt"

	got, _ := c.FindKNearest(ctx, []float64{1, 0}, 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Embedding[0] != 1 || got[0].Filename() != "a.txt" {
		t.Error("stored document was mutated through the caller's pointer")
	}
}

func TestMemoryClient_RejectsEmptyID(t *testing.T) {
	c := NewMemoryClient()
	if err := c.InsertDocument(context.Background(), &Document{Text: "x"}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestMemoryClient_ConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.InsertDocument(ctx, &Document{
				Id:        fmt.Sprintf("doc-%d", i),
				Embedding: []float64{float64(i), 1},
			})
		}(i)
	}
	wg.Wait()

	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 50 {
		t.Errorf("Count() = %d, want 50", n)
	}
}

func TestMemoryClient_DropSchema(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	_ = c.InsertDocument(ctx, &Document{Id: "a", Embedding: []float64{1}})
	if err := c.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if n, _ := c.Count(ctx); n != 0 {
		t.Errorf("Count() after drop = %d, want 0", n)
	}
}
