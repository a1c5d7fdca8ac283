package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	a, err := e.Embed(ctx, "Atin works on search systems.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "Atin works on search systems.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != DefaultHashDim {
		t.Fatalf("len = %d, want %d", len(a), DefaultHashDim)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashEmbedder_Normalized(t *testing.T) {
	v, err := NewHashEmbedder(64).Embed(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("squared norm = %f, want 1", norm)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestHashEmbedder_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(128)
	a, _ := e.Embed(ctx, "Search Systems")
	b, _ := e.Embed(ctx, "search systems")
	d, err := distance(DistanceL2, a, b)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d != 0 {
		t.Errorf("distance = %f, want 0", d)
	}
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(DefaultHashDim)
	q, _ := e.Embed(ctx, "Atin")
	hit, _ := e.Embed(ctx, "Atin works on search systems.")
	miss, _ := e.Embed(ctx, "Bananas are yellow.")

	dHit, _ := distance(DistanceCosine, q, hit)
	dMiss, _ := distance(DistanceCosine, q, miss)
	if dHit >= dMiss {
		t.Errorf("expected shared token to be closer: hit=%f miss=%f", dHit, dMiss)
	}
}

func TestHashEmbedder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).Embed(ctx, "x"); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Don't stop, O'Brien: v2 works!")
	want := []string{"don't", "stop", "o'brien", "v2", "works"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
