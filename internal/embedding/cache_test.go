package embedding

import (
	"context"
	"testing"
	"time"
)

type countingProvider struct {
	calls int
}

func (p *countingProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return []float32{1, 2, 3}, nil
}

func (p *countingProvider) EncodeBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	p.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestCache_EncodeHitsInnerOnce(t *testing.T) {
	inner := &countingProvider{}
	c := NewCache(inner, time.Minute)
	defer c.Stop()

	ctx := context.Background()
	if _, err := c.Encode(ctx, "hello world"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Encode(ctx, "Hello World"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call (normalized dedup), got %d", inner.calls)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	inner := &countingProvider{}
	c := NewCache(inner, time.Millisecond)
	defer c.Stop()

	ctx := context.Background()
	c.Encode(ctx, "x")
	time.Sleep(5 * time.Millisecond)
	c.Encode(ctx, "x")
	if inner.calls != 2 {
		t.Fatalf("expected re-fetch after expiry, got %d calls", inner.calls)
	}
}

func TestCache_EncodeBatchMixesHitsAndMisses(t *testing.T) {
	inner := &countingProvider{}
	c := NewCache(inner, time.Minute)
	defer c.Stop()

	ctx := context.Background()
	c.Encode(ctx, "cached")

	out, err := c.EncodeBatch(ctx, []string{"cached", "fresh"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if inner.calls != 2 { // 1 from Encode, 1 from EncodeBatch covering only "fresh"
		t.Fatalf("expected 2 inner calls total, got %d", inner.calls)
	}
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	out := L2Normalize(v)
	if out[0] < 0.599 || out[0] > 0.601 {
		t.Fatalf("unexpected normalized value: %v", out)
	}
}

func TestL2Normalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	out := L2Normalize(v)
	for _, x := range out {
		if x != 0 {
			t.Fatalf("expected zero vector to remain zero, got %v", out)
		}
	}
}
