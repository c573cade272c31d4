package liveness

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func TestRetentionBuffer_Empty(t *testing.T) {
	b := NewRetentionBuffer[string](3)
	if _, _, ok := b.Best(); ok {
		t.Error("empty buffer should have no best")
	}
	if len(b.All()) != 0 {
		t.Error("empty buffer should return no items")
	}
}

func TestRetentionBuffer_Ordering(t *testing.T) {
	b := NewRetentionBuffer[string](3)
	b.Offer("a", 0.5)
	b.Offer("b", 0.9)
	b.Offer("c", 0.7)

	if got := b.All(); !slices.Equal(got, []string{"b", "c", "a"}) {
		t.Errorf("expected [b c a], got %v", got)
	}
	best, score, ok := b.Best()
	if !ok || best != "b" || score != 0.9 {
		t.Errorf("expected best b/0.9, got %s/%v/%v", best, score, ok)
	}
}

func TestRetentionBuffer_EvictsLowest(t *testing.T) {
	b := NewRetentionBuffer[string](3)
	b.Offer("a", 0.5)
	b.Offer("b", 0.9)
	b.Offer("c", 0.7)

	if !b.Offer("d", 0.8) {
		t.Error("higher score should be retained")
	}
	if got := b.All(); !slices.Equal(got, []string{"b", "d", "c"}) {
		t.Errorf("expected [b d c], got %v", got)
	}
}

func TestRetentionBuffer_LowerScoreIsNoop(t *testing.T) {
	b := NewRetentionBuffer[string](3)
	b.Offer("a", 0.5)
	b.Offer("b", 0.9)
	b.Offer("c", 0.7)
	before := b.All()

	if b.Offer("d", 0.1) {
		t.Error("lower score should be rejected at capacity")
	}
	if got := b.All(); !slices.Equal(got, before) {
		t.Errorf("buffer changed: %v -> %v", before, got)
	}
	if b.Offered() != 4 {
		t.Errorf("expected offered count 4, got %d", b.Offered())
	}
}

func TestRetentionBuffer_TieKeepsEarlier(t *testing.T) {
	b := NewRetentionBuffer[string](2)
	b.Offer("first", 0.5)
	b.Offer("second", 0.5)
	if got := b.All(); !slices.Equal(got, []string{"first", "second"}) {
		t.Errorf("expected insertion order for ties, got %v", got)
	}
	if b.Offer("third", 0.5) {
		t.Error("equal score should not displace a retained item")
	}
	if got := b.All(); !slices.Equal(got, []string{"first", "second"}) {
		t.Errorf("expected unchanged buffer, got %v", got)
	}
}

func TestRetentionBuffer_Clear(t *testing.T) {
	b := NewRetentionBuffer[string](2)
	b.Offer("a", 0.5)
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected empty after Clear, got %d", b.Len())
	}
	if b.Offered() != 1 {
		t.Errorf("offered counter should survive Clear, got %d", b.Offered())
	}
}

func TestRetentionBuffer_AllIsCopy(t *testing.T) {
	b := NewRetentionBuffer[string](2)
	b.Offer("a", 0.5)
	items := b.All()
	items[0] = "mutated"
	if best, _, _ := b.Best(); best != "a" {
		t.Errorf("All should return a copy, best is %s", best)
	}
}

func TestRetentionBuffer_BoundedAndSorted(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, capacity := range []int{1, 2, 5, 16} {
		b := NewRetentionBuffer[int](capacity)
		for i := range 200 {
			b.Offer(i, rng.Float64())
			if b.Len() > capacity {
				t.Fatalf("capacity %d exceeded: %d", capacity, b.Len())
			}
			scores := b.Scores()
			for j := 1; j < len(scores); j++ {
				if scores[j] > scores[j-1] {
					t.Fatalf("scores not descending: %v", scores)
				}
			}
		}
	}
}
