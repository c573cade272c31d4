package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, ttl), mr
}

func TestNewStore_DefaultTTL(t *testing.T) {
	store := NewStore(redis.NewClient(&redis.Options{}), 0)
	if store.captureTTL != time.Hour {
		t.Errorf("expected default TTL 1h, got %v", store.captureTTL)
	}
}

func TestStore_SaveAndBest(t *testing.T) {
	store, mr := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	for _, c := range []struct {
		data  string
		score float64
	}{{"low", 0.4}, {"high", 0.95}, {"mid", 0.7}} {
		err := store.SaveCapture(ctx, &Capture{SessionID: "s1", Kind: CaptureFace, Score: c.score, Data: []byte(c.data)})
		if err != nil {
			t.Fatalf("SaveCapture failed: %v", err)
		}
	}

	best, err := store.BestCapture(ctx, "s1", CaptureFace)
	if err != nil {
		t.Fatalf("BestCapture failed: %v", err)
	}
	if string(best.Data) != "high" || best.Score != 0.95 {
		t.Errorf("expected high/0.95, got %s/%v", best.Data, best.Score)
	}
	if best.Kind != CaptureFace || best.SessionID != "s1" {
		t.Errorf("unexpected capture identity %+v", best)
	}

	if ttl := mr.TTL(captureKey("s1", CaptureFace)); ttl != 10*time.Minute {
		t.Errorf("expected TTL 10m, got %v", ttl)
	}
}

func TestStore_KeepsOnlyBest(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	for i, data := range []string{"a", "b", "c", "d", "e"} {
		store.SaveCapture(ctx, &Capture{SessionID: "s1", Kind: CaptureFrame, Score: float64(i), Data: []byte(data)})
	}

	captures, err := store.ListCaptures(ctx, "s1", CaptureFrame, 10)
	if err != nil {
		t.Fatalf("ListCaptures failed: %v", err)
	}
	if len(captures) != 3 {
		t.Fatalf("expected 3 retained captures, got %d", len(captures))
	}
	want := []string{"e", "d", "c"}
	for i, c := range captures {
		if string(c.Data) != want[i] {
			t.Errorf("capture %d: expected %s, got %s", i, want[i], c.Data)
		}
	}
}

func TestStore_KindsAreSeparate(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	store.SaveCapture(ctx, &Capture{SessionID: "s1", Kind: CaptureFrame, Score: 1, Data: []byte("frame")})

	if _, err := store.BestCapture(ctx, "s1", CaptureFace); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("expected ErrCaptureNotFound for face, got %v", err)
	}
	if c, err := store.BestCapture(ctx, "s1", CaptureFrame); err != nil || string(c.Data) != "frame" {
		t.Errorf("expected frame capture, got %v %v", c, err)
	}
}

func TestStore_SaveEmpty(t *testing.T) {
	store, _ := newTestStore(t, 0)
	err := store.SaveCapture(context.Background(), &Capture{SessionID: "s1", Kind: CaptureFace})
	if !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestStore_DeleteCaptures(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()

	store.SaveCapture(ctx, &Capture{SessionID: "s1", Kind: CaptureFace, Score: 1, Data: []byte("f")})
	store.SaveCapture(ctx, &Capture{SessionID: "s1", Kind: CaptureFrame, Score: 1, Data: []byte("g")})

	if err := store.DeleteCaptures(ctx, "s1"); err != nil {
		t.Fatalf("DeleteCaptures failed: %v", err)
	}
	if mr.Exists(captureKey("s1", CaptureFace)) || mr.Exists(captureKey("s1", CaptureFrame)) {
		t.Error("expected capture keys to be removed")
	}
}
