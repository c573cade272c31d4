package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCaptureNotFound = errors.New("capture not found")

// Store keeps the best captures of each session in a Redis sorted set per
// kind, ranked by quality score.
type Store struct {
	redis      *redis.Client
	captureTTL time.Duration
	keep       int64
}

func NewStore(redisClient *redis.Client, captureTTL time.Duration) *Store {
	if captureTTL == 0 {
		captureTTL = time.Hour
	}
	return &Store{
		redis:      redisClient,
		captureTTL: captureTTL,
		keep:       3,
	}
}

func captureKey(sessionID string, kind CaptureKind) string {
	return fmt.Sprintf("liveness:%s:captures:%s", sessionID, kind)
}

func (s *Store) SaveCapture(ctx context.Context, c *Capture) error {
	if len(c.Data) == 0 {
		return ErrEmptyFrame
	}

	key := captureKey(c.SessionID, c.Kind)
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: c.Score, Member: c.Data})
	pipe.ZRemRangeByRank(ctx, key, 0, -(s.keep + 1))
	pipe.Expire(ctx, key, s.captureTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) BestCapture(ctx context.Context, sessionID string, kind CaptureKind) (*Capture, error) {
	captures, err := s.ListCaptures(ctx, sessionID, kind, 1)
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return nil, ErrCaptureNotFound
	}
	return captures[0], nil
}

// ListCaptures returns up to limit captures, best first.
func (s *Store) ListCaptures(ctx context.Context, sessionID string, kind CaptureKind, limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = int(s.keep)
	}

	results, err := s.redis.ZRevRangeWithScores(ctx, captureKey(sessionID, kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	captures := make([]*Capture, 0, len(results))
	for _, r := range results {
		data, ok := r.Member.(string)
		if !ok {
			continue
		}
		captures = append(captures, &Capture{
			SessionID: sessionID,
			Kind:      kind,
			Score:     r.Score,
			Data:      []byte(data),
		})
	}
	return captures, nil
}

func (s *Store) DeleteCaptures(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx,
		captureKey(sessionID, CaptureFace),
		captureKey(sessionID, CaptureFrame),
	).Err()
}
