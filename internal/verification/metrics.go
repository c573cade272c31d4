package verification

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/redis/go-redis/v9"
)

const (
	metricsTTL        = 7 * 24 * time.Hour
	errorFieldPrefix  = "error:"
	maxMetricsHours   = 7 * 24
	defaultMetricHour = 24
)

// MetricsStore keeps hourly outcome counters per client in Redis hashes.
type MetricsStore struct {
	redis *redis.Client
	now   func() time.Time
}

func NewMetricsStore(redisClient *redis.Client) *MetricsStore {
	return &MetricsStore{redis: redisClient, now: time.Now}
}

func (s *MetricsStore) Record(ctx context.Context, clientID string, r liveness.Result) error {
	now := s.now().UTC()
	key := MetricsRedisKey(clientID, now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "sessions", 1)
	switch r.State {
	case liveness.StateFinishedSuccess:
		pipe.HIncrBy(ctx, key, "successes", 1)
	case liveness.StateFinishedFailure:
		pipe.HIncrBy(ctx, key, "failures", 1)
	case liveness.StateCancelled:
		pipe.HIncrBy(ctx, key, "cancelled", 1)
	case liveness.StateError:
		pipe.HIncrBy(ctx, key, "errors", 1)
	}
	if r.ErrorCode != liveness.ErrorNone {
		pipe.HIncrBy(ctx, key, errorFieldPrefix+r.ErrorCode.String(), 1)
	}
	pipe.HIncrBy(ctx, key, "total_elapsed_ms", r.Elapsed.Milliseconds())
	pipe.HIncrBy(ctx, key, "elapsed_count", 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *MetricsStore) GetMetrics(ctx context.Context, clientID string, hours int) ([]*Metrics, error) {
	now := s.now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(clientID, t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			ClientID: clientID,
			Date:     t.Format("2006-01-02"),
			Hour:     t.Hour(),
		}
		m.Sessions = parseInt(data["sessions"])
		m.Successes = parseInt(data["successes"])
		m.Failures = parseInt(data["failures"])
		m.Errors = parseInt(data["errors"])
		m.Cancelled = parseInt(data["cancelled"])

		if count := parseInt(data["elapsed_count"]); count > 0 {
			m.AvgElapsedMs = parseInt(data["total_elapsed_ms"]) / count
		}

		for field, v := range data {
			if code, ok := strings.CutPrefix(field, errorFieldPrefix); ok {
				if m.ErrorBreakdown == nil {
					m.ErrorBreakdown = make(map[string]int64)
				}
				m.ErrorBreakdown[code] = parseInt(v)
			}
		}

		metrics = append(metrics, m)
	}

	return metrics, nil
}

func (s *MetricsStore) GetSummary(ctx context.Context, clientID string) (*Summary, error) {
	metrics, err := s.GetMetrics(ctx, clientID, maxMetricsHours)
	if err != nil {
		return nil, err
	}

	summary := &Summary{ClientID: clientID, Period: "7d"}

	var totalElapsed, elapsedHours int64
	for _, m := range metrics {
		summary.TotalSessions += m.Sessions
		summary.Successes += m.Successes
		if m.AvgElapsedMs > 0 {
			totalElapsed += m.AvgElapsedMs
			elapsedHours++
		}
		for code, n := range m.ErrorBreakdown {
			if summary.ErrorBreakdown == nil {
				summary.ErrorBreakdown = make(map[string]int64)
			}
			summary.ErrorBreakdown[code] += n
		}
	}

	if elapsedHours > 0 {
		summary.AvgElapsedMs = totalElapsed / elapsedHours
	}
	if summary.TotalSessions > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(summary.TotalSessions) * 100
	}
	return summary, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
