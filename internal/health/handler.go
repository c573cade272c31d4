package health

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/eleven-am/liveness-backend/internal/livesession"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type SessionStats struct {
	ActiveSessions     int `json:"active_sessions"`
	EventSubscriptions int `json:"event_subscriptions"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Sessions SessionStats `json:"sessions"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionsResponse struct {
	Total    int                       `json:"total"`
	Sessions []livesession.SessionInfo `json:"sessions"`
}

type SessionLister interface {
	SessionCount() int
	ListSessions() []livesession.SessionInfo
}

type SubscriberCounter interface {
	SubscriberCount() int
}

type DetectorProbe interface {
	IsAvailable(ctx context.Context) bool
}

type EngineStatus interface {
	Loaded() bool
}

type Params struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Detector    DetectorProbe
	Engine      EngineStatus
	Sessions    SessionLister
	Subscribers SubscriberCounter
	Version     string
}

type Handler struct {
	db          *gorm.DB
	redis       *redis.Client
	detector    DetectorProbe
	engine      EngineStatus
	sessions    SessionLister
	subscribers SubscriberCounter
	version     string
	startTime   time.Time

	totalRequests     uint64
	activeConnections int64
}

func NewHandler(p Params) *Handler {
	return &Handler{
		db:          p.DB,
		redis:       p.Redis,
		detector:    p.Detector,
		engine:      p.Engine,
		sessions:    p.Sessions,
		subscribers: p.Subscribers,
		version:     p.Version,
		startTime:   time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/sessions", h.Sessions)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

// @Summary     Liveness probe
// @Tags        health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// componentCheck probes one dependency. Any critical component reporting
// unhealthy makes the whole service unhealthy.
type componentCheck struct {
	name     string
	critical bool
	probe    func(context.Context) (Status, error)
}

var (
	errNotConfigured = errors.New("not configured")
	errUnavailable   = errors.New("unavailable")
)

const checkTimeout = 3 * time.Second

func (h *Handler) checks() []componentCheck {
	return []componentCheck{
		{name: "database", critical: true, probe: h.checkDatabase},
		{name: "redis", critical: true, probe: h.checkRedis},
		{name: "detector", critical: true, probe: h.checkDetector},
		{name: "engine", probe: h.checkEngine},
	}
}

func runCheck(ctx context.Context, check componentCheck) ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	status, err := check.probe(ctx)
	result := ComponentStatus{Status: status, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// @Summary     Readiness probe
// @Description Checks database, Redis, detector sidecar and engine
// @Tags        health
// @Produce     json
// @Success     200  {object}  health.HealthResponse
// @Failure     503  {object}  health.HealthResponse
// @Router      /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx := c.Request().Context()
	checks := h.checks()

	results := make([]ComponentStatus, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}()
	}
	wg.Wait()

	components := make(map[string]ComponentStatus, len(checks))
	overall := StatusHealthy
	for i, check := range checks {
		result := results[i]
		components[check.name] = result
		switch {
		case result.Status == StatusUnhealthy && check.critical:
			overall = StatusUnhealthy
		case result.Status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats:         h.stats(),
		Components:    components,
	})
}

func (h *Handler) stats() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var sessions SessionStats
	if h.sessions != nil {
		sessions.ActiveSessions = h.sessions.SessionCount()
	}
	if h.subscribers != nil {
		sessions.EventSubscriptions = h.subscribers.SubscriberCount()
	}

	const mb = 1 << 20
	return Stats{
		Sessions: sessions,
		Requests: RequestStats{
			TotalRequests:     atomic.LoadUint64(&h.totalRequests),
			ActiveConnections: atomic.LoadInt64(&h.activeConnections),
		},
		Runtime: RuntimeStats{
			Goroutines:         runtime.NumGoroutine(),
			MemoryAllocMB:      mem.Alloc / mb,
			MemoryTotalAllocMB: mem.TotalAlloc / mb,
			MemorySysMB:        mem.Sys / mb,
			NumGC:              mem.NumGC,
		},
	}
}

// @Summary     Active sessions
// @Tags        health
// @Produce     json
// @Success     200  {object}  health.SessionsResponse
// @Router      /health/sessions [get]
func (h *Handler) Sessions(c echo.Context) error {
	sessions := []livesession.SessionInfo{}
	if h.sessions != nil {
		sessions = h.sessions.ListSessions()
	}
	return c.JSON(http.StatusOK, SessionsResponse{
		Total:    len(sessions),
		Sessions: sessions,
	})
}

func (h *Handler) checkDatabase(ctx context.Context) (Status, error) {
	if h.db == nil {
		return StatusUnhealthy, errNotConfigured
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return StatusUnhealthy, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return StatusUnhealthy, err
	}
	return poolStatus(sqlDB.Stats()), nil
}

// poolStatus degrades when every allowed connection is in use.
func poolStatus(stats sql.DBStats) Status {
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) (Status, error) {
	if h.redis == nil {
		return StatusUnhealthy, errNotConfigured
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return StatusUnhealthy, err
	}
	return StatusHealthy, nil
}

func (h *Handler) checkDetector(ctx context.Context) (Status, error) {
	if h.detector == nil {
		return StatusUnhealthy, errNotConfigured
	}
	if !h.detector.IsAvailable(ctx) {
		return StatusUnhealthy, errUnavailable
	}
	return StatusHealthy, nil
}

// checkEngine reports degraded until the models have been loaded once;
// sessions load them on demand.
func (h *Handler) checkEngine(context.Context) (Status, error) {
	if h.engine == nil {
		return StatusUnhealthy, errNotConfigured
	}
	if !h.engine.Loaded() {
		return StatusDegraded, errors.New("models not loaded")
	}
	return StatusHealthy, nil
}
