package verification

import (
	"strconv"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
)

// Record is the persisted outcome of one finished liveness session.
type Record struct {
	ID            string             `gorm:"primaryKey" json:"id"`
	ClientID      string             `gorm:"not null;index" json:"client_id"`
	Mode          string             `gorm:"not null" json:"mode"`
	State         string             `gorm:"not null" json:"state"`
	Success       bool               `json:"success"`
	ErrorCode     string             `json:"error_code,omitempty"`
	Message       string             `json:"message,omitempty"`
	SilentPassed  int                `json:"silent_passed"`
	ActionsPassed int                `json:"actions_passed"`
	Actions       []ActionOutcome    `gorm:"serializer:json" json:"actions"`
	ElapsedMs     int64              `json:"elapsed_ms"`
	BestQuality   float64            `json:"best_quality"`
	HasCapture    bool               `json:"has_capture"`
	CompletedAt   time.Time          `json:"completed_at"`
	CreatedAt     time.Time          `gorm:"index" json:"created_at"`
}

// ActionOutcome is one challenge issued during the session.
type ActionOutcome struct {
	Action     string `json:"action"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

func NewRecord(clientID string, r liveness.Result) *Record {
	actions := make([]ActionOutcome, 0, len(r.Actions))
	for _, ch := range r.Actions {
		outcome := ActionOutcome{
			Action: ch.Action.String(),
			Status: ch.Status.String(),
		}
		if !ch.EndedAt.IsZero() && !ch.StartedAt.IsZero() {
			outcome.DurationMs = ch.EndedAt.Sub(ch.StartedAt).Milliseconds()
		}
		actions = append(actions, outcome)
	}

	return &Record{
		ID:            r.SessionID,
		ClientID:      clientID,
		Mode:          r.Mode.String(),
		State:         r.State.String(),
		Success:       r.Success,
		ErrorCode:     r.ErrorCode.String(),
		Message:       r.Message,
		SilentPassed:  r.SilentPassedCount,
		ActionsPassed: r.ActionPassedCount,
		Actions:       actions,
		ElapsedMs:     r.Elapsed.Milliseconds(),
		BestQuality:   r.BestQuality,
		HasCapture:    r.BestFrame != nil,
		CompletedAt:   r.CompletedAt,
	}
}

type Metrics struct {
	ClientID       string           `json:"client_id"`
	Date           string           `json:"date"`
	Hour           int              `json:"hour"`
	Sessions       int64            `json:"sessions"`
	Successes      int64            `json:"successes"`
	Failures       int64            `json:"failures"`
	Errors         int64            `json:"errors"`
	Cancelled      int64            `json:"cancelled"`
	AvgElapsedMs   int64            `json:"avg_elapsed_ms"`
	ErrorBreakdown map[string]int64 `json:"error_breakdown,omitempty"`
}

type Summary struct {
	ClientID       string           `json:"client_id"`
	Period         string           `json:"period"`
	TotalSessions  int64            `json:"total_sessions"`
	Successes      int64            `json:"successes"`
	SuccessRate    float64          `json:"success_rate"`
	AvgElapsedMs   int64            `json:"avg_elapsed_ms"`
	ErrorBreakdown map[string]int64 `json:"error_breakdown,omitempty"`
}

func MetricsRedisKey(clientID, date string, hour int) string {
	return "liveness:client:" + clientID + ":metrics:" + date + ":" + strconv.Itoa(hour)
}
