package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestStore(t *testing.T) *Store {
	store := NewStore(setupTestDB(t))
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func sampleResult(id string) liveness.Result {
	return liveness.Result{
		SessionID:         id,
		Success:           true,
		Mode:              liveness.ModeLiveness,
		State:             liveness.StateFinishedSuccess,
		SilentPassedCount: 3,
		ActionPassedCount: 1,
		Actions: []liveness.ActionChallenge{
			{
				Action:    liveness.ActionBlink,
				Status:    liveness.ActionCompleted,
				StartedAt: time.Unix(100, 0),
				EndedAt:   time.Unix(101, 500_000_000),
			},
		},
		Elapsed:     4200 * time.Millisecond,
		BestQuality: 0.91,
		CompletedAt: time.Now(),
		BestFrame:   &liveness.Frame{Width: 640, Height: 480},
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("client_1", sampleResult("sess_1"))

	if rec.ID != "sess_1" || rec.ClientID != "client_1" {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.Mode != "liveness" || rec.State != "finished_success" {
		t.Errorf("Mode/State = %q/%q", rec.Mode, rec.State)
	}
	if rec.ErrorCode != "" {
		t.Errorf("ErrorCode = %q, want empty", rec.ErrorCode)
	}
	want := ActionOutcome{Action: "blink", Status: "COMPLETED", DurationMs: 1500}
	if len(rec.Actions) != 1 || rec.Actions[0] != want {
		t.Errorf("Actions = %+v, want [%+v]", rec.Actions, want)
	}
	if rec.ElapsedMs != 4200 {
		t.Errorf("ElapsedMs = %d, want 4200", rec.ElapsedMs)
	}
	if !rec.HasCapture {
		t.Error("expected HasCapture")
	}
}

func TestNewRecord_Failure(t *testing.T) {
	r := liveness.Result{
		SessionID: "sess_2",
		Mode:      liveness.ModeSilentLiveness,
		State:     liveness.StateError,
		ErrorCode: liveness.ErrorFraudSpoof,
		Message:   "spoof detected",
	}
	rec := NewRecord("client_1", r)

	if rec.Success || rec.HasCapture {
		t.Error("failed session should have no success or capture")
	}
	if rec.ErrorCode != "FRAUD_SPOOF" {
		t.Errorf("ErrorCode = %q, want FRAUD_SPOOF", rec.ErrorCode)
	}
	if len(rec.Actions) != 0 {
		t.Errorf("Actions = %v, want empty", rec.Actions)
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, NewRecord("client_1", sampleResult("sess_1"))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "sess_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ClientID != "client_1" || !got.Success {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Actions) != 1 || got.Actions[0].Action != "blink" || got.Actions[0].DurationMs != 1500 {
		t.Errorf("Actions round trip = %+v", got.Actions)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveGeneratesID(t *testing.T) {
	store := newTestStore(t)
	rec := &Record{ClientID: "client_1", Mode: "collection", State: "error"}

	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(rec.ID) != len("vrf_")+32 {
		t.Errorf("generated ID = %q", rec.ID)
	}
}

func TestStore_ListByClient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, NewRecord("client_1", sampleResult(id))); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	_ = store.Save(ctx, NewRecord("client_2", sampleResult("d")))

	records, total, err := store.ListByClient(ctx, "client_1", 2, 0)
	if err != nil {
		t.Fatalf("ListByClient() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(records) != 2 {
		t.Errorf("page size = %d, want 2", len(records))
	}

	records, _, _ = store.ListByClient(ctx, "client_1", 2, 2)
	if len(records) != 1 {
		t.Errorf("second page size = %d, want 1", len(records))
	}
}
