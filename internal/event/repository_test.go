package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/velagate/velagate-core/internal/device"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE access_events (
			id             TEXT PRIMARY KEY,
			timestamp      TEXT NOT NULL,
			device_id      TEXT NOT NULL,
			access_type    TEXT NOT NULL,
			decision       TEXT NOT NULL,
			direction      TEXT,
			plate_detected TEXT NOT NULL DEFAULT '',
			plate_normalized TEXT NOT NULL DEFAULT '',
			details        TEXT NOT NULL DEFAULT '{}',
			snapshot_path  TEXT NOT NULL DEFAULT '',
			user_id        TEXT,
			credential_id  TEXT,
			created_at     TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteRepository(db)
}

var testBase = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func testEvent(id, deviceID string, at time.Time) *AccessEvent {
	return &AccessEvent{
		ID:            id,
		Timestamp:     at,
		DeviceID:      deviceID,
		AccessType:    AccessPlate,
		Decision:      DecisionGrant,
		Direction:     device.DirectionEntry,
		PlateDetected: "AB123CD",
	}
}

func TestInsertAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	userID := "user-1"
	e := testEvent("evt-1", "dev-1", testBase)
	e.UserID = &userID
	e.Details = map[string]string{"lane": "2", "confidence": "98"}

	if err := repo.Insert(ctx, e); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	got, err := repo.GetByID(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if !got.Timestamp.Equal(testBase) {
		t.Errorf("timestamp round trip: got %v, expected %v", got.Timestamp, testBase)
	}
	if got.Details["lane"] != "2" {
		t.Errorf("details round trip lost data: %v", got.Details)
	}
	if got.UserID == nil || *got.UserID != "user-1" {
		t.Errorf("expected user-1, got %v", got.UserID)
	}
}

func TestInsert_Validation(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*AccessEvent)
	}{
		{"missing id", func(e *AccessEvent) { e.ID = "" }},
		{"missing device", func(e *AccessEvent) { e.DeviceID = "" }},
		{"zero timestamp", func(e *AccessEvent) { e.Timestamp = time.Time{} }},
		{"bad decision", func(e *AccessEvent) { e.Decision = "MAYBE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEvent("evt-1", "dev-1", testBase)
			tt.mutate(e)
			if err := repo.Insert(ctx, e); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestInsert_Duplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, testEvent("evt-1", "dev-1", testBase)); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if err := repo.Insert(ctx, testEvent("evt-1", "dev-1", testBase)); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestFind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := testEvent(fmt.Sprintf("evt-%d", i), "dev-1", testBase.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			e.Decision = DecisionDeny
			e.PlateDetected = "NO_LEIDA"
		}
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert(%d) error: %v", i, err)
		}
	}
	if err := repo.Insert(ctx, testEvent("evt-other", "dev-2", testBase)); err != nil {
		t.Fatalf("Insert(other) error: %v", err)
	}

	t.Run("by device newest first", func(t *testing.T) {
		got, err := repo.Find(ctx, Query{DeviceID: "dev-1"})
		if err != nil {
			t.Fatalf("Find() error: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 events, got %d", len(got))
		}
		if got[0].ID != "evt-4" {
			t.Errorf("expected newest first, got %s", got[0].ID)
		}
	})

	t.Run("by decision", func(t *testing.T) {
		got, err := repo.Find(ctx, Query{DeviceID: "dev-1", Decision: DecisionDeny})
		if err != nil {
			t.Fatalf("Find() error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 denies, got %d", len(got))
		}
	})

	t.Run("by plate", func(t *testing.T) {
		got, err := repo.Find(ctx, Query{Plate: "NOLEIDA"})
		if err != nil {
			t.Fatalf("Find() error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 unread events, got %d", len(got))
		}
	})

	t.Run("since and limit", func(t *testing.T) {
		got, err := repo.Find(ctx, Query{DeviceID: "dev-1", Since: testBase.Add(90 * time.Second), Limit: 2})
		if err != nil {
			t.Fatalf("Find() error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		for _, e := range got {
			if e.Timestamp.Before(testBase.Add(90 * time.Second)) {
				t.Errorf("event %s before since bound", e.ID)
			}
		}
	})
}

func TestRecentForDevice(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		e := testEvent(fmt.Sprintf("evt-%d", i), "dev-1", testBase.Add(time.Duration(i)*time.Minute))
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert(%d) error: %v", i, err)
		}
	}

	ref := testBase.Add(9 * time.Minute)
	got, err := repo.RecentForDevice(ctx, "dev-1", ref, 3*time.Minute)
	if err != nil {
		t.Fatalf("RecentForDevice() error: %v", err)
	}
	if len(got) != 4 { // minutes 6,7,8,9 inclusive
		t.Fatalf("expected 4 events in window, got %d", len(got))
	}
	if got[0].ID != "evt-6" || got[3].ID != "evt-9" {
		t.Errorf("expected oldest-first ordering, got %s..%s", got[0].ID, got[len(got)-1].ID)
	}
}

func TestLastOppositeDirection(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := testEvent("evt-entry", "dev-1", testBase)
	entry.Direction = device.DirectionEntry
	if err := repo.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert(entry) error: %v", err)
	}

	got, err := repo.LastOppositeDirection(ctx, "AB123CD", device.DirectionExit, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("LastOppositeDirection() error: %v", err)
	}
	if got.ID != "evt-entry" {
		t.Errorf("expected evt-entry, got %s", got.ID)
	}

	// Same direction must not pair.
	if _, err := repo.LastOppositeDirection(ctx, "AB123CD", device.DirectionEntry, testBase.Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for same direction, got %v", err)
	}

	// Other plates must not pair.
	if _, err := repo.LastOppositeDirection(ctx, "ZZ999ZZ", device.DirectionExit, testBase.Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other plate, got %v", err)
	}
}

// Cameras report plates with arbitrary spacing, dashes and casing. The
// raw string is kept for audit but matching must happen on the
// normalized form.
func TestPlateMatchingIsNormalized(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := testEvent("evt-entry", "dev-1", testBase)
	entry.PlateDetected = "ab-123 cd"
	if err := repo.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	got, err := repo.LastOppositeDirection(ctx, "AB123CD", device.DirectionExit, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("LastOppositeDirection() error: %v", err)
	}
	if got.ID != "evt-entry" {
		t.Errorf("expected evt-entry, got %s", got.ID)
	}
	if got.PlateDetected != "ab-123 cd" {
		t.Errorf("raw plate not preserved: %q", got.PlateDetected)
	}

	found, err := repo.Find(ctx, Query{Plate: "AB123CD"})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected 1 event for normalized plate, got %d", len(found))
	}
}
