package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return db
}

func TestSaveAndGetIncident(t *testing.T) {
	db := openTestDB(t)

	rec := &IncidentRecord{
		ID:          "incident_20260824T101500Z_ab12cd34",
		CameraID:    "cam0",
		TriggeredAt: time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC),
		FinalizedAt: time.Date(2026, 8, 24, 10, 15, 15, 0, time.UTC),
		Probability: 0.88,
		Label:       "fight",
		MotionArea:  20000,
		Accumulated: 260000,
		FrameCount:  450,
		FPS:         30,
		VideoPath:   "detected_events/incident_20260824T101500Z_ab12cd34/incident.mp4",
	}
	if err := db.SaveIncident(rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := db.GetIncident(rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("incident not found")
	}
	if got.Probability != 0.88 || got.FrameCount != 450 || got.Label != "fight" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestGetIncidentMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetIncident("nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing incident, got %+v", got)
	}
}

func TestListIncidentsFiltersAndOrders(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i, cam := range []string{"cam0", "cam1", "cam0"} {
		rec := &IncidentRecord{
			ID:          "inc" + string(rune('a'+i)),
			CameraID:    cam,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
			FinalizedAt: base.Add(time.Duration(i)*time.Minute + 15*time.Second),
			Probability: 0.8,
			FrameCount:  300,
			FPS:         30,
			VideoPath:   "v.mp4",
		}
		if err := db.SaveIncident(rec); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	all, err := db.ListIncidents("", nil, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(all))
	}
	if !all[0].TriggeredAt.After(all[1].TriggeredAt) {
		t.Error("incidents not ordered newest first")
	}

	cam0, err := db.ListIncidents("cam0", nil, 0)
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(cam0) != 2 {
		t.Fatalf("expected 2 cam0 incidents, got %d", len(cam0))
	}

	since := base.Add(90 * time.Second)
	recent, err := db.ListIncidents("", &since, 0)
	if err != nil {
		t.Fatalf("since list failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent incident, got %d", len(recent))
	}
}

func TestDeleteOldIncidents(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &IncidentRecord{
			ID:          "inc" + string(rune('a'+i)),
			CameraID:    "cam0",
			TriggeredAt: base.AddDate(0, 0, i*7),
			FinalizedAt: base.AddDate(0, 0, i*7),
			FrameCount:  300,
			FPS:         30,
			VideoPath:   "v.mp4",
		}
		if err := db.SaveIncident(rec); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	n, err := db.DeleteOldIncidents(base.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
}
