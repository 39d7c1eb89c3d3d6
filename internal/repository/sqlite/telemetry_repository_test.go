package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"animalcensus/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
	return db
}

func point(ts time.Time, counts map[string]int, fps float64) models.TelemetryPoint {
	return models.TelemetryPoint{
		Timestamp:   ts,
		Measurement: "animal_detections",
		Tags:        map[string]string{"source_id": "camera_1", "session_id": "s1"},
		Counts:      counts,
		Metrics:     map[string]float64{"fps": fps, "processing_ms": 12.5},
	}
}

func TestTelemetryRepository_WriteAndRange(t *testing.T) {
	repo := NewTelemetryRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	err := repo.WritePoints(ctx, []models.TelemetryPoint{
		point(base, map[string]int{"horse": 1, "zebra": 0, "total": 1}, 24.5),
		point(base.Add(time.Second), map[string]int{"horse": 0, "zebra": 2, "total": 2}, 25),
		point(base.Add(time.Hour), map[string]int{"horse": 5, "zebra": 0, "total": 5}, 30),
	})
	if err != nil {
		t.Fatalf("WritePoints failed: %v", err)
	}

	points, err := repo.Range(ctx, "animal_detections", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("Expected 2 points in range, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(base) {
		t.Errorf("Expected first point at %v, got %v", base, points[0].Timestamp)
	}
	if points[0].Counts["horse"] != 1 || points[1].Counts["zebra"] != 2 {
		t.Errorf("Unexpected counts: %v / %v", points[0].Counts, points[1].Counts)
	}
	if points[1].Metrics["fps"] != 25 {
		t.Errorf("Expected fps 25, got %v", points[1].Metrics["fps"])
	}
	if points[0].Tags["source_id"] != "camera_1" || points[0].Tags["session_id"] != "s1" {
		t.Errorf("Unexpected tags: %v", points[0].Tags)
	}
}

func TestTelemetryRepository_ClassTotals(t *testing.T) {
	repo := NewTelemetryRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Now()

	err := repo.WritePoints(ctx, []models.TelemetryPoint{
		point(base, map[string]int{"horse": 1, "zebra": 0, "total": 1}, 20),
		point(base.Add(time.Millisecond), map[string]int{"horse": 0, "zebra": 1, "total": 1}, 20),
		point(base.Add(2*time.Millisecond), map[string]int{"horse": 0, "zebra": 0, "total": 0}, 20),
	})
	if err != nil {
		t.Fatalf("WritePoints failed: %v", err)
	}

	totals, err := repo.ClassTotals(ctx, "animal_detections", base.Add(-time.Second), base.Add(time.Second))
	if err != nil {
		t.Fatalf("ClassTotals failed: %v", err)
	}

	if totals["horse"] != 1 || totals["zebra"] != 1 {
		t.Errorf("Expected {horse:1 zebra:1}, got %v", totals)
	}
	if _, ok := totals["total"]; ok {
		t.Error("Aggregate total field should not be reported as a class")
	}
}

func TestTelemetryRepository_EmptyBatch(t *testing.T) {
	repo := NewTelemetryRepository(newTestDB(t))

	if err := repo.WritePoints(context.Background(), nil); err != nil {
		t.Errorf("Empty batch should succeed, got %v", err)
	}
}

func TestTelemetryRepository_ConcurrentWrites(t *testing.T) {
	repo := NewTelemetryRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Now()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			p := point(base.Add(time.Duration(idx)*time.Millisecond), map[string]int{"cow": 1}, 10)
			if err := repo.WritePoints(ctx, []models.TelemetryPoint{p}); err != nil {
				t.Errorf("Concurrent write %d failed: %v", idx, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	totals, err := repo.ClassTotals(ctx, "animal_detections", base.Add(-time.Second), base.Add(time.Second))
	if err != nil {
		t.Fatalf("ClassTotals failed: %v", err)
	}
	if totals["cow"] != 10 {
		t.Errorf("Expected 10 cows, got %d", totals["cow"])
	}
}
