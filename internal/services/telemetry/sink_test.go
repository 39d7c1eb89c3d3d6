package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"animalcensus/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]models.TelemetryPoint
	failures int // first N calls fail
	calls    int
	block    chan struct{}
}

func (f *fakeStore) WritePoints(ctx context.Context, points []models.TelemetryPoint) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("store unavailable")
	}
	batch := make([]models.TelemetryPoint, len(points))
	copy(batch, points)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) points() []models.TelemetryPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TelemetryPoint
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func seqPoint(i int) models.TelemetryPoint {
	return models.TelemetryPoint{
		Measurement: DefaultMeasurement,
		Counts:      map[string]int{"total": i},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSink_DropOldestOnOverflow(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, Options{QueueSize: 3, BatchSize: 1})

	for i := 1; i <= 5; i++ {
		sink.Submit(seqPoint(i))
	}

	if sink.Dropped() != 2 {
		t.Errorf("Expected 2 dropped, got %d", sink.Dropped())
	}
	if sink.Pending() != 3 {
		t.Errorf("Expected 3 pending, got %d", sink.Pending())
	}

	if err := sink.Close(time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := store.points()
	if len(got) != 3 {
		t.Fatalf("Expected 3 written points, got %d", len(got))
	}
	for i, p := range got {
		if p.Counts["total"] != i+3 {
			t.Errorf("Point %d: expected total %d, got %d", i, i+3, p.Counts["total"])
		}
	}
	if sink.Dropped()+sink.Written() != 5 {
		t.Errorf("Every submitted point must be written or counted dropped")
	}
}

func TestSink_SubmitDoesNotBlockOnStore(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	t.Cleanup(func() { close(store.block) })

	sink := NewSink(store, nil, Options{QueueSize: 16, BatchSize: 1, WriteTimeout: time.Hour})
	sink.Start(context.Background())

	start := time.Now()
	for i := 0; i < 1000; i++ {
		sink.Submit(seqPoint(i))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Submit blocked for %v", elapsed)
	}
	if sink.Dropped() == 0 {
		t.Error("Expected drops while store is stalled")
	}

	err := sink.Close(50 * time.Millisecond)
	if !errors.Is(err, models.ErrStoreWriteFailed) {
		t.Errorf("Expected ErrStoreWriteFailed from abandoned flush, got %v", err)
	}
}

func TestSink_RecoversFromOutage(t *testing.T) {
	store := &fakeStore{failures: 2}
	sink := NewSink(store, nil, Options{BatchSize: 1, RetryAttempts: 3, RetryBase: time.Millisecond})
	sink.Start(context.Background())
	defer sink.Close(time.Second)

	sink.Submit(seqPoint(1))

	waitFor(t, 2*time.Second, func() bool { return sink.Written() == 1 })
	if sink.Failed() != 0 {
		t.Errorf("Expected no failed points, got %d", sink.Failed())
	}
}

func TestSink_DropsBatchAfterRetries(t *testing.T) {
	store := &fakeStore{failures: 2}
	sink := NewSink(store, nil, Options{BatchSize: 1, RetryAttempts: 2, RetryBase: time.Millisecond})
	sink.Start(context.Background())
	defer sink.Close(time.Second)

	sink.Submit(seqPoint(1))
	waitFor(t, 2*time.Second, func() bool { return sink.Failed() == 1 })

	sink.Submit(seqPoint(2))
	waitFor(t, 2*time.Second, func() bool { return sink.Written() == 1 })

	got := store.points()
	if len(got) != 1 || got[0].Counts["total"] != 2 {
		t.Errorf("Expected only the second point persisted, got %+v", got)
	}
}

func TestSink_BatchSize(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, Options{BatchSize: 5, FlushInterval: time.Hour})
	sink.Start(context.Background())
	defer sink.Close(time.Second)

	for i := 0; i < 4; i++ {
		sink.Submit(seqPoint(i))
	}
	time.Sleep(20 * time.Millisecond)
	if store.batchCount() != 0 {
		t.Fatalf("Partial batch flushed early")
	}

	sink.Submit(seqPoint(4))
	waitFor(t, time.Second, func() bool { return store.batchCount() == 1 })
	if n := len(store.points()); n != 5 {
		t.Errorf("Expected one batch of 5, got %d points", n)
	}
}

func TestSink_FlushInterval(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, Options{BatchSize: 10, FlushInterval: 10 * time.Millisecond})
	sink.Start(context.Background())
	defer sink.Close(time.Second)

	sink.Submit(seqPoint(1))
	sink.Submit(seqPoint(2))

	waitFor(t, time.Second, func() bool { return sink.Written() == 2 })
}

func TestSink_CloseFlushesPending(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil, Options{BatchSize: 100, FlushInterval: time.Hour})
	sink.Start(context.Background())

	for i := 0; i < 3; i++ {
		sink.Submit(seqPoint(i))
	}
	if err := sink.Close(time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sink.Written() != 3 {
		t.Errorf("Expected 3 written on close, got %d", sink.Written())
	}

	sink.Submit(seqPoint(99))
	if sink.Dropped() != 1 {
		t.Errorf("Submit after close should count as dropped")
	}
	if err := sink.Close(time.Second); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestNewPoint(t *testing.T) {
	meta := PointMeta{SourceID: "camera_1", SessionID: "abc", Classes: []string{"horse", "zebra"}}
	perf := models.PerformanceSample{FrameProcessingMs: 40, DetectionMs: 30, InstantaneousFPS: 25, RollingFPS: 24}
	ts := time.Unix(1700000000, 0)

	p := NewPoint(meta, models.FrameCount{"horse": 2}, perf, ts)

	if p.Measurement != DefaultMeasurement {
		t.Errorf("Expected default measurement, got %q", p.Measurement)
	}
	if p.Counts["horse"] != 2 || p.Counts["total"] != 2 {
		t.Errorf("Unexpected counts %v", p.Counts)
	}
	if v, ok := p.Counts["zebra"]; !ok || v != 0 {
		t.Errorf("Absent class should be present as zero, got %v", p.Counts)
	}
	if p.Metrics["fps"] != 24 || p.Metrics["instant_fps"] != 25 {
		t.Errorf("Unexpected metrics %v", p.Metrics)
	}
	if p.Tags["source_id"] != "camera_1" || p.Tags["session_id"] != "abc" {
		t.Errorf("Unexpected tags %v", p.Tags)
	}
	if !p.Timestamp.Equal(ts) {
		t.Errorf("Timestamp not preserved")
	}
	if len(p.Fields()) != 7 {
		t.Errorf("Expected 7 fields, got %d", len(p.Fields()))
	}
}
