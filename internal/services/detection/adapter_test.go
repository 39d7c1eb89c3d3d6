package detection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"animalcensus/internal/models"
)

type fakeModel struct {
	raw   []models.RawDetection
	err   error
	delay time.Duration
}

func (m *fakeModel) Infer(ctx context.Context, frame models.Frame) ([]models.RawDetection, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.raw, m.err
}

func testWhitelist(t *testing.T) *models.Whitelist {
	t.Helper()
	w, err := models.NewWhitelist([]models.ClassSpec{
		{CocoID: 17, Name: "horse"},
		{CocoID: 18, Name: "sheep"},
		{CocoID: 22, Name: "zebra"},
	})
	if err != nil {
		t.Fatalf("NewWhitelist failed: %v", err)
	}
	return w
}

func testFrame() models.Frame {
	return models.Frame{Seq: 1, Width: 4, Height: 2, Data: make([]byte, 4*2*models.BytesPerPixel)}
}

func TestAdapter_FiltersWhitelistAndThreshold(t *testing.T) {
	model := &fakeModel{raw: []models.RawDetection{
		{ClassID: 17, Confidence: 0.9},
		{ClassID: 17, Confidence: 0.6},
		{ClassID: 1, Confidence: 0.99},  // person, not whitelisted
		{ClassID: 22, Confidence: 0.7},  // exactly at threshold
		{ClassID: 18, Confidence: 1.5},  // out of range
		{ClassID: 18, Confidence: -0.2}, // out of range
		{ClassID: 18, Confidence: math.NaN()},
		{ClassID: 18, Confidence: math.Inf(1)},
	}}

	a, err := NewAdapter(model, testWhitelist(t), 0.7, time.Second)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	dets, err := a.Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d: %+v", len(dets), dets)
	}
	for _, d := range dets {
		if d.Confidence < 0.7 || d.Confidence > 1 {
			t.Errorf("Detection below threshold or out of range: %+v", d)
		}
		if _, ok := testWhitelist(t).Lookup(d.ClassID); !ok {
			t.Errorf("Detection outside whitelist: %+v", d)
		}
	}
	if dets[0].ClassName != "horse" || dets[1].ClassName != "zebra" {
		t.Errorf("Unexpected detections: %+v", dets)
	}
}

func TestAdapter_OrderingIsDeterministic(t *testing.T) {
	a, err := NewAdapter(&fakeModel{}, testWhitelist(t), 0.1, 0)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	dets := a.Filter([]models.RawDetection{
		{ClassID: 22, Confidence: 0.8},
		{ClassID: 17, Confidence: 0.5},
		{ClassID: 18, Confidence: 0.8},
		{ClassID: 17, Confidence: 0.95},
	})

	expected := []int{17, 18, 22, 17}
	if len(dets) != len(expected) {
		t.Fatalf("Expected %d detections, got %d", len(expected), len(dets))
	}
	for i, id := range expected {
		if dets[i].ClassID != id {
			t.Errorf("Position %d: expected class %d, got %d (%+v)", i, id, dets[i].ClassID, dets)
		}
	}
}

func TestAdapter_ModelErrorIsDetectionFailed(t *testing.T) {
	a, err := NewAdapter(&fakeModel{err: errors.New("bad tensor")}, testWhitelist(t), 0.5, time.Second)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	_, err = a.Detect(context.Background(), testFrame())
	if !errors.Is(err, models.ErrDetectionFailed) {
		t.Errorf("Expected ErrDetectionFailed, got %v", err)
	}
}

func TestAdapter_TimeoutIsDetectionFailed(t *testing.T) {
	a, err := NewAdapter(&fakeModel{delay: 500 * time.Millisecond}, testWhitelist(t), 0.5, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	start := time.Now()
	_, err = a.Detect(context.Background(), testFrame())
	if !errors.Is(err, models.ErrDetectionFailed) {
		t.Errorf("Expected ErrDetectionFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("Detect should return at the deadline, took %v", elapsed)
	}
}

func TestAdapter_MalformedFrame(t *testing.T) {
	a, err := NewAdapter(&fakeModel{}, testWhitelist(t), 0.5, 0)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	_, err = a.Detect(context.Background(), models.Frame{Width: 10, Height: 10, Data: []byte{1, 2, 3}})
	if !errors.Is(err, models.ErrDetectionFailed) {
		t.Errorf("Expected ErrDetectionFailed for malformed frame, got %v", err)
	}
}

func TestNewAdapter_InvalidThreshold(t *testing.T) {
	for _, th := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := NewAdapter(&fakeModel{}, testWhitelist(t), th, 0); err == nil {
			t.Errorf("Expected error for threshold %v", th)
		}
	}
}
