package performance

import (
	"math"
	"testing"
	"time"
)

const tolerance = 1e-9

func TestRecord_FirstFrameRollingEqualsInstant(t *testing.T) {
	m := NewMonitor(30)
	s := m.Record(StageDurations{Total: 40 * time.Millisecond, Detection: 25 * time.Millisecond})

	if math.Abs(s.InstantaneousFPS-25) > tolerance {
		t.Errorf("Expected instantaneous 25 FPS, got %v", s.InstantaneousFPS)
	}
	if s.RollingFPS != s.InstantaneousFPS {
		t.Errorf("Expected rolling == instantaneous on first frame, got %v vs %v", s.RollingFPS, s.InstantaneousFPS)
	}
	if math.Abs(s.FrameProcessingMs-40) > tolerance || math.Abs(s.DetectionMs-25) > tolerance {
		t.Errorf("Unexpected stage timings: %+v", s)
	}
}

func TestRecord_ConstantDurationWindow(t *testing.T) {
	const window = 30
	d := 20 * time.Millisecond
	m := NewMonitor(window)

	var last float64
	for i := 0; i < window; i++ {
		last = m.Record(StageDurations{Total: d}).RollingFPS
	}

	expected := 1 / d.Seconds()
	if math.Abs(last-expected) > 1e-6 {
		t.Errorf("Expected rolling FPS %v after full window, got %v", expected, last)
	}
}

func TestRecord_WindowSlides(t *testing.T) {
	m := NewMonitor(4)

	for i := 0; i < 4; i++ {
		m.Record(StageDurations{Total: 100 * time.Millisecond})
	}
	var s float64
	for i := 0; i < 4; i++ {
		s = m.Record(StageDurations{Total: 50 * time.Millisecond}).RollingFPS
	}

	if math.Abs(s-20) > 1e-6 {
		t.Errorf("Expected old durations to leave the window (20 FPS), got %v", s)
	}
	if math.Abs(m.Average()-(8/0.6)) > 1e-6 {
		t.Errorf("Expected session average %v, got %v", 8/0.6, m.Average())
	}
}

func TestRecord_ZeroDuration(t *testing.T) {
	m := NewMonitor(0)
	s := m.Record(StageDurations{})

	if s.InstantaneousFPS != 0 || s.RollingFPS != 0 {
		t.Errorf("Expected 0 FPS for zero duration, got %+v", s)
	}
	if m.Frames() != 1 {
		t.Errorf("Expected 1 frame recorded, got %d", m.Frames())
	}
}
