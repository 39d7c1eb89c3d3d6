package performance

import (
	"time"

	"animalcensus/internal/models"

	"gonum.org/v1/gonum/floats"
)

// StageDurations are the measured durations of one frame cycle.
type StageDurations struct {
	Total     time.Duration
	Detection time.Duration
}

// Monitor computes instantaneous and rolling-window FPS.
type Monitor struct {
	window []float64 // seconds, ring buffer
	next   int
	filled int

	frames     uint64
	totalSecs  float64
	lastSample models.PerformanceSample
}

// NewMonitor creates a monitor averaging over size frames (default 30).
func NewMonitor(size int) *Monitor {
	if size < 1 {
		size = 30
	}
	return &Monitor{window: make([]float64, size)}
}

// Record adds one frame and returns its performance sample.
func (m *Monitor) Record(d StageDurations) models.PerformanceSample {
	secs := d.Total.Seconds()
	if secs < 0 {
		secs = 0
	}

	m.window[m.next] = secs
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
	m.frames++
	m.totalSecs += secs

	instant := fps(1, secs)
	rolling := instant
	if m.filled > 1 {
		rolling = fps(m.filled, floats.Sum(m.window[:m.filled]))
	}

	m.lastSample = models.PerformanceSample{
		FrameProcessingMs: float64(d.Total) / float64(time.Millisecond),
		DetectionMs:       float64(d.Detection) / float64(time.Millisecond),
		InstantaneousFPS:  instant,
		RollingFPS:        rolling,
	}
	return m.lastSample
}

// Average returns the FPS over every frame recorded so far.
func (m *Monitor) Average() float64 {
	return fps(int(m.frames), m.totalSecs)
}

// Frames returns how many frames were recorded.
func (m *Monitor) Frames() uint64 {
	return m.frames
}

// Last returns the most recent sample.
func (m *Monitor) Last() models.PerformanceSample {
	return m.lastSample
}

func fps(frames int, secs float64) float64 {
	if secs <= 0 || frames == 0 {
		return 0
	}
	return float64(frames) / secs
}
