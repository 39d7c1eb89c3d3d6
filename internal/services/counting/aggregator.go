package counting

import (
	"sync"
	"sync/atomic"

	"animalcensus/internal/models"
)

// Snapshot is an immutable point-in-time view of the aggregator.
type Snapshot struct {
	Totals      models.SessionTotals `json:"totals"`
	MaxPerFrame map[string]int       `json:"max_per_frame"`
	LastFrame   models.FrameCount    `json:"last_frame"`
	Frames      uint64               `json:"frames"`
}

// Aggregator owns the session totals. Fold is called by the single pipeline
// goroutine; Snapshot may be called from any goroutine.
type Aggregator struct {
	mu      sync.Mutex // serializes Fold
	current atomic.Pointer[Snapshot]
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.current.Store(&Snapshot{
		Totals:      models.SessionTotals{},
		MaxPerFrame: map[string]int{},
		LastFrame:   models.FrameCount{},
	})
	return a
}

// Tally groups detections by class name.
func (a *Aggregator) Tally(detections []models.Detection) models.FrameCount {
	counts := make(models.FrameCount, len(detections))
	for _, d := range detections {
		counts[d.ClassName]++
	}
	return counts
}

// Fold adds one frame's counts into the session totals.
func (a *Aggregator) Fold(counts models.FrameCount) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.current.Load()
	next := &Snapshot{
		Totals:      prev.Totals.Clone(),
		MaxPerFrame: make(map[string]int, len(prev.MaxPerFrame)),
		LastFrame:   make(models.FrameCount, len(counts)),
		Frames:      prev.Frames + 1,
	}
	for k, v := range prev.MaxPerFrame {
		next.MaxPerFrame[k] = v
	}

	for class, n := range counts {
		if n <= 0 {
			continue
		}
		next.Totals[class] += n
		next.LastFrame[class] = n
		if n > next.MaxPerFrame[class] {
			next.MaxPerFrame[class] = n
		}
	}

	a.current.Store(next)
}

// Snapshot returns a copy that callers may keep and modify freely.
func (a *Aggregator) Snapshot() Snapshot {
	s := a.current.Load()

	out := Snapshot{
		Totals:      s.Totals.Clone(),
		MaxPerFrame: make(map[string]int, len(s.MaxPerFrame)),
		LastFrame:   make(models.FrameCount, len(s.LastFrame)),
		Frames:      s.Frames,
	}
	for k, v := range s.MaxPerFrame {
		out.MaxPerFrame[k] = v
	}
	for k, v := range s.LastFrame {
		out.LastFrame[k] = v
	}
	return out
}

// Totals returns a copy of the session totals.
func (a *Aggregator) Totals() models.SessionTotals {
	return a.current.Load().Totals.Clone()
}
