package counting

import (
	"math/rand"
	"sync"
	"testing"

	"animalcensus/internal/models"
)

var classes = []string{"horse", "sheep", "cow", "zebra"}

func randomDetections(r *rand.Rand) []models.Detection {
	n := r.Intn(6)
	dets := make([]models.Detection, n)
	for i := range dets {
		dets[i] = models.Detection{ClassName: classes[r.Intn(len(classes))], Confidence: 0.9}
	}
	return dets
}

func TestTally_PartitionsByClass(t *testing.T) {
	a := NewAggregator()
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		dets := randomDetections(r)
		counts := a.Tally(dets)

		if counts.Sum() != len(dets) {
			t.Fatalf("Tally sum %d != %d detections", counts.Sum(), len(dets))
		}
		for class, n := range counts {
			expected := 0
			for _, d := range dets {
				if d.ClassName == class {
					expected++
				}
			}
			if n != expected {
				t.Fatalf("Class %s: expected %d, got %d", class, expected, n)
			}
		}
	}
}

func TestTally_Empty(t *testing.T) {
	counts := NewAggregator().Tally(nil)
	if len(counts) != 0 {
		t.Errorf("Expected empty count, got %v", counts)
	}
}

func TestFold_TotalsEqualSumOfFrames(t *testing.T) {
	a := NewAggregator()
	r := rand.New(rand.NewSource(7))
	expected := models.SessionTotals{}

	const frames = 500
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// concurrent readers
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastFrames uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := a.Snapshot()
				if s.Frames < lastFrames {
					t.Errorf("Frames went backwards: %d < %d", s.Frames, lastFrames)
					return
				}
				lastFrames = s.Frames
				s.Totals["horse"] += 1000 // must not leak into the aggregator
			}
		}()
	}

	for i := 0; i < frames; i++ {
		counts := a.Tally(randomDetections(r))
		for class, n := range counts {
			expected[class] += n
		}
		a.Fold(counts)
	}
	close(stop)
	wg.Wait()

	snap := a.Snapshot()
	if snap.Frames != frames {
		t.Errorf("Expected %d frames folded, got %d", frames, snap.Frames)
	}
	for _, class := range classes {
		if snap.Totals[class] != expected[class] {
			t.Errorf("Class %s: expected total %d, got %d", class, expected[class], snap.Totals[class])
		}
	}
}

func TestFold_TracksMaxAndLastFrame(t *testing.T) {
	a := NewAggregator()

	a.Fold(models.FrameCount{"horse": 3})
	a.Fold(models.FrameCount{"horse": 1, "zebra": 2})
	a.Fold(models.FrameCount{})

	snap := a.Snapshot()
	if snap.MaxPerFrame["horse"] != 3 || snap.MaxPerFrame["zebra"] != 2 {
		t.Errorf("Unexpected max per frame: %v", snap.MaxPerFrame)
	}
	if len(snap.LastFrame) != 0 {
		t.Errorf("Expected empty last frame, got %v", snap.LastFrame)
	}
	if snap.Totals["horse"] != 4 || snap.Totals["zebra"] != 2 {
		t.Errorf("Unexpected totals: %v", snap.Totals)
	}
}

func TestTotals_AreMonotonic(t *testing.T) {
	a := NewAggregator()
	prev := a.Totals()

	for i := 0; i < 50; i++ {
		a.Fold(models.FrameCount{"sheep": i % 3})
		cur := a.Totals()
		if cur["sheep"] < prev["sheep"] {
			t.Fatalf("Totals decreased: %d -> %d", prev["sheep"], cur["sheep"])
		}
		prev = cur
	}
}
