package models

// FrameCount maps class name to detections in one frame.
type FrameCount map[string]int

// Sum returns the number of detections counted.
func (c FrameCount) Sum() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// SessionTotals maps class name to cumulative detections across the run.
type SessionTotals map[string]int

// Sum returns the total over all classes.
func (t SessionTotals) Sum() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Clone returns an independent copy.
func (t SessionTotals) Clone() SessionTotals {
	out := make(SessionTotals, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
