package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"animalcensus/internal/models"
)

// Model is the external inference capability.
type Model interface {
	Infer(ctx context.Context, frame models.Frame) ([]models.RawDetection, error)
}

// Adapter filters model output down to whitelisted, confident detections.
type Adapter struct {
	model     Model
	whitelist *models.Whitelist
	threshold float64
	timeout   time.Duration
}

// NewAdapter creates an adapter. A zero timeout disables the inference deadline.
func NewAdapter(model Model, whitelist *models.Whitelist, threshold float64, timeout time.Duration) (*Adapter, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if whitelist == nil {
		return nil, fmt.Errorf("whitelist is required")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be within [0,1], got %v", threshold)
	}

	return &Adapter{
		model:     model,
		whitelist: whitelist,
		threshold: threshold,
		timeout:   timeout,
	}, nil
}

type inferResult struct {
	raw []models.RawDetection
	err error
}

// Detect runs inference on frame and returns detections ordered by descending
// confidence, ties broken by ascending class id. Failures wrap ErrDetectionFailed.
func (a *Adapter) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: malformed frame %d (%dx%d, %d bytes)",
			models.ErrDetectionFailed, frame.Seq, frame.Width, frame.Height, len(frame.Data))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// Model może ignorować kontekst, więc czekamy na wynik albo na deadline.
	done := make(chan inferResult, 1)
	go func() {
		raw, err := a.model.Infer(ctx, frame)
		done <- inferResult{raw: raw, err: err}
	}()

	var res inferResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: frame %d: %v", models.ErrDetectionFailed, frame.Seq, ctx.Err())
	}

	if res.err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", models.ErrDetectionFailed, frame.Seq, res.err)
	}

	return a.Filter(res.raw), nil
}

// Filter applies the whitelist and confidence threshold to raw model output.
func (a *Adapter) Filter(raw []models.RawDetection) []models.Detection {
	detections := make([]models.Detection, 0, len(raw))

	for _, r := range raw {
		if math.IsNaN(r.Confidence) || r.Confidence < a.threshold || r.Confidence > 1 {
			continue
		}
		class, ok := a.whitelist.Lookup(r.ClassID)
		if !ok {
			continue
		}

		detections = append(detections, models.Detection{
			ClassID:    r.ClassID,
			ClassName:  class.Name,
			Confidence: r.Confidence,
			Box:        r.Box,
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Confidence != detections[j].Confidence {
			return detections[i].Confidence > detections[j].Confidence
		}
		return detections[i].ClassID < detections[j].ClassID
	})

	return detections
}

// Threshold returns the configured confidence threshold.
func (a *Adapter) Threshold() float64 {
	return a.threshold
}
