package telemetry

import (
	"time"

	"animalcensus/internal/models"
)

const DefaultMeasurement = "animal_detections"

// PointMeta carries the per-session constants stamped on every point.
type PointMeta struct {
	Measurement string
	SourceID    string
	SessionID   string
	Classes     []string
}

// NewPoint builds the telemetry record for one processed frame. Every class in
// meta.Classes gets a field, zero when absent from counts.
func NewPoint(meta PointMeta, counts models.FrameCount, perf models.PerformanceSample, ts time.Time) models.TelemetryPoint {
	measurement := meta.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	fields := make(map[string]int, len(meta.Classes)+1)
	for _, name := range meta.Classes {
		fields[name] = counts[name]
	}
	fields["total"] = counts.Sum()

	return models.TelemetryPoint{
		Timestamp:   ts,
		Measurement: measurement,
		Tags: map[string]string{
			"source_id":  meta.SourceID,
			"session_id": meta.SessionID,
		},
		Counts: fields,
		Metrics: map[string]float64{
			"fps":           perf.RollingFPS,
			"instant_fps":   perf.InstantaneousFPS,
			"processing_ms": perf.FrameProcessingMs,
			"detection_ms":  perf.DetectionMs,
		},
	}
}
