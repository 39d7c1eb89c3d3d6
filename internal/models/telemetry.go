package models

import "time"

// PerformanceSample holds timing for one processed frame.
type PerformanceSample struct {
	FrameProcessingMs float64 `json:"frame_processing_ms"`
	DetectionMs       float64 `json:"detection_ms"`
	InstantaneousFPS  float64 `json:"instantaneous_fps"`
	RollingFPS        float64 `json:"rolling_fps"`
}

// TelemetryPoint is one time-series record sent to the store.
type TelemetryPoint struct {
	Timestamp   time.Time          `json:"timestamp"`
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Counts      map[string]int     `json:"counts"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Fields merges counts and metrics into a single field set.
func (p TelemetryPoint) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(p.Counts)+len(p.Metrics))
	for k, v := range p.Counts {
		fields[k] = v
	}
	for k, v := range p.Metrics {
		fields[k] = v
	}
	return fields
}
