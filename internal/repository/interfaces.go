package repository

import (
	"context"
	"time"

	"animalcensus/internal/models"
)

// TelemetryRepository persists telemetry points to a time-series store.
type TelemetryRepository interface {
	// Write operations
	WritePoints(ctx context.Context, points []models.TelemetryPoint) error

	Close() error
}

// TelemetryQuerier reads persisted telemetry back by time range.
type TelemetryQuerier interface {
	// Read operations
	Range(ctx context.Context, measurement string, from, to time.Time) ([]models.TelemetryPoint, error)
	ClassTotals(ctx context.Context, measurement string, from, to time.Time) (map[string]int, error)
}

// Nop discards every point. Used when no store is configured.
type Nop struct{}

func (Nop) WritePoints(ctx context.Context, points []models.TelemetryPoint) error { return nil }

func (Nop) Close() error { return nil }
