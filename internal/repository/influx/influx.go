package influx

import (
	"context"
	"fmt"
	"time"

	"animalcensus/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// TelemetryRepository writes telemetry points to an InfluxDB v2 bucket.
type TelemetryRepository struct {
	client influxdb2.Client
	writer pointWriter
	url    string
}

// New creates a client for url. An unreachable server is not an error here:
// writes fail later and are retried by the telemetry sink.
func New(ctx context.Context, url, token, org, bucket string) (*TelemetryRepository, bool, error) {
	if url == "" || bucket == "" {
		return nil, false, fmt.Errorf("influxdb url and bucket are required")
	}

	client := influxdb2.NewClient(url, token)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	reachable, _ := client.Ping(pingCtx)

	return &TelemetryRepository{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
		url:    url,
	}, reachable, nil
}

// WritePoints writes the batch with a single blocking request.
func (r *TelemetryRepository) WritePoints(ctx context.Context, points []models.TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, toPoint(p))
	}

	if err := r.writer.WritePoint(ctx, batch...); err != nil {
		return fmt.Errorf("failed to write %d points to %s: %w", len(batch), r.url, err)
	}
	return nil
}

func toPoint(p models.TelemetryPoint) *write.Point {
	fields := make(map[string]interface{}, len(p.Counts)+len(p.Metrics))
	for k, v := range p.Counts {
		fields[k] = int64(v)
	}
	for k, v := range p.Metrics {
		fields[k] = v
	}
	return influxdb2.NewPoint(p.Measurement, p.Tags, fields, p.Timestamp)
}

func (r *TelemetryRepository) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
