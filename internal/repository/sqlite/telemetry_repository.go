package sqlite

import (
	"context"
	"fmt"
	"time"

	"animalcensus/internal/models"
)

const (
	kindCount  = "count"
	kindMetric = "metric"
)

// TelemetryRepository implements repository.TelemetryRepository and
// repository.TelemetryQuerier for SQLite.
type TelemetryRepository struct {
	db *DB
}

// NewTelemetryRepository creates a new SQLite telemetry repository.
func NewTelemetryRepository(db *DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// WritePoints stores a batch of points in a single transaction.
func (r *TelemetryRepository) WritePoints(ctx context.Context, points []models.TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_points (measurement, source_id, session_id, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer pointStmt.Close()

	fieldStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_fields (point_id, name, kind, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer fieldStmt.Close()

	for _, p := range points {
		result, err := pointStmt.ExecContext(ctx, p.Measurement, p.Tags["source_id"], p.Tags["session_id"], p.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert point: %w", err)
		}
		pointID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read point id: %w", err)
		}

		for name, v := range p.Counts {
			if _, err := fieldStmt.ExecContext(ctx, pointID, name, kindCount, v); err != nil {
				return fmt.Errorf("failed to insert field %s: %w", name, err)
			}
		}
		for name, v := range p.Metrics {
			if _, err := fieldStmt.ExecContext(ctx, pointID, name, kindMetric, v); err != nil {
				return fmt.Errorf("failed to insert field %s: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

// Range returns the points of a measurement within [from, to], oldest first.
func (r *TelemetryRepository) Range(ctx context.Context, measurement string, from, to time.Time) ([]models.TelemetryPoint, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT p.id, p.source_id, p.session_id, p.timestamp, f.name, f.kind, f.value
		FROM telemetry_points p
		LEFT JOIN telemetry_fields f ON f.point_id = p.id
		WHERE p.measurement = ? AND p.timestamp BETWEEN ? AND ?
		ORDER BY p.timestamp, p.id
	`, measurement, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var (
		points []models.TelemetryPoint
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id                  int64
			sourceID, sessionID string
			ts                  int64
			name, kind          *string
			value               *float64
		)
		if err := rows.Scan(&id, &sourceID, &sessionID, &ts, &name, &kind, &value); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}

		if id != lastID {
			points = append(points, models.TelemetryPoint{
				Timestamp:   time.Unix(0, ts),
				Measurement: measurement,
				Tags:        map[string]string{"source_id": sourceID, "session_id": sessionID},
				Counts:      map[string]int{},
				Metrics:     map[string]float64{},
			})
			lastID = id
		}
		if name == nil || kind == nil || value == nil {
			continue
		}

		p := &points[len(points)-1]
		if *kind == kindCount {
			p.Counts[*name] = int(*value)
		} else {
			p.Metrics[*name] = *value
		}
	}

	return points, rows.Err()
}

// ClassTotals sums the count fields of a measurement within [from, to].
func (r *TelemetryRepository) ClassTotals(ctx context.Context, measurement string, from, to time.Time) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT f.name, CAST(SUM(f.value) AS INTEGER)
		FROM telemetry_fields f
		JOIN telemetry_points p ON p.id = f.point_id
		WHERE p.measurement = ? AND p.timestamp BETWEEN ? AND ? AND f.kind = ? AND f.name != 'total'
		GROUP BY f.name
		ORDER BY f.name
	`, measurement, from.UnixNano(), to.UnixNano(), kindCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			name  string
			total int
		)
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals[name] = total
	}

	return totals, rows.Err()
}

// Close is a no-op; the owning DB is closed separately.
func (r *TelemetryRepository) Close() error {
	return nil
}
