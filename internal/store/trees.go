package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/forestwatch/forestwatch/internal/alert"
)

const treeColumns = `id, tree_id, latitude, longitude, location_name, health_status, last_health_check`

// Trees returns every monitored tree. Trees with missing coordinates are
// included; detectors skip them at match time.
func (s *Store) Trees(ctx context.Context) ([]alert.Tree, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+treeColumns+` FROM trees`)
	if err != nil {
		return nil, fmt.Errorf("querying trees: %w", err)
	}
	defer rows.Close()
	return scanTrees(rows)
}

// RecentlyDeclined returns trees whose health status moved to a degraded
// state within the lookback window.
func (s *Store) RecentlyDeclined(ctx context.Context, lookback time.Duration) ([]alert.Tree, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+treeColumns+`
		FROM trees
		WHERE health_status IN ('declining', 'diseased', 'dead') AND updated_at >= $1`,
		time.Now().UTC().Add(-lookback),
	)
	if err != nil {
		return nil, fmt.Errorf("querying declined trees: %w", err)
	}
	defer rows.Close()
	return scanTrees(rows)
}

// CountDeclinedSince counts trees in a degraded state updated within the
// lookback window. Used by the trend aggregate.
func (s *Store) CountDeclinedSince(ctx context.Context, lookback time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trees
		WHERE health_status IN ('declining', 'diseased', 'dead') AND updated_at >= $1`,
		time.Now().UTC().Add(-lookback),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting declined trees: %w", err)
	}
	return count, nil
}

// FirstDeclining returns a representative declining tree for aggregate
// alerts, or ErrNotFound if none exists.
func (s *Store) FirstDeclining(ctx context.Context) (alert.Tree, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+treeColumns+` FROM trees
		WHERE health_status IN ('declining', 'diseased', 'dead')
		ORDER BY updated_at DESC LIMIT 1`)
	t, err := scanTree(row)
	if err == sql.ErrNoRows {
		return alert.Tree{}, ErrNotFound
	}
	if err != nil {
		return alert.Tree{}, fmt.Errorf("querying representative tree: %w", err)
	}
	return t, nil
}

// HealthCounts returns tree counts keyed by health status.
func (s *Store) HealthCounts(ctx context.Context) (map[alert.HealthStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT health_status, COUNT(*) FROM trees GROUP BY health_status`)
	if err != nil {
		return nil, fmt.Errorf("counting tree health: %w", err)
	}
	defer rows.Close()

	counts := make(map[alert.HealthStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning health count: %w", err)
		}
		counts[alert.HealthStatus(status)] = count
	}
	return counts, rows.Err()
}

func scanTrees(rows *sql.Rows) ([]alert.Tree, error) {
	var trees []alert.Tree
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tree row: %w", err)
		}
		trees = append(trees, t)
	}
	return trees, rows.Err()
}

func scanTree(row rowScanner) (alert.Tree, error) {
	var (
		t        alert.Tree
		lat, lon sql.NullFloat64
		checked  sql.NullTime
		status   string
	)
	err := row.Scan(&t.ID, &t.TreeID, &lat, &lon, &t.LocationName, &status, &checked)
	if err != nil {
		return alert.Tree{}, err
	}
	// Null coordinates become NaN so geo.Point.Valid rejects them.
	t.Latitude = math.NaN()
	t.Longitude = math.NaN()
	if lat.Valid {
		t.Latitude = lat.Float64
	}
	if lon.Valid {
		t.Longitude = lon.Float64
	}
	t.HealthStatus = alert.HealthStatus(status)
	if checked.Valid {
		t.LastHealthCheck = checked.Time
	}
	return t, nil
}
