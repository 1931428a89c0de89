package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forestwatch/forestwatch/internal/alert"
)

const alertColumns = `id, subject_id, category, severity, title, message,
	resolved, resolved_by, resolved_at, notes, notified, created_at`

// CreateParams are the immutable fields of a new alert.
type CreateParams struct {
	SubjectID string
	Category  alert.Category
	Severity  alert.Severity
	Title     string
	Message   string
	// DedupWindow bounds how far back the existing-alert lookup reaches
	// when the dedup key is already occupied.
	DedupWindow time.Duration
}

// CreateIfAbsent inserts a new unresolved alert unless one already exists
// for the (subject, category) dedup key. The partial unique index makes
// the insert itself the atomicity point: under concurrent identical calls
// exactly one observes created=true, the rest get the winner's row.
func (s *Store) CreateIfAbsent(ctx context.Context, p CreateParams) (alert.Alert, bool, error) {
	if p.SubjectID == "" {
		return alert.Alert{}, false, fmt.Errorf("subject id is required")
	}
	if p.DedupWindow <= 0 {
		p.DedupWindow = 24 * time.Hour
	}

	// Two attempts: the only way both the insert and the lookup can come
	// up empty is the conflicting alert being resolved in between, in
	// which case the key is free again and the insert should win.
	for attempt := 0; attempt < 2; attempt++ {
		id := uuid.NewString()
		row := s.db.QueryRowContext(ctx, `
			INSERT INTO alerts (id, subject_id, category, severity, title, message)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (subject_id, category) WHERE NOT resolved DO NOTHING
			RETURNING `+alertColumns,
			id, p.SubjectID, string(p.Category), p.Severity.String(), p.Title, p.Message,
		)
		created, err := scanAlert(row)
		if err == nil {
			s.log.Info().
				Str("alert_id", created.ID).
				Str("subject", created.SubjectID).
				Str("category", string(created.Category)).
				Str("severity", created.Severity.String()).
				Msg("alert created")
			return created, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return alert.Alert{}, false, fmt.Errorf("inserting alert: %w", err)
		}

		// Insert conflicted: return the open alert holding the key.
		existing, err := s.openAlertForKey(ctx, p.SubjectID, p.Category, p.DedupWindow)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return alert.Alert{}, false, err
		}
	}
	return alert.Alert{}, false, fmt.Errorf("create-if-absent for %s/%s did not converge", p.SubjectID, p.Category)
}

func (s *Store) openAlertForKey(ctx context.Context, subjectID string, category alert.Category, window time.Duration) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE subject_id = $1 AND category = $2 AND NOT resolved AND created_at >= $3`,
		subjectID, string(category), time.Now().UTC().Add(-window),
	)
	a, err := scanAlert(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, fmt.Errorf("looking up open alert: %w", err)
	}
	return a, err
}

// Resolve marks an alert resolved. Resolving twice returns the original
// resolution metadata together with ErrAlreadyResolved; no field is
// touched a second time.
func (s *Store) Resolve(ctx context.Context, id, resolvedBy, notes string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET resolved = TRUE, resolved_by = $2, resolved_at = NOW(), notes = $3
		WHERE id = $1 AND NOT resolved
		RETURNING `+alertColumns,
		id, resolvedBy, notes,
	)
	a, err := scanAlert(row)
	if err == nil {
		s.log.Info().Str("alert_id", a.ID).Str("resolved_by", resolvedBy).Msg("alert resolved")
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, fmt.Errorf("resolving alert %s: %w", id, err)
	}

	// No row updated: missing or already resolved.
	existing, err := s.Get(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	return existing, ErrAlreadyResolved
}

// MarkNotified sets the notified flag. Idempotent; repeated calls are
// no-ops, not errors.
func (s *Store) MarkNotified(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE alerts SET notified = TRUE WHERE id = $1
		RETURNING `+alertColumns,
		id,
	)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, ErrNotFound
	}
	if err != nil {
		return alert.Alert{}, fmt.Errorf("marking alert %s notified: %w", id, err)
	}
	return a, nil
}

// Get returns a single alert by id.
func (s *Store) Get(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, ErrNotFound
	}
	if err != nil {
		return alert.Alert{}, fmt.Errorf("getting alert %s: %w", id, err)
	}
	return a, nil
}

// UnresolvedFilter narrows QueryUnresolved. Zero values mean no filter.
type UnresolvedFilter struct {
	Severity *alert.Severity
	Category alert.Category
	Since    time.Time
	// NotifiedOnly limits to alerts whose notified flag matches the
	// value; nil means either.
	Notified *bool
}

// QueryUnresolved returns unresolved alerts matching the filter, newest
// first.
func (s *Store) QueryUnresolved(ctx context.Context, f UnresolvedFilter) ([]alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE NOT resolved`
	args := []any{}

	if f.Severity != nil {
		args = append(args, f.Severity.String())
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Notified != nil {
		args = append(args, *f.Notified)
		query += fmt.Sprintf(" AND notified = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unresolved alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// PurgeResolvedOlderThan deletes resolved alerts whose resolution is older
// than the retention window. Returns the number of rows removed.
func (s *Store) PurgeResolvedOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE resolved AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging resolved alerts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading purge row count: %w", err)
	}
	if count > 0 {
		s.log.Info().Int64("purged", count).Int("retention_days", retentionDays).Msg("retention sweep removed alerts")
	}
	return count, nil
}

// AlertCounts summarizes alert state for the daily stats job.
type AlertCounts struct {
	Unresolved int
	Critical   int
}

// CountAlerts returns unresolved totals.
func (s *Store) CountAlerts(ctx context.Context) (AlertCounts, error) {
	var c AlertCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE severity = 'critical')
		FROM alerts WHERE NOT resolved`,
	).Scan(&c.Unresolved, &c.Critical)
	if err != nil {
		return AlertCounts{}, fmt.Errorf("counting alerts: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (alert.Alert, error) {
	var (
		a          alert.Alert
		category   string
		severity   string
		resolvedBy sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.SubjectID, &category, &severity, &a.Title, &a.Message,
		&a.Resolved, &resolvedBy, &resolvedAt, &a.Notes, &a.Notified, &a.CreatedAt,
	)
	if err != nil {
		return alert.Alert{}, err
	}
	a.Category, err = alert.ParseCategory(category)
	if err != nil {
		return alert.Alert{}, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	a.Severity, err = alert.ParseSeverity(severity)
	if err != nil {
		return alert.Alert{}, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	if resolvedBy.Valid {
		a.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}
