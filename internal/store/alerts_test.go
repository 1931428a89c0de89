package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
)

var alertCols = []string{
	"id", "subject_id", "category", "severity", "title", "message",
	"resolved", "resolved_by", "resolved_at", "notes", "notified", "created_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, zerolog.Nop()), mock
}

func alertRow(id string, resolved, notified bool) *sqlmock.Rows {
	var resolvedBy any
	var resolvedAt any
	if resolved {
		resolvedBy = "ranger-1"
		resolvedAt = time.Now()
	}
	return sqlmock.NewRows(alertCols).AddRow(
		id, "tree-1", "fire", "critical", "Fire Alert", "fire nearby",
		resolved, resolvedBy, resolvedAt, "", notified, time.Now(),
	)
}

func TestCreateIfAbsentCreates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO alerts").
		WithArgs(sqlmock.AnyArg(), "tree-1", "fire", "critical", "Fire Alert", "fire nearby").
		WillReturnRows(alertRow("a-1", false, false))

	a, created, err := s.CreateIfAbsent(context.Background(), CreateParams{
		SubjectID:   "tree-1",
		Category:    alert.CategoryFire,
		Severity:    alert.SeverityCritical,
		Title:       "Fire Alert",
		Message:     "fire nearby",
		DedupWindow: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if a.ID != "a-1" || a.Category != alert.CategoryFire || a.Severity != alert.SeverityCritical {
		t.Errorf("unexpected alert: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateIfAbsentReturnsExisting(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO alerts").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("tree-1", "fire", sqlmock.AnyArg()).
		WillReturnRows(alertRow("a-existing", false, true))

	a, created, err := s.CreateIfAbsent(context.Background(), CreateParams{
		SubjectID:   "tree-1",
		Category:    alert.CategoryFire,
		Severity:    alert.SeverityCritical,
		Title:       "Fire Alert",
		Message:     "fire nearby",
		DedupWindow: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if created {
		t.Error("created = true, want false")
	}
	if a.ID != "a-existing" {
		t.Errorf("alert id = %s, want a-existing", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateIfAbsentRetriesWhenKeyFreed(t *testing.T) {
	s, mock := newMockStore(t)

	// Conflict, but the holder resolves before the lookup: second insert wins.
	mock.ExpectQuery("INSERT INTO alerts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM alerts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO alerts").WillReturnRows(alertRow("a-2", false, false))

	_, created, err := s.CreateIfAbsent(context.Background(), CreateParams{
		SubjectID: "tree-1",
		Category:  alert.CategoryFire,
		Severity:  alert.SeverityCritical,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true after retry")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResolve(t *testing.T) {
	s, mock := newMockStore(t)

	resolved := alertRow("a-1", true, true)
	mock.ExpectQuery("UPDATE alerts").
		WithArgs("a-1", "ranger-1", "contained").
		WillReturnRows(resolved)

	a, err := s.Resolve(context.Background(), "a-1", "ranger-1", "contained")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !a.Resolved || a.ResolvedBy != "ranger-1" || a.ResolvedAt == nil {
		t.Errorf("resolution metadata not set: %+v", a)
	}
}

func TestResolveAlreadyResolved(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE alerts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id").
		WithArgs("a-1").
		WillReturnRows(alertRow("a-1", true, true))

	a, err := s.Resolve(context.Background(), "a-1", "ranger-2", "dup")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Resolve() error = %v, want ErrAlreadyResolved", err)
	}
	// Original resolution metadata comes back untouched.
	if a.ResolvedBy != "ranger-1" {
		t.Errorf("resolved_by = %s, want original ranger-1", a.ResolvedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResolveNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE alerts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id").WillReturnError(sql.ErrNoRows)

	if _, err := s.Resolve(context.Background(), "missing", "r", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE alerts SET notified").
		WithArgs("a-1").
		WillReturnRows(alertRow("a-1", false, true))
	mock.ExpectQuery("UPDATE alerts SET notified").
		WithArgs("a-1").
		WillReturnRows(alertRow("a-1", false, true))

	for i := 0; i < 2; i++ {
		a, err := s.MarkNotified(context.Background(), "a-1")
		if err != nil {
			t.Fatalf("MarkNotified() call %d error = %v", i+1, err)
		}
		if !a.Notified {
			t.Errorf("call %d: notified = false", i+1)
		}
	}
}

func TestMarkNotifiedNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE alerts SET notified").WillReturnError(sql.ErrNoRows)

	if _, err := s.MarkNotified(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkNotified() error = %v, want ErrNotFound", err)
	}
}

func TestQueryUnresolvedFilters(t *testing.T) {
	s, mock := newMockStore(t)

	sev := alert.SeverityCritical
	notified := false
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE NOT resolved").
		WithArgs("critical", since, false).
		WillReturnRows(alertRow("a-1", false, false))

	alerts, err := s.QueryUnresolved(context.Background(), UnresolvedFilter{
		Severity: &sev,
		Since:    since,
		Notified: &notified,
	})
	if err != nil {
		t.Fatalf("QueryUnresolved() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("got %d alerts, want 1", len(alerts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPurgeResolvedOlderThan(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM alerts").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := s.PurgeResolvedOlderThan(context.Background(), 90)
	if err != nil {
		t.Fatalf("PurgeResolvedOlderThan() error = %v", err)
	}
	if count != 3 {
		t.Errorf("purged = %d, want 3", count)
	}
}
