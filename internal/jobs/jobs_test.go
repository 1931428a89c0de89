package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/notify"
	"github.com/forestwatch/forestwatch/internal/store"
)

type fakeStore struct {
	unresolved   []alert.Alert
	lastFilter   store.UnresolvedFilter
	notified     []string
	purgedDays   int
	healthCounts map[alert.HealthStatus]int
}

func (f *fakeStore) QueryUnresolved(_ context.Context, filter store.UnresolvedFilter) ([]alert.Alert, error) {
	f.lastFilter = filter
	return f.unresolved, nil
}

func (f *fakeStore) MarkNotified(_ context.Context, id string) (alert.Alert, error) {
	f.notified = append(f.notified, id)
	return alert.Alert{ID: id, Notified: true}, nil
}

func (f *fakeStore) PurgeResolvedOlderThan(_ context.Context, days int) (int64, error) {
	f.purgedDays = days
	return 3, nil
}

func (f *fakeStore) CountAlerts(context.Context) (store.AlertCounts, error) {
	return store.AlertCounts{Unresolved: len(f.unresolved)}, nil
}

func (f *fakeStore) HealthCounts(context.Context) (map[alert.HealthStatus]int, error) {
	return f.healthCounts, nil
}

type fakeNotifier struct {
	notified []string
	failFor  map[string]bool
	partial  bool
}

func (f *fakeNotifier) Notify(_ context.Context, a alert.Alert) (notify.DeliveryReport, error) {
	if f.failFor[a.ID] {
		return notify.DeliveryReport{}, errors.New("responder lookup failed")
	}
	f.notified = append(f.notified, a.ID)
	report := notify.DeliveryReport{AlertID: a.ID}
	if f.partial {
		report.Deliveries = []notify.Delivery{
			{ResponderID: "r-1", Channel: notify.ChannelSMS, Outcome: notify.OutcomeFailed, Error: "gateway timeout"},
			{ResponderID: "r-1", Channel: notify.ChannelEmail, Outcome: notify.OutcomeSent},
		}
	}
	return report, nil
}

type fakeDetector struct {
	created []alert.Alert
	err     error
}

func (f *fakeDetector) Run(context.Context) ([]alert.Alert, error) { return f.created, f.err }

func newJobs(st *fakeStore, n *fakeNotifier, d Detector) *Jobs {
	return New(st, n, d, d, d, d, nil, 90, zerolog.Nop())
}

func TestScanDispatchesAndMarksNotified(t *testing.T) {
	st := &fakeStore{}
	n := &fakeNotifier{partial: true}
	d := &fakeDetector{created: []alert.Alert{
		{ID: "a-1", Category: alert.CategoryFire, Severity: alert.SeverityCritical},
		{ID: "a-2", Category: alert.CategoryHealthDecline, Severity: alert.SeverityMedium},
	}}

	if err := newJobs(st, n, d).FireScan(context.Background()); err != nil {
		t.Fatalf("FireScan() error = %v", err)
	}

	// Partial per-recipient failure still marks the alert notified,
	// exactly once per alert.
	if len(st.notified) != 2 {
		t.Errorf("marked notified %v, want both alerts", st.notified)
	}
	if len(n.notified) != 2 {
		t.Errorf("dispatched %v, want both alerts", n.notified)
	}
}

func TestScanLeavesAlertForEscalationOnDispatchError(t *testing.T) {
	st := &fakeStore{}
	n := &fakeNotifier{failFor: map[string]bool{"a-1": true}}
	d := &fakeDetector{created: []alert.Alert{
		{ID: "a-1", Severity: alert.SeverityCritical},
		{ID: "a-2", Severity: alert.SeverityCritical},
	}}

	if err := newJobs(st, n, d).FireScan(context.Background()); err != nil {
		t.Fatalf("FireScan() error = %v", err)
	}
	if len(st.notified) != 1 || st.notified[0] != "a-2" {
		t.Errorf("marked notified %v, want only a-2", st.notified)
	}
}

func TestScanPropagatesDetectorError(t *testing.T) {
	d := &fakeDetector{err: errors.New("db down")}
	if err := newJobs(&fakeStore{}, &fakeNotifier{}, d).HealthScan(context.Background()); err == nil {
		t.Error("HealthScan() error = nil, want detector error")
	}
}

func TestEscalationRecheck(t *testing.T) {
	st := &fakeStore{unresolved: []alert.Alert{
		{ID: "a-1", Severity: alert.SeverityCritical},
	}}
	n := &fakeNotifier{}

	if err := newJobs(st, n, &fakeDetector{}).EscalationRecheck(context.Background()); err != nil {
		t.Fatalf("EscalationRecheck() error = %v", err)
	}

	f := st.lastFilter
	if f.Severity == nil || *f.Severity != alert.SeverityCritical {
		t.Error("filter did not restrict to critical severity")
	}
	if f.Notified == nil || *f.Notified {
		t.Error("filter did not restrict to unnotified alerts")
	}
	if f.Since.Before(time.Now().Add(-2 * time.Hour)) {
		t.Errorf("lookback %v reaches further than one hour", f.Since)
	}
	if len(n.notified) != 1 || len(st.notified) != 1 {
		t.Errorf("redispatched %v, marked %v; want a-1 in both", n.notified, st.notified)
	}
}

func TestRetentionSweep(t *testing.T) {
	st := &fakeStore{}
	if err := newJobs(st, &fakeNotifier{}, &fakeDetector{}).RetentionSweep(context.Background()); err != nil {
		t.Fatalf("RetentionSweep() error = %v", err)
	}
	if st.purgedDays != 90 {
		t.Errorf("purged with retention %d days, want 90", st.purgedDays)
	}
}

func TestDailyStatsWithoutRedis(t *testing.T) {
	st := &fakeStore{healthCounts: map[alert.HealthStatus]int{alert.HealthHealthy: 10}}
	if err := newJobs(st, &fakeNotifier{}, &fakeDetector{}).DailyStats(context.Background()); err != nil {
		t.Errorf("DailyStats() error = %v, want log-only degrade", err)
	}
}
