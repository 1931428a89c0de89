// Package jobs holds the scheduled job bodies: detector scans feeding
// the dispatcher, the escalation retry path, retention and stats.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/metrics"
	"github.com/forestwatch/forestwatch/internal/notify"
	"github.com/forestwatch/forestwatch/internal/store"
)

// escalationLookback bounds the notification retry path: only critical
// alerts created within this window are re-dispatched.
const escalationLookback = time.Hour

// AlertStore is the store surface the jobs use.
type AlertStore interface {
	QueryUnresolved(ctx context.Context, f store.UnresolvedFilter) ([]alert.Alert, error)
	MarkNotified(ctx context.Context, id string) (alert.Alert, error)
	PurgeResolvedOlderThan(ctx context.Context, retentionDays int) (int64, error)
	CountAlerts(ctx context.Context) (store.AlertCounts, error)
	HealthCounts(ctx context.Context) (map[alert.HealthStatus]int, error)
}

// Notifier dispatches one alert to responders.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) (notify.DeliveryReport, error)
}

// Detector is a scan-type detector run.
type Detector interface {
	Run(ctx context.Context) ([]alert.Alert, error)
}

// Jobs bundles the job bodies with their collaborators.
type Jobs struct {
	store    AlertStore
	notifier Notifier

	fire       Detector
	vegetation Detector
	health     Detector
	trend      Detector

	rdb           *redis.Client
	retentionDays int
	log           zerolog.Logger
}

// New wires the job bodies. rdb may be nil; the daily stats job then
// degrades to log-only.
func New(st AlertStore, notifier Notifier, fire, vegetation, health, trend Detector, rdb *redis.Client, retentionDays int, log zerolog.Logger) *Jobs {
	return &Jobs{
		store:         st,
		notifier:      notifier,
		fire:          fire,
		vegetation:    vegetation,
		health:        health,
		trend:         trend,
		rdb:           rdb,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "jobs").Logger(),
	}
}

// FireScan runs the fire-proximity detector and dispatches new alerts.
func (j *Jobs) FireScan(ctx context.Context) error {
	return j.scan(ctx, j.fire)
}

// NDVIRefresh runs the vegetation-stress detector and dispatches new
// alerts.
func (j *Jobs) NDVIRefresh(ctx context.Context) error {
	return j.scan(ctx, j.vegetation)
}

// HealthScan runs the health-decline detector and dispatches new alerts.
func (j *Jobs) HealthScan(ctx context.Context) error {
	return j.scan(ctx, j.health)
}

// TrendAggregate runs the health-trend aggregator and dispatches new
// alerts.
func (j *Jobs) TrendAggregate(ctx context.Context) error {
	return j.scan(ctx, j.trend)
}

func (j *Jobs) scan(ctx context.Context, d Detector) error {
	created, err := d.Run(ctx)
	if err != nil {
		return err
	}
	j.DispatchAll(ctx, created)
	return nil
}

// DispatchAll notifies every newly created alert and marks it notified.
// The mark happens exactly once per alert regardless of per-recipient
// delivery failures; full retries belong to the escalation recheck.
func (j *Jobs) DispatchAll(ctx context.Context, created []alert.Alert) {
	for _, a := range created {
		metrics.AlertsCreated.WithLabelValues(string(a.Category), a.Severity.String()).Inc()

		if _, err := j.notifier.Notify(ctx, a); err != nil {
			// Responder lookup failed; leave notified=false so the
			// escalation recheck retries critical alerts.
			j.log.Error().Err(err).Str("alert", a.ID).Msg("dispatch failed, leaving for escalation recheck")
			continue
		}
		if _, err := j.store.MarkNotified(ctx, a.ID); err != nil {
			j.log.Error().Err(err).Str("alert", a.ID).Msg("marking alert notified failed")
		}
	}
}

// EscalationRecheck re-dispatches unresolved critical alerts from the
// last hour that are not yet marked notified. This is the bounded retry
// path for notification failures.
func (j *Jobs) EscalationRecheck(ctx context.Context) error {
	critical := alert.SeverityCritical
	notNotified := false
	pending, err := j.store.QueryUnresolved(ctx, store.UnresolvedFilter{
		Severity: &critical,
		Since:    time.Now().Add(-escalationLookback),
		Notified: &notNotified,
	})
	if err != nil {
		return fmt.Errorf("querying unnotified critical alerts: %w", err)
	}

	for _, a := range pending {
		if _, err := j.notifier.Notify(ctx, a); err != nil {
			j.log.Error().Err(err).Str("alert", a.ID).Msg("escalation dispatch failed")
			continue
		}
		if _, err := j.store.MarkNotified(ctx, a.ID); err != nil {
			j.log.Error().Err(err).Str("alert", a.ID).Msg("marking alert notified failed")
		}
	}

	if counts, err := j.store.CountAlerts(ctx); err == nil {
		metrics.OpenAlerts.Set(float64(counts.Unresolved))
	}

	if len(pending) > 0 {
		j.log.Info().Int("redispatched", len(pending)).Msg("escalation recheck complete")
	}
	return nil
}

// RetentionSweep deletes resolved alerts past the retention window.
func (j *Jobs) RetentionSweep(ctx context.Context) error {
	purged, err := j.store.PurgeResolvedOlderThan(ctx, j.retentionDays)
	if err != nil {
		return fmt.Errorf("purging resolved alerts: %w", err)
	}
	j.log.Info().Int64("purged", purged).Int("retention_days", j.retentionDays).Msg("retention sweep complete")
	return nil
}

// DailyStats snapshots tree health and alert counts into a Redis hash
// keyed by date. Without Redis the snapshot is logged and dropped.
func (j *Jobs) DailyStats(ctx context.Context) error {
	health, err := j.store.HealthCounts(ctx)
	if err != nil {
		return fmt.Errorf("counting tree health: %w", err)
	}
	counts, err := j.store.CountAlerts(ctx)
	if err != nil {
		return fmt.Errorf("counting alerts: %w", err)
	}

	fields := map[string]interface{}{
		"alerts_unresolved": counts.Unresolved,
		"alerts_critical":   counts.Critical,
	}
	for status, n := range health {
		fields["trees_"+string(status)] = n
	}

	if j.rdb == nil {
		j.log.Info().Fields(fields).Msg("daily stats (redis not configured)")
		return nil
	}

	key := "stats:daily:" + time.Now().UTC().Format("2006-01-02")
	if err := j.rdb.HSet(ctx, key, fields).Err(); err != nil {
		// Stats are best-effort; a Redis outage must not fail the job.
		j.log.Warn().Err(err).Str("key", key).Msg("writing daily stats to redis failed")
		return nil
	}
	if err := j.rdb.Expire(ctx, key, 90*24*time.Hour).Err(); err != nil {
		j.log.Warn().Err(err).Str("key", key).Msg("setting stats expiry failed")
	}

	j.log.Info().Str("key", key).Msg("daily stats written")
	return nil
}
