package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forestwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Detectors.Fire.RadiusKm != 10 {
		t.Errorf("fire radius = %v, want 10", cfg.Detectors.Fire.RadiusKm)
	}
	if cfg.Alerts.DedupWindow != 24*time.Hour {
		t.Errorf("dedup window = %v, want 24h", cfg.Alerts.DedupWindow)
	}
	if cfg.Alerts.RetentionDays != 90 {
		t.Errorf("retention = %v, want 90", cfg.Alerts.RetentionDays)
	}

	job, ok := cfg.Jobs[JobEscalationRecheck]
	if !ok {
		t.Fatal("escalation-recheck job missing from defaults")
	}
	if job.Interval != 5*time.Minute || job.Expiry != 5*time.Minute {
		t.Errorf("escalation-recheck = %+v, want 5m/5m", job)
	}
	if len(cfg.Jobs) != 7 {
		t.Errorf("default job count = %d, want 7", len(cfg.Jobs))
	}

	if got := cfg.Jobs[JobNDVIRefresh].At; got != "02:00" {
		t.Errorf("ndvi-refresh at = %q, want 02:00", got)
	}
	sweep := cfg.Jobs[JobRetentionSweep]
	if sweep.At != "03:00" || sweep.Day != "sunday" {
		t.Errorf("retention-sweep anchor = %q/%q, want 03:00/sunday", sweep.At, sweep.Day)
	}
}

func TestJobNextAnchor(t *testing.T) {
	// 2026-08-30 10:00 UTC is a Sunday.
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		job  Job
		want time.Time
		ok   bool
	}{
		{
			name: "no anchor",
			job:  Job{Interval: time.Hour},
		},
		{
			name: "time later today",
			job:  Job{At: "12:00"},
			want: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "time already passed rolls to tomorrow",
			job:  Job{At: "02:00"},
			want: time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "weekday slot passed rolls a full week",
			job:  Job{At: "03:00", Day: "sunday"},
			want: time.Date(2026, 9, 6, 3, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "weekday without time means midnight",
			job:  Job{Day: "monday"},
			want: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.job.NextAnchor(now)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("next = %v, want %v", got, tt.want)
			}
		})
	}

	// A slot still ahead on the anchor day fires the same day.
	early := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	got, ok := (Job{At: "03:00", Day: "sunday"}).NextAnchor(early)
	if !ok || !got.Equal(time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("next = %v, want same-day 03:00", got)
	}
}

func TestLoadConfigJobOverride(t *testing.T) {
	path := writeConfig(t, `
jobs:
  fire-scan:
    interval: 2h
    expiry: 30m
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	job := cfg.Jobs[JobFireScan]
	if job.Interval != 2*time.Hour || job.Expiry != 30*time.Minute {
		t.Errorf("fire-scan = %+v, want 2h/30m", job)
	}
	// Other jobs keep defaults
	if cfg.Jobs[JobHealthScan].Interval != time.Hour {
		t.Errorf("health-scan interval = %v, want 1h", cfg.Jobs[JobHealthScan].Interval)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown job",
			yaml: "jobs:\n  mystery-scan:\n    interval: 1h\n    expiry: 10m\n",
		},
		{
			name: "expiry exceeds interval",
			yaml: "jobs:\n  health-scan:\n    interval: 1h\n    expiry: 3h\n",
		},
		{
			name: "inverted vegetation thresholds",
			yaml: "detectors:\n  vegetation:\n    healthy_above: 0.2\n    moderate_above: 0.4\n    stressed_above: 0.6\n",
		},
		{
			name: "inverted region",
			yaml: "region:\n  min_lat: 5.0\n  max_lat: -5.0\n  min_lon: 33.0\n  max_lon: 42.0\n",
		},
		{
			name: "malformed at anchor",
			yaml: "jobs:\n  ndvi-refresh:\n    at: \"2am\"\n",
		},
		{
			name: "unknown day anchor",
			yaml: "jobs:\n  retention-sweep:\n    day: someday\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.yaml)); err == nil {
				t.Error("LoadConfig() accepted invalid config")
			}
		})
	}
}
