package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Known job names. The scheduler refuses jobs outside this table so a
// config typo surfaces at startup instead of silently never running.
const (
	JobFireScan          = "fire-scan"
	JobNDVIRefresh       = "ndvi-refresh"
	JobEscalationRecheck = "escalation-recheck"
	JobHealthScan        = "health-scan"
	JobTrendAggregate    = "trend-aggregate"
	JobRetentionSweep    = "retention-sweep"
	JobDailyStats        = "daily-stats"
)

// defaultJobs mirrors the ranger-ops runbook: fire scans every 6h,
// escalation recheck every 5 minutes, retention weekly.
var defaultJobs = map[string]Job{
	JobFireScan:          {Interval: 6 * time.Hour, Expiry: time.Hour},
	JobNDVIRefresh:       {Interval: 24 * time.Hour, Expiry: 2 * time.Hour, At: "02:00"},
	JobEscalationRecheck: {Interval: 5 * time.Minute, Expiry: 5 * time.Minute},
	JobHealthScan:        {Interval: time.Hour, Expiry: time.Hour},
	JobTrendAggregate:    {Interval: time.Hour, Expiry: time.Hour},
	JobRetentionSweep:    {Interval: 7 * 24 * time.Hour, Expiry: time.Hour, At: "03:00", Day: "sunday"},
	JobDailyStats:        {Interval: 24 * time.Hour, Expiry: 2 * time.Hour},
}

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. A missing file yields the pure-default config so
// the daemon can start against env vars alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}
	if cfg.Redis.AddrEnv == "" {
		cfg.Redis.AddrEnv = "REDIS_ADDR"
	}
	if cfg.Kafka.BrokersEnv == "" {
		cfg.Kafka.BrokersEnv = "KAFKA_BROKERS"
	}
	if cfg.Kafka.OutbreakTopic == "" {
		cfg.Kafka.OutbreakTopic = "classifier.outbreaks"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "forestwatch"
	}

	// Kenya bounding box
	if cfg.Region == (RegionConfig{}) {
		cfg.Region = RegionConfig{MinLat: -5.0, MaxLat: 5.0, MinLon: 33.0, MaxLon: 42.0}
	}

	if cfg.Ingest.FIRMSBaseURL == "" {
		cfg.Ingest.FIRMSBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"
	}
	if cfg.Ingest.FIRMSKeyEnv == "" {
		cfg.Ingest.FIRMSKeyEnv = "NASA_FIRMS_API_KEY"
	}
	if cfg.Ingest.NDVIKeyEnv == "" {
		cfg.Ingest.NDVIKeyEnv = "NDVI_API_KEY"
	}
	if cfg.Ingest.RequestTimeout == 0 {
		cfg.Ingest.RequestTimeout = 30 * time.Second
	}

	if cfg.Detectors.Fire.RadiusKm == 0 {
		cfg.Detectors.Fire.RadiusKm = 10
	}
	if cfg.Detectors.Fire.WindowDays == 0 {
		cfg.Detectors.Fire.WindowDays = 2
	}
	if cfg.Detectors.Vegetation.HealthyAbove == 0 {
		cfg.Detectors.Vegetation.HealthyAbove = 0.6
	}
	if cfg.Detectors.Vegetation.ModerateAbove == 0 {
		cfg.Detectors.Vegetation.ModerateAbove = 0.4
	}
	if cfg.Detectors.Vegetation.StressedAbove == 0 {
		cfg.Detectors.Vegetation.StressedAbove = 0.2
	}
	if cfg.Detectors.Health.Lookback == 0 {
		cfg.Detectors.Health.Lookback = time.Hour
	}
	if cfg.Detectors.Outbreak.MinAffected == 0 {
		cfg.Detectors.Outbreak.MinAffected = 5
	}
	if cfg.Detectors.Trend.Lookback == 0 {
		cfg.Detectors.Trend.Lookback = 7 * 24 * time.Hour
	}
	if cfg.Detectors.Trend.MinDeclining == 0 {
		cfg.Detectors.Trend.MinDeclining = 5
	}

	if cfg.Alerts.DedupWindow == 0 {
		cfg.Alerts.DedupWindow = 24 * time.Hour
	}
	if cfg.Alerts.RetentionDays == 0 {
		cfg.Alerts.RetentionDays = 90
	}

	if cfg.Notify.SMS.BaseURL == "" {
		cfg.Notify.SMS.BaseURL = "https://api.africastalking.com"
	}
	if cfg.Notify.SMS.UsernameEnv == "" {
		cfg.Notify.SMS.UsernameEnv = "AT_USERNAME"
	}
	if cfg.Notify.SMS.APIKeyEnv == "" {
		cfg.Notify.SMS.APIKeyEnv = "AT_API_KEY"
	}
	if cfg.Notify.Email.From == "" {
		cfg.Notify.Email.From = "alerts@forestwatch.local"
	}
	if cfg.Notify.Email.Primary == "" {
		cfg.Notify.Email.Primary = "resend"
	}
	if cfg.Notify.Email.Fallback == nil {
		cfg.Notify.Email.Fallback = []string{"ses"}
	}

	// Merge job overrides onto the default table
	jobs := make(map[string]Job, len(defaultJobs))
	for name, job := range defaultJobs {
		jobs[name] = job
	}
	for name, job := range cfg.Jobs {
		merged := jobs[name]
		if job.Interval > 0 {
			merged.Interval = job.Interval
		}
		if job.Expiry > 0 {
			merged.Expiry = job.Expiry
		}
		if job.At != "" {
			merged.At = job.At
		}
		if job.Day != "" {
			merged.Day = job.Day
		}
		jobs[name] = merged
	}
	cfg.Jobs = jobs

	if cfg.API.Port == "" {
		cfg.API.Port = "8088"
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Region.MinLat >= cfg.Region.MaxLat {
		return fmt.Errorf("region: min_lat must be below max_lat")
	}
	if cfg.Region.MinLon >= cfg.Region.MaxLon {
		return fmt.Errorf("region: min_lon must be below max_lon")
	}

	v := cfg.Detectors.Vegetation
	if !(v.StressedAbove < v.ModerateAbove && v.ModerateAbove < v.HealthyAbove) {
		return fmt.Errorf("detectors.vegetation: thresholds must be strictly ascending (stressed < moderate < healthy)")
	}
	if cfg.Detectors.Fire.RadiusKm <= 0 {
		return fmt.Errorf("detectors.fire: radius_km must be > 0")
	}
	if cfg.Alerts.DedupWindow <= 0 {
		return fmt.Errorf("alerts: dedup_window must be > 0")
	}
	if cfg.Alerts.RetentionDays <= 0 {
		return fmt.Errorf("alerts: retention_days must be > 0")
	}

	for name, job := range cfg.Jobs {
		if _, ok := defaultJobs[name]; !ok {
			return fmt.Errorf("jobs: unknown job %q", name)
		}
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be > 0", name)
		}
		if job.Expiry <= 0 {
			return fmt.Errorf("job %s: expiry must be > 0", name)
		}
		if job.Expiry > job.Interval {
			return fmt.Errorf("job %s: expiry must not exceed interval", name)
		}
		if job.At != "" {
			if _, err := time.Parse("15:04", job.At); err != nil {
				return fmt.Errorf("job %s: at must be HH:MM, got %q", name, job.At)
			}
		}
		if job.Day != "" {
			if _, ok := weekdays[strings.ToLower(job.Day)]; !ok {
				return fmt.Errorf("job %s: unknown day %q", name, job.Day)
			}
		}
	}

	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// NextAnchor returns the next wall-clock instant matching the job's At
// and Day anchors, strictly after now. ok is false for unanchored jobs
// or unparseable anchors (validation rejects the latter up front).
func (j Job) NextAnchor(now time.Time) (time.Time, bool) {
	if j.At == "" && j.Day == "" {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if j.At != "" {
		at, err := time.Parse("15:04", j.At)
		if err != nil {
			return time.Time{}, false
		}
		hour, minute = at.Hour(), at.Minute()
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if j.Day != "" {
		day, ok := weekdays[strings.ToLower(j.Day)]
		if !ok {
			return time.Time{}, false
		}
		for next.Weekday() != day || !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, true
	}
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}
