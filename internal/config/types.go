package config

import "time"

// Config represents the complete forestwatch configuration
type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	Redis     RedisConfig    `yaml:"redis"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Region    RegionConfig   `yaml:"region"`
	Ingest    IngestConfig   `yaml:"ingest"`
	Detectors DetectorConfig `yaml:"detectors"`
	Alerts    AlertConfig    `yaml:"alerts"`
	Notify    NotifyConfig   `yaml:"notify"`
	Jobs      map[string]Job `yaml:"jobs"`
	API       APIConfig      `yaml:"api"`
}

// DatabaseConfig points at the Postgres store. The DSN itself stays in the
// environment.
type DatabaseConfig struct {
	URLEnv string `yaml:"url_env"`
}

// RedisConfig points at the Redis instance used for daily stats snapshots.
// Optional; stats degrade to log-only without it.
type RedisConfig struct {
	AddrEnv string `yaml:"addr_env"`
}

// KafkaConfig describes the classifier outbreak-signal topic. Optional;
// the outbreak detector idles without a broker.
type KafkaConfig struct {
	BrokersEnv    string `yaml:"brokers_env"`
	OutbreakTopic string `yaml:"outbreak_topic"`
	GroupID       string `yaml:"group_id"`
}

// RegionConfig is the bounding box queried for fire detections.
type RegionConfig struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// IngestConfig configures the external signal providers.
type IngestConfig struct {
	FIRMSBaseURL   string        `yaml:"firms_base_url"`
	FIRMSKeyEnv    string        `yaml:"firms_key_env"`
	NDVIBaseURL    string        `yaml:"ndvi_base_url"`
	NDVIKeyEnv     string        `yaml:"ndvi_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DetectorConfig holds per-detector tuning.
type DetectorConfig struct {
	Fire       FireDetectorConfig       `yaml:"fire"`
	Vegetation VegetationDetectorConfig `yaml:"vegetation"`
	Health     HealthDetectorConfig     `yaml:"health"`
	Outbreak   OutbreakDetectorConfig   `yaml:"outbreak"`
	Trend      TrendDetectorConfig      `yaml:"trend"`
}

// FireDetectorConfig tunes the fire-proximity scan.
type FireDetectorConfig struct {
	RadiusKm   float64 `yaml:"radius_km"`
	WindowDays int     `yaml:"window_days"`
}

// VegetationDetectorConfig tunes the NDVI stress scan. Index above
// HealthyAbove is healthy, above ModerateAbove is moderate, above
// StressedAbove is stressed, anything below is critical.
type VegetationDetectorConfig struct {
	HealthyAbove  float64 `yaml:"healthy_above"`
	ModerateAbove float64 `yaml:"moderate_above"`
	StressedAbove float64 `yaml:"stressed_above"`
}

// HealthDetectorConfig tunes the health-decline scan.
type HealthDetectorConfig struct {
	Lookback time.Duration `yaml:"lookback"`
}

// OutbreakDetectorConfig tunes the disease-outbreak aggregator.
type OutbreakDetectorConfig struct {
	MinAffected int `yaml:"min_affected"`
}

// TrendDetectorConfig tunes the health-trend aggregate.
type TrendDetectorConfig struct {
	Lookback     time.Duration `yaml:"lookback"`
	MinDeclining int           `yaml:"min_declining"`
}

// AlertConfig defines alert dedup and retention behavior.
type AlertConfig struct {
	DedupWindow   time.Duration `yaml:"dedup_window"`
	RetentionDays int           `yaml:"retention_days"`
}

// NotifyConfig configures the outbound notification channels.
type NotifyConfig struct {
	SMS   SMSConfig   `yaml:"sms"`
	Email EmailConfig `yaml:"email"`
}

// SMSConfig configures the Africa's Talking SMS gateway.
type SMSConfig struct {
	BaseURL     string `yaml:"base_url"`
	UsernameEnv string `yaml:"username_env"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Sender      string `yaml:"sender,omitempty"`
}

// EmailConfig configures the email providers. Primary is tried first,
// fallback providers in order after it.
type EmailConfig struct {
	From     string   `yaml:"from"`
	Primary  string   `yaml:"primary"`
	Fallback []string `yaml:"fallback,omitempty"`
}

// Job is a scheduled job definition. A run exceeding Expiry is abandoned.
// At anchors the first run to a wall-clock time of day ("02:00"); Day
// additionally pins it to a weekday ("sunday"). With no anchor the
// interval phases off daemon start.
type Job struct {
	Interval time.Duration `yaml:"interval"`
	Expiry   time.Duration `yaml:"expiry"`
	At       string        `yaml:"at,omitempty"`
	Day      string        `yaml:"day,omitempty"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Port string `yaml:"port"`
}
