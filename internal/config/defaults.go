package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultConformerTarget     = 1
	DefaultConformerRMSDCutoff = 0.1

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "molprep"
	DefaultDBName     = "molprep"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopicPrefix = "molprep"

	DefaultMetricsAddr      = ":9090"
	DefaultMetricsNamespace = "molprep"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultStandardizerTimeout = 10 * time.Second
	DefaultStandardizerRetries = 2
	DefaultStandardizerTTL     = 24 * time.Hour
)

// ApplyDefaults fills every zero-value field in cfg with the engine default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate().
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Conformers ────────────────────────────────────────────────────────────
	if cfg.Conformers.TargetCount == 0 {
		cfg.Conformers.TargetCount = DefaultConformerTarget
	}
	if cfg.Conformers.RMSDCutoff == 0 {
		cfg.Conformers.RMSDCutoff = DefaultConformerRMSDCutoff
	}

	// ── Standardizer ──────────────────────────────────────────────────────────
	if cfg.Standardizer.Timeout == 0 {
		cfg.Standardizer.Timeout = DefaultStandardizerTimeout
	}
	if cfg.Standardizer.MaxRetries == 0 {
		cfg.Standardizer.MaxRetries = DefaultStandardizerRetries
	}
	if cfg.Standardizer.CacheTTL == 0 {
		cfg.Standardizer.CacheTTL = DefaultStandardizerTTL
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "molprep:"
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
