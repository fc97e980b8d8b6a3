package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_NilConfig(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultConformerTarget, cfg.Conformers.TargetCount)
	assert.Equal(t, DefaultConformerRMSDCutoff, cfg.Conformers.RMSDCutoff)

	assert.Equal(t, DefaultStandardizerTimeout, cfg.Standardizer.Timeout)
	assert.Equal(t, DefaultStandardizerRetries, cfg.Standardizer.MaxRetries)
	assert.Equal(t, DefaultStandardizerTTL, cfg.Standardizer.CacheTTL)

	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultDBPort, cfg.Database.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultDBMaxConns, cfg.Database.MaxConns)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.DefaultTTL)
	assert.Equal(t, "molprep:", cfg.Redis.KeyPrefix)

	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaTopicPrefix, cfg.Kafka.TopicPrefix)

	assert.Equal(t, DefaultMetricsAddr, cfg.Metrics.Addr)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Conformers.TargetCount = 50
	cfg.Conformers.RMSDCutoff = 2.5
	cfg.Database.Host = "db.internal"
	cfg.Log.Level = "debug"

	ApplyDefaults(cfg)

	assert.Equal(t, 50, cfg.Conformers.TargetCount)
	assert.Equal(t, 2.5, cfg.Conformers.RMSDCutoff)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
}
