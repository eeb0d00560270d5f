package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3*time.Second, cfg.StockLockTimeout)
	require.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.KafkaEnabled())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("STOCK_LOCK_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("PG_MAX_CONNS", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 750*time.Millisecond, cfg.StockLockTimeout)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
	require.EqualValues(t, 8, cfg.PGMaxConns)
}

func TestLoadConfigRejectsNonPositiveLockTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOCK_LOCK_TIMEOUT", "0s")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "STOCK_LOCK_TIMEOUT")
}

func TestNilConfigHelpers(t *testing.T) {
	var cfg *Config
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.KafkaEnabled())
}
