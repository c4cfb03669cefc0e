package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"RIDEPOOL_HTTP_ADDR", "RIDEPOOL_RATE_LIMIT_PER_MINUTE", "RIDEPOOL_STORAGE", "RIDEPOOL_DB_DSN",
	"RIDEPOOL_MIGRATE", "RIDEPOOL_REDIS_ADDR", "RIDEPOOL_REDIS_PASSWORD", "RIDEPOOL_REDIS_DB",
	"RIDEPOOL_KAFKA_BROKERS", "RIDEPOOL_KAFKA_TOPIC", "RIDEPOOL_MATCH_INTERVAL_SECONDS",
	"RIDEPOOL_DETOUR_TOLERANCE", "RIDEPOOL_H3_RESOLUTION", "RIDEPOOL_LOCK_TTL_SECONDS",
	"RIDEPOOL_LOCK_NAME", "RIDEPOOL_STOP_TIMEOUT", "RIDEPOOL_BASE_FARE", "RIDEPOOL_RATE_PER_KM",
	"RIDEPOOL_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 100, cfg.HTTP.RateLimitPerMinute)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.False(t, cfg.DB.Migrate)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "ride-events", cfg.Kafka.Topic)
	assert.Equal(t, 15*time.Second, cfg.Matching.Interval())
	assert.Equal(t, 60*time.Second, cfg.Matching.LockTTL())
	assert.Equal(t, 0.4, cfg.Matching.DetourTolerance)
	assert.Equal(t, 7, cfg.Matching.H3Resolution)
	assert.Equal(t, "matching_engine", cfg.Matching.LockName)
	assert.Equal(t, 30*time.Second, cfg.Matching.StopTimeout)
	assert.Equal(t, 50.0, cfg.Pricing.BaseFare)
	assert.Equal(t, 15.0, cfg.Pricing.RatePerKm)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIDEPOOL_STORAGE", "MEMORY")
	t.Setenv("RIDEPOOL_MIGRATE", "true")
	t.Setenv("RIDEPOOL_REDIS_DB", "2")
	t.Setenv("RIDEPOOL_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RIDEPOOL_MATCH_INTERVAL_SECONDS", "5")
	t.Setenv("RIDEPOOL_LOCK_TTL_SECONDS", "20")
	t.Setenv("RIDEPOOL_DETOUR_TOLERANCE", "0.25")
	t.Setenv("RIDEPOOL_STOP_TIMEOUT", "2s")
	t.Setenv("RIDEPOOL_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.True(t, cfg.DB.Migrate)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Matching.Interval())
	assert.Equal(t, 20*time.Second, cfg.Matching.LockTTL())
	assert.Equal(t, 0.25, cfg.Matching.DetourTolerance)
	assert.Equal(t, 2*time.Second, cfg.Matching.StopTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad int", map[string]string{"RIDEPOOL_H3_RESOLUTION": "seven"}, "invalid RIDEPOOL_H3_RESOLUTION"},
		{"bad float", map[string]string{"RIDEPOOL_BASE_FARE": "x"}, "invalid RIDEPOOL_BASE_FARE"},
		{"bad duration", map[string]string{"RIDEPOOL_STOP_TIMEOUT": "soon"}, "invalid RIDEPOOL_STOP_TIMEOUT"},
		{"ttl not above interval", map[string]string{"RIDEPOOL_LOCK_TTL_SECONDS": "15"}, "must exceed"},
		{"resolution range", map[string]string{"RIDEPOOL_H3_RESOLUTION": "16"}, "between 0 and 15"},
		{"negative tolerance", map[string]string{"RIDEPOOL_DETOUR_TOLERANCE": "-0.1"}, "RIDEPOOL_DETOUR_TOLERANCE"},
		{"negative fare", map[string]string{"RIDEPOOL_RATE_PER_KM": "-1"}, "RIDEPOOL_RATE_PER_KM"},
		{"unknown storage", map[string]string{"RIDEPOOL_STORAGE": "sqlite"}, "RIDEPOOL_STORAGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIDEPOOL_REDIS_DB", "x")
	t.Setenv("RIDEPOOL_H3_RESOLUTION", "99")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "RIDEPOOL_REDIS_DB")
	assert.ErrorContains(t, err, "between 0 and 15")
}
