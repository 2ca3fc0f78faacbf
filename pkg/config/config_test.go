package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Backend.Type)
	assert.Equal(t, "24H", c.Forecast.DefaultHorizon)
	assert.Equal(t, 0.85, c.Forecast.AccuracyThreshold)
	assert.Equal(t, time.Hour, c.Forecast.Freshness)
	assert.Equal(t, 168, c.Forecast.MinPoints)
	assert.Equal(t, 50000.0, c.Forecast.FallbackBaselineW)
	assert.NoError(t, c.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":         "sql",
		"KAFKA_BROKERS":   "k1:9092,k2:9092",
		"CLICKHOUSE_HOST": "ch",
		"POSTGRES_DSN":    "postgres://u:p@db/enercast",
		"REDIS_ADDR":      "cache:6380",
		"SERVER_PORT":     "9091",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "sql", c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, 9091, c.Server.Port)
	assert.NoError(t, c.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing environment": "backend:\n  type: memory\n",
		"unknown backend":     "environment: test\nbackend:\n  type: mongo\n",
		"sql without hosts":   "environment: test\nbackend:\n  type: sql\n",
		"kafka no brokers":    "environment: test\nkafka:\n  enabled: true\n",
		"bad threshold":       "environment: test\nforecast:\n  accuracy_threshold: 1.5\n",
		"telemetry no url":    "environment: test\ntelemetry:\n  enabled: true\n",
		"building without id": "environment: test\nbuildings:\n  - name: HQ\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadWithEnvReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\nserver:\n  port: 9090\n"), 0o600))

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "dev", c.Environment)

	_, err = LoadWithEnv(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
