package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "enercast",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second,
		MaxExecTime: 30 * time.Second,
		AsyncInsert: true,
	})
	assert.Equal(t, "clickhouse://default:p%40ss@ch:9000/enercast?dial_timeout=5s&read_timeout=10s&max_execution_time=30&async_insert=1", dsn)
}

func TestBuildDSNHTTPDefaults(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", User: "u", UseHTTP: true, AsyncInsert: true, WaitForAsync: true})
	assert.Equal(t, "clickhouse+http://u:@ch:8123/?async_insert=1&wait_for_async_insert=1", dsn)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}

func TestZeroOptionsKeepDefaults(t *testing.T) {
	cfg := ClientConfig{Port: 9440, MaxOpenConns: 10, MaxIdleConns: 5, DialTimeout: 5 * time.Second, ReadTimeout: 10 * time.Second}
	for _, opt := range []ClientOption{
		WithPort(0),
		WithMaxConnections(0, 2),
		WithTimeouts(0, 3*time.Second, 0),
		WithMaxExecutionTime(0),
	} {
		opt(&cfg)
	}
	assert.Equal(t, 9440, cfg.Port)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Zero(t, cfg.MaxExecTime)
}
