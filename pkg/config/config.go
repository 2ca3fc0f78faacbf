package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"EnerCast/pkg/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		Path          string        `yaml:"path"`
		SlowThreshold time.Duration `yaml:"slow_threshold"`
	} `yaml:"metrics"`
	// Backend selects storage: "memory" keeps everything in process,
	// "sql" uses ClickHouse for measurements and PostgreSQL for forecasts.
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Enabled           bool     `yaml:"enabled"`
		Brokers           []string `yaml:"brokers"`
		MeasurementsTopic string   `yaml:"measurements_topic"`
		EventsTopic       string   `yaml:"events_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		Table            string        `yaml:"table"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
		L1Size   int           `yaml:"l1_size"`
	} `yaml:"redis"`
	Telemetry struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Token          string        `yaml:"token"`
		Buildings      []string      `yaml:"buildings"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"telemetry"`
	Forecast struct {
		DefaultHorizon    string        `yaml:"default_horizon"`
		AccuracyThreshold float64       `yaml:"accuracy_threshold"`
		Freshness         time.Duration `yaml:"freshness"`
		SourceTimeout     time.Duration `yaml:"source_timeout"`
		Lookback          time.Duration `yaml:"lookback"`
		MinPoints         int           `yaml:"min_points"`
		ModelVersion      string        `yaml:"model_version"`
		FallbackBaselineW float64       `yaml:"fallback_baseline_w"`
		TrainingLockTTL   time.Duration `yaml:"training_lock_ttl"`
	} `yaml:"forecast"`
	Optimization struct {
		PeakRate            float64 `yaml:"peak_rate"`
		OffPeakRate         float64 `yaml:"off_peak_rate"`
		SuperOffPeakRate    float64 `yaml:"super_off_peak_rate"`
		DemandCharge        float64 `yaml:"demand_charge"`
		MinTemperatureC     float64 `yaml:"min_temperature_c"`
		MaxTemperatureC     float64 `yaml:"max_temperature_c"`
		MaxLoadShiftKWh     float64 `yaml:"max_load_shift_kwh"`
		MinSavingsThreshold float64 `yaml:"min_savings_threshold"`
		LoadShiftPeakKW     float64 `yaml:"load_shift_peak_kw"`
	} `yaml:"optimization"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"ratelimit"`
	// Buildings seeds the in-memory metadata store. The sql backend reads
	// buildings from PostgreSQL instead.
	Buildings []BuildingConfig `yaml:"buildings"`
}

type BuildingConfig struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Address    string  `yaml:"address"`
	Timezone   string  `yaml:"timezone"`
	CapacityKW float64 `yaml:"capacity_kw"`
}

// Load reads and parses a YAML configuration file and applies defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes and applies defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// LoadWithEnv loads config from YAML, overrides with environment variables
// and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, _ := strings.Cut(v, ":")
		c.Redis.Host = host
		c.Redis.Port = util.ParseIntDefault(port, c.Redis.Port)
	}
	if v := getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("TELEMETRY_TOKEN"); v != "" {
		c.Telemetry.Token = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "memory"
	}
	if c.Backend.BatchSize == 0 {
		c.Backend.BatchSize = 500
	}
	if c.Backend.BatchTimeout == 0 {
		c.Backend.BatchTimeout = time.Second
	}
	if c.Kafka.MeasurementsTopic == "" {
		c.Kafka.MeasurementsTopic = "enercast.measurements"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "enercast.forecast-events"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "enercast"
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = time.Hour
	}
	if c.Forecast.DefaultHorizon == "" {
		c.Forecast.DefaultHorizon = "24H"
	}
	if c.Forecast.AccuracyThreshold == 0 {
		c.Forecast.AccuracyThreshold = 0.85
	}
	if c.Forecast.Freshness == 0 {
		c.Forecast.Freshness = time.Hour
	}
	if c.Forecast.SourceTimeout == 0 {
		c.Forecast.SourceTimeout = 10 * time.Second
	}
	if c.Forecast.Lookback == 0 {
		c.Forecast.Lookback = 30 * 24 * time.Hour
	}
	if c.Forecast.MinPoints == 0 {
		c.Forecast.MinPoints = 168
	}
	if c.Forecast.ModelVersion == "" {
		c.Forecast.ModelVersion = "1.4.2"
	}
	if c.Forecast.FallbackBaselineW == 0 {
		c.Forecast.FallbackBaselineW = 50000
	}
	if c.Forecast.TrainingLockTTL == 0 {
		c.Forecast.TrainingLockTTL = 10 * time.Minute
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "memory":
	case "sql":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for backend 'sql'")
		}
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for backend 'sql'")
		}
	default:
		return fmt.Errorf("backend.type must be 'memory' or 'sql', got '%s'", c.Backend.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.WebSocketURL == "" {
			return fmt.Errorf("telemetry.websocket_url is required")
		}
		if len(c.Telemetry.Buildings) == 0 {
			return fmt.Errorf("telemetry.buildings cannot be empty")
		}
	}
	if c.Forecast.AccuracyThreshold <= 0 || c.Forecast.AccuracyThreshold > 1 {
		return fmt.Errorf("forecast.accuracy_threshold must be in (0, 1]")
	}
	if c.Optimization.MinTemperatureC != 0 && c.Optimization.MaxTemperatureC != 0 &&
		c.Optimization.MinTemperatureC >= c.Optimization.MaxTemperatureC {
		return fmt.Errorf("optimization.min_temperature_c must be below max_temperature_c")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive when enabled")
	}
	for i, b := range c.Buildings {
		if b.ID == "" {
			return fmt.Errorf("buildings[%d].id is required", i)
		}
	}
	return nil
}
