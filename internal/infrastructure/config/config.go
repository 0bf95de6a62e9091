package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for sfcd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Execution ExecutionConfig `yaml:"execution"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Gateway modes.
const (
	// GatewayModeMQTT reaches the automation server through a protocol
	// gateway listening on the MQTT broker.
	GatewayModeMQTT = "mqtt"

	// GatewayModeMemory uses the in-process simulated automation server.
	GatewayModeMemory = "memory"
)

// GatewayConfig selects how process variables are read and written.
type GatewayConfig struct {
	// Mode is "mqtt" or "memory".
	Mode string `yaml:"mode"`

	// TopicPrefix is the root of the gateway request/response topics.
	// Default: "sfc/gateway"
	TopicPrefix string `yaml:"topic_prefix"`

	// RequestTimeoutMS bounds a single gateway round trip.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// ExecutionConfig tunes the chart scheduler and node executor.
type ExecutionConfig struct {
	// HeartbeatMS is how often a running node republishes its elapsed time.
	HeartbeatMS int `yaml:"heartbeat_ms"`

	// IdleWaitMS is the pause when nothing is running and nothing can start.
	IdleWaitMS int `yaml:"idle_wait_ms"`

	// SettleMS is the pause after reconciling completed nodes.
	SettleMS int `yaml:"settle_ms"`

	// StepsPerSecond sets ramp resolution: steps = max(1, duration*StepsPerSecond).
	StepsPerSecond int `yaml:"steps_per_second"`
}

// MonitorConfig tunes the change-detection sampler.
type MonitorConfig struct {
	// PollIntervalMS is the sampling period.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// FallbackConcurrency bounds individual reads after a failed batch read.
	FallbackConcurrency int `yaml:"fallback_concurrency"`

	// ResolverCacheTTL is how long short-name lookups are cached (seconds).
	ResolverCacheTTL int `yaml:"resolver_cache_ttl"`

	// StopTimeout is how long a stopping monitor may finish its current
	// cycle before in-flight reads are aborted (seconds).
	StopTimeout int `yaml:"stop_timeout"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// A missing file is not an error: the compiled-in defaults are used.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be parsed or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator flag or env
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/sfcd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sfcd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Gateway: GatewayConfig{
			Mode:             GatewayModeMemory,
			TopicPrefix:      "sfc/gateway",
			RequestTimeoutMS: 2000,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     500,
			FlushInterval: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./data/logs/sfcd.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Execution: ExecutionConfig{
			HeartbeatMS:    50,
			IdleWaitMS:     50,
			SettleMS:       10,
			StepsPerSecond: 10,
		},
		Monitor: MonitorConfig{
			PollIntervalMS:      50,
			FallbackConcurrency: 8,
			ResolverCacheTTL:    300,
			StopTimeout:         10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SFC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SFC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SFC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SFC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SFC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SFC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Gateway
	if v := os.Getenv("SFC_GATEWAY_MODE"); v != "" {
		cfg.Gateway.Mode = v
	}

	// API
	if v := os.Getenv("SFC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SFC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SFC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SFC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Gateway.Mode {
	case GatewayModeMQTT, GatewayModeMemory:
	default:
		errs = append(errs, fmt.Sprintf("gateway.mode must be %q or %q", GatewayModeMQTT, GatewayModeMemory))
	}
	if c.Gateway.Mode == GatewayModeMQTT && c.Gateway.TopicPrefix == "" {
		errs = append(errs, "gateway.topic_prefix is required in mqtt mode")
	}
	if c.Gateway.RequestTimeoutMS <= 0 {
		errs = append(errs, "gateway.request_timeout_ms must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.Execution.HeartbeatMS <= 0 {
		errs = append(errs, "execution.heartbeat_ms must be positive")
	}
	if c.Execution.IdleWaitMS <= 0 {
		errs = append(errs, "execution.idle_wait_ms must be positive")
	}
	if c.Execution.SettleMS < 0 {
		errs = append(errs, "execution.settle_ms must not be negative")
	}
	if c.Execution.StepsPerSecond <= 0 {
		errs = append(errs, "execution.steps_per_second must be positive")
	}
	if c.Monitor.PollIntervalMS <= 0 {
		errs = append(errs, "monitor.poll_interval_ms must be positive")
	}
	if c.Monitor.FallbackConcurrency <= 0 {
		errs = append(errs, "monitor.fallback_concurrency must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// RequestTimeout returns the gateway round-trip timeout.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutMS) * time.Millisecond
}

// Heartbeat returns the node heartbeat interval.
func (e ExecutionConfig) Heartbeat() time.Duration {
	return time.Duration(e.HeartbeatMS) * time.Millisecond
}

// IdleWait returns the scheduler idle pause.
func (e ExecutionConfig) IdleWait() time.Duration {
	return time.Duration(e.IdleWaitMS) * time.Millisecond
}

// Settle returns the scheduler post-completion pause.
func (e ExecutionConfig) Settle() time.Duration {
	return time.Duration(e.SettleMS) * time.Millisecond
}

// PollInterval returns the monitor sampling period.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// StopGrace returns the monitor stop grace period.
func (m MonitorConfig) StopGrace() time.Duration {
	return time.Duration(m.StopTimeout) * time.Second
}

// ResolverTTL returns the short-name cache lifetime.
func (m MonitorConfig) ResolverTTL() time.Duration {
	return time.Duration(m.ResolverCacheTTL) * time.Second
}
