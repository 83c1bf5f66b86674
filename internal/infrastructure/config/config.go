package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-ilp/internal/ilp"
)

// Config is the root configuration structure for the ILP relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	ILP     ILPConfig     `yaml:"ilp"`
	Relay   RelayConfig   `yaml:"relay"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Spool   SpoolConfig   `yaml:"spool"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// ILPConfig contains the line-protocol server connection settings.
type ILPConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`      // Number or service name
	Interface      string `yaml:"interface"` // Local bind address, "" for any
	InitBufferSize int    `yaml:"init_buffer_size"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	WriteTimeout   int    `yaml:"write_timeout"`   // seconds, 0 disables
}

// RelayConfig controls how device state messages become rows.
type RelayConfig struct {
	Table             string `yaml:"table"`
	Topic             string `yaml:"topic"`
	BatchSize         int    `yaml:"batch_size"`
	FlushInterval     int    `yaml:"flush_interval"`     // seconds
	ReconnectInterval int    `yaml:"reconnect_interval"` // seconds
	ReplayLimit       int    `yaml:"replay_limit"`       // spooled batches replayed per tick
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

// SpoolConfig contains the SQLite store for batches that could not be sent.
type SpoolConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading process:
//  1. Start from defaultConfig()
//  2. Overlay values from the YAML file
//  3. Apply ILPRELAY_* environment variables
//  4. Validate the result
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or fails validation
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		ILP: ILPConfig{
			Host:           "localhost",
			Port:           ilp.DefaultPort,
			Interface:      ilp.InaddrAny,
			InitBufferSize: ilp.DefaultInitBufferSize,
			ConnectTimeout: 10,
			WriteTimeout:   30,
		},
		Relay: RelayConfig{
			Table:             "device_state",
			Topic:             "graylogic/state/+/+",
			BatchSize:         1000,
			FlushInterval:     1,
			ReconnectInterval: 5,
			ReplayLimit:       10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ilprelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Spool: SpoolConfig{
			Enabled:     true,
			Path:        "./data/ilprelay-spool.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9100,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ILPRELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// ILP server
	if v := os.Getenv("ILPRELAY_ILP_HOST"); v != "" {
		cfg.ILP.Host = v
	}
	if v := os.Getenv("ILPRELAY_ILP_PORT"); v != "" {
		cfg.ILP.Port = v
	}
	if v := os.Getenv("ILPRELAY_ILP_INTERFACE"); v != "" {
		cfg.ILP.Interface = v
	}

	// Relay
	if v := os.Getenv("ILPRELAY_RELAY_TABLE"); v != "" {
		cfg.Relay.Table = v
	}
	if v := os.Getenv("ILPRELAY_RELAY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relay.BatchSize = n
		}
	}

	// MQTT
	if v := os.Getenv("ILPRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ILPRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ILPRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Spool
	if v := os.Getenv("ILPRELAY_SPOOL_PATH"); v != "" {
		cfg.Spool.Path = v
	}

	// API
	if v := os.Getenv("ILPRELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Logging
	if v := os.Getenv("ILPRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// ILP validation
	if c.ILP.Host == "" {
		errs = append(errs, "ilp.host is required")
	}
	if c.ILP.Port == "" {
		errs = append(errs, "ilp.port is required")
	}
	if c.ILP.InitBufferSize < 0 {
		errs = append(errs, "ilp.init_buffer_size must not be negative")
	}
	if c.ILP.ConnectTimeout < 1 {
		errs = append(errs, "ilp.connect_timeout must be at least 1 second")
	}
	if c.ILP.WriteTimeout < 0 {
		errs = append(errs, "ilp.write_timeout must not be negative")
	}

	// Relay validation
	if err := ilp.ValidateIdentifier("table", c.Relay.Table); err != nil {
		errs = append(errs, fmt.Sprintf("relay.table: %v", err))
	}
	if c.Relay.Topic == "" {
		errs = append(errs, "relay.topic is required")
	}
	if c.Relay.BatchSize < 1 {
		errs = append(errs, "relay.batch_size must be at least 1")
	}
	if c.Relay.FlushInterval < 1 {
		errs = append(errs, "relay.flush_interval must be at least 1 second")
	}
	if c.Relay.ReconnectInterval < 1 {
		errs = append(errs, "relay.reconnect_interval must be at least 1 second")
	}
	if c.Relay.ReplayLimit < 1 {
		errs = append(errs, "relay.replay_limit must be at least 1")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Spool validation
	if c.Spool.Enabled && c.Spool.Path == "" {
		errs = append(errs, "spool.path is required when the spool is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetFlushInterval returns the relay flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Relay.FlushInterval) * time.Second
}

// GetReconnectInterval returns the ILP reconnect interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Relay.ReconnectInterval) * time.Second
}

// GetConnectTimeout returns the ILP connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.ILP.ConnectTimeout) * time.Second
}

// GetWriteTimeout returns the ILP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.ILP.WriteTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetAPIWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetAPIWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
