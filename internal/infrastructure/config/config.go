package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDoorbellName is the display name used when a doorbell entry omits one.
const DefaultDoorbellName = "MQTT Doorbell Event"

// Config is the root configuration structure for the doorbell bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	Doorbells []DoorbellConfig `yaml:"doorbells"`
	Events    EventsConfig     `yaml:"events"`
	Database  DatabaseConfig   `yaml:"database"`
	InfluxDB  InfluxDBConfig   `yaml:"influxdb"`
	Redis     RedisConfig      `yaml:"redis"`
	API       APIConfig        `yaml:"api"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServiceConfig identifies this bridge instance.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every topic this bridge publishes to
	// (status, republished events). It is never applied to doorbell topics.
	TopicPrefix string `yaml:"topic_prefix"`

	// SubscribeTimeout bounds each doorbell subscription attempt (seconds).
	SubscribeTimeout int `yaml:"subscribe_timeout"`
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

// DoorbellConfig is one topic/name pair from the doorbells list.
//
// Name is a pointer so an absent name (defaulted) can be told apart from an
// explicitly empty one.
type DoorbellConfig struct {
	Topic string  `yaml:"topic"`
	Name  *string `yaml:"name,omitempty"`
}

// DisplayName returns the configured name, or DefaultDoorbellName if absent.
func (d DoorbellConfig) DisplayName() string {
	if d.Name == nil {
		return DefaultDoorbellName
	}
	return *d.Name
}

// EventsConfig selects which sinks receive ring events.
type EventsConfig struct {
	// Log writes every ring event to the service log.
	Log bool `yaml:"log"`

	// MQTT republishes ring events as JSON under the topic prefix.
	MQTT bool `yaml:"mqtt"`

	// Journal appends ring events to the SQLite database.
	Journal bool `yaml:"journal"`

	// Metrics counts ring events in the Prometheus registry.
	Metrics bool `yaml:"metrics"`
}

// DatabaseConfig contains SQLite database settings for the ring journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// RedisConfig contains Redis connection settings for the pub/sub sink.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Channel is the pub/sub channel ring events are published on.
	Channel string `yaml:"channel"`

	// LastRingTTL is how long the last-ring key for each doorbell lives (seconds).
	LastRingTTL int `yaml:"last_ring_ttl"`
}

// APIConfig contains the status HTTP server settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORBELL_SECTION_KEY
// For example: DOORBELL_MQTT_HOST, DOORBELL_DATABASE_PATH
//
// Doorbell topics are not validated here; the bridge validates each entry
// against the MQTT topic-filter grammar so one bad entry does not reject the rest.
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
		Service: ServiceConfig{
			Name: "doorbell-bridge",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "doorbell-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:      "doorbell",
			SubscribeTimeout: 5,
		},
		Events: EventsConfig{
			Log:     true,
			Metrics: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/doorbell.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Channel:     "doorbell:events",
			LastRingTTL: 86400,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
// Environment variables follow the pattern: DOORBELL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("DOORBELL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORBELL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORBELL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("DOORBELL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("DOORBELL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Redis
	if v := os.Getenv("DOORBELL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	} else if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}
	if c.MQTT.SubscribeTimeout < 1 {
		errs = append(errs, "mqtt.subscribe_timeout must be at least 1 second")
	}

	// The doorbells key is required, although an empty list is accepted.
	if c.Doorbells == nil {
		errs = append(errs, "doorbells is required")
	}

	// Sinks that need a backing store
	if c.Events.Journal && c.Database.Path == "" {
		errs = append(errs, "database.path is required when events.journal is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			errs = append(errs, "redis.channel is required when redis is enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 0 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetSubscribeTimeout returns the per-doorbell subscribe timeout as a Duration.
func (c *Config) GetSubscribeTimeout() time.Duration {
	return time.Duration(c.MQTT.SubscribeTimeout) * time.Second
}

// GetLastRingTTL returns the Redis last-ring key TTL as a Duration.
func (c *Config) GetLastRingTTL() time.Duration {
	return time.Duration(c.Redis.LastRingTTL) * time.Second
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
