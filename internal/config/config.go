// Package config provides configuration loading and management for namedq.
// Configuration is read from a YAML file; unset values fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"namedq/internal/domain"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses the in-process bus and in-memory stores.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real backends (Kafka, Redis, PostgreSQL).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
	Routes   []RouteConfig  `yaml:"routes"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// QueueConfig holds settings applied to every named queue handle the daemon opens.
type QueueConfig struct {
	// PollInterval bounds how long a blocked operation waits before
	// checking that its queue still exists.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Permissions are the mode bits used when a queue is created, e.g. 0660.
	Permissions uint32 `yaml:"permissions"`
}

// NamedQueueConfig identifies a named queue and the limits used if it has to be created.
type NamedQueueConfig struct {
	Name           string `yaml:"name"`
	Capacity       int    `yaml:"capacity"`
	MaxMessageSize int    `yaml:"max_message_size"`
}

// RouteConfig describes one bridge between a named queue and a bus topic.
type RouteConfig struct {
	Name      string           `yaml:"name"`
	Direction domain.Direction `yaml:"direction"`
	Queue     NamedQueueConfig `yaml:"queue"`
	Topic     string           `yaml:"topic"`

	// Priority is used for inbound messages that carry no priority header.
	Priority uint `yaml:"priority"`

	// Recreate re-opens the queue when another process removes it.
	// A nil value means true.
	Recreate *bool `yaml:"recreate"`

	// PublishAttempts bounds outbound publish retries per message.
	PublishAttempts int `yaml:"publish_attempts"`

	// RetryBackoff is the pause between publish attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// ShouldRecreate reports whether the route re-opens a removed queue.
func (r *RouteConfig) ShouldRecreate() bool {
	return r.Recreate == nil || *r.Recreate
}

// KafkaConfig holds Kafka connection settings. Topics come from routes.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Validation errors returned by Validate.
var (
	ErrInvalidStorageMode = errors.New("invalid storage mode")
	ErrEmptyRouteName     = errors.New("route name is required")
	ErrDuplicateRoute     = errors.New("duplicate route name")
	ErrInvalidDirection   = errors.New("route direction must be outbound or inbound")
	ErrEmptyQueueName     = errors.New("route queue name is required")
	ErrEmptyTopic         = errors.New("route topic is required")
)

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the storage mode and every route.
func (c *Config) Validate() error {
	if !c.Storage.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStorageMode, c.Storage.Mode)
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		switch {
		case r.Name == "":
			return fmt.Errorf("routes[%d]: %w", i, ErrEmptyRouteName)
		case !r.Direction.IsValid():
			return fmt.Errorf("route %q: %w", r.Name, ErrInvalidDirection)
		case r.Queue.Name == "":
			return fmt.Errorf("route %q: %w", r.Name, ErrEmptyQueueName)
		case r.Topic == "":
			return fmt.Errorf("route %q: %w", r.Name, ErrEmptyTopic)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("route %q: %w", r.Name, ErrDuplicateRoute)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Queue defaults
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 100 * time.Millisecond
	}
	if cfg.Queue.Permissions == 0 {
		cfg.Queue.Permissions = 0o660
	}

	// Route defaults, sized like the original config and feedback queues
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.Queue.Capacity == 0 {
			r.Queue.Capacity = 10
		}
		if r.Queue.MaxMessageSize == 0 {
			r.Queue.MaxMessageSize = 8192
		}
		if r.Topic == "" && r.Name != "" {
			r.Topic = "namedq." + r.Name
		}
		if r.PublishAttempts == 0 {
			r.PublishAttempts = 3
		}
		if r.RetryBackoff == 0 {
			r.RetryBackoff = 500 * time.Millisecond
		}
		if r.PublishTimeout == 0 {
			r.PublishTimeout = 5 * time.Second
		}
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "namedq-relay"
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
