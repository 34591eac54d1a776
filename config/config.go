// Package config provides configuration management for the fulfillment service.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// App contains application-level settings.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log contains logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Saga contains saga engine settings.
	Saga SagaConfig `mapstructure:"saga" validate:"required"`

	// Providers contains payment provider selection and backend settings.
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`

	// Inventory contains the simulated stock table.
	Inventory InventoryConfig `mapstructure:"inventory"`

	// Shipping contains the simulated carrier settings.
	Shipping ShippingConfig `mapstructure:"shipping" validate:"required"`

	// Notification contains notification channel settings.
	Notification NotificationConfig `mapstructure:"notification"`

	// Storage contains ledger and receipt persistence settings.
	Storage StorageConfig `mapstructure:"storage" validate:"required"`

	// Signal contains the interrupt signal bus settings.
	Signal SignalConfig `mapstructure:"signal" validate:"required"`

	// Events contains saga event publishing settings.
	Events EventsConfig `mapstructure:"events"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the server bind address.
	Host string `mapstructure:"host" validate:"required"`

	// Port is the HTTP server port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP contains HTTP server specific settings.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS contains CORS settings for the HTTP API.
	CORS CORSConfig `mapstructure:"cors"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// HTTPConfig holds HTTP server specific settings.
type HTTPConfig struct {
	// Enabled turns the HTTP API on.
	Enabled bool `mapstructure:"enabled"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds the handling of a single request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxBodyBytes limits request body size.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled turns the CORS middleware on.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of origins allowed to make requests.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// MaxAge is the preflight cache duration.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the log output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the log destination (stdout, stderr, or a file path).
	Output string `mapstructure:"output" validate:"required"`
}

// SagaConfig holds saga engine settings.
type SagaConfig struct {
	// MaxConcurrent caps simultaneously running sagas.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"min=1"`

	// DefaultStepTimeout applies to steps without their own timeout.
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" validate:"gt=0"`

	// Timeout bounds a whole saga. Zero means no overall limit.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// CompensationRetries is how many times a failed compensation is retried.
	CompensationRetries int `mapstructure:"compensation_retries" validate:"min=0,max=10"`

	// InitialBackoff is the delay before the first compensation retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"min=0"`

	// MaxBackoff caps the compensation retry delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff" validate:"min=0"`

	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64 `mapstructure:"backoff_factor" validate:"gte=1"`
}

// ProvidersConfig holds payment provider settings.
type ProvidersConfig struct {
	// Fallback is chosen when no selection rule matches.
	Fallback string `mapstructure:"fallback" validate:"required"`

	// Rules are evaluated in order; the first match wins. Empty keeps the
	// built-in rules.
	Rules []ProviderRule `mapstructure:"rules" validate:"dive"`

	// SmallBelow is the exclusive upper bound of a small transaction.
	SmallBelow string `mapstructure:"small_below" validate:"required,decimal"`

	// MediumBelow is the exclusive upper bound of a medium transaction.
	MediumBelow string `mapstructure:"medium_below" validate:"required,decimal"`

	// Latency is the simulated round trip of each provider call.
	Latency time.Duration `mapstructure:"latency" validate:"min=0"`

	// WebhookSecrets maps provider ids to webhook HMAC secrets.
	WebhookSecrets map[string]string `mapstructure:"webhook_secrets"`
}

// ProviderRule is one provider selection rule.
type ProviderRule struct {
	// Region matches the order region (a country code or EU). Empty matches any.
	Region string `mapstructure:"region"`

	// TransactionSize matches small, medium or large. Empty matches any.
	TransactionSize string `mapstructure:"transaction_size" validate:"omitempty,oneof=small medium large"`

	// Provider is selected when the rule matches.
	Provider string `mapstructure:"provider" validate:"required"`
}

// InventoryConfig holds the simulated stock table.
type InventoryConfig struct {
	// DefaultStock is the level of any product missing from Stock.
	DefaultStock int `mapstructure:"default_stock" validate:"min=0"`

	// Stock maps product ids to starting levels.
	Stock map[string]int `mapstructure:"stock"`
}

// ShippingConfig holds the simulated carrier settings.
type ShippingConfig struct {
	// BaseRate is the flat standard rate before strategy and surcharges.
	BaseRate string `mapstructure:"base_rate" validate:"required,decimal"`

	// Strategy is the rate strategy (standard, express, overnight).
	Strategy string `mapstructure:"strategy" validate:"oneof=standard express overnight"`

	// Surcharges adds a fixed amount per destination country.
	Surcharges map[string]string `mapstructure:"surcharges" validate:"dive,decimal"`

	// Unavailable lists countries the carrier does not serve.
	Unavailable []string `mapstructure:"unavailable"`

	// PickupDelay is how far after shipment creation a pickup is scheduled.
	PickupDelay time.Duration `mapstructure:"pickup_delay" validate:"gt=0"`
}

// NotificationConfig holds notification channel settings.
type NotificationConfig struct {
	// RatePerSecond limits deliveries per recipient. Zero means unlimited.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"min=0"`

	// Burst is the per-recipient burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage backend (memory, badger, redis).
	Type string `mapstructure:"type" validate:"oneof=memory badger redis"`

	// Badger contains Badger-specific settings.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis contains Redis connection settings. The Redis signal bus and
	// event transport share this connection.
	Redis RedisConfig `mapstructure:"redis"`
}

// BadgerConfig holds Badger storage settings.
type BadgerConfig struct {
	// Path is the data directory.
	Path string `mapstructure:"path"`

	// SyncWrites syncs every write to disk.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum value log file size in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0,max=15"`

	// KeyPrefix namespaces stored keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// PoolSize is the connection pool size.
	PoolSize int `mapstructure:"pool_size" validate:"min=0"`

	// DialTimeout bounds establishing a connection.
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"min=0"`
}

// SignalConfig holds interrupt signal bus settings.
type SignalConfig struct {
	// Mode is the bus implementation (local, redis).
	Mode string `mapstructure:"mode" validate:"oneof=local redis"`

	// BufferSize is the per-subscriber channel buffer.
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`

	// ChannelPrefix namespaces Redis pub/sub channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// EventsConfig holds saga event publishing settings.
type EventsConfig struct {
	// Enabled publishes saga events as envelopes.
	Enabled bool `mapstructure:"enabled"`

	// Transport is the event transport (memory, redis).
	Transport string `mapstructure:"transport" validate:"oneof=memory redis"`

	// NodeID identifies this process in published envelopes.
	NodeID string `mapstructure:"node_id"`

	// ChannelPrefix namespaces Redis pub/sub channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`

	// QueueSize bounds the asynchronous publish queue.
	QueueSize int `mapstructure:"queue_size" validate:"min=1"`

	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"gt=0"`

	// MaxRetries is the publish retry limit.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server port. Zero serves metrics on the API port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path" validate:"required,startswith=/"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// Sampler is the sampling strategy (always_on, always_off, parentbased_traceidratio).
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := ValidateWithDetails(c); err != nil {
		return err
	}
	return c.validateCrossField()
}

// validateCrossField checks constraints spanning several sections.
func (c *Config) validateCrossField() error {
	var errs ValidationErrors

	if c.Storage.Type == "badger" && c.Storage.Badger.Path == "" {
		errs = append(errs, ConfigError{
			Field:   "Config.Storage.Badger.Path",
			Message: "is required when storage type is badger",
			Value:   c.Storage.Badger.Path,
		})
	}

	needsRedis := c.Storage.Type == "redis" || c.Signal.Mode == "redis" ||
		(c.Events.Enabled && c.Events.Transport == "redis")
	if needsRedis && c.Storage.Redis.Address == "" {
		errs = append(errs, ConfigError{
			Field:   "Config.Storage.Redis.Address",
			Message: "is required when a redis backend is selected",
			Value:   c.Storage.Redis.Address,
		})
	}

	if c.Tracing.Enabled {
		if c.Tracing.Exporter == "" {
			errs = append(errs, ConfigError{
				Field:   "Config.Tracing.Exporter",
				Message: "is required when tracing is enabled",
				Value:   c.Tracing.Exporter,
			})
		}
		if c.Tracing.Endpoint == "" {
			errs = append(errs, ConfigError{
				Field:   "Config.Tracing.Endpoint",
				Message: "is required when tracing is enabled",
				Value:   c.Tracing.Endpoint,
			})
		}
	}

	if c.Saga.MaxBackoff > 0 && c.Saga.InitialBackoff > c.Saga.MaxBackoff {
		errs = append(errs, ConfigError{
			Field:   "Config.Saga.InitialBackoff",
			Message: fmt.Sprintf("must not exceed max_backoff (%s)", c.Saga.MaxBackoff),
			Value:   c.Saga.InitialBackoff,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// String returns a string representation of the config (safe for logging).
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  App: {Name: %s, Version: %s, Environment: %s}\n",
		c.App.Name, c.App.Version, c.App.Environment))
	sb.WriteString(fmt.Sprintf("  Server: {Host: %s, Port: %d}\n",
		c.Server.Host, c.Server.Port))
	sb.WriteString(fmt.Sprintf("  Log: {Level: %s, Format: %s}\n",
		c.Log.Level, c.Log.Format))
	sb.WriteString(fmt.Sprintf("  Saga: {MaxConcurrent: %d, DefaultStepTimeout: %s}\n",
		c.Saga.MaxConcurrent, c.Saga.DefaultStepTimeout))
	sb.WriteString(fmt.Sprintf("  Providers: {Fallback: %s, Rules: %d}\n",
		c.Providers.Fallback, len(c.Providers.Rules)))
	sb.WriteString(fmt.Sprintf("  Storage: {Type: %s}\n", c.Storage.Type))
	sb.WriteString(fmt.Sprintf("  Signal: {Mode: %s}\n", c.Signal.Mode))
	sb.WriteString(fmt.Sprintf("  Events: {Enabled: %v, Transport: %s}\n",
		c.Events.Enabled, c.Events.Transport))
	sb.WriteString(fmt.Sprintf("  Metrics: {Enabled: %v, Path: %s}\n",
		c.Metrics.Enabled, c.Metrics.Path))
	sb.WriteString(fmt.Sprintf("  Tracing: {Enabled: %v, Exporter: %s}\n",
		c.Tracing.Enabled, c.Tracing.Exporter))
	sb.WriteString("}")
	return sb.String()
}
