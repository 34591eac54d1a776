package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "fulfillment",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				Enabled:        true,
				ReadTimeout:    30 * time.Second,
				WriteTimeout:   30 * time.Second,
				IdleTimeout:    120 * time.Second,
				RequestTimeout: 60 * time.Second,
				MaxBodyBytes:   1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID", "X-Webhook-Signature"},
				MaxAge:         12 * time.Hour,
			},
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Saga: SagaConfig{
			MaxConcurrent:       100,
			DefaultStepTimeout:  10 * time.Second,
			Timeout:             0,
			CompensationRetries: 3,
			InitialBackoff:      100 * time.Millisecond,
			MaxBackoff:          5 * time.Second,
			BackoffFactor:       2.0,
		},
		Providers: ProvidersConfig{
			Fallback:    "paypal",
			SmallBelow:  "100",
			MediumBelow: "1000",
			Latency:     0,
		},
		Inventory: InventoryConfig{
			DefaultStock: 100,
		},
		Shipping: ShippingConfig{
			BaseRate:    "15.99",
			Strategy:    "standard",
			PickupDelay: 24 * time.Hour,
		},
		Notification: NotificationConfig{
			RatePerSecond: 0,
			Burst:         1,
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:             "./data/badger",
				SyncWrites:       true,
				ValueLogFileSize: 1 << 28, // 256MB
			},
			Redis: RedisConfig{
				Address:     "",
				DB:          0,
				KeyPrefix:   "fulfillment:",
				PoolSize:    10,
				DialTimeout: 5 * time.Second,
			},
		},
		Signal: SignalConfig{
			Mode:          "local",
			BufferSize:    16,
			ChannelPrefix: "fulfillment:signal:",
		},
		Events: EventsConfig{
			Enabled:        false,
			Transport:      "memory",
			NodeID:         "fulfillment-1",
			ChannelPrefix:  "fulfillment:events:",
			QueueSize:      256,
			PublishTimeout: 5 * time.Second,
			MaxRetries:     3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    0,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
	}
}
