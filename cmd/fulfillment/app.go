package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/goclaw/fulfillment/config"
	"github.com/goclaw/fulfillment/pkg/api"
	"github.com/goclaw/fulfillment/pkg/api/events"
	"github.com/goclaw/fulfillment/pkg/api/handlers"
	"github.com/goclaw/fulfillment/pkg/eventbus"
	"github.com/goclaw/fulfillment/pkg/fulfillment"
	"github.com/goclaw/fulfillment/pkg/gateway/sim"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/metrics"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/saga"
	"github.com/goclaw/fulfillment/pkg/signal"
	"github.com/goclaw/fulfillment/pkg/storage"
	"github.com/goclaw/fulfillment/pkg/storage/badger"
	"github.com/goclaw/fulfillment/pkg/storage/memory"
	redisstore "github.com/goclaw/fulfillment/pkg/storage/redis"
)

// sagaEventTypes are the event types published on the event bus.
var sagaEventTypes = []string{
	string(saga.EventSagaStarted),
	string(saga.EventStepStarted),
	string(saga.EventStepSucceeded),
	string(saga.EventStepFailed),
	string(saga.EventCompensationStarted),
	string(saga.EventCompensationSucceeded),
	string(saga.EventCompensationFailed),
	string(saga.EventSagaFinished),
}

// app holds the wired components of one fulfillment process.
type app struct {
	cfg *config.Config
	log logger.Logger

	redis       redis.UniversalClient
	store       storage.Storage
	metrics     *metrics.Manager
	registry    *payment.Registry
	signals     signal.Bus
	broadcaster *events.Broadcaster
	eventBus    *eventbus.MemoryBus
	sagaEvents  *eventbus.SagaPublisher
	bridge      *eventbus.Bridge
	orders      *fulfillment.Orchestrator
	health      *handlers.HealthHandler
	websocket   *handlers.WebSocketHandler
	server      *api.HTTPServer

	closers []func() error
}

// newApp wires every component from cfg. On error the components built so
// far are closed.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.metrics = newMetricsManager(cfg.Metrics)
	signal.SetMetricsRecorder(a.metrics)

	if needsRedis(cfg) {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Address,
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			PoolSize:    cfg.Storage.Redis.PoolSize,
			DialTimeout: cfg.Storage.Redis.DialTimeout,
		})
		a.closers = append(a.closers, a.redis.Close)
	}

	if a.store, err = a.openStorage(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	if a.registry, err = newRegistry(cfg.Providers, a.store); err != nil {
		return nil, err
	}

	a.signals = a.newSignalBus()
	a.closers = append(a.closers, a.signals.Close)

	a.broadcaster = events.NewBroadcaster()
	a.closers = append(a.closers, func() error { a.broadcaster.Close(); return nil })

	observer, err := a.wireEvents()
	if err != nil {
		return nil, err
	}

	sagas := saga.NewSagaOrchestrator(
		saga.WithMaxConcurrentSagas(cfg.Saga.MaxConcurrent),
		saga.WithMetricsRecorder(a.metrics),
		saga.WithObserver(observer),
		saga.WithObserver(logger.NewSagaObserver(log)),
	)

	shipping, err := newShipping(cfg.Shipping)
	if err != nil {
		return nil, err
	}

	a.orders, err = fulfillment.New(a.registry,
		sim.NewInventory(cfg.Inventory.Stock, cfg.Inventory.DefaultStock),
		shipping,
		sim.NewNotifier(sim.NotifierConfig{
			RatePerSecond: cfg.Notification.RatePerSecond,
			Burst:         cfg.Notification.Burst,
		}),
		fulfillment.WithConfig(fulfillment.Config{
			DefaultStepTimeout: cfg.Saga.DefaultStepTimeout,
			SagaTimeout:        cfg.Saga.Timeout,
			Retry: saga.CompensationRetryConfig{
				MaxRetries:     cfg.Saga.CompensationRetries,
				InitialBackoff: cfg.Saga.InitialBackoff,
				MaxBackoff:     cfg.Saga.MaxBackoff,
				BackoffFactor:  cfg.Saga.BackoffFactor,
			},
			RequestedBy: cfg.App.Name,
		}),
		fulfillment.WithSagaOrchestrator(sagas),
		fulfillment.WithSignalBus(a.signals),
		fulfillment.WithReceiptStore(a.store),
		fulfillment.WithMetrics(a.metrics),
		fulfillment.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	a.health = handlers.NewHealthHandler(a.healthOptions()...)
	a.websocket = handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	a.closers = append(a.closers, func() error { a.websocket.Close(); return nil })

	a.server = api.NewHTTPServer(cfg, log, &api.Handlers{
		Orders:         handlers.NewOrderHandler(a.orders, a.store, log),
		Providers:      handlers.NewProviderHandler(a.registry, log, a.metrics),
		Health:         a.health,
		WebSocket:      a.websocket,
		Metrics:        a.metrics,
		MetricsHandler: a.metrics.Handler(),
	})

	return a, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Type == "redis" || cfg.Signal.Mode == "redis" ||
		(cfg.Events.Enabled && cfg.Events.Transport == "redis")
}

func newMetricsManager(cfg config.MetricsConfig) *metrics.Manager {
	if !cfg.Enabled {
		return metrics.NoOpManager()
	}
	mc := metrics.DefaultConfig()
	mc.Port = cfg.Port
	mc.Path = cfg.Path
	return metrics.NewManager(mc)
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.Storage.Type {
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:             a.cfg.Storage.Badger.Path,
			SyncWrites:       a.cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize: a.cfg.Storage.Badger.ValueLogFileSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage: %w", err)
		}
		a.log.Info("initialized badger storage", "path", a.cfg.Storage.Badger.Path)
		return store, nil
	case "redis":
		store, err := redisstore.NewRedisStorage(ctx, a.redis, a.cfg.Storage.Redis.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		a.log.Info("initialized redis storage", "address", a.cfg.Storage.Redis.Address)
		return store, nil
	default:
		a.log.Info("initialized memory storage")
		return memory.NewMemoryStorage(), nil
	}
}

func newRegistry(cfg config.ProvidersConfig, ledger storage.Storage) (*payment.Registry, error) {
	small, err := decimal.NewFromString(cfg.SmallBelow)
	if err != nil {
		return nil, fmt.Errorf("providers.small_below: %w", err)
	}
	medium, err := decimal.NewFromString(cfg.MediumBelow)
	if err != nil {
		return nil, fmt.Errorf("providers.medium_below: %w", err)
	}

	opts := []payment.RegistryOption{
		payment.WithFallback(cfg.Fallback),
		payment.WithSizeThresholds(payment.SizeThresholds{Small: small, Medium: medium}),
	}
	if len(cfg.Rules) > 0 {
		rules := make([]payment.Rule, 0, len(cfg.Rules))
		for _, r := range cfg.Rules {
			rules = append(rules, payment.Rule{
				Region:          strings.ToUpper(r.Region),
				TransactionSize: payment.Size(r.TransactionSize),
				Provider:        r.Provider,
			})
		}
		opts = append(opts, payment.WithRules(rules))
	}
	registry := payment.NewRegistry(opts...)

	base := payment.BackendConfig{Ledger: ledger}
	if cfg.Latency > 0 {
		base.Latency = payment.FixedLatency(cfg.Latency)
	}
	perProvider := make(map[string]payment.BackendConfig, len(cfg.WebhookSecrets))
	for provider, secret := range cfg.WebhookSecrets {
		perProvider[strings.ToLower(provider)] = payment.BackendConfig{WebhookSecret: secret}
	}
	if err := payment.RegisterBuiltins(registry, base, perProvider); err != nil {
		return nil, fmt.Errorf("register payment providers: %w", err)
	}
	if !registry.Has(cfg.Fallback) {
		return nil, fmt.Errorf("fallback provider %q is not registered", cfg.Fallback)
	}
	return registry, nil
}

func newShipping(cfg config.ShippingConfig) (*sim.Shipping, error) {
	base, err := decimal.NewFromString(strings.TrimSpace(cfg.BaseRate))
	if err != nil {
		return nil, fmt.Errorf("shipping.base_rate: %w", err)
	}
	surcharges := make(map[string]decimal.Decimal, len(cfg.Surcharges))
	for country, raw := range cfg.Surcharges {
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("shipping.surcharges.%s: %w", country, err)
		}
		surcharges[strings.ToUpper(country)] = amount
	}
	return sim.NewShipping(sim.ShippingConfig{
		BaseRate:    base,
		Strategy:    sim.StrategyByName(cfg.Strategy),
		Surcharges:  surcharges,
		Unavailable: cfg.Unavailable,
		PickupDelay: cfg.PickupDelay,
	}), nil
}

func (a *app) newSignalBus() signal.Bus {
	if a.cfg.Signal.Mode == "redis" {
		return signal.NewRedisBus(a.redis, a.cfg.Signal.ChannelPrefix, a.cfg.Signal.BufferSize)
	}
	return signal.NewLocalBus(a.cfg.Signal.BufferSize)
}

// wireEvents returns the saga observer. With events enabled saga events go
// out on the event bus and the websocket stream is fed from the bus, so it
// also carries events of other nodes. Otherwise the stream observes the
// local saga engine directly.
func (a *app) wireEvents() (saga.Observer, error) {
	if !a.cfg.Events.Enabled {
		return a.broadcaster, nil
	}

	var (
		transport eventbus.Transport
		source    eventbus.Source
	)
	switch a.cfg.Events.Transport {
	case "redis":
		rt, err := eventbus.NewRedisTransport(a.redis, a.cfg.Events.ChannelPrefix)
		if err != nil {
			return nil, err
		}
		transport, source = rt, rt
	default:
		a.eventBus = eventbus.NewMemoryBus()
		transport, source = a.eventBus, a.eventBus
	}

	retry := eventbus.DefaultRetryConfig()
	retry.MaxRetries = a.cfg.Events.MaxRetries
	publisher, err := eventbus.NewPublisher(a.cfg.Events.NodeID, transport, retry, a.metrics)
	if err != nil {
		return nil, err
	}
	a.sagaEvents, err = eventbus.NewSagaPublisher(publisher, a.cfg.Events.QueueSize, a.cfg.Events.PublishTimeout)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.sagaEvents.Close)

	router := eventbus.NewSchemaRouter()
	if err := eventbus.RegisterOrderSchemas(router, sagaEventTypes...); err != nil {
		return nil, err
	}
	a.bridge, err = eventbus.NewBridge(a.broadcaster.OnEnvelope, router)
	if err != nil {
		return nil, err
	}
	if err := a.bridge.Start(source); err != nil {
		return nil, fmt.Errorf("start event bridge: %w", err)
	}
	a.closers = append(a.closers, a.bridge.Stop)

	a.log.Info("saga events enabled",
		"transport", a.cfg.Events.Transport,
		"node_id", a.cfg.Events.NodeID,
	)
	return a.sagaEvents, nil
}

func (a *app) healthOptions() []handlers.HealthOption {
	opts := []handlers.HealthOption{
		handlers.WithCheck("storage", func(ctx context.Context) error {
			_, err := a.store.GetReceipt(ctx, "health-probe")
			var nf *storage.NotFoundError
			if err == nil || errors.As(err, &nf) {
				return nil
			}
			return err
		}),
		handlers.WithStatus(a.status),
	}
	if a.redis != nil {
		opts = append(opts, handlers.WithCheck("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}))
	}
	return opts
}

func (a *app) status() map[string]any {
	components := map[string]any{
		"storage":             a.cfg.Storage.Type,
		"signal_mode":         a.cfg.Signal.Mode,
		"providers":           a.registry.ListProviders(),
		"fallback_provider":   a.registry.Fallback(),
		"events_enabled":      a.cfg.Events.Enabled,
		"websocket_clients":   a.websocket.Connections(),
		"stream_dropped":      a.broadcaster.Dropped(),
		"metrics_on_api_port": a.cfg.Metrics.Enabled && a.cfg.Metrics.Port == 0,
	}
	if a.sagaEvents != nil {
		components["events_dropped"] = a.sagaEvents.Dropped()
	}
	return components
}

// close releases components in reverse construction order.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
