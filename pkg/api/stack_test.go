package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goclaw/fulfillment/config"
	"github.com/goclaw/fulfillment/pkg/api/events"
	"github.com/goclaw/fulfillment/pkg/api/handlers"
	"github.com/goclaw/fulfillment/pkg/fulfillment"
	"github.com/goclaw/fulfillment/pkg/gateway/sim"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/metrics"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/saga"
	"github.com/goclaw/fulfillment/pkg/signal"
	"github.com/goclaw/fulfillment/pkg/storage/memory"
)

const testWebhookSecret = "whsec_test"

// testStack is the API wired to a real orchestrator over simulated gateways.
type testStack struct {
	cfg         *config.Config
	server      *httptest.Server
	store       *memory.MemoryStorage
	inventory   *sim.Inventory
	metrics     *metrics.Manager
	health      *handlers.HealthHandler
	broadcaster *events.Broadcaster
	websocket   *handlers.WebSocketHandler
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stderr"})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTP.RequestTimeout = 5 * time.Second
	cfg.Server.HTTP.MaxBodyBytes = 4096
	return cfg
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	cfg := testConfig()
	log := testLogger()

	store := memory.NewMemoryStorage()
	registry := payment.NewRegistry(payment.WithFallback(payment.ProviderPayPal))
	err := payment.RegisterBuiltins(registry,
		payment.BackendConfig{Ledger: store},
		map[string]payment.BackendConfig{payment.ProviderStripe: {WebhookSecret: testWebhookSecret}},
	)
	if err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	mgr := metrics.NewManager(metrics.DefaultConfig())
	broadcaster := events.NewBroadcaster()
	bus := signal.NewLocalBus(4)
	inventory := sim.NewInventory(map[string]int{"SKU-LOW": 1}, 100)

	sagas := saga.NewSagaOrchestrator(
		saga.WithObserver(broadcaster),
		saga.WithMetricsRecorder(mgr),
	)
	orders, err := fulfillment.New(registry,
		inventory,
		sim.NewShipping(sim.DefaultShippingConfig()),
		sim.NewNotifier(sim.NotifierConfig{}),
		fulfillment.WithSagaOrchestrator(sagas),
		fulfillment.WithReceiptStore(store),
		fulfillment.WithSignalBus(bus),
		fulfillment.WithMetrics(mgr),
		fulfillment.WithLogger(log),
	)
	if err != nil {
		t.Fatalf("fulfillment.New() error = %v", err)
	}

	health := handlers.NewHealthHandler(handlers.WithCheck("storage", func(context.Context) error { return nil }))
	ws := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{})

	srv := NewHTTPServer(cfg, log, &Handlers{
		Orders:         handlers.NewOrderHandler(orders, store, log),
		Providers:      handlers.NewProviderHandler(registry, log, mgr),
		Health:         health,
		WebSocket:      ws,
		Metrics:        mgr,
		MetricsHandler: mgr.Handler(),
	})
	server := httptest.NewServer(srv.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go ws.Run(ctx, broadcaster)

	t.Cleanup(func() {
		cancel()
		server.Close()
		ws.Close()
		broadcaster.Close()
		_ = bus.Close()
	})

	return &testStack{
		cfg:         cfg,
		server:      server,
		store:       store,
		inventory:   inventory,
		metrics:     mgr,
		health:      health,
		broadcaster: broadcaster,
		websocket:   ws,
	}
}

func (s *testStack) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func orderBody(product string, quantity int, token, country string) map[string]any {
	return map[string]any{
		"product_id":     product,
		"quantity":       quantity,
		"unit_price":     "19.99",
		"customer_email": "ada@example.com",
		"payment_token":  token,
		"shipping_address": map[string]any{
			"street":  "1 Main St",
			"city":    "Austin",
			"zip":     "73301",
			"country": country,
		},
	}
}
