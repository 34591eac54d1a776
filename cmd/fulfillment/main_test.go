package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/fulfillment/config"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/storage/memory"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stderr"})
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func sampleRequest() order.Request {
	return order.Request{
		ProductID:     "SKU-1",
		Quantity:      1,
		UnitPrice:     decimal.RequireFromString("19.99"),
		CustomerEmail: "ada@example.com",
		PaymentToken:  "tok_visa",
		ShippingAddress: order.Address{
			Street:  "1 Main St",
			City:    "Austin",
			Zip:     "73301",
			Country: "US",
		},
	}
}

func TestBuildOverrides(t *testing.T) {
	*serverPort = 9090
	*logLevel = "debug"
	*storageType = "badger"
	defer func() {
		*serverPort = 0
		*logLevel = ""
		*storageType = ""
	}()

	overrides := buildOverrides()
	assert.Equal(t, 9090, overrides["server.port"])
	assert.Equal(t, "debug", overrides["log.level"])
	assert.Equal(t, "badger", overrides["storage.type"])
	assert.NotContains(t, overrides, "app.name")
}

func TestNewApp_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()

	a, err := newApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, []string{"stripe", "paypal", "square"}, a.registry.ListProviders())
	assert.Equal(t, "paypal", a.registry.Fallback())
	assert.Nil(t, a.redis, "memory backends need no redis client")
	assert.Nil(t, a.bridge, "events are disabled by default")

	result, err := a.orders.PlaceOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)

	receipt, err := a.store.GetReceipt(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, result.PaymentRef, receipt.PaymentRef)

	status := a.status()
	assert.Equal(t, "memory", status["storage"])
	assert.Equal(t, "paypal", status["fallback_provider"])
}

func TestNewApp_BadgerStorage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "badger"
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Storage.Badger.SyncWrites = false

	a, err := newApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	result, err := a.orders.PlaceOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NoError(t, a.close())

	reopened, err := newApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer reopened.close()

	receipt, err := reopened.store.GetReceipt(context.Background(), result.OrderID)
	require.NoError(t, err, "receipts survive a restart")
	assert.True(t, result.TotalAmount.Equal(receipt.Amount))
}

func TestNewApp_EventsFeedTheStream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.NodeID = "node-a"

	a, err := newApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.bridge)

	stream := a.broadcaster.Subscribe(64)

	result, err := a.orders.PlaceOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.True(t, result.Success)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-stream:
			assert.Equal(t, "node-a", event.NodeID, "stream events come through the bus")
			assert.Equal(t, result.OrderID, event.OrderID)
			if event.Type == "saga.finished" {
				return
			}
		case <-deadline:
			t.Fatal("saga.finished never reached the stream")
		}
	}
}

func TestNewApp_RejectsUnknownFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Fallback = "venmo"

	_, err := newApp(context.Background(), cfg, testLogger())
	assert.ErrorContains(t, err, "venmo")
}

func TestNewRegistry_CustomRules(t *testing.T) {
	cfg := config.DefaultConfig().Providers
	cfg.Rules = []config.ProviderRule{
		{Region: "gb", Provider: "paypal"},
		{TransactionSize: "large", Provider: "stripe"},
	}
	cfg.WebhookSecrets = map[string]string{"Stripe": "whsec"}

	registry, err := newRegistry(cfg, memory.NewMemoryStorage())
	require.NoError(t, err)

	assert.Equal(t, "paypal", registry.SelectProvider(registry.CriteriaFor("GB", decimal.NewFromInt(10))))
	assert.Equal(t, "stripe", registry.SelectProvider(registry.CriteriaFor("US", decimal.NewFromInt(5000))))
	assert.Equal(t, "paypal", registry.SelectProvider(registry.CriteriaFor("US", decimal.NewFromInt(10))),
		"custom rules replace the built-in ones")

	family, err := registry.CreateFamily("stripe")
	require.NoError(t, err)
	sig := payment.SignWebhook("stripe", "whsec", []byte("{}"))
	assert.True(t, family.WebhookValidator().ValidateWebhook(sig, []byte("{}")))
}

func TestNewShipping(t *testing.T) {
	cfg := config.DefaultConfig().Shipping
	cfg.Surcharges = map[string]string{"ca": "5"}

	shipping, err := newShipping(cfg)
	require.NoError(t, err)

	quote, err := shipping.Quote(context.Background(), order.Address{Street: "1", City: "Toronto", Zip: "M5V", Country: "CA"})
	require.NoError(t, err)
	assert.True(t, quote.Equal(decimal.RequireFromString("20.99")), "got %s", quote)

	cfg.BaseRate = "cheap"
	_, err = newShipping(cfg)
	assert.Error(t, err)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyCh := make(chan *app, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, testLogger(), runOptions{ready: func(a *app) { readyCh <- a }})
	}()

	var a *app
	select {
	case a = <-readyCh:
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("app never became ready")
	}

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "metrics share the API port by default")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	w := httptest.NewRecorder()
	a.health.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "drained process reports not ready")
}
