package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy is a shipping speed with a price multiplier.
type Strategy struct {
	Name          string
	Multiplier    decimal.Decimal
	EstimatedDays int
}

// Built-in strategies.
var (
	StrategyStandard  = Strategy{Name: "standard", Multiplier: decimal.NewFromInt(1), EstimatedDays: 7}
	StrategyExpress   = Strategy{Name: "express", Multiplier: decimal.NewFromInt(2), EstimatedDays: 2}
	StrategyOvernight = Strategy{Name: "overnight", Multiplier: decimal.NewFromInt(3), EstimatedDays: 1}
)

// StrategyByName resolves a strategy, defaulting to standard.
func StrategyByName(name string) Strategy {
	switch strings.ToLower(name) {
	case StrategyExpress.Name:
		return StrategyExpress
	case StrategyOvernight.Name:
		return StrategyOvernight
	default:
		return StrategyStandard
	}
}

// ShippingConfig configures the simulated carrier.
type ShippingConfig struct {
	BaseRate    decimal.Decimal
	Strategy    Strategy
	Surcharges  map[string]decimal.Decimal
	Unavailable []string
	PickupDelay time.Duration
}

// DefaultShippingConfig returns a flat 15.99 standard rate with next-day pickup.
func DefaultShippingConfig() ShippingConfig {
	return ShippingConfig{
		BaseRate:    decimal.RequireFromString("15.99"),
		Strategy:    StrategyStandard,
		PickupDelay: 24 * time.Hour,
	}
}

// Shipping is a simulated carrier.
type Shipping struct {
	cfg         ShippingConfig
	now         func() time.Time
	mu          sync.Mutex
	unavailable map[string]bool
	shipments   map[string]string
	window      refWindow
}

// NewShipping creates a simulated carrier.
func NewShipping(cfg ShippingConfig) *Shipping {
	if cfg.Strategy.Name == "" {
		cfg.Strategy = StrategyStandard
	}
	if cfg.PickupDelay <= 0 {
		cfg.PickupDelay = 24 * time.Hour
	}
	s := &Shipping{
		cfg:         cfg,
		now:         time.Now,
		unavailable: make(map[string]bool),
		shipments:   make(map[string]string),
		window:      newRefWindow(DefaultRetention),
	}
	for _, c := range cfg.Unavailable {
		s.unavailable[strings.ToUpper(c)] = true
	}
	return s
}

// SetRetention changes how many shipments can still be scheduled for pickup.
// A non-positive value restores DefaultRetention.
func (s *Shipping) SetRetention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.window.resize(n) {
		delete(s.shipments, ref)
	}
}

// SetUnavailable toggles service to a country.
func (s *Shipping) SetUnavailable(country string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable[strings.ToUpper(country)] = down
}

func (s *Shipping) serves(country string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable[strings.ToUpper(country)]
}

// Quote prices a shipment: base rate × strategy multiplier + country surcharge.
func (s *Shipping) Quote(ctx context.Context, addr order.Address) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if !s.serves(addr.Country) {
		return decimal.Zero, &order.ShippingUnavailableError{Country: addr.Country}
	}
	cost := s.cfg.BaseRate.Mul(s.cfg.Strategy.Multiplier)
	if extra, ok := s.cfg.Surcharges[strings.ToUpper(addr.Country)]; ok {
		cost = cost.Add(extra)
	}
	return cost.Round(2), nil
}

// CreateShipment registers a shipment for an order.
func (s *Shipping) CreateShipment(ctx context.Context, orderID string, addr order.Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.serves(addr.Country) {
		return "", &order.ShippingUnavailableError{Country: addr.Country}
	}
	ref := "SHIP-" + uuid.NewString()
	s.mu.Lock()
	s.shipments[ref] = orderID
	if old, ok := s.window.push(ref); ok {
		delete(s.shipments, old)
	}
	s.mu.Unlock()
	return ref, nil
}

// SchedulePickup books a pickup after the configured delay.
func (s *Shipping) SchedulePickup(ctx context.Context, shipmentRef string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	_, ok := s.shipments[shipmentRef]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("schedule pickup %s: %w", shipmentRef, gateway.ErrUnknownShipment)
	}
	return s.now().Add(s.cfg.PickupDelay), nil
}
