// Package sim provides in-process collaborators that behave like the real
// inventory, shipping and notification services.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/goclaw/fulfillment/pkg/gateway"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/google/uuid"
)

type reservation struct {
	productID string
	qty       int
	released  bool
}

// Inventory is a stock table with reservations. Only the most recent
// DefaultRetention reservations can be released.
type Inventory struct {
	mu           sync.Mutex
	stock        map[string]int
	reservations map[string]*reservation
	window       refWindow
	defaultStock int
	releaseErr   error
	reserveErr   error
}

// NewInventory creates an inventory. Products absent from stock start with
// defaultStock units.
func NewInventory(stock map[string]int, defaultStock int) *Inventory {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &Inventory{
		stock:        s,
		reservations: make(map[string]*reservation),
		window:       newRefWindow(DefaultRetention),
		defaultStock: defaultStock,
	}
}

// SetRetention changes how many reservations are remembered. A non-positive
// value restores DefaultRetention.
func (inv *Inventory) SetRetention(n int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, ref := range inv.window.resize(n) {
		delete(inv.reservations, ref)
	}
}

// SetReleaseError makes every Release fail with err until reset with nil.
func (inv *Inventory) SetReleaseError(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.releaseErr = err
}

// SetReserveError makes every Reserve fail with err until reset with nil.
func (inv *Inventory) SetReserveError(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.reserveErr = err
}

func (inv *Inventory) available(productID string) int {
	if n, ok := inv.stock[productID]; ok {
		return n
	}
	return inv.defaultStock
}

// Available returns the unreserved units of a product.
func (inv *Inventory) Available(productID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.available(productID)
}

// CheckStock reports whether qty units are available.
func (inv *Inventory) CheckStock(ctx context.Context, productID string, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.available(productID) >= qty, nil
}

// Reserve takes qty units out of stock.
func (inv *Inventory) Reserve(ctx context.Context, productID string, qty int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.reserveErr != nil {
		return "", &gateway.UnavailableError{Service: "inventory", Op: "reserve", Cause: inv.reserveErr}
	}
	avail := inv.available(productID)
	if avail < qty {
		return "", &order.InsufficientStockError{ProductID: productID, Requested: qty, Available: avail}
	}

	inv.stock[productID] = avail - qty
	ref := "RES-" + uuid.NewString()
	inv.reservations[ref] = &reservation{productID: productID, qty: qty}
	if old, ok := inv.window.push(ref); ok {
		delete(inv.reservations, old)
	}
	return ref, nil
}

// Release returns a reservation's units to stock once.
func (inv *Inventory) Release(ctx context.Context, reservationRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.releaseErr != nil {
		return &gateway.UnavailableError{Service: "inventory", Op: "release", Cause: inv.releaseErr}
	}
	res, ok := inv.reservations[reservationRef]
	if !ok {
		return fmt.Errorf("release %s: %w", reservationRef, gateway.ErrUnknownReservation)
	}
	if res.released {
		return nil
	}
	res.released = true
	inv.stock[res.productID] = inv.available(res.productID) + res.qty
	return nil
}

// Released reports whether a reservation has been released.
func (inv *Inventory) Released(reservationRef string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	res, ok := inv.reservations[reservationRef]
	return ok && res.released
}
