// Package fulfillment holds the provisional fulfilled quantities that the
// warehouse edits on an order before it is closed.
package fulfillment

import (
	"errors"
	"sync"

	"github.com/storeorders/api/internal/database"
)

var (
	ErrQuantityOutOfRange = errors.New("fulfilled quantity must be between 0 and the ordered quantity")
	ErrUnknownProduct     = errors.New("product is not part of this order")
)

// Selector is the legal range of a per-item quantity control.
type Selector struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

// Options lists every value the selector may take, 0 through ordered.
func (s Selector) Options() []int32 {
	opts := make([]int32, 0, s.Max-s.Min+1)
	for v := s.Min; v <= s.Max; v++ {
		opts = append(opts, v)
	}
	return opts
}

// Contains reports whether qty is a value the selector can produce.
func (s Selector) Contains(qty int32) bool {
	return qty >= s.Min && qty <= s.Max
}

// SelectorFor returns the selector bounds for an item.
func SelectorFor(item database.OrderItem) Selector {
	return Selector{Min: 0, Max: item.Quantity}
}

// Seed is the starting provisional value for an item: the persisted fulfilled
// quantity when one was recorded, otherwise the full ordered quantity.
// A persisted 0 on a non-closed order is the insert default, not a recording.
func Seed(item database.OrderItem) int32 {
	if item.FulfilledQuantity.Valid && item.FulfilledQuantity.Int32 > 0 {
		return min(item.FulfilledQuantity.Int32, item.Quantity)
	}
	return item.Quantity
}

// Tracker maps product ID to the provisional fulfilled quantity of one order.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	orderID int64
	ordered map[int64]int32
	values  map[int64]int32
}

// NewTracker seeds a tracker from the order's persisted line items.
func NewTracker(orderID int64, items []database.OrderItem) *Tracker {
	t := &Tracker{
		orderID: orderID,
		ordered: make(map[int64]int32, len(items)),
		values:  make(map[int64]int32, len(items)),
	}
	for _, it := range items {
		t.ordered[it.ProductID] = it.Quantity
		t.values[it.ProductID] = Seed(it)
	}
	return t
}

// OrderID returns the order the tracker belongs to.
func (t *Tracker) OrderID() int64 { return t.orderID }

// Set records a provisional quantity. Values outside [0, ordered] are
// rejected and the previous value is kept.
func (t *Tracker) Set(productID int64, qty int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ordered, ok := t.ordered[productID]
	if !ok {
		return ErrUnknownProduct
	}
	if !SelectorFor(database.OrderItem{ProductID: productID, Quantity: ordered}).Contains(qty) {
		return ErrQuantityOutOfRange
	}
	t.values[productID] = qty
	return nil
}

// Get returns the provisional quantity for a product.
func (t *Tracker) Get(productID int64) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[productID]
	return v, ok
}

// Snapshot returns a copy of the provisional map.
func (t *Tracker) Snapshot() map[int64]int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]int32, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy, used to validate a batch of edits
// before applying them.
func (t *Tracker) Clone() *Tracker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &Tracker{
		orderID: t.orderID,
		ordered: make(map[int64]int32, len(t.ordered)),
		values:  make(map[int64]int32, len(t.values)),
	}
	for k, v := range t.ordered {
		c.ordered[k] = v
	}
	for k, v := range t.values {
		c.values[k] = v
	}
	return c
}

// Sync reconciles the tracker with the current persisted items. New items are
// seeded, removed items are dropped, and values above a lowered ordered
// quantity are clamped. Existing edits are otherwise kept.
func (t *Tracker) Sync(items []database.OrderItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		seen[it.ProductID] = struct{}{}
		t.ordered[it.ProductID] = it.Quantity
		v, ok := t.values[it.ProductID]
		switch {
		case !ok:
			t.values[it.ProductID] = Seed(it)
		case v > it.Quantity:
			t.values[it.ProductID] = it.Quantity
		}
	}
	for pid := range t.ordered {
		if _, ok := seen[pid]; !ok {
			delete(t.ordered, pid)
			delete(t.values, pid)
		}
	}
}

// Effective is the fulfilled quantity to display for an item. Closed orders
// read the persisted column; open and in_progress orders read the tracker.
// A nil tracker falls back to the persisted column.
func Effective(status database.OrderStatus, item database.OrderItem, t *Tracker) int32 {
	if status == database.OrderStatusClosed || t == nil {
		if item.FulfilledQuantity.Valid {
			return item.FulfilledQuantity.Int32
		}
		return 0
	}
	if v, ok := t.Get(item.ProductID); ok {
		return v
	}
	return Seed(item)
}

// IsFullyFulfilled reports whether the displayed quantity covers the ordered one.
func IsFullyFulfilled(status database.OrderStatus, item database.OrderItem, t *Tracker) bool {
	return Effective(status, item, t) >= item.Quantity
}

// IncompleteCount counts items whose effective quantity is below the ordered one.
func IncompleteCount(status database.OrderStatus, items []database.OrderItem, t *Tracker) int {
	n := 0
	for _, it := range items {
		if !IsFullyFulfilled(status, it, t) {
			n++
		}
	}
	return n
}
