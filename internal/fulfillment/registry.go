package fulfillment

import (
	"sync"

	"github.com/storeorders/api/internal/database"
)

// Registry keeps one tracker per order that has not been closed yet.
type Registry struct {
	mu       sync.Mutex
	trackers map[int64]*Tracker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[int64]*Tracker)}
}

// Load returns the tracker for an order, creating it from items on first use
// and reconciling it with items afterwards.
func (r *Registry) Load(orderID int64, items []database.OrderItem) *Tracker {
	r.mu.Lock()
	t, ok := r.trackers[orderID]
	if !ok {
		t = NewTracker(orderID, items)
		r.trackers[orderID] = t
	}
	r.mu.Unlock()

	if ok {
		t.Sync(items)
	}
	return t
}

// Peek returns the tracker for an order without creating one.
func (r *Registry) Peek(orderID int64) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[orderID]
	return t, ok
}

// Drop forgets an order's tracker. Called once the order is closed.
func (r *Registry) Drop(orderID int64) {
	r.mu.Lock()
	delete(r.trackers, orderID)
	r.mu.Unlock()
}

// Len is the number of orders currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}
