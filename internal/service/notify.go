package service

import (
	"context"

	"github.com/storeorders/api/internal/database"
)

// OrderEvent describes a change to an order that live views care about.
type OrderEvent struct {
	Type    string               `json:"type"`
	OrderID int64                `json:"order_id"`
	StoreID int64                `json:"store_id"`
	Status  database.OrderStatus `json:"status"`
}

// Notifier receives order events after the change is committed.
type Notifier interface {
	Notify(ctx context.Context, ev OrderEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, OrderEvent) {}

func eventFor(typ string, o database.Order) OrderEvent {
	return OrderEvent{Type: typ, OrderID: o.ID, StoreID: o.StoreID, Status: o.Status}
}
