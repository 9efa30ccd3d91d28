package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/storeorders/api/internal/database"
)

// AccumulatedItem is the outstanding demand for one product across all open orders.
type AccumulatedItem struct {
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	OrderCount    int    `json:"order_count"`
}

// AccumulationStore defines the DB methods needed to aggregate open orders.
// Satisfied by *database.Queries.
type AccumulationStore interface {
	ListOpenOrderIDs(ctx context.Context) ([]int64, error)
	ListItemsForOrders(ctx context.Context, orderIDs []int64) ([]database.ListItemsForOrdersRow, error)
}

// AccumulationService computes warehouse planning totals. It only reads.
type AccumulationService struct {
	store AccumulationStore
}

func NewAccumulationService(store AccumulationStore) *AccumulationService {
	return &AccumulationService{store: store}
}

// Accumulated returns products ranked by total ordered quantity over open
// orders. No open orders yields an empty list.
func (s *AccumulationService) Accumulated(ctx context.Context) ([]AccumulatedItem, error) {
	ids, err := s.store.ListOpenOrderIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	if len(ids) == 0 {
		return []AccumulatedItem{}, nil
	}

	rows, err := s.store.ListItemsForOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list open order items: %w", err)
	}
	return Accumulate(rows), nil
}

// Accumulate groups rows by product, summing quantity and counting distinct
// orders, sorted by total descending then product ID ascending.
func Accumulate(rows []database.ListItemsForOrdersRow) []AccumulatedItem {
	byProduct := make(map[int64]*AccumulatedItem)
	orders := make(map[int64]map[int64]struct{})

	for _, r := range rows {
		acc, ok := byProduct[r.ProductID]
		if !ok {
			acc = &AccumulatedItem{ProductID: r.ProductID, ProductName: r.ProductName}
			byProduct[r.ProductID] = acc
			orders[r.ProductID] = make(map[int64]struct{})
		}
		acc.TotalQuantity += int64(r.Quantity)
		orders[r.ProductID][r.OrderID] = struct{}{}
	}

	out := make([]AccumulatedItem, 0, len(byProduct))
	for pid, acc := range byProduct {
		acc.OrderCount = len(orders[pid])
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity > out[j].TotalQuantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
