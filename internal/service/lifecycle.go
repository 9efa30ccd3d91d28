package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/fulfillment"
)

// Errors returned by the lifecycle service.
var (
	ErrOrderClosed       = errors.New("order is closed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusConflict    = errors.New("order status changed, reload and retry")
)

// allowedTransitions defines valid status transitions. closed is terminal.
var allowedTransitions = map[database.OrderStatus][]database.OrderStatus{
	database.OrderStatusOpen:       {database.OrderStatusInProgress, database.OrderStatusClosed},
	database.OrderStatusInProgress: {database.OrderStatusClosed},
}

// ValidateTransition reports whether an order may move from one status to another.
func ValidateTransition(from, to database.OrderStatus) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// LifecycleStore defines the DB methods needed by the fulfillment flow.
// Satisfied by *database.Queries (and its WithTx variant).
type LifecycleStore interface {
	GetOrderWithStore(ctx context.Context, id int64) (database.GetOrderWithStoreRow, error)
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	ListOrderItemDetails(ctx context.Context, orderID int64) ([]database.ListOrderItemDetailsRow, error)
	SetFulfilledQuantity(ctx context.Context, arg database.SetFulfilledQuantityParams) (int64, error)
}

// NewLifecycleStore creates a LifecycleStore from a DBTX (pool or tx).
type NewLifecycleStore func(db database.DBTX) LifecycleStore

// DetailOptions tunes an order detail view.
type DetailOptions struct {
	IncompleteOnly bool
}

// OrderDetail is an order header with its fulfillment view.
type OrderDetail struct {
	Order database.GetOrderWithStoreRow
	View  fulfillment.View
}

// LifecycleService moves orders through open, in_progress and closed and
// keeps their provisional fulfilled quantities.
type LifecycleService struct {
	pool     TxBeginner
	db       database.DBTX
	newStore NewLifecycleStore
	trackers *fulfillment.Registry
	notifier Notifier
}

// NewLifecycleService creates a new LifecycleService. db serves reads outside
// a transaction.
func NewLifecycleService(pool TxBeginner, db database.DBTX, newStore NewLifecycleStore, trackers *fulfillment.Registry) *LifecycleService {
	return &LifecycleService{
		pool:     pool,
		db:       db,
		newStore: newStore,
		trackers: trackers,
		notifier: nopNotifier{},
	}
}

// SetNotifier registers the receiver of order events.
func (s *LifecycleService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Detail loads an order for a warehouse or admin viewer without changing it.
// Non-closed orders show their provisional quantities.
func (s *LifecycleService) Detail(ctx context.Context, orderID int64, opts DetailOptions) (*OrderDetail, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrderWithStore(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	rows, err := store.ListOrderItemDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	var tr *fulfillment.Tracker
	if order.Status == database.OrderStatusClosed {
		s.trackers.Drop(orderID)
	} else {
		tr = s.trackers.Load(orderID, fulfillment.OrderItems(rows))
	}

	return &OrderDetail{
		Order: order,
		View:  fulfillment.BuildView(order.Status, rows, tr, opts.IncompleteOnly),
	}, nil
}

// OpenForFulfillment is called when a warehouse or admin viewer selects an
// order. An open order moves to in_progress before the detail is returned;
// other statuses are returned unchanged. A failed status write is returned
// as an error and no detail is produced.
func (s *LifecycleService) OpenForFulfillment(ctx context.Context, orderID int64, opts DetailOptions) (*OrderDetail, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrderWithStore(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Status == database.OrderStatusOpen {
		updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:       orderID,
			Status:   database.OrderStatusInProgress,
			Status_2: database.OrderStatusOpen,
		})
		switch {
		case err == nil:
			s.notifier.Notify(ctx, eventFor(enum.EventOrderInProgress, updated))
		case errors.Is(err, pgx.ErrNoRows):
			// another viewer moved it first; show whatever it is now
		default:
			return nil, fmt.Errorf("mark in progress: %w", err)
		}
	}

	return s.Detail(ctx, orderID, opts)
}

// SetProvisional records a provisional fulfilled quantity. Nothing is
// persisted until the order is closed.
func (s *LifecycleService) SetProvisional(ctx context.Context, orderID, productID int64, qty int32) (*OrderDetail, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrderWithStore(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == database.OrderStatusClosed {
		return nil, ErrOrderClosed
	}

	rows, err := store.ListOrderItemDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	tr := s.trackers.Load(orderID, fulfillment.OrderItems(rows))

	// A close may have committed since the status check above. Its Drop ran
	// before our Load, so forget the tracker again.
	current, err := store.GetOrderWithStore(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if current.Status == database.OrderStatusClosed {
		s.trackers.Drop(orderID)
		return nil, ErrOrderClosed
	}

	if err := tr.Set(productID, qty); err != nil {
		return nil, err
	}

	return &OrderDetail{
		Order: current,
		View:  fulfillment.BuildView(current.Status, rows, tr, false),
	}, nil
}

// CloseOrder persists every item's provisional fulfilled quantity and then
// marks the order closed, in one transaction. overrides are applied to a copy
// of the tracker first; an invalid override aborts before any write. Every
// read happens before the commit, so an error always means the order kept
// its prior status.
func (s *LifecycleService) CloseOrder(ctx context.Context, orderID int64, overrides map[int64]int32) (*OrderDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if err := ValidateTransition(order.Status, database.OrderStatusClosed); err != nil {
		if order.Status == database.OrderStatusClosed {
			return nil, ErrOrderClosed
		}
		return nil, err
	}

	header, err := store.GetOrderWithStore(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	rows, err := store.ListOrderItemDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	items := fulfillment.OrderItems(rows)

	tr := s.trackers.Load(orderID, items).Clone()
	for pid, qty := range overrides {
		if err := tr.Set(pid, qty); err != nil {
			return nil, fmt.Errorf("product %d: %w", pid, err)
		}
	}

	// --- Items first ---
	final := tr.Snapshot()
	for _, it := range items {
		n, err := store.SetFulfilledQuantity(ctx, database.SetFulfilledQuantityParams{
			OrderID:           orderID,
			ProductID:         it.ProductID,
			FulfilledQuantity: final[it.ProductID],
		})
		if err != nil {
			return nil, fmt.Errorf("set fulfilled quantity: %w", err)
		}
		if n == 0 {
			return nil, ErrStatusConflict
		}
	}

	// --- Then status ---
	closed, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:       orderID,
		Status:   database.OrderStatusClosed,
		Status_2: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("close order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.trackers.Drop(orderID)
	s.notifier.Notify(ctx, eventFor(enum.EventOrderClosed, closed))

	return &OrderDetail{
		Order: closedHeader(header, closed),
		View:  fulfillment.BuildView(closed.Status, persisted(rows, final), nil, false),
	}, nil
}

// closedHeader applies the committed status row to a header read earlier in
// the same transaction.
func closedHeader(h database.GetOrderWithStoreRow, o database.Order) database.GetOrderWithStoreRow {
	h.Status = o.Status
	h.UpdatedAt = o.UpdatedAt
	return h
}

// persisted returns rows carrying the fulfilled quantities just written.
func persisted(rows []database.ListOrderItemDetailsRow, final map[int64]int32) []database.ListOrderItemDetailsRow {
	out := make([]database.ListOrderItemDetailsRow, len(rows))
	for i, r := range rows {
		r.FulfilledQuantity = pgtype.Int4{Int32: final[r.ProductID], Valid: true}
		out[i] = r
	}
	return out
}
