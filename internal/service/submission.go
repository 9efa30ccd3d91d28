package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
)

// Errors returned by the submission service.
var (
	ErrEmptyOrder         = errors.New("order must contain at least one item with quantity > 0")
	ErrInvalidQuantity    = errors.New("quantity out of range")
	ErrDuplicateProduct   = errors.New("duplicate product_id")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotOpen       = errors.New("order is no longer open")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SubmissionStore defines the DB methods needed to write store orders.
// Satisfied by *database.Queries (and its WithTx variant).
type SubmissionStore interface {
	GetProduct(ctx context.Context, id int64) (database.Product, error)
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	GetLatestOpenOrderByStore(ctx context.Context, storeID int64) (database.Order, error)
	CreateOrder(ctx context.Context, storeID int64) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpsertOrderItem(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error
	TouchOrder(ctx context.Context, id int64) error
	ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]database.OrderItem, error)
}

// NewSubmissionStore creates a SubmissionStore from a DBTX (pool or tx).
type NewSubmissionStore func(db database.DBTX) SubmissionStore

// SubmitItem is one entry of a store's cart.
type SubmitItem struct {
	ProductID int64
	Quantity  int32
}

// SubmitResult is a created order with its items.
type SubmitResult struct {
	Order database.Order
	Items []database.OrderItem
}

// ItemEditRequest sets the quantity of one product on the store's open order.
// ExpectedOrderID is the order the store was looking at; 0 means none.
type ItemEditRequest struct {
	StoreID         int64
	ExpectedOrderID int64
	ProductID       int64
	Quantity        int32
}

// ItemEditResult is the state of the order after an item edit. Order is nil
// when a removal targeted a store with no open order.
type ItemEditResult struct {
	Order           *database.Order
	Items           []database.OrderItem
	NewOrderStarted bool
}

// SubmissionService handles store-side order writes.
type SubmissionService struct {
	pool     TxBeginner
	newStore NewSubmissionStore
	maxQty   int32
	notifier Notifier
}

// NewSubmissionService creates a new SubmissionService. maxQty bounds the
// quantity a store may order per product.
func NewSubmissionService(pool TxBeginner, newStore NewSubmissionStore, maxQty int32) *SubmissionService {
	return &SubmissionService{pool: pool, newStore: newStore, maxQty: maxQty, notifier: nopNotifier{}}
}

// SetNotifier registers the receiver of order events.
func (s *SubmissionService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// SubmitOrder creates a new open order holding every positive-quantity item
// of the cart. Zero quantities are dropped.
func (s *SubmissionService) SubmitOrder(ctx context.Context, storeID int64, cart []SubmitItem) (*SubmitResult, error) {
	// --- Validate cart ---
	seen := make(map[int64]struct{}, len(cart))
	var items []SubmitItem
	for i, it := range cart {
		if it.Quantity < 0 || it.Quantity > s.maxQty {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrDuplicateProduct)
		}
		seen[it.ProductID] = struct{}{}
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	for i, it := range items {
		if err := checkOrderable(ctx, store, it.ProductID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
	}

	// --- Insert header, then items ---
	order, err := store.CreateOrder(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	created := make([]database.OrderItem, 0, len(items))
	for _, it := range items {
		oi, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		created = append(created, oi)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.Notify(ctx, eventFor(enum.EventOrderSubmitted, order))
	return &SubmitResult{Order: order, Items: created}, nil
}

// SetItemQuantity writes one item on the store's open order. Quantity 0
// removes the item. When the expected order has left the open state, a new
// open order is started and the edit lands there.
func (s *SubmissionService) SetItemQuantity(ctx context.Context, req ItemEditRequest) (*ItemEditResult, error) {
	if req.Quantity < 0 || req.Quantity > s.maxQty {
		return nil, ErrInvalidQuantity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if req.Quantity > 0 {
		if err := checkOrderable(ctx, store, req.ProductID); err != nil {
			return nil, err
		}
	}

	// --- Resolve target order ---
	var (
		order   database.Order
		created bool
		rolled  bool
	)
	current, found, err := s.lockTarget(ctx, store, req)
	if err != nil {
		return nil, err
	}
	switch {
	case found && current.Status == database.OrderStatusOpen:
		order = current
	case req.Quantity == 0 && found:
		return nil, ErrOrderNotOpen
	case req.Quantity == 0:
		// nothing to remove
		return &ItemEditResult{}, nil
	default:
		order, err = store.CreateOrder(ctx, req.StoreID)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		created = true
		rolled = found
	}

	// --- Apply edit ---
	if req.Quantity == 0 {
		err = store.DeleteOrderItem(ctx, database.DeleteOrderItemParams{OrderID: order.ID, ProductID: req.ProductID})
	} else {
		_, err = store.UpsertOrderItem(ctx, database.UpsertOrderItemParams{
			OrderID:   order.ID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("write order item: %w", err)
	}
	if !created {
		if err := store.TouchOrder(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("touch order: %w", err)
		}
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	event := enum.EventOrderUpdated
	if created {
		event = enum.EventOrderSubmitted
	}
	s.notifier.Notify(ctx, eventFor(event, order))

	return &ItemEditResult{Order: &order, Items: items, NewOrderStarted: rolled}, nil
}

// lockTarget locks the order the edit is aimed at: the expected order when
// given, else the store's latest open order. found is false when the store
// has no open order.
func (s *SubmissionService) lockTarget(ctx context.Context, store SubmissionStore, req ItemEditRequest) (database.Order, bool, error) {
	id := req.ExpectedOrderID
	if id == 0 {
		latest, err := store.GetLatestOpenOrderByStore(ctx, req.StoreID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.Order{}, false, nil
			}
			return database.Order{}, false, fmt.Errorf("get open order: %w", err)
		}
		id = latest.ID
	}

	order, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, false, ErrOrderNotFound
		}
		return database.Order{}, false, fmt.Errorf("lock order: %w", err)
	}
	if order.StoreID != req.StoreID {
		return database.Order{}, false, ErrOrderNotFound
	}
	return order, true, nil
}

func checkOrderable(ctx context.Context, store SubmissionStore, productID int64) error {
	p, err := store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("get product: %w", err)
	}
	if !p.Available {
		return ErrProductUnavailable
	}
	return nil
}
