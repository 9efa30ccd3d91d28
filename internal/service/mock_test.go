package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/storeorders/api/internal/database"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr  error
	committed  bool
	rolledBack bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  *mockTx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

// fakeDB is an in-memory stand-in for *database.Queries. It satisfies every
// store interface in this package and records the write calls it receives.
// Writes are applied immediately; tests assert on tx commit/rollback.
type fakeDB struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]database.Product
	stores   map[int64]string
	orders   map[int64]database.Order
	items    map[int64]map[int64]database.OrderItem
	calls    []string

	setFulfilledErr error
	updateStatusErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		nextID:   100,
		products: make(map[int64]database.Product),
		stores:   map[int64]string{1: "Store One", 2: "Store Two"},
		orders:   make(map[int64]database.Order),
		items:    make(map[int64]map[int64]database.OrderItem),
	}
}

func (f *fakeDB) addProduct(id int64, name string, available bool) {
	f.products[id] = database.Product{ID: id, Name: name, Available: available}
}

func (f *fakeDB) addOrder(id, storeID int64, status database.OrderStatus, items ...database.OrderItem) {
	now := time.Now()
	f.orders[id] = database.Order{ID: id, StoreID: storeID, Status: status, CreatedAt: now, UpdatedAt: now}
	f.items[id] = make(map[int64]database.OrderItem)
	for _, it := range items {
		it.OrderID = id
		f.items[id][it.ProductID] = it
	}
}

func (f *fakeDB) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDB) sortedItems(orderID int64) []database.OrderItem {
	out := []database.OrderItem{}
	for _, it := range f.items[orderID] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (f *fakeDB) GetProduct(ctx context.Context, id int64) (database.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeDB) GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeDB) GetOrderWithStore(ctx context.Context, id int64) (database.GetOrderWithStoreRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return database.GetOrderWithStoreRow{}, pgx.ErrNoRows
	}
	return database.GetOrderWithStoreRow{
		ID:        o.ID,
		StoreID:   o.StoreID,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		StoreName: f.stores[o.StoreID],
	}, nil
}

func (f *fakeDB) GetLatestOpenOrderByStore(ctx context.Context, storeID int64) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best database.Order
	found := false
	for _, o := range f.orders {
		if o.StoreID != storeID || o.Status != database.OrderStatusOpen {
			continue
		}
		if !found || o.ID > best.ID {
			best, found = o, true
		}
	}
	if !found {
		return database.Order{}, pgx.ErrNoRows
	}
	return best, nil
}

func (f *fakeDB) CreateOrder(ctx context.Context, storeID int64) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Now()
	o := database.Order{ID: f.nextID, StoreID: storeID, Status: database.OrderStatusOpen, CreatedAt: now, UpdatedAt: now}
	f.orders[o.ID] = o
	f.items[o.ID] = make(map[int64]database.OrderItem)
	f.record("CreateOrder(%d)", storeID)
	return o, nil
}

func (f *fakeDB) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.items[arg.OrderID][arg.ProductID]; dup {
		return database.OrderItem{}, errors.New("duplicate key")
	}
	it := database.OrderItem{
		OrderID:           arg.OrderID,
		ProductID:         arg.ProductID,
		Quantity:          arg.Quantity,
		FulfilledQuantity: pgtype.Int4{Int32: 0, Valid: true},
	}
	f.items[arg.OrderID][arg.ProductID] = it
	f.record("CreateOrderItem(%d,%d,%d)", arg.OrderID, arg.ProductID, arg.Quantity)
	return it, nil
}

func (f *fakeDB) UpsertOrderItem(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[arg.OrderID][arg.ProductID]
	if !ok {
		it = database.OrderItem{
			OrderID:           arg.OrderID,
			ProductID:         arg.ProductID,
			FulfilledQuantity: pgtype.Int4{Int32: 0, Valid: true},
		}
	}
	it.Quantity = arg.Quantity
	f.items[arg.OrderID][arg.ProductID] = it
	f.record("UpsertOrderItem(%d,%d,%d)", arg.OrderID, arg.ProductID, arg.Quantity)
	return it, nil
}

func (f *fakeDB) DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[arg.OrderID], arg.ProductID)
	f.record("DeleteOrderItem(%d,%d)", arg.OrderID, arg.ProductID)
	return nil
}

func (f *fakeDB) TouchOrder(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.UpdatedAt = time.Now()
	f.orders[id] = o
	f.record("TouchOrder(%d)", id)
	return nil
}

func (f *fakeDB) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]database.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedItems(orderID), nil
}

func (f *fakeDB) ListOrderItemDetails(ctx context.Context, orderID int64) ([]database.ListOrderItemDetailsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []database.ListOrderItemDetailsRow{}
	for _, it := range f.sortedItems(orderID) {
		p := f.products[it.ProductID]
		rows = append(rows, database.ListOrderItemDetailsRow{
			OrderID:           it.OrderID,
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			FulfilledQuantity: it.FulfilledQuantity,
			ProductName:       p.Name,
			Category:          p.Category,
		})
	}
	return rows, nil
}

func (f *fakeDB) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateStatusErr != nil {
		return database.Order{}, f.updateStatusErr
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.Status != arg.Status_2 {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	f.record("UpdateOrderStatus(%d,%s)", arg.ID, arg.Status)
	return o, nil
}

func (f *fakeDB) SetFulfilledQuantity(ctx context.Context, arg database.SetFulfilledQuantityParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setFulfilledErr != nil {
		return 0, f.setFulfilledErr
	}
	it, ok := f.items[arg.OrderID][arg.ProductID]
	if !ok {
		return 0, nil
	}
	it.FulfilledQuantity = pgtype.Int4{Int32: arg.FulfilledQuantity, Valid: true}
	f.items[arg.OrderID][arg.ProductID] = it
	f.record("SetFulfilledQuantity(%d,%d,%d)", arg.OrderID, arg.ProductID, arg.FulfilledQuantity)
	return 1, nil
}

func (f *fakeDB) ListOpenOrderIDs(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []int64{}
	for id, o := range f.orders {
		if o.Status == database.OrderStatusOpen {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeDB) ListItemsForOrders(ctx context.Context, orderIDs []int64) ([]database.ListItemsForOrdersRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []database.ListItemsForOrdersRow{}
	for _, id := range orderIDs {
		for _, it := range f.sortedItems(id) {
			rows = append(rows, database.ListItemsForOrdersRow{
				OrderID:     id,
				ProductID:   it.ProductID,
				Quantity:    it.Quantity,
				ProductName: f.products[it.ProductID].Name,
			})
		}
	}
	return rows, nil
}

// recordingNotifier collects events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ev OrderEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

func orderItem(productID int64, qty int32) database.OrderItem {
	return database.OrderItem{
		ProductID:         productID,
		Quantity:          qty,
		FulfilledQuantity: pgtype.Int4{Int32: 0, Valid: true},
	}
}
