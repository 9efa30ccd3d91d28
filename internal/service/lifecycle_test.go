package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/fulfillment"
)

func newTestLifecycle(db *fakeDB) (*LifecycleService, *mockTx, *recordingNotifier, *fulfillment.Registry) {
	tx := &mockTx{}
	reg := fulfillment.NewRegistry()
	svc := NewLifecycleService(&mockTxBeginner{tx: tx}, nil, func(database.DBTX) LifecycleStore { return db }, reg)
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	return svc, tx, n, reg
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to database.OrderStatus
		ok       bool
	}{
		{database.OrderStatusOpen, database.OrderStatusInProgress, true},
		{database.OrderStatusOpen, database.OrderStatusClosed, true},
		{database.OrderStatusInProgress, database.OrderStatusClosed, true},
		{database.OrderStatusInProgress, database.OrderStatusOpen, false},
		{database.OrderStatusClosed, database.OrderStatusOpen, false},
		{database.OrderStatusClosed, database.OrderStatusInProgress, false},
		{database.OrderStatusClosed, database.OrderStatusClosed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestOpenForFulfillment_OpenBecomesInProgress(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addOrder(12, 1, database.OrderStatusOpen, orderItem(1, 3))
	svc, _, n, _ := newTestLifecycle(db)

	detail, err := svc.OpenForFulfillment(context.Background(), 12, DetailOptions{})
	require.NoError(t, err)

	assert.Equal(t, database.OrderStatusInProgress, detail.Order.Status)
	assert.Equal(t, "Store One", detail.Order.StoreName)
	assert.Equal(t, database.OrderStatusInProgress, db.orders[12].Status)
	assert.Equal(t, []string{enum.EventOrderInProgress}, n.types())

	ids, err := db.ListOpenOrderIDs(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ids, int64(12))
}

func TestOpenForFulfillment_NoTransitionForOtherStatuses(t *testing.T) {
	for _, status := range []database.OrderStatus{database.OrderStatusInProgress, database.OrderStatusClosed} {
		t.Run(string(status), func(t *testing.T) {
			db := newFakeDB()
			db.addProduct(1, "A", true)
			db.addOrder(12, 1, status, orderItem(1, 3))
			svc, _, n, _ := newTestLifecycle(db)

			detail, err := svc.OpenForFulfillment(context.Background(), 12, DetailOptions{})
			require.NoError(t, err)
			assert.Equal(t, status, detail.Order.Status)
			assert.Empty(t, db.calls)
			assert.Empty(t, n.types())
		})
	}
}

func TestOpenForFulfillment_WriteFailureAborts(t *testing.T) {
	db := newFakeDB()
	db.addOrder(12, 1, database.OrderStatusOpen, orderItem(1, 3))
	db.updateStatusErr = errors.New("connection refused")
	svc, _, _, _ := newTestLifecycle(db)

	detail, err := svc.OpenForFulfillment(context.Background(), 12, DetailOptions{})
	assert.Error(t, err)
	assert.Nil(t, detail)
	assert.Equal(t, database.OrderStatusOpen, db.orders[12].Status)
}

func TestOpenForFulfillment_NotFound(t *testing.T) {
	svc, _, _, _ := newTestLifecycle(newFakeDB())

	_, err := svc.OpenForFulfillment(context.Background(), 404, DetailOptions{})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestDetail_SeedsProvisionalFromOrdered(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addProduct(2, "B", true)
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3), orderItem(2, 2))
	svc, _, _, reg := newTestLifecycle(db)

	detail, err := svc.Detail(context.Background(), 12, DetailOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, detail.View.IncompleteCount)
	require.Len(t, detail.View.Groups, 1)
	for _, l := range detail.View.Groups[0].Lines {
		assert.Equal(t, l.Quantity, l.FulfilledQuantity)
		assert.NotNil(t, l.Selector)
	}
	_, ok := reg.Peek(12)
	assert.True(t, ok)
}

func TestSetProvisional(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3))
	svc, _, _, _ := newTestLifecycle(db)
	ctx := context.Background()

	detail, err := svc.SetProvisional(ctx, 12, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.View.IncompleteCount)

	// nothing persisted yet
	assert.Equal(t, int32(0), db.items[12][1].FulfilledQuantity.Int32)

	_, err = svc.SetProvisional(ctx, 12, 1, 4)
	assert.ErrorIs(t, err, fulfillment.ErrQuantityOutOfRange)

	detail, err = svc.Detail(ctx, 12, DetailOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), detail.View.Groups[0].Lines[0].FulfilledQuantity)
}

func TestSetProvisional_ClosedOrder(t *testing.T) {
	db := newFakeDB()
	db.addOrder(12, 1, database.OrderStatusClosed, orderItem(1, 3))
	svc, _, _, _ := newTestLifecycle(db)

	_, err := svc.SetProvisional(context.Background(), 12, 1, 1)
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestCloseOrder_WritesItemsThenStatus(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addProduct(2, "B", true)
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3), orderItem(2, 4))
	svc, tx, n, reg := newTestLifecycle(db)
	ctx := context.Background()

	_, err := svc.SetProvisional(ctx, 12, 2, 1)
	require.NoError(t, err)

	detail, err := svc.CloseOrder(ctx, 12, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SetFulfilledQuantity(12,1,3)",
		"SetFulfilledQuantity(12,2,1)",
		"UpdateOrderStatus(12,closed)",
	}, db.calls)
	assert.True(t, tx.committed)
	assert.Equal(t, database.OrderStatusClosed, detail.Order.Status)
	assert.Equal(t, 1, detail.View.IncompleteCount)
	assert.Equal(t, []string{enum.EventOrderClosed}, n.types())

	_, tracked := reg.Peek(12)
	assert.False(t, tracked)
}

func TestCloseOrder_FullyFulfilledStaysFulfilled(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addOrder(12, 1, database.OrderStatusOpen, orderItem(1, 3))
	svc, _, _, _ := newTestLifecycle(db)
	ctx := context.Background()

	_, err := svc.CloseOrder(ctx, 12, map[int64]int32{1: 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		detail, err := svc.Detail(ctx, 12, DetailOptions{})
		require.NoError(t, err)
		line := detail.View.Groups[0].Lines[0]
		assert.True(t, line.FullyFulfilled)
		assert.Equal(t, int32(3), line.FulfilledQuantity)
		assert.Nil(t, line.Selector)
	}
}

func TestCloseOrder_InvalidOverrideWritesNothing(t *testing.T) {
	db := newFakeDB()
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3))
	svc, tx, _, reg := newTestLifecycle(db)

	_, err := svc.CloseOrder(context.Background(), 12, map[int64]int32{1: 7})
	assert.ErrorIs(t, err, fulfillment.ErrQuantityOutOfRange)
	assert.Empty(t, db.calls)
	assert.False(t, tx.committed)

	// the live tracker is unchanged
	tr, ok := reg.Peek(12)
	require.True(t, ok)
	got, _ := tr.Get(1)
	assert.Equal(t, int32(3), got)
}

func TestCloseOrder_ClosedIsTerminal(t *testing.T) {
	db := newFakeDB()
	db.addOrder(12, 1, database.OrderStatusClosed, orderItem(1, 3))
	svc, _, _, _ := newTestLifecycle(db)

	_, err := svc.CloseOrder(context.Background(), 12, nil)
	assert.ErrorIs(t, err, ErrOrderClosed)
	assert.Equal(t, database.OrderStatusClosed, db.orders[12].Status)
}

func TestCloseOrder_ItemWriteFailureKeepsStatus(t *testing.T) {
	db := newFakeDB()
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3))
	db.setFulfilledErr = errors.New("timeout")
	svc, tx, n, _ := newTestLifecycle(db)

	_, err := svc.CloseOrder(context.Background(), 12, nil)
	require.Error(t, err)
	assert.True(t, tx.rolledBack)
	assert.Equal(t, database.OrderStatusInProgress, db.orders[12].Status)
	assert.Empty(t, n.types())
}

func TestCloseOrder_UsesRecordedFulfilled(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	it := orderItem(1, 5)
	it.FulfilledQuantity = pgtype.Int4{Int32: 2, Valid: true}
	db.addOrder(12, 1, database.OrderStatusInProgress, it)
	svc, _, _, _ := newTestLifecycle(db)

	_, err := svc.CloseOrder(context.Background(), 12, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), db.items[12][1].FulfilledQuantity.Int32)
}

// closedDetailsFailDB fails item reads once the order is closed, like a
// lagging read path after the close committed.
type closedDetailsFailDB struct {
	*fakeDB
}

func (f closedDetailsFailDB) ListOrderItemDetails(ctx context.Context, orderID int64) ([]database.ListOrderItemDetailsRow, error) {
	f.mu.Lock()
	status := f.orders[orderID].Status
	f.mu.Unlock()
	if status == database.OrderStatusClosed {
		return nil, errors.New("read replica timeout")
	}
	return f.fakeDB.ListOrderItemDetails(ctx, orderID)
}

func TestCloseOrder_NoReadsAfterCommit(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addProduct(2, "B", true)
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3), orderItem(2, 4))
	tx := &mockTx{}
	reg := fulfillment.NewRegistry()
	svc := NewLifecycleService(&mockTxBeginner{tx: tx}, nil, func(database.DBTX) LifecycleStore {
		return closedDetailsFailDB{db}
	}, reg)
	ctx := context.Background()

	_, err := svc.SetProvisional(ctx, 12, 2, 1)
	require.NoError(t, err)

	detail, err := svc.CloseOrder(ctx, 12, nil)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, database.OrderStatusClosed, db.orders[12].Status)

	assert.Equal(t, database.OrderStatusClosed, detail.Order.Status)
	assert.Equal(t, "Store One", detail.Order.StoreName)
	assert.Equal(t, 1, detail.View.IncompleteCount)
	lines := detail.View.Groups[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, int32(3), lines[0].FulfilledQuantity)
	assert.Equal(t, int32(1), lines[1].FulfilledQuantity)
	assert.Nil(t, lines[1].Selector)
}

// closingDB closes the order right after its items are read, as a close
// committing between the status check and the tracker load would.
type closingDB struct {
	*fakeDB
}

func (f closingDB) ListOrderItemDetails(ctx context.Context, orderID int64) ([]database.ListOrderItemDetailsRow, error) {
	rows, err := f.fakeDB.ListOrderItemDetails(ctx, orderID)
	f.mu.Lock()
	o := f.orders[orderID]
	o.Status = database.OrderStatusClosed
	f.orders[orderID] = o
	f.mu.Unlock()
	return rows, err
}

func TestSetProvisional_CloseRaceLeavesNoTracker(t *testing.T) {
	db := newFakeDB()
	db.addProduct(1, "A", true)
	db.addOrder(12, 1, database.OrderStatusInProgress, orderItem(1, 3))
	reg := fulfillment.NewRegistry()
	svc := NewLifecycleService(&mockTxBeginner{tx: &mockTx{}}, nil, func(database.DBTX) LifecycleStore {
		return closingDB{db}
	}, reg)

	_, err := svc.SetProvisional(context.Background(), 12, 1, 1)
	assert.ErrorIs(t, err, ErrOrderClosed)

	_, tracked := reg.Peek(12)
	assert.False(t, tracked)
}
