package fulfillment_test

import (
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/fulfillment"
)

func item(productID int64, qty int32, fulfilled *int32) database.OrderItem {
	it := database.OrderItem{OrderID: 12, ProductID: productID, Quantity: qty}
	if fulfilled != nil {
		it.FulfilledQuantity = pgtype.Int4{Int32: *fulfilled, Valid: true}
	}
	return it
}

func ptr(v int32) *int32 { return &v }

func TestSeed(t *testing.T) {
	tests := []struct {
		name string
		item database.OrderItem
		want int32
	}{
		{"null fulfilled defaults to ordered", item(1, 5, nil), 5},
		{"zero fulfilled defaults to ordered", item(1, 5, ptr(0)), 5},
		{"recorded fulfilled is kept", item(1, 5, ptr(3)), 3},
		{"recorded above ordered is clamped", item(1, 5, ptr(9)), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fulfillment.Seed(tt.item))
		})
	}
}

func TestTracker_SetWithinBounds(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 3, nil)})

	for _, q := range []int32{0, 1, 3} {
		require.NoError(t, tr.Set(1, q))
		got, ok := tr.Get(1)
		require.True(t, ok)
		assert.Equal(t, q, got)
	}
}

func TestTracker_SetOutOfRangeKeepsPrevious(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 3, nil)})
	require.NoError(t, tr.Set(1, 2))

	assert.ErrorIs(t, tr.Set(1, 4), fulfillment.ErrQuantityOutOfRange)
	assert.ErrorIs(t, tr.Set(1, -1), fulfillment.ErrQuantityOutOfRange)

	got, _ := tr.Get(1)
	assert.Equal(t, int32(2), got)
}

func TestTracker_SetUnknownProduct(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 3, nil)})
	assert.ErrorIs(t, tr.Set(99, 1), fulfillment.ErrUnknownProduct)
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 3, nil), item(2, 4, ptr(1))})

	snap := tr.Snapshot()
	assert.Equal(t, map[int64]int32{1: 3, 2: 1}, snap)

	snap[1] = 0
	got, _ := tr.Get(1)
	assert.Equal(t, int32(3), got)
}

func TestTracker_CloneIsIndependent(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 3, nil)})
	c := tr.Clone()
	require.NoError(t, c.Set(1, 0))

	got, _ := tr.Get(1)
	assert.Equal(t, int32(3), got)
	assert.Equal(t, int64(12), c.OrderID())
}

func TestTracker_Sync(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 5, nil), item(2, 2, nil)})
	require.NoError(t, tr.Set(1, 4))

	// product 1 lowered to 3, product 2 removed, product 3 added
	tr.Sync([]database.OrderItem{item(1, 3, nil), item(3, 6, nil)})

	assert.Equal(t, map[int64]int32{1: 3, 3: 6}, tr.Snapshot())
	assert.ErrorIs(t, tr.Set(2, 1), fulfillment.ErrUnknownProduct)
}

func TestTracker_ConcurrentSet(t *testing.T) {
	tr := fulfillment.NewTracker(12, []database.OrderItem{item(1, 10, nil)})

	var wg sync.WaitGroup
	for i := int32(0); i <= 10; i++ {
		wg.Add(1)
		go func(q int32) {
			defer wg.Done()
			_ = tr.Set(1, q)
		}(i)
	}
	wg.Wait()

	got, _ := tr.Get(1)
	assert.True(t, got >= 0 && got <= 10)
}

func TestEffective_DualSource(t *testing.T) {
	it := item(1, 3, ptr(1))
	tr := fulfillment.NewTracker(12, []database.OrderItem{it})
	require.NoError(t, tr.Set(1, 2))

	assert.Equal(t, int32(2), fulfillment.Effective(database.OrderStatusOpen, it, tr))
	assert.Equal(t, int32(2), fulfillment.Effective(database.OrderStatusInProgress, it, tr))
	assert.Equal(t, int32(1), fulfillment.Effective(database.OrderStatusClosed, it, tr))
	assert.Equal(t, int32(1), fulfillment.Effective(database.OrderStatusInProgress, it, nil))
}

func TestIsFullyFulfilledAfterClose(t *testing.T) {
	it := item(1, 3, ptr(3))
	assert.True(t, fulfillment.IsFullyFulfilled(database.OrderStatusClosed, it, nil))

	short := item(2, 3, ptr(2))
	assert.False(t, fulfillment.IsFullyFulfilled(database.OrderStatusClosed, short, nil))
	assert.Equal(t, 1, fulfillment.IncompleteCount(database.OrderStatusClosed, []database.OrderItem{it, short}, nil))
}

func TestSelector(t *testing.T) {
	sel := fulfillment.SelectorFor(item(1, 3, nil))

	assert.Equal(t, []int32{0, 1, 2, 3}, sel.Options())
	for _, q := range sel.Options() {
		assert.True(t, sel.Contains(q))
	}
	assert.False(t, sel.Contains(-1))
	assert.False(t, sel.Contains(4))
}

func TestTracker_SetMatchesSelector(t *testing.T) {
	it := item(1, 4, nil)
	tr := fulfillment.NewTracker(12, []database.OrderItem{it})
	sel := fulfillment.SelectorFor(it)

	for q := int32(-2); q <= 6; q++ {
		err := tr.Set(1, q)
		if sel.Contains(q) {
			assert.NoError(t, err, "qty %d", q)
		} else {
			assert.ErrorIs(t, err, fulfillment.ErrQuantityOutOfRange, "qty %d", q)
		}
	}
}
