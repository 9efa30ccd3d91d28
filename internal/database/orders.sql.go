package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, store_id, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.StoreID,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (store_id, status)
VALUES ($1, 'open')
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, storeID int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, storeID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
FOR UPDATE
`

// GetOrderForUpdate locks the order row until the surrounding transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderWithStore = `-- name: GetOrderWithStore :one
SELECT o.id, o.store_id, o.status, o.created_at, o.updated_at, s.name AS store_name
FROM orders o
JOIN stores s ON s.id = o.store_id
WHERE o.id = $1
`

type GetOrderWithStoreRow struct {
	ID        int64       `json:"id"`
	StoreID   int64       `json:"store_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	StoreName string      `json:"store_name"`
}

func (q *Queries) GetOrderWithStore(ctx context.Context, id int64) (GetOrderWithStoreRow, error) {
	row := q.db.QueryRow(ctx, getOrderWithStore, id)
	var i GetOrderWithStoreRow
	err := row.Scan(
		&i.ID,
		&i.StoreID,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.StoreName,
	)
	return i, err
}

const getLatestOpenOrderByStore = `-- name: GetLatestOpenOrderByStore :one
SELECT ` + orderColumns + ` FROM orders
WHERE store_id = $1 AND status = 'open'
ORDER BY created_at DESC, id DESC
LIMIT 1
`

func (q *Queries) GetLatestOpenOrderByStore(ctx context.Context, storeID int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getLatestOpenOrderByStore, storeID))
}

const listOrdersByStatus = `-- name: ListOrdersByStatus :many
SELECT o.id, o.store_id, o.status, o.created_at, o.updated_at, s.name AS store_name
FROM orders o
JOIN stores s ON s.id = o.store_id
WHERE o.status = $1
  AND ($2::timestamptz IS NULL OR o.created_at >= $2)
ORDER BY o.updated_at DESC, o.id DESC
`

type ListOrdersByStatusParams struct {
	Status       OrderStatus        `json:"status"`
	CreatedSince pgtype.Timestamptz `json:"created_since"`
}

type ListOrdersByStatusRow struct {
	ID        int64       `json:"id"`
	StoreID   int64       `json:"store_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	StoreName string      `json:"store_name"`
}

func (q *Queries) ListOrdersByStatus(ctx context.Context, arg ListOrdersByStatusParams) ([]ListOrdersByStatusRow, error) {
	rows, err := q.db.Query(ctx, listOrdersByStatus, arg.Status, arg.CreatedSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListOrdersByStatusRow{}
	for rows.Next() {
		var i ListOrdersByStatusRow
		if err := rows.Scan(
			&i.ID,
			&i.StoreID,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.StoreName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listStoreOrdersByStatus = `-- name: ListStoreOrdersByStatus :many
SELECT ` + orderColumns + ` FROM orders
WHERE store_id = $1 AND status = $2
ORDER BY updated_at DESC, id DESC
`

type ListStoreOrdersByStatusParams struct {
	StoreID int64       `json:"store_id"`
	Status  OrderStatus `json:"status"`
}

func (q *Queries) ListStoreOrdersByStatus(ctx context.Context, arg ListStoreOrdersByStatusParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listStoreOrdersByStatus, arg.StoreID, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOpenOrderIDs = `-- name: ListOpenOrderIDs :many
SELECT id FROM orders
WHERE status = 'open'
ORDER BY id
`

func (q *Queries) ListOpenOrderIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, listOpenOrderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

// UpdateOrderStatusParams moves an order from Status_2 to Status. The update
// matches no row (pgx.ErrNoRows) when the order is no longer in Status_2.
type UpdateOrderStatusParams struct {
	ID       int64       `json:"id"`
	Status   OrderStatus `json:"status"`
	Status_2 OrderStatus `json:"status_2"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.Status_2))
}

const touchOrder = `-- name: TouchOrder :exec
UPDATE orders
SET updated_at = now()
WHERE id = $1
`

func (q *Queries) TouchOrder(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, touchOrder, id)
	return err
}
