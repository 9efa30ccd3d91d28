package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT order_id, product_id, quantity, fulfilled_quantity FROM order_items
WHERE order_id = $1
ORDER BY product_id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.OrderID,
			&i.ProductID,
			&i.Quantity,
			&i.FulfilledQuantity,
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

const listOrderItemDetails = `-- name: ListOrderItemDetails :many
SELECT oi.order_id, oi.product_id, oi.quantity, oi.fulfilled_quantity,
       p.name AS product_name, p.category, p.secondary_name
FROM order_items oi
JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY p.name, oi.product_id
`

type ListOrderItemDetailsRow struct {
	OrderID           int64       `json:"order_id"`
	ProductID         int64       `json:"product_id"`
	Quantity          int32       `json:"quantity"`
	FulfilledQuantity pgtype.Int4 `json:"fulfilled_quantity"`
	ProductName       string      `json:"product_name"`
	Category          pgtype.Text `json:"category"`
	SecondaryName     pgtype.Text `json:"secondary_name"`
}

func (q *Queries) ListOrderItemDetails(ctx context.Context, orderID int64) ([]ListOrderItemDetailsRow, error) {
	rows, err := q.db.Query(ctx, listOrderItemDetails, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListOrderItemDetailsRow{}
	for rows.Next() {
		var i ListOrderItemDetailsRow
		if err := rows.Scan(
			&i.OrderID,
			&i.ProductID,
			&i.Quantity,
			&i.FulfilledQuantity,
			&i.ProductName,
			&i.Category,
			&i.SecondaryName,
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

const listItemsForOrders = `-- name: ListItemsForOrders :many
SELECT oi.order_id, oi.product_id, oi.quantity, p.name AS product_name
FROM order_items oi
JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = ANY($1::bigint[])
ORDER BY oi.order_id, oi.product_id
`

type ListItemsForOrdersRow struct {
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	Quantity    int32  `json:"quantity"`
	ProductName string `json:"product_name"`
}

func (q *Queries) ListItemsForOrders(ctx context.Context, orderIDs []int64) ([]ListItemsForOrdersRow, error) {
	rows, err := q.db.Query(ctx, listItemsForOrders, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListItemsForOrdersRow{}
	for rows.Next() {
		var i ListItemsForOrdersRow
		if err := rows.Scan(
			&i.OrderID,
			&i.ProductID,
			&i.Quantity,
			&i.ProductName,
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

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, quantity, fulfilled_quantity)
VALUES ($1, $2, $3, 0)
RETURNING order_id, product_id, quantity, fulfilled_quantity
`

type CreateOrderItemParams struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem, arg.OrderID, arg.ProductID, arg.Quantity)
	var i OrderItem
	err := row.Scan(
		&i.OrderID,
		&i.ProductID,
		&i.Quantity,
		&i.FulfilledQuantity,
	)
	return i, err
}

const upsertOrderItem = `-- name: UpsertOrderItem :one
INSERT INTO order_items (order_id, product_id, quantity, fulfilled_quantity)
VALUES ($1, $2, $3, 0)
ON CONFLICT (order_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
RETURNING order_id, product_id, quantity, fulfilled_quantity
`

type UpsertOrderItemParams struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

func (q *Queries) UpsertOrderItem(ctx context.Context, arg UpsertOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, upsertOrderItem, arg.OrderID, arg.ProductID, arg.Quantity)
	var i OrderItem
	err := row.Scan(
		&i.OrderID,
		&i.ProductID,
		&i.Quantity,
		&i.FulfilledQuantity,
	)
	return i, err
}

const deleteOrderItem = `-- name: DeleteOrderItem :exec
DELETE FROM order_items
WHERE order_id = $1 AND product_id = $2
`

type DeleteOrderItemParams struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
}

func (q *Queries) DeleteOrderItem(ctx context.Context, arg DeleteOrderItemParams) error {
	_, err := q.db.Exec(ctx, deleteOrderItem, arg.OrderID, arg.ProductID)
	return err
}

const setFulfilledQuantity = `-- name: SetFulfilledQuantity :execrows
UPDATE order_items
SET fulfilled_quantity = $3
WHERE order_id = $1 AND product_id = $2
`

type SetFulfilledQuantityParams struct {
	OrderID           int64 `json:"order_id"`
	ProductID         int64 `json:"product_id"`
	FulfilledQuantity int32 `json:"fulfilled_quantity"`
}

func (q *Queries) SetFulfilledQuantity(ctx context.Context, arg SetFulfilledQuantityParams) (int64, error) {
	result, err := q.db.Exec(ctx, setFulfilledQuantity, arg.OrderID, arg.ProductID, arg.FulfilledQuantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
