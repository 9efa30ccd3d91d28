package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, category, price, available, secondary_name, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (Product, error) {
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.Price,
		&i.Available,
		&i.SecondaryName,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) queryProducts(ctx context.Context, sql string, args ...interface{}) ([]Product, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Product{}
	for rows.Next() {
		i, err := scanProduct(rows)
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

const listProducts = `-- name: ListProducts :many
SELECT ` + productColumns + ` FROM products
ORDER BY name, id
`

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	return q.queryProducts(ctx, listProducts)
}

const listAvailableProducts = `-- name: ListAvailableProducts :many
SELECT ` + productColumns + ` FROM products
WHERE available = true
ORDER BY name, id
`

func (q *Queries) ListAvailableProducts(ctx context.Context) ([]Product, error) {
	return q.queryProducts(ctx, listAvailableProducts)
}

const getProduct = `-- name: GetProduct :one
SELECT ` + productColumns + ` FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (id, name, category, price, available, secondary_name)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + productColumns

type CreateProductParams struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Category      pgtype.Text    `json:"category"`
	Price         pgtype.Numeric `json:"price"`
	Available     bool           `json:"available"`
	SecondaryName pgtype.Text    `json:"secondary_name"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.ID,
		arg.Name,
		arg.Category,
		arg.Price,
		arg.Available,
		arg.SecondaryName,
	)
	return scanProduct(row)
}

const updateProduct = `-- name: UpdateProduct :one
UPDATE products
SET id = $1, name = $2, category = $3, price = $4, available = $5, secondary_name = $6, updated_at = now()
WHERE id = $7
RETURNING ` + productColumns

type UpdateProductParams struct {
	NewID         int64          `json:"new_id"`
	Name          string         `json:"name"`
	Category      pgtype.Text    `json:"category"`
	Price         pgtype.Numeric `json:"price"`
	Available     bool           `json:"available"`
	SecondaryName pgtype.Text    `json:"secondary_name"`
	ID            int64          `json:"id"`
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.NewID,
		arg.Name,
		arg.Category,
		arg.Price,
		arg.Available,
		arg.SecondaryName,
		arg.ID,
	)
	return scanProduct(row)
}

const renameProduct = `-- name: RenameProduct :one
UPDATE products
SET name = $2, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

type RenameProductParams struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (q *Queries) RenameProduct(ctx context.Context, arg RenameProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, renameProduct, arg.ID, arg.Name))
}

const toggleProductAvailability = `-- name: ToggleProductAvailability :one
UPDATE products
SET available = NOT available, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

func (q *Queries) ToggleProductAvailability(ctx context.Context, id int64) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, toggleProductAvailability, id))
}
