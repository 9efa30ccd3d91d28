package database

import (
	"context"
)

const getStoreByID = `-- name: GetStoreByID :one
SELECT id, name, password, role, created_at FROM stores
WHERE id = $1
`

func (q *Queries) GetStoreByID(ctx context.Context, id int64) (Store, error) {
	row := q.db.QueryRow(ctx, getStoreByID, id)
	var i Store
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Password,
		&i.Role,
		&i.CreatedAt,
	)
	return i, err
}

const listStores = `-- name: ListStores :many
SELECT id, name, role FROM stores
ORDER BY id
`

type ListStoresRow struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Role StoreRole `json:"role"`
}

func (q *Queries) ListStores(ctx context.Context) ([]ListStoresRow, error) {
	rows, err := q.db.Query(ctx, listStores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListStoresRow{}
	for rows.Next() {
		var i ListStoresRow
		if err := rows.Scan(&i.ID, &i.Name, &i.Role); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
