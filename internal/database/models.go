package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusOpen       OrderStatus = "open"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusClosed     OrderStatus = "closed"
)

type StoreRole string

const (
	StoreRoleSTORE     StoreRole = "STORE"
	StoreRoleADMIN     StoreRole = "ADMIN"
	StoreRoleWAREHOUSE StoreRole = "WAREHOUSE"
	StoreRoleDASHBOARD StoreRole = "DASHBOARD"
)

type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"password"`
	Role      StoreRole `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Category      pgtype.Text    `json:"category"`
	Price         pgtype.Numeric `json:"price"`
	Available     bool           `json:"available"`
	SecondaryName pgtype.Text    `json:"secondary_name"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Order struct {
	ID        int64       `json:"id"`
	StoreID   int64       `json:"store_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type OrderItem struct {
	OrderID           int64       `json:"order_id"`
	ProductID         int64       `json:"product_id"`
	Quantity          int32       `json:"quantity"`
	FulfilledQuantity pgtype.Int4 `json:"fulfilled_quantity"`
}
