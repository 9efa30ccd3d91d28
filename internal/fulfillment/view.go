package fulfillment

import (
	"github.com/storeorders/api/internal/database"
)

// Line is one item of an order detail view.
type Line struct {
	ProductID         int64     `json:"product_id"`
	ProductName       string    `json:"product_name"`
	Category          string    `json:"category"`
	SecondaryName     *string   `json:"secondary_name,omitempty"`
	Quantity          int32     `json:"quantity"`
	FulfilledQuantity int32     `json:"fulfilled_quantity"`
	FullyFulfilled    bool      `json:"fully_fulfilled"`
	Selector          *Selector `json:"selector,omitempty"`
}

// Group collects lines sharing a category.
type Group struct {
	Category string `json:"category"`
	Lines    []Line `json:"lines"`
}

// View is the fulfillment state of an order as shown to a viewer.
type View struct {
	Groups          []Group `json:"groups"`
	IncompleteCount int     `json:"incomplete_count"`
	TotalItems      int     `json:"total_items"`
}

// OrderItem strips the product columns off a detail row.
func OrderItem(row database.ListOrderItemDetailsRow) database.OrderItem {
	return database.OrderItem{
		OrderID:           row.OrderID,
		ProductID:         row.ProductID,
		Quantity:          row.Quantity,
		FulfilledQuantity: row.FulfilledQuantity,
	}
}

// OrderItems converts detail rows for seeding a tracker.
func OrderItems(rows []database.ListOrderItemDetailsRow) []database.OrderItem {
	out := make([]database.OrderItem, len(rows))
	for i, r := range rows {
		out[i] = OrderItem(r)
	}
	return out
}

// BuildView groups rows by category, keeping the order categories first appear
// in rows. Uncategorized lines go last. With a nil tracker, persisted values
// are shown and no selector is offered. incompleteOnly hides fully fulfilled
// lines; IncompleteCount always covers every line.
func BuildView(status database.OrderStatus, rows []database.ListOrderItemDetailsRow, t *Tracker, incompleteOnly bool) View {
	editable := t != nil && status != database.OrderStatusClosed

	v := View{
		Groups:          []Group{},
		TotalItems:      len(rows),
		IncompleteCount: IncompleteCount(status, OrderItems(rows), t),
	}
	index := make(map[string]int)
	var uncategorized []Line

	for _, row := range rows {
		item := OrderItem(row)
		line := Line{
			ProductID:         row.ProductID,
			ProductName:       row.ProductName,
			Quantity:          row.Quantity,
			FulfilledQuantity: Effective(status, item, t),
		}
		line.FullyFulfilled = IsFullyFulfilled(status, item, t)
		if row.Category.Valid {
			line.Category = row.Category.String
		}
		if row.SecondaryName.Valid {
			s := row.SecondaryName.String
			line.SecondaryName = &s
		}
		if editable {
			sel := SelectorFor(item)
			line.Selector = &sel
		}

		if incompleteOnly && line.FullyFulfilled {
			continue
		}

		if line.Category == "" {
			uncategorized = append(uncategorized, line)
			continue
		}
		i, ok := index[line.Category]
		if !ok {
			i = len(v.Groups)
			index[line.Category] = i
			v.Groups = append(v.Groups, Group{Category: line.Category})
		}
		v.Groups[i].Lines = append(v.Groups[i].Lines, line)
	}

	if len(uncategorized) > 0 {
		v.Groups = append(v.Groups, Group{Category: "", Lines: uncategorized})
	}
	return v
}
