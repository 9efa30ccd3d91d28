package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/fulfillment"
	"github.com/storeorders/api/internal/service"
)

// SubmissionServicer defines the service methods needed by store order handlers.
// Satisfied by *service.SubmissionService; narrow interface for testability.
type SubmissionServicer interface {
	SubmitOrder(ctx context.Context, storeID int64, cart []service.SubmitItem) (*service.SubmitResult, error)
	SetItemQuantity(ctx context.Context, req service.ItemEditRequest) (*service.ItemEditResult, error)
}

// StoreOrderStore defines the database methods needed by store order reads.
// Satisfied by *database.Queries; narrow interface for testability.
type StoreOrderStore interface {
	GetLatestOpenOrderByStore(ctx context.Context, storeID int64) (database.Order, error)
	GetOrderWithStore(ctx context.Context, id int64) (database.GetOrderWithStoreRow, error)
	ListOrderItemDetails(ctx context.Context, orderID int64) ([]database.ListOrderItemDetailsRow, error)
	ListStoreOrdersByStatus(ctx context.Context, arg database.ListStoreOrdersByStatusParams) ([]database.Order, error)
}

// StoreOrderHandler serves a store's own ordering screens.
type StoreOrderHandler struct {
	svc   SubmissionServicer
	store StoreOrderStore
}

// NewStoreOrderHandler creates a new StoreOrderHandler.
func NewStoreOrderHandler(svc SubmissionServicer, store StoreOrderStore) *StoreOrderHandler {
	return &StoreOrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers store order endpoints on the given Chi router.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/orders
func (h *StoreOrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Get("/", h.History)
	r.Get("/current", h.Current)
	r.Put("/current/items/{pid}", h.SetItem)
	r.Get("/{id}", h.Get)
}

// --- Request / Response types ---

type submitOrderRequest struct {
	Items []submitOrderItemRequest `json:"items"`
}

type submitOrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type setItemRequest struct {
	Quantity        *int32 `json:"quantity"`
	ExpectedOrderID int64  `json:"expected_order_id"`
}

type orderItemResponse struct {
	ProductID         int64  `json:"product_id"`
	Quantity          int32  `json:"quantity"`
	FulfilledQuantity *int32 `json:"fulfilled_quantity"`
}

type storeOrderResponse struct {
	orderResponse
	Items []orderItemResponse `json:"items"`
}

type setItemResponse struct {
	Order           *storeOrderResponse `json:"order"`
	NewOrderStarted bool                `json:"new_order_started"`
	Message         string              `json:"message,omitempty"`
}

func toOrderItemResponses(items []database.OrderItem) []orderItemResponse {
	resp := make([]orderItemResponse, len(items))
	for i, it := range items {
		resp[i] = orderItemResponse{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.FulfilledQuantity.Valid {
			fq := it.FulfilledQuantity.Int32
			resp[i].FulfilledQuantity = &fq
		}
	}
	return resp
}

// --- Handlers ---

// Submit handles POST /stores/{sid}/orders. The whole cart becomes one new
// order.
func (h *StoreOrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	storeID, ok := parseID(r, "sid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	cart := make([]service.SubmitItem, len(req.Items))
	for i, it := range req.Items {
		cart[i] = service.SubmitItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.svc.SubmitOrder(r.Context(), storeID, cart)
	if err != nil {
		writeServiceError(w, err, "submit order")
		return
	}

	writeJSON(w, http.StatusCreated, storeOrderResponse{
		orderResponse: dbOrderToResponse(result.Order),
		Items:         toOrderItemResponses(result.Items),
	})
}

// SetItem handles PUT /stores/{sid}/orders/current/items/{pid}. Quantity 0
// removes the line.
func (h *StoreOrderHandler) SetItem(w http.ResponseWriter, r *http.Request) {
	storeID, ok := parseID(r, "sid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}
	pid, ok := parseID(r, "pid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req setItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity is required"})
		return
	}

	result, err := h.svc.SetItemQuantity(r.Context(), service.ItemEditRequest{
		StoreID:         storeID,
		ExpectedOrderID: req.ExpectedOrderID,
		ProductID:       pid,
		Quantity:        *req.Quantity,
	})
	if err != nil {
		writeServiceError(w, err, "set order item")
		return
	}

	resp := setItemResponse{NewOrderStarted: result.NewOrderStarted}
	if result.Order != nil {
		resp.Order = &storeOrderResponse{
			orderResponse: dbOrderToResponse(*result.Order),
			Items:         toOrderItemResponses(result.Items),
		}
	}
	if result.NewOrderStarted {
		resp.Message = "your previous order is already being processed; a new order was started"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Current handles GET /stores/{sid}/orders/current: the latest open order.
func (h *StoreOrderHandler) Current(w http.ResponseWriter, r *http.Request) {
	storeID, ok := parseID(r, "sid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	order, err := h.store.GetLatestOpenOrderByStore(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no open order"})
			return
		}
		log.Printf("ERROR: get current order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.writeDetail(w, r, storeID, order.ID)
}

// History handles GET /stores/{sid}/orders. Without a status filter it lists
// the orders the warehouse has picked up or finished, newest activity first.
func (h *StoreOrderHandler) History(w http.ResponseWriter, r *http.Request) {
	storeID, ok := parseID(r, "sid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	statuses := []string{enum.OrderStatusInProgress, enum.OrderStatusClosed}
	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		statuses = []string{s}
	}

	var orders []database.Order
	for _, s := range statuses {
		batch, err := h.store.ListStoreOrdersByStatus(r.Context(), database.ListStoreOrdersByStatusParams{
			StoreID: storeID,
			Status:  database.OrderStatus(s),
		})
		if err != nil {
			log.Printf("ERROR: list store orders: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		orders = append(orders, batch...)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].UpdatedAt.After(orders[j].UpdatedAt)
	})

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /stores/{sid}/orders/{id}. Orders of other stores are
// reported as missing.
func (h *StoreOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := parseID(r, "sid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	h.writeDetail(w, r, storeID, id)
}

// writeDetail renders an order for its store. Stores only ever see the
// persisted fulfilled quantities.
func (h *StoreOrderHandler) writeDetail(w http.ResponseWriter, r *http.Request, storeID, orderID int64) {
	order, err := h.store.GetOrderWithStore(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if order.StoreID != storeID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	rows, err := h.store.ListOrderItemDetails(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	view := fulfillment.BuildView(order.Status, rows, nil, false)
	writeJSON(w, http.StatusOK, toOrderDetailResponse(order, view))
}
