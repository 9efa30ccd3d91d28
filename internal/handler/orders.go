package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/fulfillment"
	"github.com/storeorders/api/internal/middleware"
	"github.com/storeorders/api/internal/service"
)

// LifecycleServicer defines the service methods needed by fulfillment handlers.
// Satisfied by *service.LifecycleService; narrow interface for testability.
type LifecycleServicer interface {
	Detail(ctx context.Context, orderID int64, opts service.DetailOptions) (*service.OrderDetail, error)
	OpenForFulfillment(ctx context.Context, orderID int64, opts service.DetailOptions) (*service.OrderDetail, error)
	SetProvisional(ctx context.Context, orderID, productID int64, qty int32) (*service.OrderDetail, error)
	CloseOrder(ctx context.Context, orderID int64, overrides map[int64]int32) (*service.OrderDetail, error)
}

// OrderListStore defines the database methods needed by order lists.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderListStore interface {
	ListOrdersByStatus(ctx context.Context, arg database.ListOrdersByStatusParams) ([]database.ListOrdersByStatusRow, error)
}

// OrderHandler serves the admin and warehouse order screens.
type OrderHandler struct {
	svc          LifecycleServicer
	store        OrderListStore
	closedWindow time.Duration
	now          func() time.Time
}

// NewOrderHandler creates a new OrderHandler. closedWindow limits the
// warehouse's closed list to recently created orders.
func NewOrderHandler(svc LifecycleServicer, store OrderListStore, closedWindow time.Duration) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, closedWindow: closedWindow, now: time.Now}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders behind an ADMIN/WAREHOUSE role check.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/open", h.Open)
	r.Put("/{id}/fulfilled/{pid}", h.SetFulfilled)
	r.Post("/{id}/close", h.Close)
}

// --- Request / Response types ---

type orderResponse struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	StoreName string    `json:"store_name,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type orderDetailResponse struct {
	orderResponse
	fulfillment.View
}

type setFulfilledRequest struct {
	FulfilledQuantity *int32 `json:"fulfilled_quantity"`
}

type closeOrderRequest struct {
	Fulfilled map[int64]int32 `json:"fulfilled"`
}

func listRowToResponse(o database.ListOrdersByStatusRow) orderResponse {
	return orderResponse{
		ID:        o.ID,
		StoreID:   o.StoreID,
		StoreName: o.StoreName,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		StoreID:   o.StoreID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toOrderDetailResponse(o database.GetOrderWithStoreRow, view fulfillment.View) orderDetailResponse {
	return orderDetailResponse{
		orderResponse: orderResponse{
			ID:        o.ID,
			StoreID:   o.StoreID,
			StoreName: o.StoreName,
			Status:    string(o.Status),
			CreatedAt: o.CreatedAt,
			UpdatedAt: o.UpdatedAt,
		},
		View: view,
	}
}

// --- Helpers ---

func isValidStatus(s string) bool {
	switch s {
	case enum.OrderStatusOpen, enum.OrderStatusInProgress, enum.OrderStatusClosed:
		return true
	}
	return false
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyOrder) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrDuplicateProduct) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrProductUnavailable) ||
		errors.Is(err, fulfillment.ErrQuantityOutOfRange) ||
		errors.Is(err, fulfillment.ErrUnknownProduct)
}

// isConflictError reports errors caused by the order's current status.
func isConflictError(err error) bool {
	return errors.Is(err, service.ErrOrderClosed) ||
		errors.Is(err, service.ErrOrderNotOpen) ||
		errors.Is(err, service.ErrStatusConflict) ||
		errors.Is(err, service.ErrInvalidTransition)
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func detailOptions(r *http.Request) service.DetailOptions {
	v, _ := strconv.ParseBool(r.URL.Query().Get("incomplete_only"))
	return service.DetailOptions{IncompleteOnly: v}
}

// closedSince resolves how far back the closed list reaches. An explicit
// closed_since_hours wins; otherwise warehouse and dashboard viewers get the
// configured window and admins see everything.
func (h *OrderHandler) closedSince(r *http.Request) (pgtype.Timestamptz, bool) {
	if s := r.URL.Query().Get("closed_since_hours"); s != "" {
		hours, err := strconv.Atoi(s)
		if err != nil || hours < 0 {
			return pgtype.Timestamptz{}, false
		}
		if hours == 0 {
			return pgtype.Timestamptz{}, true
		}
		return pgtype.Timestamptz{Time: h.now().Add(-time.Duration(hours) * time.Hour), Valid: true}, true
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil && claims.Role == enum.RoleAdmin {
		return pgtype.Timestamptz{}, true
	}
	if h.closedWindow <= 0 {
		return pgtype.Timestamptz{}, true
	}
	return pgtype.Timestamptz{Time: h.now().Add(-h.closedWindow), Valid: true}, true
}

// --- Handlers ---

// List handles GET /orders?status=open|in_progress|closed.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = enum.OrderStatusOpen
	}
	if !isValidStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	params := database.ListOrdersByStatusParams{Status: database.OrderStatus(status)}
	if status == enum.OrderStatusClosed {
		since, ok := h.closedSince(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid closed_since_hours"})
			return
		}
		params.CreatedSince = since
	}

	orders, err := h.store.ListOrdersByStatus(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = listRowToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}. It never changes the order's status.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.Detail(r.Context(), id, detailOptions(r))
	if err != nil {
		writeServiceError(w, err, "get order")
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail.Order, detail.View))
}

// Open handles POST /orders/{id}/open: the viewer selected the order. An open
// order moves to in_progress; when that write fails no detail is returned.
func (h *OrderHandler) Open(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.OpenForFulfillment(r.Context(), id, detailOptions(r))
	if err != nil {
		writeServiceError(w, err, "open order")
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail.Order, detail.View))
}

// SetFulfilled handles PUT /orders/{id}/fulfilled/{pid}. The value is
// provisional until the order is closed.
func (h *OrderHandler) SetFulfilled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	pid, ok := parseID(r, "pid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req setFulfilledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.FulfilledQuantity == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fulfilled_quantity is required"})
		return
	}

	detail, err := h.svc.SetProvisional(r.Context(), id, pid, *req.FulfilledQuantity)
	if err != nil {
		writeServiceError(w, err, "set fulfilled quantity")
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail.Order, detail.View))
}

// Close handles POST /orders/{id}/close. The body is optional; its fulfilled
// map overrides provisional quantities per product id.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req closeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.svc.CloseOrder(r.Context(), id, req.Fulfilled)
	if err != nil {
		writeServiceError(w, err, "close order")
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail.Order, detail.View))
}
