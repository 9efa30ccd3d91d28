package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/storeorders/api/internal/cache"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/middleware"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]database.Product, error)
	ListAvailableProducts(ctx context.Context) ([]database.Product, error)
	GetProduct(ctx context.Context, id int64) (database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	RenameProduct(ctx context.Context, arg database.RenameProductParams) (database.Product, error)
	ToggleProductAvailability(ctx context.Context, id int64) (database.Product, error)
}

// ProductHandler handles catalog endpoints.
type ProductHandler struct {
	store ProductStore
	cache cache.Cache
}

// NewProductHandler creates a new ProductHandler. Rendered lists are kept in c
// until an admin changes the catalog.
func NewProductHandler(store ProductStore, c cache.Cache) *ProductHandler {
	return &ProductHandler{store: store, cache: c}
}

// RegisterRoutes registers read endpoints, open to every signed-in role.
// Expected to be mounted at /products.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/categories", h.Categories)
	r.Get("/{id}", h.Get)
}

// RegisterAdminRoutes registers catalog mutations. Callers must gate on ADMIN.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}/name", h.Rename)
	r.Post("/{id}/availability/toggle", h.ToggleAvailability)
}

// --- Request / Response types ---

type productRequest struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Price         string `json:"price"`
	Available     *bool  `json:"available"`
	SecondaryName string `json:"secondary_name"`
}

type renameProductRequest struct {
	Name string `json:"name"`
}

type productResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Category      *string   `json:"category"`
	Price         *string   `json:"price"`
	Available     bool      `json:"available"`
	SecondaryName *string   `json:"secondary_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Available: p.Available,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}

	// Always format with 2 decimal places for consistent money representation.
	if p.Price.Valid {
		val, err := p.Price.Value()
		if err == nil && val != nil {
			d, err := decimal.NewFromString(val.(string))
			if err == nil {
				s := d.StringFixed(2)
				resp.Price = &s
			}
		}
	}

	if p.Category.Valid {
		resp.Category = &p.Category.String
	}
	if p.SecondaryName.Valid {
		resp.SecondaryName = &p.SecondaryName.String
	}
	return resp
}

// --- Helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var errNegativePrice = errors.New("negative price")

// parsePrice converts a decimal string to NUMERIC. An empty string is NULL.
func parsePrice(s string) (pgtype.Numeric, error) {
	if s == "" {
		return pgtype.Numeric{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return pgtype.Numeric{}, err
	}
	if d.IsNegative() {
		return pgtype.Numeric{}, errNegativePrice
	}
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

func optionalText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// availableOnly reports whether the caller is limited to orderable products.
func availableOnly(r *http.Request) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	return claims == nil || claims.Role == enum.RoleStore
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		log.Printf("ERROR: failed to write JSON response: %v", err)
	}
}

// cached serves key from the cache, or renders it with build and stores the
// result. Cache failures fall through to the database.
func (h *ProductHandler) cached(w http.ResponseWriter, r *http.Request, key string, build func() (interface{}, error)) {
	ctx := r.Context()
	if b, ok, err := h.cache.Get(ctx, key); err != nil {
		log.Printf("WARNING: cache get %s: %v", key, err)
	} else if ok {
		writeRawJSON(w, http.StatusOK, b)
		return
	}

	v, err := build()
	if err != nil {
		log.Printf("ERROR: build %s: %v", key, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: encode %s: %v", key, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if err := h.cache.Set(ctx, key, b); err != nil {
		log.Printf("WARNING: cache set %s: %v", key, err)
	}
	writeRawJSON(w, http.StatusOK, b)
}

func (h *ProductHandler) invalidate(ctx context.Context) {
	if err := h.cache.Invalidate(ctx, "products:"); err != nil {
		log.Printf("WARNING: cache invalidate products: %v", err)
	}
}

func (h *ProductHandler) listProducts(ctx context.Context, onlyAvailable bool) ([]database.Product, error) {
	if onlyAvailable {
		return h.store.ListAvailableProducts(ctx)
	}
	return h.store.ListProducts(ctx)
}

// categoriesOf returns the distinct categories of a name-ordered product list
// in first-seen order.
func categoriesOf(products []database.Product) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, p := range products {
		if !p.Category.Valid || p.Category.String == "" || seen[p.Category.String] {
			continue
		}
		seen[p.Category.String] = true
		out = append(out, p.Category.String)
	}
	return out
}

// --- Handlers ---

// List returns the catalog ordered by name. Stores see available products only.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := availableOnly(r)
	key := cache.KeyAllProducts
	if onlyAvailable {
		key = cache.KeyAvailableProducts
	}

	h.cached(w, r, key, func() (interface{}, error) {
		products, err := h.listProducts(r.Context(), onlyAvailable)
		if err != nil {
			return nil, err
		}
		resp := make([]productResponse, len(products))
		for i, p := range products {
			resp[i] = toProductResponse(p)
		}
		return resp, nil
	})
}

// Categories returns the category tabs for the caller's product list.
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := availableOnly(r)
	key := cache.KeyCategories + ":all"
	if onlyAvailable {
		key = cache.KeyCategories + ":available"
	}

	h.cached(w, r, key, func() (interface{}, error) {
		products, err := h.listProducts(r.Context(), onlyAvailable)
		if err != nil {
			return nil, err
		}
		return categoriesOf(products), nil
	})
}

// Get returns a single product by SKU.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !product.Available && availableOnly(r) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// decodeProduct validates a create/update body.
func decodeProduct(w http.ResponseWriter, r *http.Request) (productRequest, pgtype.Numeric, bool) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, pgtype.Numeric{}, false
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return req, pgtype.Numeric{}, false
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		if errors.Is(err, errNegativePrice) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be >= 0"})
		} else {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
		}
		return req, pgtype.Numeric{}, false
	}
	return req, price, true
}

// Create adds a product under a caller-chosen SKU.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, price, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	if req.ID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		ID:            req.ID,
		Name:          req.Name,
		Category:      optionalText(req.Category),
		Price:         price,
		Available:     available,
		SecondaryName: optionalText(req.SecondaryName),
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product id already exists"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.invalidate(r.Context())
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update replaces a product. A different id in the body changes the SKU;
// order lines follow the new SKU.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	req, price, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	newID := req.ID
	if newID == 0 {
		newID = id
	}
	if newID < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	current, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	available := current.Available
	if req.Available != nil {
		available = *req.Available
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		NewID:         newID,
		Name:          req.Name,
		Category:      optionalText(req.Category),
		Price:         price,
		Available:     available,
		SecondaryName: optionalText(req.SecondaryName),
		ID:            id,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product id already exists"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Rename changes only the display name.
func (h *ProductHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req renameProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	product, err := h.store.RenameProduct(r.Context(), database.RenameProductParams{ID: id, Name: name})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: rename product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// ToggleAvailability flips whether stores can order the product.
func (h *ProductHandler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.ToggleProductAvailability(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: toggle product availability: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}
