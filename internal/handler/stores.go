package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storeorders/api/internal/database"
)

// StoreListStore defines the database methods needed by the store list.
// Satisfied by *database.Queries; narrow interface for testability.
type StoreListStore interface {
	ListStores(ctx context.Context) ([]database.ListStoresRow, error)
}

// StoreHandler serves the login selector's store list.
type StoreHandler struct {
	store StoreListStore
}

// NewStoreHandler creates a new StoreHandler.
func NewStoreHandler(store StoreListStore) *StoreHandler {
	return &StoreHandler{store: store}
}

// RegisterRoutes registers the public store list.
func (h *StoreHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stores", h.List)
}

// List returns every account's id, name and role. Passwords never leave the
// database layer.
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	stores, err := h.store.ListStores(r.Context())
	if err != nil {
		log.Printf("ERROR: list stores: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]storeResponse, len(stores))
	for i, s := range stores {
		resp[i] = storeResponse{ID: s.ID, Name: s.Name, Role: string(s.Role)}
	}
	writeJSON(w, http.StatusOK, resp)
}
