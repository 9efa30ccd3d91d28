package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/storeorders/api/internal/service"
)

// AccumulationServicer defines the service methods needed by report handlers.
// Satisfied by *service.AccumulationService; narrow interface for testability.
type AccumulationServicer interface {
	Accumulated(ctx context.Context) ([]service.AccumulatedItem, error)
}

// ReportsHandler handles warehouse planning reports.
type ReportsHandler struct {
	svc AccumulationServicer
	now func() time.Time
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(svc AccumulationServicer) *ReportsHandler {
	return &ReportsHandler{svc: svc, now: time.Now}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted inside the admin/warehouse /orders subrouter.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/accumulated", h.Accumulated)
}

// --- Response types ---

type accumulatedResponse struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Items       []service.AccumulatedItem `json:"items"`
}

// --- Handlers ---

// Accumulated returns the summed quantities of every product across open
// orders, largest first.
func (h *ReportsHandler) Accumulated(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Accumulated(r.Context())
	if err != nil {
		log.Printf("ERROR: accumulated report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if items == nil {
		items = []service.AccumulatedItem{}
	}

	writeJSON(w, http.StatusOK, accumulatedResponse{
		GeneratedAt: h.now().UTC(),
		Items:       items,
	})
}
