package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storeorders/api/internal/dashboard"
)

// DashboardHandler serves the TV board.
type DashboardHandler struct {
	board *dashboard.Board
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(board *dashboard.Board) *DashboardHandler {
	return &DashboardHandler{board: board}
}

// RegisterRoutes registers dashboard endpoints.
// Expected to be mounted at /dashboard.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/board", h.Board)
}

// Board returns the latest applied snapshot. Before the first poll lands the
// board is unavailable rather than empty.
func (h *DashboardHandler) Board(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.board.Latest()
	if !ok {
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "board not ready"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
