package catalog

import (
	"encoding/json"
	"net/http"
	"time"

	"tableside/internal/logger"
)

// Handler serves the read-only menu listing.
type Handler struct {
	repo   *Repository
	logger *logger.Logger
}

// NewHandler creates a menu handler.
func NewHandler(repo *Repository, log *logger.Logger) *Handler {
	return &Handler{repo: repo, logger: log}
}

// RegisterRoutes mounts the menu routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/menu", h.listMenu)
}

// listMenu handles GET /api/menu
func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	items, err := h.repo.ListItems(r.Context())
	if err != nil {
		h.logger.Error("menu_list_failed", "Failed to list menu items", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}
