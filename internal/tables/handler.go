package tables

import (
	"encoding/json"
	"net/http"
	"time"

	"tableside/internal/logger"
)

// Handler serves the table listing used by the QR landing page.
type Handler struct {
	registry *Registry
	logger   *logger.Logger
}

// NewHandler creates a tables handler.
func NewHandler(registry *Registry, log *logger.Logger) *Handler {
	return &Handler{registry: registry, logger: log}
}

// RegisterRoutes mounts the table routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/tables", h.listTables)
}

// listTables handles GET /api/tables
func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	tables, err := h.registry.ListTables(r.Context())
	if err != nil {
		h.logger.Error("table_list_failed", "Failed to list tables", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tables": tables})
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
