package order

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
	"tableside/internal/session"
)

// Handler handles HTTP requests for the order engine
type Handler struct {
	service  *Service
	sessions *session.Store
	verifier auth.Verifier
	logger   *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, sessions *session.Store, verifier auth.Verifier, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		verifier: verifier,
		logger:   log,
	}
}

// RegisterRoutes mounts the order routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/orders", h.handleOrders)
	mux.HandleFunc("/api/orders/", h.routeOrderRequests)
}

// handleOrders handles POST /api/orders and GET /api/orders
func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createOrder(w, r)
	case http.MethodGet:
		h.listOrders(w, r)
	default:
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", logger.GenerateRequestID())
	}
}

// routeOrderRequests dispatches /api/orders/... subpaths
func (h *Handler) routeOrderRequests(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	path := strings.TrimPrefix(r.URL.Path, "/api/orders/")

	switch {
	case strings.HasPrefix(path, "public/"):
		h.getOrderPublic(w, r, strings.TrimPrefix(path, "public/"), requestID)
	case strings.HasPrefix(path, "table/"):
		h.listOrdersByTable(w, r, strings.TrimPrefix(path, "table/"), requestID)
	case strings.HasSuffix(path, "/status"):
		h.updateStatus(w, r, strings.TrimSuffix(path, "/status"), requestID)
	case strings.HasSuffix(path, "/cancel"):
		h.cancelOrder(w, r, strings.TrimSuffix(path, "/cancel"), requestID)
	case path != "" && !strings.Contains(path, "/"):
		h.getOrder(w, r, path, requestID)
	default:
		h.writeErrorResponse(w, http.StatusNotFound, "Not found", requestID)
	}
}

// createOrder handles POST /api/orders
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Header.Get("Content-Type") != "application/json" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Content-Type must be application/json", requestID)
		return
	}

	var req models.CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sessionID, err := h.sessions.Ensure(ctx, w, r)
	if err != nil {
		h.logger.Error("session_failed", "Failed to establish session", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	order, err := h.service.CreateOrder(ctx, &req, sessionID, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order, requestID)
}

// listOrders handles GET /api/orders for staff
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), identity)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders}, requestID)
}

// getOrder handles GET /api/orders/{id}
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, orderID, requestID string) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	sessionID, _ := h.sessions.Resolve(r.Context(), r)

	order, err := h.service.GetOrder(r.Context(), orderID, identity, sessionID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// getOrderPublic handles GET /api/orders/public/{id}
func (h *Handler) getOrderPublic(w http.ResponseWriter, r *http.Request, orderID, requestID string) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	order, err := h.service.GetOrderPublic(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// listOrdersByTable handles GET /api/orders/table/{tableId}
func (h *Handler) listOrdersByTable(w http.ResponseWriter, r *http.Request, tableID, requestID string) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	orders, err := h.service.ListOrdersByTable(r.Context(), tableID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders}, requestID)
}

// updateStatus handles PATCH /api/orders/{id}/status
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, orderID, requestID string) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	var req models.UpdateStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, req.Status, identity, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// cancelOrder handles POST /api/orders/{id}/cancel
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request, orderID, requestID string) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	sessionID, _ := h.sessions.Resolve(r.Context(), r)

	order, err := h.service.CancelOrder(r.Context(), orderID, identity, sessionID, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// writeError maps a service error onto the wire taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request_failed", "Order operation failed", requestID, err, nil)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      apperr.Message(err),
		"kind":       apperr.KindOf(err),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
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

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}
