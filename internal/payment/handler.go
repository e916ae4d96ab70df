package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Handler handles HTTP requests for payments
type Handler struct {
	service   *Service
	clientURL string
	limiter   *rate.Limiter
	verifier  auth.Verifier
	logger    *logger.Logger
}

// NewHandler creates a new payment handler. clientURL is where redirect-style
// callbacks send the customer; empty disables redirects in favour of JSON.
func NewHandler(service *Service, clientURL string, limiter *rate.Limiter, verifier auth.Verifier, log *logger.Logger) *Handler {
	return &Handler{
		service:   service,
		clientURL: strings.TrimSuffix(clientURL, "/"),
		limiter:   limiter,
		verifier:  verifier,
		logger:    log,
	}
}

// RegisterRoutes mounts the payment routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/payments/create", h.createPayment)
	mux.HandleFunc("/api/payments/callback", h.paymentCallback)
	mux.HandleFunc("/api/payments/webhook", h.paymentWebhook)
	mux.HandleFunc("/api/payments/status/", h.checkStatus)
	mux.HandleFunc("/api/payments/admin/", h.getPaymentDetails)
}

// createPayment handles POST /api/payments/create
func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		h.writeErrorResponse(w, http.StatusTooManyRequests, "Too many payment requests", requestID)
		return
	}

	var req models.CreatePaymentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := h.service.CreatePayment(ctx, &req, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, response, requestID)
}

// paymentCallback handles GET /api/payments/callback, the redirect the
// provider sends the customer's browser through after payment.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	query := r.URL.Query()
	orderID := query.Get("orderId")
	txnID := query.Get("transactionId")
	status := query.Get("status")

	payment, err := h.service.HandleCallback(r.Context(), orderID, txnID, status, requestID)
	if err != nil {
		h.logger.Error("payment_callback_failed", "Callback processing failed", requestID, err, map[string]interface{}{
			"order_id":       orderID,
			"transaction_id": txnID,
		})
		if h.clientURL != "" {
			http.Redirect(w, r, h.clientURL+"/payment/status?error=payment_failed", http.StatusFound)
			return
		}
		h.writeError(w, err, requestID)
		return
	}

	if h.clientURL != "" {
		target := fmt.Sprintf("%s/payment/status?orderId=%s&status=%s",
			h.clientURL, url.QueryEscape(orderID), url.QueryEscape(string(payment.Status)))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   payment.Status,
	}, requestID)
}

// paymentWebhook handles POST /api/payments/webhook, the provider's
// server-to-server notification.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Failed to read webhook body", requestID)
		return
	}

	if _, err := h.service.HandleWebhook(r.Context(), body, requestID); err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true}, requestID)
}

// checkStatus handles GET /api/payments/status/{orderId}
func (h *Handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	orderID := strings.TrimPrefix(r.URL.Path, "/api/payments/status/")
	if orderID == "" || strings.Contains(orderID, "/") {
		h.writeErrorResponse(w, http.StatusNotFound, "Not found", requestID)
		return
	}

	response, err := h.service.CheckStatus(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, response, requestID)
}

// getPaymentDetails handles GET /api/payments/admin/{id}
func (h *Handler) getPaymentDetails(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}

	paymentID := strings.TrimPrefix(r.URL.Path, "/api/payments/admin/")
	if paymentID == "" || strings.Contains(paymentID, "/") {
		h.writeErrorResponse(w, http.StatusNotFound, "Not found", requestID)
		return
	}

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	details, err := h.service.GetPaymentDetails(r.Context(), paymentID, identity)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, details, requestID)
}

// writeError maps a service error onto the wire taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request_failed", "Payment operation failed", requestID, err, nil)
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
