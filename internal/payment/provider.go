package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tableside/internal/config"
	"tableside/internal/logger"
)

const payPath = "/pg/v1/pay"

// InitiateRequest carries everything the gateway needs to open a payment.
type InitiateRequest struct {
	OrderID   string
	PaymentID string
	Amount    float64
	UserID    string
	Phone     string
}

// InitiateResult is the provider's answer to a successful initiation.
type InitiateResult struct {
	ProviderPaymentID string
	RedirectURL       string
}

// Provider is the payment gateway surface the reconciliation service needs.
type Provider interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
	VerifySignature(body, header string) bool
}

// Gateway talks to a PhonePe-style payment API: base64 request payloads
// signed with an X-VERIFY header of the form sha256(payload+path+saltKey)
// suffixed with "###<saltIndex>".
type Gateway struct {
	baseURL     string
	merchantID  string
	saltKey     string
	saltIndex   int
	callbackURL string
	client      *http.Client
	logger      *logger.Logger
}

// NewGateway creates a gateway client. The salt key is the shared signing
// secret issued by the provider.
func NewGateway(cfg config.PaymentConfig, saltKey string, log *logger.Logger) *Gateway {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		merchantID:  cfg.MerchantID,
		saltKey:     saltKey,
		saltIndex:   cfg.SaltIndex,
		callbackURL: cfg.CallbackURL,
		client:      &http.Client{Timeout: timeout},
		logger:      log,
	}
}

// payRequest is the provider's pay-page payload.
type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl,omitempty"`
	RedirectMode          string            `json:"redirectMode,omitempty"`
	CallbackURL           string            `json:"callbackUrl,omitempty"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     map[string]string `json:"paymentInstrument"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Initiate opens a payment at the provider and returns the redirect URL the
// customer must be sent to. The call is bounded by the client timeout.
func (g *Gateway) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	txnID := "MT" + strings.ReplaceAll(uuid.NewString(), "-", "")

	payload := payRequest{
		MerchantID:            g.merchantID,
		MerchantTransactionID: txnID,
		MerchantUserID:        req.UserID,
		// Provider accounts amounts in the smallest currency unit.
		// Rounded, not truncated: binary float totals like 19.99 sit just
		// under the true paise value.
		Amount:            int64(math.Round(req.Amount * 100)),
		MobileNumber:      req.Phone,
		PaymentInstrument: map[string]string{"type": "PAY_PAGE"},
	}
	if g.callbackURL != "" {
		payload.RedirectURL = fmt.Sprintf("%s?orderId=%s&transactionId=%s", g.callbackURL, req.OrderID, txnID)
		payload.RedirectMode = "REDIRECT"
		payload.CallbackURL = g.callbackURL
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", g.sign(encoded+payPath))
	httpReq.Header.Set("X-MERCHANT-ID", g.merchantID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed payResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("provider rejected payment: %s %s", parsed.Code, parsed.Message)
	}

	providerID := parsed.Data.MerchantTransactionID
	if providerID == "" {
		providerID = txnID
	}

	return &InitiateResult{
		ProviderPaymentID: providerID,
		RedirectURL:       parsed.Data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

// VerifySignature checks a webhook X-VERIFY header against the raw body.
// The header carries "<sha256(body+saltKey)>###<saltIndex>".
func (g *Gateway) VerifySignature(body, header string) bool {
	parts := strings.SplitN(header, "###", 2)
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	sum := sha256.Sum256([]byte(body + g.saltKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(parts[0])) == 1
}

// sign produces the X-VERIFY value for an outbound request.
func (g *Gateway) sign(material string) string {
	sum := sha256.Sum256([]byte(material + g.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + fmt.Sprintf("%d", g.saltIndex)
}
