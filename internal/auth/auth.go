// Package auth provides role definitions and credential verification.
// Token issuance lives outside this system; we only verify.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tableside/internal/apperr"
)

// Role identifies what a connected party is allowed to do.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleKitchen  Role = "kitchen"
	RoleRunner   Role = "runner"
	RoleCustomer Role = "customer"
)

// IsStaff reports whether the role belongs to restaurant staff.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleKitchen || r == RoleRunner
}

// Identity is the result of verifying a credential. Customers have no
// credential; their identity is the session binding.
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Anonymous returns the identity assigned to connections without a credential.
func Anonymous() Identity {
	return Identity{Role: RoleCustomer, IsActive: true}
}

// Verifier checks a staff credential and yields the identity it carries.
type Verifier interface {
	Verify(credential string) (Identity, error)
}

// tokenClaims is the signed payload of a staff token.
type tokenClaims struct {
	Identity
	ExpiresAt int64 `json:"exp"`
}

// TokenVerifier verifies HMAC-SHA256 signed tokens of the form
// base64url(claims).hexsignature.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier creates a verifier with the given shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify validates the token signature, expiry and account state.
func (v *TokenVerifier) Verify(credential string) (Identity, error) {
	parts := strings.SplitN(credential, ".", 2)
	if len(parts) != 2 {
		return Identity{}, apperr.Unauthenticated("malformed credential")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Identity{}, apperr.Unauthenticated("malformed credential payload")
	}

	if !hmac.Equal([]byte(v.sign(parts[0])), []byte(parts[1])) {
		return Identity{}, apperr.Unauthenticated("invalid credential signature")
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Identity{}, apperr.Unauthenticated("invalid credential claims")
	}

	if claims.ExpiresAt != 0 && v.now().Unix() > claims.ExpiresAt {
		return Identity{}, apperr.Unauthenticated("credential expired")
	}
	if !claims.IsActive {
		return Identity{}, apperr.Unauthenticated("account deactivated")
	}
	if !claims.Role.IsStaff() {
		return Identity{}, apperr.Unauthenticated("credential carries no staff role")
	}

	return claims.Identity, nil
}

// Sign produces a credential for the given identity, used by tests and the
// external token issuer during development.
func (v *TokenVerifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	claims := tokenClaims{Identity: identity}
	if ttl > 0 {
		claims.ExpiresAt = v.now().Add(ttl).Unix()
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + v.sign(encoded), nil
}

func (v *TokenVerifier) sign(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
