package auth

import (
	"net/http"
	"strings"
)

// FromRequest resolves the caller's identity from an Authorization bearer
// header or a token query parameter. Requests without a credential are
// anonymous customers; an invalid credential is an error, not anonymity.
func FromRequest(v Verifier, r *http.Request) (Identity, error) {
	credential := ""
	if header := r.Header.Get("Authorization"); header != "" {
		credential = strings.TrimPrefix(header, "Bearer ")
	} else if token := r.URL.Query().Get("token"); token != "" {
		credential = token
	}

	if credential == "" {
		return Anonymous(), nil
	}
	return v.Verify(credential)
}
