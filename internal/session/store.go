// Package session binds anonymous diners to a cookie-backed session so
// their orders can be attributed without any signup flow.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// CookieName is the session cookie issued to customer browsers.
const CookieName = "tableside_session"

// DefaultTTL matches the cookie lifetime of one day.
const DefaultTTL = 24 * time.Hour

// Store keeps session records in Redis keyed by session id. A session is
// valid only while its Redis record exists; expired cookies are replaced
// transparently on the next request.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func key(id string) string {
	return "session:" + id
}

// Ensure returns the caller's session id, creating a fresh session and
// setting the cookie when the request carries none or a stale one. The
// record's TTL is refreshed on every call.
func (s *Store) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	if id, ok := s.Resolve(ctx, r); ok {
		if err := s.client.Expire(ctx, key(id), s.ttl).Err(); err != nil {
			return "", fmt.Errorf("failed to refresh session: %w", err)
		}
		return id, nil
	}

	id := "sess_" + uuid.NewString()
	if err := s.client.Set(ctx, key(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Resolve returns the session id from the request cookie if the session
// still exists in Redis. It never creates a session.
func (s *Store) Resolve(ctx context.Context, r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	n, err := s.client.Exists(ctx, key(cookie.Value)).Result()
	if err != nil || n == 0 {
		return "", false
	}
	return cookie.Value, true
}
