// Package identity resolves a per-request user identity for session ownership.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

const (
	// AnonCookieName carries the anonymous per-device identity.
	AnonCookieName = "hacklab_anon_id"
	// UserHeaderName lets clients pin an explicit user id per request.
	UserHeaderName = "X-User-ID"
	// DefaultUserID is used when no identity can be established.
	DefaultUserID = "default_user"

	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return DefaultUserID
}

// WithUserID returns a context carrying the given user id. Used by handlers
// under test and by non-HTTP callers.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

// IsValidUserID reports whether id is acceptable as an explicit user id.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// resolveUserID picks the request identity: explicit header first, then the
// anonymous device cookie (minting one if needed), then the shared default.
func resolveUserID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if id := r.Header.Get(UserHeaderName); id != "" {
		if IsValidUserID(id) {
			return id
		}
		slog.Warn("Ignoring malformed user id header", "header", UserHeaderName)
	}

	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev) // refresh expiry
		return c.Value
	}

	id, err := generateAnonID()
	if err != nil {
		slog.Error("Failed to generate anonymous id, falling back to default user", "error", err)
		return DefaultUserID
	}
	setAnonCookie(w, id, isDev)
	return id
}

// Middleware injects the resolved user identity into the request context.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := resolveUserID(w, r, isDev)
			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
