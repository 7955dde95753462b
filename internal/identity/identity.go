// Package identity provides anonymous per-browser session identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"
)

const (
	SessionCookieName = "docqa_sid"
	sessionCookieAge  = 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^sess_[a-f0-9]{32}$`)

// SessionEnsurer creates the session row on first sight and records activity.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context, sessionID string) error
}

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func generateSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "sess_" + hex.EncodeToString(buf), nil
}

// IsValidSessionID reports whether id has the shape minted by this package.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func setSessionCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateSessionID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(SessionCookieName); err == nil && IsValidSessionID(c.Value) {
		setSessionCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	setSessionCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the per-browser session ID, minting one when the cookie is missing or invalid.
func Middleware(sessions SessionEnsurer, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := getOrCreateSessionID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish session"}`, http.StatusInternalServerError)
				return
			}

			if err := sessions.EnsureSession(r.Context(), sessionID); err != nil {
				slog.Error("Failed to initialize session", "error", err, "session_id", sessionID, "ip", IPFromRequest(r))
				http.Error(w, `{"error":"failed to initialize session"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
