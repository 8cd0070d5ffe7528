package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const UserIDKey contextKey = "user_id"

const (
	// UserIDHeader lets non-browser clients carry their id explicitly.
	UserIDHeader = "X-User-ID"
	// UserIDCookie holds the id the service generated for a browser.
	UserIDCookie = "jamtalk_uid"

	userIDPrefix = "user_"
	maxUserIDLen = 64
	userIDMaxAge = 365 * 24 * time.Hour
)

// Identity resolves the learner id for each request. The header wins over the
// cookie; when neither carries a usable id a new one is generated and stored
// in the cookie.
func Identity(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(UserIDHeader)
			if !validUserID(userID) {
				userID = ""
				if c, err := r.Cookie(UserIDCookie); err == nil && validUserID(c.Value) {
					userID = c.Value
				}
			}
			if userID == "" {
				userID = NewUserID()
				http.SetCookie(w, &http.Cookie{
					Name:     UserIDCookie,
					Value:    userID,
					Path:     "/",
					MaxAge:   int(userIDMaxAge / time.Second),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewUserID generates a learner id.
func NewUserID() string {
	return userIDPrefix + uuid.NewString()
}

// GetUserID extracts the user ID from the request context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func validUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
