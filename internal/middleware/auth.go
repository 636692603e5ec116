// Package middleware contains the HTTP middleware of the membership service.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const adminUserKey contextKey = "adminUser"

const (
	sessionCookieName = "admin_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware authenticates admin requests through a signed session cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware creates an AuthMiddleware with the given signing secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware verifies the session cookie and adds the admin user to the
// request context.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), adminUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie sets the session cookie for the given admin user.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, user string) {
	value := a.sign(user)

	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(user string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(user))
	signature := mac.Sum(nil)
	return hex.EncodeToString([]byte(user)) + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return "", false
	}

	userBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	user := string(userBytes)

	expected := a.sign(user)
	expectedParts := strings.Split(expected, ".")
	if len(expectedParts) != 2 {
		return "", false
	}

	if !hmac.Equal([]byte(parts[1]), []byte(expectedParts[1])) {
		return "", false
	}

	return user, true
}

// GetAdminFromContext extracts the authenticated admin user from the request
// context.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(adminUserKey).(string)
	return user, ok
}
