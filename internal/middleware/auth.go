// Package middleware provides HTTP middleware for the query server: request
// IDs, access logging, rate limiting, and bearer or API key authentication.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type principalKey struct{}

// WithPrincipal stores the principal name in the context.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext extracts the principal name from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok
}

// AuthConfig selects the accepted credentials. With both fields empty
// authentication is disabled.
type AuthConfig struct {
	// JWTSecret validates HS256 bearer tokens; the "sub" claim names the principal.
	JWTSecret []byte
	// APIKey is a static key accepted in the X-API-Key header.
	APIKey string
}

// Enabled reports whether any credential is configured.
func (c AuthConfig) Enabled() bool {
	return len(c.JWTSecret) > 0 || c.APIKey != ""
}

// APIKeyPrincipal is the principal name attached to API key requests.
const APIKeyPrincipal = "api-key"

// Authenticate checks an Authorization header value and an API key against
// cfg and returns the principal name.
func Authenticate(cfg AuthConfig, authorization, apiKey string) (string, bool) {
	if sub, ok := bearerSubject(authorization, cfg.JWTSecret); ok {
		return sub, true
	}
	if apiKey != "" && cfg.APIKey != "" &&
		subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.APIKey)) == 1 {
		return APIKeyPrincipal, true
	}
	return "", false
}

// Auth tries a JWT bearer token first, then the API key. Returns 401 if both fail.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, ok := Authenticate(cfg, r.Header.Get("Authorization"), r.Header.Get("X-API-Key")); ok {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    401,
				"message": "unauthorized: provide a valid JWT Bearer token or API key",
			})
		})
	}
}

func bearerSubject(authorization string, secret []byte) (string, bool) {
	if len(secret) == 0 || !strings.HasPrefix(authorization, "Bearer ") {
		return "", false
	}
	token, err := jwt.Parse(strings.TrimPrefix(authorization, "Bearer "), func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", false
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
