package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func principalHandler(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_Disabled(t *testing.T) {
	t.Parallel()
	var principal string
	h := Auth(AuthConfig{})(principalHandler(&principal))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, principal)
}

func TestAuth(t *testing.T) {
	t.Parallel()
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name          string
		authorization string
		apiKey        string
		wantStatus    int
		wantPrincipal string
	}{
		{
			name:          "valid bearer",
			authorization: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "exp": future}),
			wantStatus:    http.StatusOK,
			wantPrincipal: "alice",
		},
		{
			name:          "expired bearer",
			authorization: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice", "exp": past}),
			wantStatus:    http.StatusUnauthorized,
		},
		{
			name:          "wrong secret",
			authorization: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice"}),
			wantStatus:    http.StatusUnauthorized,
		},
		{
			name:          "wrong algorithm",
			authorization: "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "alice"}),
			wantStatus:    http.StatusUnauthorized,
		},
		{
			name:          "missing subject",
			authorization: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"exp": future}),
			wantStatus:    http.StatusUnauthorized,
		},
		{
			name:          "api key",
			apiKey:        "k-123",
			wantStatus:    http.StatusOK,
			wantPrincipal: APIKeyPrincipal,
		},
		{
			name:       "wrong api key",
			apiKey:     "k-999",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:          "bad bearer falls back to api key",
			authorization: "Bearer garbage",
			apiKey:        "k-123",
			wantStatus:    http.StatusOK,
			wantPrincipal: APIKeyPrincipal,
		},
		{
			name:       "no credentials",
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var principal string
			h := Auth(AuthConfig{JWTSecret: testSecret, APIKey: "k-123"})(principalHandler(&principal))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantPrincipal, principal)
		})
	}
}
