// Package middleware hosts authentication, request-correlation, and logging middleware.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxOperatorKey contextKey = "operator"
	ctxStepUpKey   contextKey = "step_up_verified"
)

// TokenBlacklist defines the interface for checking revoked tokens.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware validates bearer JWTs issued to control-plane operators
// and injects the operator's identity into the request context.
type AuthMiddleware struct {
	jwtSecret string
	blacklist TokenBlacklist
}

// NewAuthMiddleware constructs an AuthMiddleware with the given secret and optional blacklist.
func NewAuthMiddleware(secret string, blacklist TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: secret,
		blacklist: blacklist,
	}
}

// Authenticate enforces bearer auth and populates the operator's subject
// claim on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			respondJSONError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondJSONError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}
		tokenString := parts[1]

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsBlacklisted(r.Context(), tokenString)
			if err != nil {
				respondJSONError(w, http.StatusServiceUnavailable, "Authentication service unavailable")
				return
			}
			if revoked {
				respondJSONError(w, http.StatusUnauthorized, "Token revoked")
				return
			}
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		})

		if err != nil || !token.Valid {
			respondJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			respondJSONError(w, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		operator, ok := claims["sub"].(string)
		if !ok || operator == "" {
			respondJSONError(w, http.StatusUnauthorized, "Invalid operator subject in token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxOperatorKey, operator)
		if stepUp, _ := claims["step_up"].(bool); stepUp {
			ctx = context.WithValue(ctx, ctxStepUpKey, true)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFromContext extracts the authenticated operator's subject from
// the request context.
func OperatorFromContext(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(ctxOperatorKey).(string)
	return operator, ok
}

// StepUpVerified reports whether the bearer token carries a fresh TOTP
// step-up claim, required before an irreversible control action runs.
func StepUpVerified(ctx context.Context) bool {
	verified, _ := ctx.Value(ctxStepUpKey).(bool)
	return verified
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
