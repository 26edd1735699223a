// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/httputil"
	"github.com/corpulate/platform/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// AuthMiddleware verifies bearer tokens and exposes the caller's identity.
type AuthMiddleware struct {
	tokens *auth.TokenManager
	logger *logger.Logger
}

// NewAuthMiddleware creates an authentication middleware.
func NewAuthMiddleware(tokens *auth.TokenManager, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{tokens: tokens, logger: log}
}

// Handler rejects requests that lack a valid bearer token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.tokens.Verify(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("token verification failed")
			m.respondError(w, r, errors.Unauthorized("Invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = logger.WithUserID(ctx, strconv.FormatInt(claims.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err)
	m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
}

// GetClaims returns the verified token claims, if the request was
// authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// GetUserID returns the authenticated user's ID, or zero.
func GetUserID(ctx context.Context) int64 {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return 0
}
