package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
)

type contextKey string

const rolesKey contextKey = "roles"

// AuthMiddleware provides JWT authentication. The authenticated principal
// is the numeric user_id claim.
type AuthMiddleware struct {
	jwtSecret []byte
	skipPaths []string
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret []byte) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
		skipPaths: []string{
			"/health",
			"/ready",
			"/metrics",
		},
	}
}

// Middleware returns the middleware handler
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for probes and metrics
		for _, path := range m.skipPaths {
			if r.URL.Path == path || strings.HasPrefix(r.URL.Path, path+"/") {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Without a secret no token can be trusted.
		if len(m.jwtSecret) == 0 {
			respondError(w, http.StatusUnauthorized, "token verification is not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}

		userID, ok := parseUserID(claims["user_id"])
		if !ok {
			respondError(w, http.StatusUnauthorized, "token has no valid user_id claim")
			return
		}

		ctx := WithUserID(r.Context(), userID)
		if roles, ok := claims["roles"].([]interface{}); ok {
			ctx = context.WithValue(ctx, rolesKey, roles)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole creates a middleware that requires a specific role
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, _ := ExtractRoles(r.Context())
			for _, have := range roles {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, logger.UserIDKey, userID)
}

// ExtractUserID extracts the user ID from the context
func ExtractUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(logger.UserIDKey).(int64)
	return userID, ok && userID > 0
}

// ExtractRoles extracts roles from the context
func ExtractRoles(ctx context.Context) ([]string, bool) {
	rolesInterface, ok := ctx.Value(rolesKey).([]interface{})
	if !ok {
		return nil, false
	}

	roles := make([]string, 0, len(rolesInterface))
	for _, r := range rolesInterface {
		if roleStr, ok := r.(string); ok {
			roles = append(roles, roleStr)
		}
	}
	return roles, true
}

// parseUserID accepts numeric and string claims.
func parseUserID(claim interface{}) (int64, bool) {
	switch v := claim.(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": http.StatusText(status), "message": message},
	})
}
