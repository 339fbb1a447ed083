package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"topup_store/internal/models"
)

// contextKey is a custom type used for storing values in a context without risking collisions.
type contextKey string

const (
	// ContextUserID is the context key of the authenticated user ID.
	ContextUserID contextKey = "contextUserID"
	// ContextRole is the context key of the authenticated user's role.
	ContextRole contextKey = "contextRole"
)

// CheckJWTMiddleware requires a valid Bearer token and stores the user ID and role
// from its claims in the request context.
func CheckJWTMiddleware() func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				writeErrorResponse(w, "missing auth header", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeErrorResponse(w, "invalid auth header", http.StatusUnauthorized)
				return
			}

			claims, err := ParseToken(parts[1])
			if err != nil {
				writeErrorResponse(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextRole, claims.Role)
			h.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// OptionalJWTMiddleware stores the user ID and role of a valid Bearer token in the
// request context and lets requests without one through anonymously.
func OptionalJWTMiddleware() func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Split(r.Header.Get("Authorization"), " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := ParseToken(parts[1]); err == nil {
					ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
					ctx = context.WithValue(ctx, ContextRole, claims.Role)
					r = r.WithContext(ctx)
				}
			}
			h.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// RequireRole rejects requests whose token does not carry one of the given roles.
// It must run after CheckJWTMiddleware.
func RequireRole(roles ...models.Role) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			role, _ := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					h.ServeHTTP(w, r)
					return
				}
			}
			writeErrorResponse(w, "forbidden", http.StatusForbidden)
		}
		return http.HandlerFunc(fn)
	}
}

// UserIDFromContext returns the authenticated user ID.
func UserIDFromContext(ctx context.Context) (int32, bool) {
	userID, ok := ctx.Value(ContextUserID).(int32)
	return userID, ok && userID != 0
}

// RoleFromContext returns the authenticated user's role.
func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(ContextRole).(models.Role)
	return role, ok
}

func writeErrorResponse(res http.ResponseWriter, errorInfo string, statusCode int) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	json.NewEncoder(res).Encode(models.ErrorResponse{Errors: errorInfo})
}
