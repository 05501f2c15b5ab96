package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/pkg/jwt"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

// AdminContextKey for context values
type AdminContextKey string

const (
	ContextAdminID   AdminContextKey = "admin_id"
	ContextAdminRole AdminContextKey = "admin_role"
)

// AuthMiddleware creates admin authentication middleware
func AuthMiddleware(jwtSvc *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get token from header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtSvc.ValidateAdminToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid or expired token")
				}
				return
			}

			role := Role(claims.Role)
			if _, known := RolePermissions[role]; !known {
				response.Forbidden(w, "Unknown admin role")
				return
			}

			ctx := WithAdmin(r.Context(), claims.UserID, role)
			ctx = logger.WithFields(ctx, "admin_id", claims.UserID.String(), "admin_role", string(role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission middleware checks for specific permission
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(ContextAdminRole).(Role)
			if !ok || !HasPermission(role, perm) {
				response.Forbidden(w, "Permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithAdmin stores an authenticated admin in ctx
func WithAdmin(ctx context.Context, adminID uuid.UUID, role Role) context.Context {
	ctx = context.WithValue(ctx, ContextAdminID, adminID)
	return context.WithValue(ctx, ContextAdminRole, role)
}

// GetAdminID extracts admin ID from context
func GetAdminID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(ContextAdminID).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// GetAdminRole extracts admin role from context
func GetAdminRole(ctx context.Context) Role {
	role, ok := ctx.Value(ContextAdminRole).(Role)
	if !ok {
		return ""
	}
	return role
}

func actorFrom(r *http.Request) Actor {
	ip := r.Header.Get("X-Real-IP")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return Actor{ID: GetAdminID(r.Context()), Role: GetAdminRole(r.Context()), IP: ip}
}
