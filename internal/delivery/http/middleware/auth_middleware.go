package middleware

import (
	"context"
	"net/http"
	"strings"

	"clinic-scheduler/internal/service"
	"clinic-scheduler/pkg/jwt"
	"clinic-scheduler/pkg/response"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const RoleIDKey contextKey = "role_id"

// TokenStore reports whether an access token is still live in the auth service's allow-list.
type TokenStore interface {
	Exists(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error)
}

// PrincipalResolver maps a token's user onto its patient or doctor record.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, roleID int) (*service.Principal, error)
}

type AuthMiddleware struct {
	jwtService *jwt.JWTService
	tokens     TokenStore
	resolver   PrincipalResolver
	log        *logrus.Logger
}

func NewAuthMiddleware(jwtService *jwt.JWTService, tokens TokenStore, resolver PrincipalResolver, log *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		tokens:     tokens,
		resolver:   resolver,
		log:        log,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "Authorization header is required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "Invalid or expired token")
			return
		}

		// Check if token exists in Redis (not revoked)
		exists, err := m.tokens.Exists(r.Context(), claims.UserID, claims.TokenID)
		if err != nil {
			m.log.Warnf("Failed to check token %s: %+v", claims.TokenID, err)
			response.InternalServerError(w, "Failed to validate token")
			return
		}
		if !exists {
			response.Unauthorized(w, "Token has been revoked")
			return
		}

		principal, err := m.resolver.Resolve(r.Context(), claims.UserID, claims.RoleID)
		if err != nil {
			response.InternalServerError(w, "Failed to resolve caller")
			return
		}

		ctx := context.WithValue(r.Context(), RoleIDKey, claims.RoleID)
		ctx = service.WithPrincipal(ctx, principal)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRoleIDFromContext extracts role ID from context
func GetRoleIDFromContext(ctx context.Context) (int, bool) {
	roleID, ok := ctx.Value(RoleIDKey).(int)
	return roleID, ok
}
