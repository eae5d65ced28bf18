package middleware

import (
	"net/http"
	"strings"

	"github.com/conduit-lang/admin/internal/web/auth"
	webcontext "github.com/conduit-lang/admin/internal/web/context"
	"github.com/conduit-lang/admin/internal/web/response"
)

// Auth creates an authentication middleware that requires a valid bearer
// token and stores its principal in the request context
func Auth(authService *auth.AuthService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}

			ctx := webcontext.SetPrincipal(r.Context(), claims.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
