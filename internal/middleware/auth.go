package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mri-lab/mri-console/internal/model/session"
	"github.com/mri-lab/mri-console/internal/service/auth"
	"github.com/mri-lab/mri-console/pkg/utils"
)

// Verifier validates a bearer token.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Principal 当前请求的用户。
type Principal struct {
	Username string
	Role     session.Role
}

type principalKey struct{}

// PrincipalFrom returns the authenticated user stored by RequireAuth.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// RequireAuth rejects requests without a valid "Bearer <token>" header
// with 401 {"detail": ...}.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				utils.RespondError(w, http.StatusUnauthorized, "未提供认证令牌")
				return
			}

			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				utils.RespondError(w, http.StatusUnauthorized, "无效的认证令牌")
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{Username: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
