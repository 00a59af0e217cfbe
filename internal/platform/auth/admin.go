package auth

import (
	"net/http"
	"strings"

	"github.com/example/campus-share/internal/platform/api"
)

// RequireAdmin allows the request only when RequireUser already injected
// role=admin into the context. Moderation surfaces sit behind it.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if !strings.EqualFold(strings.TrimSpace(role), "admin") {
			api.Forbidden(w, "FORBIDDEN", "admin role required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
