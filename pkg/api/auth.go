// REST authentication middleware — session bearer token.
//
// Guarded routes MUST carry:
//
//	Authorization: Bearer <session JWT>
//
// Exempt routes:
//   - /api/health           (probes)
//   - /api/ws               (authenticates in-band via authorize intent)
//   - /api/github/oauth     (part of the login flow)
package api

import (
	"net/http"
	"strings"

	"github.com/teamkard/teamkard/pkg/identity"
	"github.com/teamkard/teamkard/pkg/logger"
)

// authMiddleware wraps a handler with session token verification.
func authMiddleware(resolver identity.Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// OPTIONS preflight belongs to the CORS middleware.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		user, err := resolver.Resolve(token)
		if err != nil {
			logger.DebugCF("auth", "Rejected request", map[string]interface{}{
				"path": r.URL.Path, "error": err.Error(),
			})
			w.Header().Set("WWW-Authenticate", `Bearer realm="teamkard"`)
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}

		logger.DebugCF("auth", "Request authorized", map[string]interface{}{
			"path": r.URL.Path, "user": user.ID.String(),
		})
		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}

// isPublicPath returns true for paths that never require a session token.
func isPublicPath(path string) bool {
	switch path {
	case "/api/health", "/api/ws", "/api/github/oauth":
		return true
	default:
		return false
	}
}
