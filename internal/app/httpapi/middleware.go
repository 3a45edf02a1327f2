package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/souq-network/marketplace/internal/app/auth"
	serrors "github.com/souq-network/marketplace/internal/errors"
)

type ctxKey int

const ctxPrincipalKey ctxKey = iota

// publicPaths never require a bearer token.
var publicPaths = map[string]bool{
	"/auth/login": true,
	"/healthz":    true,
	"/metrics":    true,
}

// WrapWithAuth verifies the bearer token on every non-public request and
// attaches the resulting principal to the context.
func WrapWithAuth(manager *auth.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeServiceError(w, serrors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeServiceError(w, serrors.Unauthorized("invalid Authorization header format"))
			return
		}

		principal, err := manager.Verify(parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxPrincipalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WrapWithCORS adds permissive CORS headers and answers preflight requests.
func WrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(auth.Principal)
	return p, ok
}
