package middleware

import (
	"net/http"
	"strings"

	"github.com/Adamtbull/friction-ai/internal/identity"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
)

// Auth resolves the bearer credential on every request and stores the
// verified identity in the request context. Requests that cannot be verified
// stop here with a 401. The health endpoint stays open for liveness checks
// and preflight requests pass through for CORS to answer.
func Auth(verifier *identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ident, err := verifier.Verify(r.Context(), bearerToken(r))
			if err != nil {
				httpx.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) >= 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
