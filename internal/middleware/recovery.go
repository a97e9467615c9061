package middleware

import (
	"net/http"

	"github.com/Adamtbull/friction-ai/internal/logger"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic serving %s %s: %v", r.Method, r.URL.Path, v)
				httpx.WriteError(w, apierr.Internal("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
