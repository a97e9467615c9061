package httpx

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

// WriteJSON writes v as the response body with the project's JSON encoder,
// setting status and Content-Type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := jsonpkg.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type              string `json:"type"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

// WriteError renders any error as the JSON error envelope. *apierr.Error
// keeps its status, code and retry hint; anything else becomes an opaque 500.
// Rate-limited responses also carry the Retry-After header.
func WriteError(w http.ResponseWriter, err error) {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		ae = apierr.Internal("internal error")
	}
	if ae.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(ae.RetryAfterSeconds, 10))
	}
	WriteJSON(w, ae.Status, errorBody{Error: errorDetail{
		Type:              ae.Code,
		Message:           ae.Message,
		RetryAfterSeconds: ae.RetryAfterSeconds,
	}})
}

// ClientIP prefers the edge-set forwarding headers and falls back to the
// socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
