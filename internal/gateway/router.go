package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Adamtbull/friction-ai/internal/admission"
	"github.com/Adamtbull/friction-ai/internal/analytics"
	"github.com/Adamtbull/friction-ai/internal/config"
	"github.com/Adamtbull/friction-ai/internal/gateway/admin"
	"github.com/Adamtbull/friction-ai/internal/gateway/appointment"
	"github.com/Adamtbull/friction-ai/internal/gateway/backup"
	"github.com/Adamtbull/friction-ai/internal/gateway/chat"
	"github.com/Adamtbull/friction-ai/internal/gateway/video"
	"github.com/Adamtbull/friction-ai/internal/identity"
	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
	"github.com/Adamtbull/friction-ai/internal/provider"
)

// Deps carries the shared components the router wires into handlers.
type Deps struct {
	Config     *config.Config
	Verifier   *identity.Verifier
	Admission  *admission.Controller
	Dispatcher *provider.Dispatcher
	Recorder   *analytics.Recorder
	Store      kvstore.Store
	Videos     *video.Client
}

func NewRouter(deps Deps) http.Handler {
	chatHandler := chat.NewHandler(deps.Config, deps.Admission, deps.Dispatcher, deps.Recorder, deps.Store)
	backupHandler := backup.NewHandler(deps.Store, time.Duration(deps.Config.BackupRetentionDays)*24*time.Hour)
	adminHandler := admin.NewHandler(deps.Recorder)
	appointmentHandler := appointment.NewHandler(deps.Admission, deps.Dispatcher)
	videoHandler := video.NewHandler(deps.Videos)

	mux := http.NewServeMux()

	// NOTE: Keep routing compatible with Go 1.21's ServeMux behavior.
	mux.HandleFunc("/health", allowMethods(handleHealth, http.MethodGet, http.MethodHead))

	mux.HandleFunc("/api/chat", allowMethods(chatHandler.Handle, http.MethodPost))
	mux.HandleFunc("/api/backup", allowMethods(backupHandler.Handle, http.MethodGet, http.MethodPost))
	mux.HandleFunc("/api/admin/stats", allowMethods(adminHandler.HandleStats, http.MethodGet))
	mux.HandleFunc("/api/admin/users", allowMethods(adminHandler.HandleUsers, http.MethodGet))
	mux.HandleFunc("/api/appointments/extract", allowMethods(appointmentHandler.Handle, http.MethodPost))
	mux.HandleFunc("/api/videos", allowMethods(videoHandler.Handle, http.MethodGet))

	// Auth sits innermost so rejected requests still carry CORS headers
	// and show up in the request log.
	h := middleware.Auth(deps.Verifier)(mux)
	h = middleware.CORS(deps.Config.AllowedOrigin)(h)
	h = middleware.Logging(h)
	h = middleware.Recovery(h)

	return h
}

func allowMethods(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Method]; ok {
			h(w, r)
			return
		}
		if errors.Is(r.Context().Err(), context.Canceled) {
			return
		}
		httpx.WriteError(w, &apierr.Error{
			Status:  http.StatusMethodNotAllowed,
			Code:    apierr.CodeValidation,
			Message: "method not allowed",
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
