// Package chat serves the primary endpoint: one normalized conversation in,
// one generated answer out. The pipeline order is fixed: validate the body,
// gate model access, honor the kill switch, ask admission, dispatch, record.
// Admission runs after the access check so a forbidden model never consumes
// quota, and analytics runs only after a successful answer.
package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Adamtbull/friction-ai/internal/admission"
	"github.com/Adamtbull/friction-ai/internal/analytics"
	"github.com/Adamtbull/friction-ai/internal/config"
	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
	"github.com/Adamtbull/friction-ai/internal/pkg/id"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
	"github.com/Adamtbull/friction-ai/internal/provider"
)

// Dispatcher is the slice of the provider dispatcher this handler consumes.
type Dispatcher interface {
	Send(ctx context.Context, model provider.Model, msgs []provider.Message) (string, error)
}

type Handler struct {
	cfg        *config.Config
	admission  *admission.Controller
	dispatcher Dispatcher
	recorder   *analytics.Recorder
	kill       *killSwitch
}

func NewHandler(cfg *config.Config, ctrl *admission.Controller, dispatcher Dispatcher, recorder *analytics.Recorder, store kvstore.Store) *Handler {
	return &Handler{
		cfg:        cfg,
		admission:  ctrl,
		dispatcher: dispatcher,
		recorder:   recorder,
		kill:       newKillSwitch(cfg.KillSwitch, store),
	}
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, apierr.Unauthenticated("missing identity"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.BodyLimitBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, &apierr.Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    apierr.CodeValidation,
				Message: "request body too large",
			})
			return
		}
		httpx.WriteError(w, apierr.Validation("unreadable request body"))
		return
	}

	var req chatRequest
	if err := jsonpkg.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, apierr.Validation("malformed JSON body"))
		return
	}

	model, ok := provider.Lookup(req.Model)
	if !ok {
		httpx.WriteError(w, apierr.Validation("unknown model"))
		return
	}

	msgs := normalizeMessages(req.Messages)
	if len(msgs) == 0 {
		httpx.WriteError(w, apierr.Validation("no usable messages"))
		return
	}
	if msgs[len(msgs)-1].Role != provider.RoleUser {
		httpx.WriteError(w, apierr.Validation("last message must be from the user"))
		return
	}

	// Access is judged before admission: a denied model must not consume
	// quota regardless of rate-limit state.
	if model.AdminOnly && !ident.IsAdmin {
		httpx.WriteError(w, apierr.Forbidden("model restricted"))
		return
	}

	if h.kill.engaged(r.Context()) {
		httpx.WriteError(w, apierr.Unavailable("service temporarily disabled"))
		return
	}

	decision := h.admission.Check(r.Context(), ident.UserID, httpx.ClientIP(r))
	if !decision.Allowed {
		httpx.WriteError(w, apierr.RateLimited(rateLimitedMessage(decision.Reason), decision.RetryAfterSeconds))
		return
	}

	text, err := h.dispatcher.Send(r.Context(), model, msgs)
	if err != nil {
		httpx.WriteError(w, mapDispatchError(err))
		return
	}

	h.recorder.Record(analytics.Event{UserHash: id.UserHash(ident.UserID), Model: model.ID})
	httpx.WriteJSON(w, http.StatusOK, chatResponse{Response: text})
}

func mapDispatchError(err error) error {
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		return apierr.Configuration("provider not configured for this deployment")
	case errors.Is(err, provider.ErrEmptyResponse):
		return apierr.Provider("provider returned an empty response")
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status > 0 {
			return apierr.Provider(apiErr.Provider + " upstream failure (" + http.StatusText(apiErr.Status) + ")")
		}
		return apierr.Provider(apiErr.Provider + " unreachable")
	}
	return apierr.Provider("provider call failed")
}

func rateLimitedMessage(reason string) string {
	switch reason {
	case admission.ReasonUserBurst:
		return "too many requests, slow down"
	case admission.ReasonIPBurst:
		return "too many requests from this network"
	case admission.ReasonDailyLimit:
		return "daily message limit reached"
	case admission.ReasonStoreError:
		return "service busy, try again shortly"
	}
	return "rate limited"
}
