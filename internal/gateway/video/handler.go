package video

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
)

const (
	defaultLimit = 12
	maxLimit     = 25
)

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.IdentityFrom(r.Context()); !ok {
		httpx.WriteError(w, apierr.Unauthenticated("missing identity"))
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteError(w, apierr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	videos, err := h.client.Search(r.Context(), query, limit)
	switch {
	case errors.Is(err, ErrNotConfigured):
		httpx.WriteError(w, apierr.Configuration("video catalog not configured"))
		return
	case errors.Is(err, ErrBusy):
		httpx.WriteError(w, apierr.RateLimited("video search busy", 1))
		return
	case err != nil:
		httpx.WriteError(w, apierr.Provider("video catalog unreachable"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"videos": videos})
}
