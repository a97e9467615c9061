// Package backup stores one encrypted history blob per user. The blob is
// ciphertext produced client-side; the server never decrypts it and never
// inspects it beyond a size cap. One revision per user: each save replaces
// the previous one.
package backup

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
	"github.com/Adamtbull/friction-ai/internal/pkg/id"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const maxBlobBytes = 256 << 10

type Handler struct {
	store     kvstore.Store
	retention time.Duration
	now       func() time.Time
}

func NewHandler(store kvstore.Store, retention time.Duration) *Handler {
	return &Handler{store: store, retention: retention, now: time.Now}
}

// envelope is the stored shape. Revision changes on every save so clients
// can detect that another device overwrote theirs.
type envelope struct {
	Blob     string `json:"blob"`
	Revision string `json:"revision"`
	SavedAt  string `json:"savedAt"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, apierr.Unauthenticated("missing identity"))
		return
	}
	key := "backup:" + id.UserHash(ident.UserID)

	if r.Method == http.MethodPost {
		h.save(w, r, key)
		return
	}
	h.load(w, r, key)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, key string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBlobBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, &apierr.Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    apierr.CodeValidation,
				Message: "backup too large",
			})
			return
		}
		httpx.WriteError(w, apierr.Validation("unreadable request body"))
		return
	}

	var req struct {
		Blob string `json:"blob"`
	}
	if err := jsonpkg.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, apierr.Validation("malformed JSON body"))
		return
	}
	if strings.TrimSpace(req.Blob) == "" {
		httpx.WriteError(w, apierr.Validation("blob is required"))
		return
	}

	env := envelope{
		Blob:     req.Blob,
		Revision: id.RevisionID(),
		SavedAt:  h.now().UTC().Format(time.RFC3339),
	}
	value, err := jsonpkg.MarshalString(env)
	if err != nil {
		httpx.WriteError(w, apierr.Internal("encoding backup failed"))
		return
	}
	if err := h.store.Put(r.Context(), key, value, h.retention); err != nil {
		httpx.WriteError(w, apierr.StoreUnavailable("backup store unavailable"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"revision": env.Revision,
		"savedAt":  env.SavedAt,
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, key string) {
	raw, ok, err := h.store.Get(r.Context(), key)
	if err != nil {
		httpx.WriteError(w, apierr.StoreUnavailable("backup store unavailable"))
		return
	}
	if !ok {
		httpx.WriteError(w, apierr.NotFound("no backup stored"))
		return
	}

	var env envelope
	if err := jsonpkg.UnmarshalString(raw, &env); err != nil {
		logger.Warn("backup: unreadable envelope at %s: %v", key, err)
		httpx.WriteError(w, apierr.NotFound("no backup stored"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"blob":    env.Blob,
		"savedAt": env.SavedAt,
	})
}
