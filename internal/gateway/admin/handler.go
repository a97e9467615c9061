// Package admin serves the operator reporting endpoints. Distinct-user
// counts leave this package only as coarse buckets, never exact numbers.
package admin

import (
	"net/http"
	"strconv"

	"github.com/Adamtbull/friction-ai/internal/analytics"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 30
	maxUserList      = 1000
)

type Handler struct {
	recorder *analytics.Recorder
}

func NewHandler(recorder *analytics.Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// statsRow mirrors analytics.DaySummary with the raw user count replaced
// by its reporting bucket.
type statsRow struct {
	Date     string         `json:"date"`
	Messages int            `json:"messages"`
	Models   map[string]int `json:"models"`
	Users    string         `json:"users"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	days := defaultStatsDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteError(w, apierr.Validation("days must be a positive integer"))
			return
		}
		days = n
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}

	summaries, err := h.recorder.Summary(r.Context(), days)
	if err != nil {
		httpx.WriteError(w, apierr.StoreUnavailable("stats unavailable"))
		return
	}

	rows := make([]statsRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, statsRow{
			Date:     s.Date,
			Messages: s.Messages,
			Models:   s.Models,
			Users:    userBucket(s.Users),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": rows})
}

func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	hashes, approximate, err := h.recorder.SeenUsers(r.Context(), maxUserList)
	if err != nil {
		httpx.WriteError(w, apierr.StoreUnavailable("user list unavailable"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"users":       hashes,
		"approximate": approximate,
	})
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok || !ident.IsAdmin {
		httpx.WriteError(w, apierr.Forbidden("admin access required"))
		return false
	}
	return true
}

// userBucket coarsens a distinct-user count into a reporting range.
func userBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n <= 10:
		return "1-10"
	case n <= 50:
		return "10-50"
	case n <= 100:
		return "50-100"
	case n <= 500:
		return "100-500"
	case n <= 1000:
		return "500-1000"
	default:
		return "1000+"
	}
}
