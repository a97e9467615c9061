package video

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/Adamtbull/friction-ai/internal/identity"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const searchPayload = `{
  "items": [
    {
      "id": {"videoId": "vid-1"},
      "snippet": {
        "title": "Newborn sleep basics",
        "description": "What to expect in the first weeks.",
        "channelTitle": "Parenting 101",
        "publishedAt": "2024-05-01T09:00:00Z",
        "thumbnails": {
          "medium": {"url": "https://img.example/medium.jpg"},
          "default": {"url": "https://img.example/default.jpg"}
        }
      }
    },
    {
      "id": {"channelId": "chan-1"},
      "snippet": {"title": "A channel, not a video"}
    },
    {
      "id": {"videoId": "vid-2"},
      "snippet": {
        "title": "Weaning guide",
        "channelTitle": "Parenting 101",
        "publishedAt": "2024-06-10T09:00:00Z",
        "thumbnails": {
          "default": {"url": "https://img.example/fallback.jpg"}
        }
      }
    }
  ]
}`

func catalogServer(t *testing.T, status int, payload string) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r.Clone(r.Context())
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func doVideos(h *Handler, target string, withIdentity bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if withIdentity {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity.Identity{UserID: "user-1"}))
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestSearchMapsUpstreamShape(t *testing.T) {
	srv, captured := catalogServer(t, http.StatusOK, searchPayload)
	h := NewHandler(NewClient(srv.URL, "test-key"))

	rec := doVideos(h, "/api/videos?q=sleep&limit=5", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	q := captured.URL.Query()
	if q.Get("q") != "sleep" || q.Get("maxResults") != "5" || q.Get("key") != "test-key" {
		t.Fatalf("upstream query = %s", captured.URL.RawQuery)
	}
	if q.Get("part") != "snippet" || q.Get("type") != "video" {
		t.Fatalf("upstream query missing fixed params: %s", captured.URL.RawQuery)
	}

	var resp struct {
		Videos []Video `json:"videos"`
	}
	if err := jsonpkg.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Videos) != 2 {
		t.Fatalf("videos = %d, want 2 after dropping the channel item", len(resp.Videos))
	}
	first := resp.Videos[0]
	if first.ID != "vid-1" || first.Title != "Newborn sleep basics" || first.Channel != "Parenting 101" {
		t.Fatalf("first video = %+v", first)
	}
	if first.Thumbnail != "https://img.example/medium.jpg" {
		t.Fatalf("thumbnail = %q, want the medium size", first.Thumbnail)
	}
	if resp.Videos[1].Thumbnail != "https://img.example/fallback.jpg" {
		t.Fatalf("fallback thumbnail = %q", resp.Videos[1].Thumbnail)
	}
}

func TestSearchLimitHandling(t *testing.T) {
	srv, captured := catalogServer(t, http.StatusOK, `{"items":[]}`)
	h := NewHandler(NewClient(srv.URL, "test-key"))

	if rec := doVideos(h, "/api/videos", true); rec.Code != http.StatusOK {
		t.Fatalf("default limit status = %d", rec.Code)
	}
	if got := captured.URL.Query().Get("maxResults"); got != "12" {
		t.Fatalf("default maxResults = %q, want 12", got)
	}

	if rec := doVideos(h, "/api/videos?limit=99", true); rec.Code != http.StatusOK {
		t.Fatalf("clamped limit status = %d", rec.Code)
	}
	if got := captured.URL.Query().Get("maxResults"); got != "25" {
		t.Fatalf("clamped maxResults = %q, want 25", got)
	}

	if rec := doVideos(h, "/api/videos?limit=nope", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d, want 400", rec.Code)
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	srv, _ := catalogServer(t, http.StatusInternalServerError, `{"error":{"message":"quota exceeded"}}`)
	h := NewHandler(NewClient(srv.URL, "test-key"))

	if rec := doVideos(h, "/api/videos?q=sleep", true); rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSearchNotConfigured(t *testing.T) {
	h := NewHandler(NewClient("https://unused.example", ""))
	if rec := doVideos(h, "/api/videos?q=sleep", true); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestSearchThrottled(t *testing.T) {
	srv, _ := catalogServer(t, http.StatusOK, `{"items":[]}`)
	c := NewClient(srv.URL, "test-key")
	c.limiter = rate.NewLimiter(rate.Limit(0), 0)
	h := NewHandler(c)

	rec := doVideos(h, "/api/videos?q=sleep", true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestVideosRequireIdentity(t *testing.T) {
	srv, _ := catalogServer(t, http.StatusOK, `{"items":[]}`)
	h := NewHandler(NewClient(srv.URL, "test-key"))
	if rec := doVideos(h, "/api/videos", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
