package backup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adamtbull/friction-ai/internal/identity"
	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

var owner = identity.Identity{UserID: "user-1"}

func do(t *testing.T, h *Handler, ident identity.Identity, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/api/backup", nil)
	} else {
		req = httptest.NewRequest(method, "/api/backup", strings.NewReader(body))
	}
	req = req.WithContext(middleware.WithIdentity(req.Context(), ident))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestBackupRoundTrip(t *testing.T) {
	h := NewHandler(kvstore.NewMemory(), time.Hour)

	rec := do(t, h, owner, http.MethodPost, `{"blob":"ZW5jcnlwdGVk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}
	var saved map[string]string
	if err := jsonpkg.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if saved["revision"] == "" || saved["savedAt"] == "" {
		t.Fatalf("save response = %v, want revision and savedAt", saved)
	}

	rec = do(t, h, owner, http.MethodGet, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d", rec.Code)
	}
	var loaded map[string]string
	if err := jsonpkg.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	if loaded["blob"] != "ZW5jcnlwdGVk" {
		t.Fatalf("blob = %q, want ciphertext unchanged", loaded["blob"])
	}
	if loaded["savedAt"] != saved["savedAt"] {
		t.Fatalf("savedAt = %q, want %q", loaded["savedAt"], saved["savedAt"])
	}
}

func TestBackupIsolatedPerUser(t *testing.T) {
	h := NewHandler(kvstore.NewMemory(), time.Hour)

	do(t, h, owner, http.MethodPost, `{"blob":"mine"}`)

	other := identity.Identity{UserID: "user-2"}
	rec := do(t, h, other, http.MethodGet, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for a user without a backup", rec.Code)
	}
}

func TestBackupMissing(t *testing.T) {
	h := NewHandler(kvstore.NewMemory(), time.Hour)
	if rec := do(t, h, owner, http.MethodGet, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBackupValidation(t *testing.T) {
	h := NewHandler(kvstore.NewMemory(), time.Hour)

	for _, body := range []string{`{"blob":`, `{"blob":""}`, `{}`} {
		if rec := do(t, h, owner, http.MethodPost, body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestBackupTooLarge(t *testing.T) {
	h := NewHandler(kvstore.NewMemory(), time.Hour)

	huge := fmt.Sprintf(`{"blob":"%s"}`, strings.Repeat("a", maxBlobBytes+1))
	if rec := do(t, h, owner, http.MethodPost, huge); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

type downStore struct{}

func (downStore) Get(context.Context, string) (string, bool, error) {
	return "", false, kvstore.ErrUnavailable
}

func (downStore) Put(context.Context, string, string, time.Duration) error {
	return kvstore.ErrUnavailable
}

func (downStore) List(context.Context, string, int) ([]string, error) {
	return nil, kvstore.ErrUnavailable
}

func (downStore) Close() error { return nil }

func TestBackupStoreOutage(t *testing.T) {
	h := NewHandler(downStore{}, time.Hour)

	if rec := do(t, h, owner, http.MethodPost, `{"blob":"x"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("save status = %d, want 503", rec.Code)
	}
	if rec := do(t, h, owner, http.MethodGet, ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("load status = %d, want 503", rec.Code)
	}
}
