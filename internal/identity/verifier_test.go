package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const testClientID = "client-123.apps.googleusercontent.com"

func testToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	encode := func(v any) string {
		raw, err := jsonpkg.Marshal(v)
		if err != nil {
			t.Fatalf("marshal segment: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	header := encode(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload := encode(claims)
	return header + "." + payload + ".c2lnbmF0dXJl"
}

func tokenInfoServer(t *testing.T, hits *int, info map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if r.URL.Query().Get("id_token") == "" {
			t.Error("tokeninfo called without id_token")
		}
		raw, err := jsonpkg.Marshal(info)
		if err != nil {
			t.Fatalf("marshal tokeninfo: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}))
}

func wantUnauthenticated(t *testing.T, err error) {
	t.Helper()
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apierr.Error", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", apiErr.Status, http.StatusUnauthorized)
	}
}

func TestVerifyResolvesIdentity(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, map[string]string{
		"aud":            testClientID,
		"sub":            "user-7",
		"email":          "Someone@Example.com",
		"email_verified": "true",
	})
	defer srv.Close()

	v := NewVerifier(testClientID, "admin@example.com", srv.URL, time.Hour)
	tok := testToken(t, map[string]any{"aud": testClientID, "sub": "user-7", "exp": time.Now().Add(time.Hour).Unix()})

	ident, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.UserID != "user-7" {
		t.Fatalf("UserID = %q, want %q", ident.UserID, "user-7")
	}
	if ident.Email != "someone@example.com" {
		t.Fatalf("Email = %q, want lowercased", ident.Email)
	}
	if ident.IsAdmin {
		t.Fatal("non-admin email resolved as admin")
	}
}

func TestVerifyAdminEmail(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, map[string]string{
		"aud":            testClientID,
		"sub":            "user-1",
		"email":          "admin@example.com",
		"email_verified": "true",
	})
	defer srv.Close()

	v := NewVerifier(testClientID, "Admin@Example.com", srv.URL, time.Hour)
	tok := testToken(t, map[string]any{"aud": testClientID, "exp": time.Now().Add(time.Hour).Unix()})

	ident, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ident.IsAdmin {
		t.Fatal("admin email not recognized")
	}
}

func TestVerifyAudienceMismatchSkipsNetwork(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, nil)
	defer srv.Close()

	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	tok := testToken(t, map[string]any{"aud": "some-other-client", "sub": "user-1"})

	_, err := v.Verify(context.Background(), tok)
	wantUnauthenticated(t, err)
	if hits != 0 {
		t.Fatalf("tokeninfo hit %d times for a wrong-audience token, want 0", hits)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, nil)
	defer srv.Close()

	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	for _, tok := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := v.Verify(context.Background(), tok)
		wantUnauthenticated(t, err)
	}
	if hits != 0 {
		t.Fatalf("tokeninfo hit %d times for malformed tokens, want 0", hits)
	}
}

func TestVerifyRemoteAudienceMismatch(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, map[string]string{
		"aud": "spoofed-client",
		"sub": "user-1",
	})
	defer srv.Close()

	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	// No local aud claim, so the check is deferred to tokeninfo.
	tok := testToken(t, map[string]any{"sub": "user-1"})

	_, err := v.Verify(context.Background(), tok)
	wantUnauthenticated(t, err)
	if hits != 1 {
		t.Fatalf("tokeninfo hits = %d, want 1", hits)
	}
}

func TestVerifyUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	tok := testToken(t, map[string]any{"aud": testClientID})

	_, err := v.Verify(context.Background(), tok)
	wantUnauthenticated(t, err)
}

func TestVerifyCachesByCredential(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, map[string]string{
		"aud": testClientID,
		"sub": "user-9",
	})
	defer srv.Close()

	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	tok := testToken(t, map[string]any{"aud": testClientID, "exp": time.Now().Add(time.Hour).Unix()})

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), tok); err != nil {
			t.Fatalf("Verify #%d: %v", i+1, err)
		}
	}
	if hits != 1 {
		t.Fatalf("tokeninfo hits = %d, want 1 (cached after first)", hits)
	}
}

func TestVerifyCacheBoundedByTokenExpiry(t *testing.T) {
	hits := 0
	srv := tokenInfoServer(t, &hits, map[string]string{
		"aud": testClientID,
		"sub": "user-9",
	})
	defer srv.Close()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(testClientID, "", srv.URL, time.Hour)
	v.now = func() time.Time { return now }
	v.cache = newCache(16, v.now)

	// Token expires in 30s, well inside the configured hour.
	tok := testToken(t, map[string]any{"aud": testClientID, "exp": now.Add(30 * time.Second).Unix()})

	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	now = now.Add(29 * time.Second)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if hits != 1 {
		t.Fatalf("tokeninfo hits = %d, want 1 before expiry", hits)
	}

	now = now.Add(2 * time.Second)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify after expiry: %v", err)
	}
	if hits != 2 {
		t.Fatalf("tokeninfo hits = %d, want 2 after cache entry expired", hits)
	}
}
