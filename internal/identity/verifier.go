// Package identity resolves bearer tokens to caller identities. Tokens are
// Google ID tokens; the authority on their validity is Google's tokeninfo
// endpoint, reached over the network. A local pre-parse rejects malformed and
// wrong-audience tokens before the round trip, and verified identities are
// cached by credential digest so repeated calls from the same client stay off
// the network.
package identity

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Adamtbull/friction-ai/internal/logger"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/id"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const cacheCapacity = 4096

// Identity is the resolved caller attached to each authenticated request.
type Identity struct {
	UserID  string
	Email   string
	IsAdmin bool
}

type Verifier struct {
	clientID     string
	adminEmail   string
	tokenInfoURL string
	cacheTTL     time.Duration
	httpClient   *http.Client
	cache        *cache
	now          func() time.Time
}

func NewVerifier(clientID, adminEmail, tokenInfoURL string, cacheTTL time.Duration) *Verifier {
	return &Verifier{
		clientID:     clientID,
		adminEmail:   strings.ToLower(strings.TrimSpace(adminEmail)),
		tokenInfoURL: tokenInfoURL,
		cacheTTL:     cacheTTL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache: newCache(cacheCapacity, time.Now),
		now:   time.Now,
	}
}

// Verify resolves rawToken to an Identity. Every failure mode maps to an
// unauthenticated error: a caller whose token cannot be verified is treated
// the same as one with no token at all.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Identity{}, apierr.Unauthenticated("missing bearer token")
	}

	claims, err := peekClaims(rawToken)
	if err != nil {
		return Identity{}, apierr.Unauthenticated("malformed token")
	}
	if !audienceMatches(claims.Audience, v.clientID) {
		return Identity{}, apierr.Unauthenticated("token audience mismatch")
	}

	digest := id.CredentialDigest(rawToken)
	if ident, ok := v.cache.get(digest); ok {
		return ident, nil
	}

	info, err := v.fetchTokenInfo(ctx, rawToken)
	if err != nil {
		return Identity{}, err
	}
	if info.Aud != v.clientID {
		return Identity{}, apierr.Unauthenticated("token audience mismatch")
	}
	if info.Sub == "" {
		return Identity{}, apierr.Unauthenticated("token has no subject")
	}

	email := strings.ToLower(strings.TrimSpace(info.Email))
	ident := Identity{
		UserID:  info.Sub,
		Email:   email,
		IsAdmin: v.adminEmail != "" && email == v.adminEmail && info.EmailVerified != "false",
	}
	v.cache.put(digest, ident, v.cacheTTLFor(claims))
	return ident, nil
}

// cacheTTLFor bounds the configured cache TTL by the token's own lifetime so
// an entry never outlives the credential it vouches for.
func (v *Verifier) cacheTTLFor(claims *jwt.RegisteredClaims) time.Duration {
	ttl := v.cacheTTL
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(v.now()); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// tokenInfo mirrors the fields of Google's tokeninfo response this service
// reads. Google encodes email_verified and exp as decimal strings.
type tokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Exp           string `json:"exp"`
}

func (v *Verifier) fetchTokenInfo(ctx context.Context, rawToken string) (*tokenInfo, error) {
	endpoint := v.tokenInfoURL + "?id_token=" + url.QueryEscape(rawToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apierr.Unauthenticated("token verification failed")
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		logger.Warn("tokeninfo request failed: %v", err)
		return nil, apierr.Unauthenticated("token verification unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierr.Unauthenticated("token verification failed")
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("tokeninfo rejected token (HTTP %d): %s", resp.StatusCode, string(body))
		return nil, apierr.Unauthenticated("invalid token")
	}

	var info tokenInfo
	if err := jsonpkg.Unmarshal(body, &info); err != nil {
		return nil, apierr.Unauthenticated("token verification failed")
	}
	return &info, nil
}

// peekClaims decodes the token's claims without checking its signature.
// Signature validity is tokeninfo's job; this exists only to reject garbage
// cheaply and to read aud and exp.
func peekClaims(rawToken string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func audienceMatches(audience jwt.ClaimStrings, clientID string) bool {
	if len(audience) == 0 {
		// No aud claim locally; tokeninfo still enforces it.
		return true
	}
	for _, aud := range audience {
		if aud == clientID {
			return true
		}
	}
	return false
}
