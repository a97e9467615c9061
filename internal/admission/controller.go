// Package admission decides whether an authenticated chat request may proceed.
// Three limits apply in order: a short per-user burst window, a short per-IP
// burst window, and a per-user daily cap counted against calendar days in the
// service's reference timezone. The first limit that denies wins and later
// counters are left untouched. When the backing store cannot be reached the
// controller denies rather than waving traffic through unmetered.
package admission

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
)

// Denial reasons, stable across releases because clients branch on them.
const (
	ReasonUserBurst  = "user_burst"
	ReasonIPBurst    = "ip_burst"
	ReasonDailyLimit = "daily_limit"
	ReasonStoreError = "store_error"
)

// storeErrorRetryAfter is the wait hinted to clients during a store outage.
const storeErrorRetryAfter = 10

type Decision struct {
	Allowed           bool
	Reason            string
	RetryAfterSeconds int64
}

type Limits struct {
	UserBurst   int
	IPBurst     int
	BurstWindow time.Duration
	Daily       int
}

type Controller struct {
	store     kvstore.Store
	limits    Limits
	userBurst window
	ipBurst   window
	daily     window
	now       func() time.Time
}

func NewController(store kvstore.Store, limits Limits, loc *time.Location) *Controller {
	return &Controller{
		store:     store,
		limits:    limits,
		userBurst: burstWindow{width: limits.BurstWindow},
		ipBurst:   burstWindow{width: limits.BurstWindow},
		daily:     dailyWindow{loc: loc},
		now:       time.Now,
	}
}

// Check never returns an error: every failure mode folds into a deny. Counters
// are bumped in check order, so a denial leaves the remaining counters
// unconsumed and the caller's next attempt is judged fresh against them.
func (c *Controller) Check(ctx context.Context, userID, clientIP string) Decision {
	now := c.now()

	res, err := bumpCounter(ctx, c.store, userBurstKey(userID), c.limits.UserBurst, c.userBurst, now)
	if err != nil {
		return c.storeDenied(err)
	}
	if !res.allowed {
		return denied(ReasonUserBurst, res.retryAfter)
	}

	if clientIP != "" {
		res, err = bumpCounter(ctx, c.store, ipBurstKey(clientIP), c.limits.IPBurst, c.ipBurst, now)
		if err != nil {
			return c.storeDenied(err)
		}
		if !res.allowed {
			return denied(ReasonIPBurst, res.retryAfter)
		}
	}

	dailyLimit, err := c.dailyLimitFor(ctx, userID)
	if err != nil {
		return c.storeDenied(err)
	}
	res, err = bumpCounter(ctx, c.store, dailyKey(userID), dailyLimit, c.daily, now)
	if err != nil {
		return c.storeDenied(err)
	}
	if !res.allowed {
		return denied(ReasonDailyLimit, res.retryAfter)
	}

	return Decision{Allowed: true}
}

// dailyLimitFor reads the per-user override, falling back to the configured
// default when the key is absent or unusable. Store errors propagate so the
// caller fails closed.
func (c *Controller) dailyLimitFor(ctx context.Context, userID string) (int, error) {
	raw, ok, err := c.store.Get(ctx, quotaOverrideKey(userID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return c.limits.Daily, nil
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil || n <= 0 {
		logger.Warn("admission: ignoring invalid daily override for %s: %q", userID, raw)
		return c.limits.Daily, nil
	}
	return n, nil
}

func (c *Controller) storeDenied(err error) Decision {
	logger.Error("admission: store unavailable, denying: %v", err)
	return denied(ReasonStoreError, storeErrorRetryAfter)
}

func denied(reason string, retryAfter int64) Decision {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Reason: reason, RetryAfterSeconds: retryAfter}
}

func userBurstKey(userID string) string { return "user:" + userID + ":burst" }
func ipBurstKey(ip string) string       { return "ip:" + ip + ":burst" }
func dailyKey(userID string) string     { return "user:" + userID + ":day" }
func quotaOverrideKey(userID string) string {
	return "quota:user:" + userID
}
