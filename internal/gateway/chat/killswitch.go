package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
)

const (
	killSwitchKey      = "system:killswitch"
	killSwitchCacheTTL = 30 * time.Second
)

// killSwitch answers whether the service is disabled deployment-wide. The
// config flag wins outright; otherwise the store key is consulted behind a
// short cache so the hot path does not pay a store read per request. A store
// failure keeps the last known answer rather than taking the service down.
type killSwitch struct {
	configured bool
	store      kvstore.Store

	mu        sync.Mutex
	cached    bool
	fetchedAt time.Time
	now       func() time.Time
}

func newKillSwitch(configured bool, store kvstore.Store) *killSwitch {
	return &killSwitch{configured: configured, store: store, now: time.Now}
}

func (k *killSwitch) engaged(ctx context.Context) bool {
	if k.configured {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if !k.fetchedAt.IsZero() && now.Sub(k.fetchedAt) < killSwitchCacheTTL {
		return k.cached
	}

	value, ok, err := k.store.Get(ctx, killSwitchKey)
	if err != nil {
		logger.Warn("kill switch read failed, keeping previous state: %v", err)
		k.fetchedAt = now
		return k.cached
	}
	k.cached = ok && strings.EqualFold(strings.TrimSpace(value), "on")
	k.fetchedAt = now
	return k.cached
}
