package admission

import (
	"context"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

// counterRecord is the stored shape of one rate counter. The store has no
// compare-and-swap, so concurrent bumps can lose increments; the limits here
// are coarse abuse brakes and tolerate that slack.
type counterRecord struct {
	Count             int   `json:"count"`
	WindowStartMillis int64 `json:"windowStartMillis"`
}

type bumpResult struct {
	allowed bool
	// count is the value after the increment when allowed.
	count int
	// retryAfter is whole seconds until the window closes, set when denied.
	retryAfter int64
}

// bumpCounter runs one read-modify-write cycle against the counter at key.
// Absent, stale, and unreadable records all restart the window at now. Store
// errors surface to the caller, which fails closed.
func bumpCounter(ctx context.Context, store kvstore.Store, key string, limit int, win window, now time.Time) (bumpResult, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return bumpResult{}, err
	}

	record := counterRecord{WindowStartMillis: now.UnixMilli()}
	if ok {
		var stored counterRecord
		if err := jsonpkg.UnmarshalString(raw, &stored); err != nil {
			// A corrupt record restarts the window rather than locking the
			// subject out until the TTL clears it.
			logger.Warn("admission: resetting unreadable counter at %s: %v", key, err)
		} else if !win.stale(time.UnixMilli(stored.WindowStartMillis), now) {
			record = stored
		}
	}

	start := time.UnixMilli(record.WindowStartMillis)
	if record.Count >= limit {
		return bumpResult{retryAfter: win.retryAfter(start, now)}, nil
	}

	record.Count++
	value, err := jsonpkg.MarshalString(record)
	if err != nil {
		return bumpResult{}, err
	}
	if err := store.Put(ctx, key, value, win.ttl(now)); err != nil {
		return bumpResult{}, err
	}
	return bumpResult{allowed: true, count: record.Count}, nil
}
