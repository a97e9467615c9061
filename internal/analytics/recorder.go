// Package analytics keeps anonymized daily usage counters: messages per day,
// model mix, and distinct hashed users. Writes ride on a fire-and-forget
// goroutine and every failure is swallowed after logging; this path is
// advisory and must never slow down or fail a chat request. Concurrent
// read-modify-write cycles can lose the odd increment, which is accepted.
package analytics

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const (
	seenTTL       = 30 * 24 * time.Hour
	recordTimeout = 5 * time.Second

	statsKeyPrefix = "stats:day:"
	seenKeyPrefix  = "seen:"
)

// Event is one successfully answered chat request. UserHash is already
// anonymized; no message content ever reaches this package.
type Event struct {
	UserHash string
	Model    string
}

type dailyAggregate struct {
	MessageCount     int            `json:"messageCount"`
	ModelCounts      map[string]int `json:"modelCounts"`
	UniqueUserHashes []string       `json:"uniqueUserHashes"`
}

// DaySummary is one day's aggregate read back for reporting.
type DaySummary struct {
	Date     string
	Messages int
	Models   map[string]int
	Users    int
}

type Recorder struct {
	store     kvstore.Store
	loc       *time.Location
	retention time.Duration
	now       func() time.Time
	wg        sync.WaitGroup

	// mu serializes the read-modify-write on the day aggregate.
	mu sync.Mutex
}

func NewRecorder(store kvstore.Store, loc *time.Location, retention time.Duration) *Recorder {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &Recorder{
		store:     store,
		loc:       loc,
		retention: retention,
		now:       time.Now,
	}
}

// Record schedules the counter update and returns immediately.
func (r *Recorder) Record(event Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.record(ctx, event); err != nil {
			logger.Warn("analytics: dropping event: %v", err)
		}
	}()
}

// Drain blocks until scheduled writes finish. Called once during shutdown.
func (r *Recorder) Drain() {
	r.wg.Wait()
}

func (r *Recorder) record(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.now().In(r.loc).Format("2006-01-02")
	key := statsKeyPrefix + day

	agg := dailyAggregate{ModelCounts: map[string]int{}}
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if err := jsonpkg.UnmarshalString(raw, &agg); err != nil {
			logger.Warn("analytics: resetting unreadable aggregate %s: %v", key, err)
			agg = dailyAggregate{}
		}
		if agg.ModelCounts == nil {
			agg.ModelCounts = map[string]int{}
		}
	}

	agg.MessageCount++
	if event.Model != "" {
		agg.ModelCounts[event.Model]++
	}
	if event.UserHash != "" && !slices.Contains(agg.UniqueUserHashes, event.UserHash) {
		agg.UniqueUserHashes = append(agg.UniqueUserHashes, event.UserHash)
	}

	value, err := jsonpkg.MarshalString(agg)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, key, value, r.retention); err != nil {
		return err
	}

	if event.UserHash != "" {
		if err := r.store.Put(ctx, seenKeyPrefix+event.UserHash, day, seenTTL); err != nil {
			return err
		}
	}
	return nil
}

// Summary reads the most recent days back from the store, today first.
// Missing or unreadable days come back as zero rows rather than gaps.
func (r *Recorder) Summary(ctx context.Context, days int) ([]DaySummary, error) {
	if days < 1 {
		days = 1
	}

	out := make([]DaySummary, 0, days)
	today := r.now().In(r.loc)
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		summary := DaySummary{Date: date, Models: map[string]int{}}

		raw, ok, err := r.store.Get(ctx, statsKeyPrefix+date)
		if err != nil {
			return nil, err
		}
		if ok {
			var agg dailyAggregate
			if err := jsonpkg.UnmarshalString(raw, &agg); err == nil {
				summary.Messages = agg.MessageCount
				if agg.ModelCounts != nil {
					summary.Models = agg.ModelCounts
				}
				summary.Users = len(agg.UniqueUserHashes)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// SeenUsers returns hashed user ids observed within the seen-marker TTL,
// capped at limit. approximate reports that the cap was hit and more users
// exist than the list shows.
func (r *Recorder) SeenUsers(ctx context.Context, limit int) (hashes []string, approximate bool, err error) {
	keys, err := r.store.List(ctx, seenKeyPrefix, limit)
	if err != nil {
		return nil, false, err
	}
	hashes = make([]string, 0, len(keys))
	for _, key := range keys {
		hashes = append(hashes, strings.TrimPrefix(key, seenKeyPrefix))
	}
	return hashes, len(hashes) >= limit, nil
}
