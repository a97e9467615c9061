package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adamtbull/friction-ai/internal/kvstore"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

var testLimits = Limits{
	UserBurst:   5,
	IPBurst:     10,
	BurstWindow: 10 * time.Second,
	Daily:       50,
}

// testController wires a controller to an in-memory store sharing one movable
// clock. Tests advance time by assigning through the returned pointer.
func testController(limits Limits, loc *time.Location) (*Controller, *kvstore.Memory, *time.Time) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, loc)
	clock := func() time.Time { return now }
	store := kvstore.NewMemoryWithClock(clock)
	ctrl := NewController(store, limits, loc)
	ctrl.now = clock
	return ctrl, store, &now
}

func counterCount(t *testing.T, store *kvstore.Memory, key string) int {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	if !ok {
		return 0
	}
	var rec counterRecord
	if err := jsonpkg.UnmarshalString(raw, &rec); err != nil {
		t.Fatalf("unmarshal %s: %v", key, err)
	}
	return rec.Count
}

func TestUserBurstLimit(t *testing.T) {
	ctrl, _, now := testController(testLimits, time.UTC)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d := ctrl.Check(ctx, "u1", "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i+1, d)
		}
	}

	// Sixth request lands 2s into the 10s window.
	*now = now.Add(2 * time.Second)
	d := ctrl.Check(ctx, "u1", "1.2.3.4")
	if d.Allowed {
		t.Fatal("sixth request in burst window allowed")
	}
	if d.Reason != ReasonUserBurst {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonUserBurst)
	}
	if d.RetryAfterSeconds != 8 {
		t.Fatalf("RetryAfterSeconds = %d, want 8", d.RetryAfterSeconds)
	}
}

func TestBurstWindowResets(t *testing.T) {
	ctrl, _, now := testController(testLimits, time.UTC)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ctrl.Check(ctx, "u1", "1.2.3.4")
	}
	if d := ctrl.Check(ctx, "u1", "1.2.3.4"); d.Allowed {
		t.Fatal("over-limit request allowed")
	}

	*now = now.Add(10 * time.Second)
	if d := ctrl.Check(ctx, "u1", "1.2.3.4"); !d.Allowed {
		t.Fatalf("request after window reset denied: %+v", d)
	}
}

func TestIPBurstSharedAcrossUsers(t *testing.T) {
	ctrl, _, _ := testController(testLimits, time.UTC)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("u%d", i)
		if d := ctrl.Check(ctx, user, "9.9.9.9"); !d.Allowed {
			t.Fatalf("request %d from shared IP denied: %+v", i+1, d)
		}
	}

	d := ctrl.Check(ctx, "u-fresh", "9.9.9.9")
	if d.Allowed {
		t.Fatal("eleventh request from shared IP allowed")
	}
	if d.Reason != ReasonIPBurst {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonIPBurst)
	}
}

func TestDenialLeavesLaterCountersUntouched(t *testing.T) {
	ctrl, store, _ := testController(testLimits, time.UTC)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ctrl.Check(ctx, "u1", "1.1.1.1")
	}
	if got := counterCount(t, store, "user:u1:day"); got != 5 {
		t.Fatalf("daily count = %d, want 5", got)
	}

	// Denied at the user-burst gate from a new IP: neither the IP counter
	// nor the daily counter may move.
	if d := ctrl.Check(ctx, "u1", "2.2.2.2"); d.Allowed {
		t.Fatal("sixth request allowed")
	}
	if got := counterCount(t, store, "ip:2.2.2.2:burst"); got != 0 {
		t.Fatalf("IP counter bumped on denied request: %d", got)
	}
	if got := counterCount(t, store, "user:u1:day"); got != 5 {
		t.Fatalf("daily count after denial = %d, want 5", got)
	}
}

func TestDailyLimit(t *testing.T) {
	loc := time.FixedZone("REF", -5*3600)
	limits := Limits{UserBurst: 100, IPBurst: 100, BurstWindow: 10 * time.Second, Daily: 3}
	ctrl, _, _ := testController(limits, loc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := ctrl.Check(ctx, "u1", "1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i+1, d)
		}
	}

	d := ctrl.Check(ctx, "u1", "1.2.3.4")
	if d.Allowed {
		t.Fatal("request over daily cap allowed")
	}
	if d.Reason != ReasonDailyLimit {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonDailyLimit)
	}
	// Test clock sits at 15:00 reference time, 9 hours before midnight.
	if d.RetryAfterSeconds != 9*3600 {
		t.Fatalf("RetryAfterSeconds = %d, want %d", d.RetryAfterSeconds, 9*3600)
	}
}

func TestDailyCapRollsAtMidnight(t *testing.T) {
	loc := time.FixedZone("REF", -5*3600)
	limits := Limits{UserBurst: 100, IPBurst: 100, BurstWindow: 10 * time.Second, Daily: 2}
	ctrl, _, now := testController(limits, loc)
	ctx := context.Background()

	*now = time.Date(2025, 6, 2, 23, 59, 30, 0, loc)
	ctrl.Check(ctx, "u1", "1.2.3.4")
	ctrl.Check(ctx, "u1", "1.2.3.4")

	d := ctrl.Check(ctx, "u1", "1.2.3.4")
	if d.Allowed {
		t.Fatal("request over daily cap allowed")
	}
	if d.RetryAfterSeconds != 60 {
		t.Fatalf("RetryAfterSeconds = %d, want floor of 60", d.RetryAfterSeconds)
	}

	*now = time.Date(2025, 6, 3, 0, 0, 30, 0, loc)
	if d := ctrl.Check(ctx, "u1", "1.2.3.4"); !d.Allowed {
		t.Fatalf("request after midnight denied: %+v", d)
	}
}

func TestDailyOverride(t *testing.T) {
	ctrl, store, _ := testController(testLimits, time.UTC)
	ctx := context.Background()

	if err := store.Put(ctx, "quota:user:u1", "2", 0); err != nil {
		t.Fatalf("Put override: %v", err)
	}

	ctrl.Check(ctx, "u1", "1.2.3.4")
	ctrl.Check(ctx, "u1", "1.2.3.4")
	d := ctrl.Check(ctx, "u1", "1.2.3.4")
	if d.Allowed {
		t.Fatal("request over overridden cap allowed")
	}
	if d.Reason != ReasonDailyLimit {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonDailyLimit)
	}

	// Another user is unaffected by u1's override.
	if d := ctrl.Check(ctx, "u2", "5.6.7.8"); !d.Allowed {
		t.Fatalf("unrelated user denied: %+v", d)
	}
}

func TestDailyOverrideInvalidIgnored(t *testing.T) {
	limits := Limits{UserBurst: 100, IPBurst: 100, BurstWindow: 10 * time.Second, Daily: 1}
	ctrl, store, _ := testController(limits, time.UTC)
	ctx := context.Background()

	for _, bad := range []string{"abc", "0", "-3", ""} {
		key := "quota:user:u-" + bad
		if err := store.Put(ctx, key, bad, 0); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	for _, bad := range []string{"abc", "0", "-3", ""} {
		user := "u-" + bad
		if d := ctrl.Check(ctx, user, "1.2.3.4"); !d.Allowed {
			t.Fatalf("first request for %s denied: %+v", user, d)
		}
		if d := ctrl.Check(ctx, user, "1.2.3.4"); d.Allowed {
			t.Fatalf("default cap not applied for %s", user)
		}
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: connection refused", kvstore.ErrUnavailable)
}

func (failingStore) Put(context.Context, string, string, time.Duration) error {
	return fmt.Errorf("%w: connection refused", kvstore.ErrUnavailable)
}

func (failingStore) List(context.Context, string, int) ([]string, error) {
	return nil, fmt.Errorf("%w: connection refused", kvstore.ErrUnavailable)
}

func (failingStore) Close() error { return nil }

func TestStoreFailureFailsClosed(t *testing.T) {
	ctrl := NewController(failingStore{}, testLimits, time.UTC)

	d := ctrl.Check(context.Background(), "u1", "1.2.3.4")
	if d.Allowed {
		t.Fatal("request allowed while store is down")
	}
	if d.Reason != ReasonStoreError {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonStoreError)
	}
	if d.RetryAfterSeconds != 10 {
		t.Fatalf("RetryAfterSeconds = %d, want 10", d.RetryAfterSeconds)
	}
}

func TestCorruptCounterRestartsWindow(t *testing.T) {
	ctrl, store, _ := testController(testLimits, time.UTC)
	ctx := context.Background()

	if err := store.Put(ctx, "user:u1:burst", "{not json", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if d := ctrl.Check(ctx, "u1", "1.2.3.4"); !d.Allowed {
		t.Fatalf("request denied on corrupt counter: %+v", d)
	}
	if got := counterCount(t, store, "user:u1:burst"); got != 1 {
		t.Fatalf("count after reset = %d, want 1", got)
	}
}
