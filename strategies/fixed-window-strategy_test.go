package strategies

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gabisonia/fiber-chat-proxy/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingStore wraps a store and counts writes.
type recordingStore struct {
	store.Store
	mu      sync.Mutex
	sets    int
	lastTTL time.Duration
	getErr  error
	setErr  error
}

func (r *recordingStore) Get(ctx context.Context, key string) (*store.Record, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Store.Get(ctx, key)
}

func (r *recordingStore) Set(ctx context.Context, key string, record store.Record, ttl time.Duration) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.mu.Lock()
	r.sets++
	r.lastTTL = ttl
	r.mu.Unlock()
	return r.Store.Set(ctx, key, record, ttl)
}

func newTestStrategy(limit int, window time.Duration) (*FixedWindowStrategy, *recordingStore, *fakeClock) {
	clock := newFakeClock()
	backend := &recordingStore{Store: store.NewMemoryStore(clock.Now)}
	return NewFixedWindowStrategy(limit, window, backend).WithClock(clock.Now), backend, clock
}

// admit evaluates and, when allowed, commits a request.
func admit(t *testing.T, s *FixedWindowStrategy, client string) bool {
	t.Helper()
	ctx := context.Background()
	admission, err := s.IsRequestAllowed(ctx, client)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !admission.Allowed {
		return false
	}
	if err := s.Commit(ctx, admission); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return true
}

// Test sequential single-user behavior: allow up to limit, then deny.
func TestSingleUserSequential(t *testing.T) {
	limit := 15
	s, backend, _ := newTestStrategy(limit, time.Hour)
	client := "10.0.0.1"

	for i := 0; i < limit; i++ {
		if !admit(t, s, client) {
			t.Errorf("request %d: expected allowed, got denied", i+1)
		}
	}

	if admit(t, s, client) {
		t.Error("request over limit: expected denied, got allowed")
	}
	if backend.sets != limit {
		t.Errorf("expected %d writes, got %d", limit, backend.sets)
	}
}

// Rejections are free of side effects and repeat identically.
func TestRejectionDoesNotWrite(t *testing.T) {
	s, backend, _ := newTestStrategy(1, time.Hour)
	client := "10.0.0.1"
	admit(t, s, client)

	first, err := s.IsRequestAllowed(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.IsRequestAllowed(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}

	if first.Allowed || second.Allowed {
		t.Fatal("expected both evaluations to be rejected")
	}
	if *first != *second {
		t.Fatalf("expected identical rejections, got %+v and %+v", first, second)
	}
	if backend.sets != 1 {
		t.Fatalf("expected a single write, got %d", backend.sets)
	}
	if err := s.Commit(context.Background(), first); err == nil {
		t.Fatal("expected commit of a rejected admission to fail")
	}
}

// An evaluation that is never committed does not consume quota.
func TestUncommittedAdmissionIsFree(t *testing.T) {
	s, _, _ := newTestStrategy(1, time.Hour)

	for i := 0; i < 5; i++ {
		admission, err := s.IsRequestAllowed(context.Background(), "c")
		if err != nil {
			t.Fatal(err)
		}
		if !admission.Allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
}

func TestStaleWindowIsFresh(t *testing.T) {
	s, backend, clock := newTestStrategy(15, time.Hour)
	ctx := context.Background()
	start := clock.Now()
	_ = backend.Store.Set(ctx, "rate_limit_c", store.Record{Count: 15, WindowStart: start.Add(-3601 * time.Second)}, 10*time.Hour)

	admission, err := s.IsRequestAllowed(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if !admission.Allowed || admission.Count != 0 {
		t.Fatalf("expected fresh admission, got %+v", admission)
	}
	if !admission.WindowStart.Equal(start) {
		t.Fatalf("expected window anchored at now, got %v", admission.WindowStart)
	}
}

func TestRecentWindowAtLimitIsRejected(t *testing.T) {
	s, backend, clock := newTestStrategy(15, time.Hour)
	ctx := context.Background()
	_ = backend.Store.Set(ctx, "rate_limit_c", store.Record{Count: 15, WindowStart: clock.Now().Add(-10 * time.Second)}, time.Hour)

	admission, err := s.IsRequestAllowed(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if admission.Allowed {
		t.Fatal("expected rejection")
	}
}

// The window is inclusive: a record exactly windowSize old is still current.
func TestWindowBoundaryIsInclusive(t *testing.T) {
	s, backend, clock := newTestStrategy(1, time.Hour)
	ctx := context.Background()
	_ = backend.Store.Set(ctx, "rate_limit_c", store.Record{Count: 1, WindowStart: clock.Now().Add(-time.Hour)}, time.Hour)

	admission, err := s.IsRequestAllowed(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if admission.Allowed {
		t.Fatal("expected rejection at the exact window boundary")
	}
}

// Ensure the counter rolls over cleanly across multiple consecutive windows.
func TestMultipleWindowRollovers(t *testing.T) {
	limit := 2
	window := 30 * time.Second
	s, _, clock := newTestStrategy(limit, window)
	client := "userA"

	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < limit; i++ {
			if !admit(t, s, client) {
				t.Fatalf("cycle %d request %d: expected allowed", cycle+1, i+1)
			}
		}
		if admit(t, s, client) {
			t.Fatalf("cycle %d over limit: expected denied", cycle+1)
		}
		clock.Advance(window + time.Second)
	}
}

// The window anchors at the first request, so commits keep the original start.
func TestCommitKeepsWindowStartAndRefreshesTTL(t *testing.T) {
	s, backend, clock := newTestStrategy(5, time.Hour)
	ctx := context.Background()
	start := clock.Now()

	admit(t, s, "c")
	clock.Advance(10 * time.Minute)
	admit(t, s, "c")

	record, err := backend.Get(ctx, "rate_limit_c")
	if err != nil || record == nil {
		t.Fatalf("expected stored record, got %v / %v", record, err)
	}
	if record.Count != 2 || !record.WindowStart.Equal(start) {
		t.Fatalf("unexpected record %+v", record)
	}
	if backend.lastTTL != time.Hour {
		t.Fatalf("expected ttl of one window, got %v", backend.lastTTL)
	}
}

// Evaluation and commit are not atomic. Two requests evaluated before either
// commits both pass and the stored count only advances by one.
func TestConcurrentEvaluationLosesUpdate(t *testing.T) {
	s, backend, _ := newTestStrategy(15, time.Hour)
	ctx := context.Background()

	a, _ := s.IsRequestAllowed(ctx, "c")
	b, _ := s.IsRequestAllowed(ctx, "c")
	if !a.Allowed || !b.Allowed {
		t.Fatal("expected both to be admitted")
	}
	if err := s.Commit(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(ctx, b); err != nil {
		t.Fatal(err)
	}

	record, _ := backend.Get(ctx, "rate_limit_c")
	if record.Count != 1 {
		t.Fatalf("expected lost update leaving count 1, got %d", record.Count)
	}
}

// Different clients have independent windows.
func TestMultipleUsers(t *testing.T) {
	s, _, _ := newTestStrategy(2, time.Hour)

	for _, u := range []string{"userA", "userB"} {
		for i := 0; i < 2; i++ {
			if !admit(t, s, u) {
				t.Fatalf("user %q request %d: expected allowed", u, i+1)
			}
		}
		if admit(t, s, u) {
			t.Fatalf("user %q: expected denied", u)
		}
	}
}

// RetryAfter should indicate remaining time in the current window.
func TestRetryAfter_FixedWindow(t *testing.T) {
	window := 40 * time.Second
	s, _, clock := newTestStrategy(1, window)
	ctx := context.Background()

	if wait, _ := s.RetryAfter(ctx, "userA"); wait != 0 {
		t.Fatalf("expected zero retry-after for unknown client, got %v", wait)
	}
	if !admit(t, s, "userA") {
		t.Fatal("first request should be allowed")
	}
	clock.Advance(15 * time.Second)
	if wait, _ := s.RetryAfter(ctx, "userA"); wait != 25*time.Second {
		t.Fatalf("expected 25s retry-after, got %v", wait)
	}
	clock.Advance(window)
	if wait, _ := s.RetryAfter(ctx, "userA"); wait != 0 {
		t.Fatalf("expected zero retry-after after window elapsed, got %v", wait)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	s, backend, _ := newTestStrategy(1, time.Hour)
	ctx := context.Background()

	backend.getErr = errors.New("connection refused")
	if _, err := s.IsRequestAllowed(ctx, "c"); err == nil {
		t.Fatal("expected evaluation error")
	}

	backend.getErr = nil
	backend.setErr = errors.New("read only replica")
	admission, err := s.IsRequestAllowed(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(ctx, admission); !errors.Is(err, backend.setErr) {
		t.Fatalf("expected wrapped set error, got %v", err)
	}
}

func TestEmptyClientIdIsRejected(t *testing.T) {
	s, _, _ := newTestStrategy(1, time.Hour)
	if _, err := s.IsRequestAllowed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty client id")
	}
}

func TestAdmissionRemaining(t *testing.T) {
	cases := []struct {
		count, limit, want int
	}{
		{0, 15, 15},
		{14, 15, 1},
		{15, 15, 0},
		{20, 15, 0},
	}
	for _, tc := range cases {
		a := &Admission{Count: tc.count, Limit: tc.limit}
		if got := a.Remaining(); got != tc.want {
			t.Errorf("Remaining(%d/%d) = %d, want %d", tc.count, tc.limit, got, tc.want)
		}
	}
}
