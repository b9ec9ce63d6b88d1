package strategies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabisonia/fiber-chat-proxy/store"
)

type FixedWindowStrategy struct {
	Limit      int
	WindowSize time.Duration
	KeyPrefix  string
	store      store.Store
	now        func() time.Time
}

// NewFixedWindowStrategy creates a new Fixed Window rate limiting strategy.
//
// Parameters:
//   - limit: maximum number of admitted requests per window.
//   - windowSize: duration of the fixed time window.
//   - backend: shared store holding one record per client.
//
// Returns:
//   - *FixedWindowStrategy: a pointer to a new instance of the strategy.
//
// The window is anchored to the first admitted request of a client rather
// than to calendar boundaries, so a burst straddling the end of one window
// and the start of the next can see up to 2*limit requests.
//
// Evaluation and Commit are separate store round trips and are not atomic.
// Two concurrent requests from the same client can read the same count and
// both be admitted; the later write wins. The limiter is best-effort.
func NewFixedWindowStrategy(limit int, windowSize time.Duration, backend store.Store) *FixedWindowStrategy {
	return &FixedWindowStrategy{
		Limit:      limit,
		WindowSize: windowSize,
		KeyPrefix:  store.DefaultKeyPrefix,
		store:      backend,
		now:        time.Now,
	}
}

// WithClock replaces the strategy's time source.
func (strategy *FixedWindowStrategy) WithClock(now func() time.Time) *FixedWindowStrategy {
	strategy.now = now
	return strategy
}

func (strategy *FixedWindowStrategy) IsRequestAllowed(ctx context.Context, clientId string) (*Admission, error) {
	if clientId == "" {
		return nil, errors.New("client id is required")
	}

	now := strategy.now()
	record, err := strategy.current(ctx, clientId, now)
	if err != nil {
		return nil, err
	}

	return &Admission{
		ClientId:    clientId,
		Allowed:     record.Count < strategy.Limit,
		Count:       record.Count,
		Limit:       strategy.Limit,
		WindowStart: record.WindowStart,
		ResetAt:     record.WindowStart.Add(strategy.WindowSize),
	}, nil
}

// Commit persists count+1 for an admitted request and re-arms the record's
// expiry to a full window from now.
func (strategy *FixedWindowStrategy) Commit(ctx context.Context, admission *Admission) error {
	if admission == nil || !admission.Allowed {
		return errors.New("cannot commit a rejected request")
	}

	record := store.Record{Count: admission.Count + 1, WindowStart: admission.WindowStart}
	key := store.Key(strategy.KeyPrefix, admission.ClientId)
	if err := strategy.store.Set(ctx, key, record, strategy.WindowSize); err != nil {
		return fmt.Errorf("persist rate limit record: %w", err)
	}
	return nil
}

// RetryAfter returns the remaining time in the current window when the
// client is over its limit, and zero otherwise.
func (strategy *FixedWindowStrategy) RetryAfter(ctx context.Context, clientId string) (time.Duration, error) {
	now := strategy.now()
	record, err := strategy.current(ctx, clientId, now)
	if err != nil {
		return 0, err
	}
	if record.Count < strategy.Limit {
		return 0, nil
	}

	windowEnd := record.WindowStart.Add(strategy.WindowSize)
	if now.After(windowEnd) {
		return 0, nil
	}
	return windowEnd.Sub(now), nil
}

// current loads the client's record, treating a missing or stale one as a
// fresh window starting at now.
func (strategy *FixedWindowStrategy) current(ctx context.Context, clientId string, now time.Time) (store.Record, error) {
	key := store.Key(strategy.KeyPrefix, clientId)
	record, err := strategy.store.Get(ctx, key)
	if err != nil {
		return store.Record{}, fmt.Errorf("load rate limit record: %w", err)
	}

	if record == nil || now.Sub(record.WindowStart) > strategy.WindowSize {
		return store.Record{Count: 0, WindowStart: now}, nil
	}
	return *record, nil
}
