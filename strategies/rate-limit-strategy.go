package strategies

import (
	"context"
	"time"
)

type RateLimitStrategy interface {
	// IsRequestAllowed evaluates the client's quota without consuming it.
	IsRequestAllowed(ctx context.Context, clientId string) (*Admission, error)
	// Commit consumes one unit of quota for an admitted request.
	Commit(ctx context.Context, admission *Admission) error
	// RetryAfter returns how long a caller should wait before retrying.
	// If zero, the request can be retried immediately.
	RetryAfter(ctx context.Context, clientId string) (time.Duration, error)
}

// Admission is the outcome of a quota evaluation for one request.
type Admission struct {
	ClientId string
	Allowed  bool
	// Count is the number of requests already admitted in the window.
	Count       int
	Limit       int
	WindowStart time.Time
	ResetAt     time.Time
}

// Remaining reports how many requests are left in the window before the
// current one is consumed. A fresh window reports Limit.
func (a *Admission) Remaining() int {
	if a == nil || a.Count >= a.Limit {
		return 0
	}
	return a.Limit - a.Count
}
