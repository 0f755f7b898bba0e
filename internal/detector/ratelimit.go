package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/relayout/internal/types"
)

// RateLimiter is a token bucket refilled continuously over a one-minute
// window.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	windowSeconds     float64

	tokens     float64
	lastUpdate time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter allowing requestsPerMinute calls, starting
// with a full bucket.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		windowSeconds:     60.0,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}
		waitTime := r.untilToken()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking and reports whether it did.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1.0 {
		r.tokens--
		r.totalConsumed++
		return true
	}
	return false
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	var until time.Duration
	if r.tokens < 1.0 {
		until = r.untilToken()
	}
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     r.requestsPerMinute,
		TimeUntilToken:  until,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
	}
}

// refill adds tokens for the elapsed time. Must be called with lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.rate()
	if r.tokens > float64(r.requestsPerMinute) {
		r.tokens = float64(r.requestsPerMinute)
	}
}

// untilToken must be called with lock held.
func (r *RateLimiter) untilToken() time.Duration {
	needed := 1.0 - r.tokens
	return time.Duration(needed / r.rate() * float64(time.Second))
}

func (r *RateLimiter) rate() float64 {
	return float64(r.requestsPerMinute) / r.windowSeconds
}

// Throttled spaces Detect calls to the wrapped detector by a RateLimiter.
type Throttled struct {
	Detector
	limiter *RateLimiter
}

// Throttle wraps d so it is called at most requestsPerMinute times a minute.
func Throttle(d Detector, requestsPerMinute int) *Throttled {
	return &Throttled{Detector: d, limiter: NewRateLimiter(requestsPerMinute)}
}

// Detect waits for a token, then delegates.
func (t *Throttled) Detect(ctx context.Context, image []byte) ([]types.Region, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for detector rate limit: %w", err)
	}
	return t.Detector.Detect(ctx, image)
}

// RateLimit returns the limiter's current state.
func (t *Throttled) RateLimit() RateLimiterStatus {
	return t.limiter.Status()
}

var _ Detector = (*Throttled)(nil)
