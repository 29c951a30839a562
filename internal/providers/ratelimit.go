package providers

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is used when a limiter is created with rpm <= 0.
const DefaultRequestsPerMinute = 150

// RateLimiter is a token bucket refilled continuously at rpm/60 tokens per
// second, holding at most rpm tokens.
type RateLimiter struct {
	mu sync.Mutex

	rpm        int
	tokens     float64
	lastUpdate time.Time

	consumed int64
	waited   time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &RateLimiter{
		rpm:        requestsPerMinute,
		tokens:     float64(requestsPerMinute),
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1.0 {
			r.tokens--
			r.consumed++
			r.mu.Unlock()
			return nil
		}
		wait := r.untilNextToken()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			r.mu.Lock()
			r.waited += wait
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking and reports whether it could.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens < 1.0 {
		return false
	}
	r.tokens--
	r.consumed++
	return true
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     r.rpm,
		TotalConsumed:   r.consumed,
		TotalWaited:     r.waited,
	}
}

// refill must be called with r.mu held.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens += now.Sub(r.lastUpdate).Seconds() * r.perSecond()
	r.lastUpdate = now
	if limit := float64(r.rpm); r.tokens > limit {
		r.tokens = limit
	}
}

// untilNextToken must be called with r.mu held.
func (r *RateLimiter) untilNextToken() time.Duration {
	return time.Duration((1.0 - r.tokens) / r.perSecond() * float64(time.Second))
}

func (r *RateLimiter) perSecond() float64 {
	return float64(r.rpm) / 60.0
}

// RateLimitedClient waits on a RateLimiter before every call to the wrapped
// client.
type RateLimitedClient struct {
	client  LLMClient
	limiter *RateLimiter
}

// NewRateLimitedClient wraps client with a limiter of rpm requests per minute.
func NewRateLimitedClient(client LLMClient, rpm int) *RateLimitedClient {
	return &RateLimitedClient{client: client, limiter: NewRateLimiter(rpm)}
}

// Name returns the wrapped client's name.
func (c *RateLimitedClient) Name() string {
	return c.client.Name()
}

// Unwrap returns the wrapped client.
func (c *RateLimitedClient) Unwrap() LLMClient {
	return c.client
}

// Limiter returns the limiter guarding the client.
func (c *RateLimitedClient) Limiter() *RateLimiter {
	return c.limiter
}

// Chat waits for a token, then forwards the request.
func (c *RateLimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.client.Chat(ctx, req)
}

var _ LLMClient = (*RateLimitedClient)(nil)
