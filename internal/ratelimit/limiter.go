// ABOUTME: Rate limit and run quota strategies checked before a session builds a runner
// ABOUTME: Strategy is chosen once from config: none or token_bucket, plus an optional monthly quota

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/appstream-gateway/internal/store"
)

// Strategy names accepted in config
const (
	StrategyNone        = "none"
	StrategyTokenBucket = "token_bucket"
)

const (
	defaultKeyTTL   = 10 * time.Minute
	defaultMaxKeys  = 10000
	defaultRequests = 5
	defaultBurst    = 10
)

var (
	// ErrUnknownStrategy is returned by New for an unrecognised strategy name
	ErrUnknownStrategy = errors.New("unknown rate limit strategy")

	// ErrRateLimited is reported when a caller exceeds its request rate
	ErrRateLimited = errors.New("rate limited")

	// ErrUsageLimited is reported when a caller has used up its run quota
	ErrUsageLimited = errors.New("usage limit reached")
)

// Limiter decides whether a caller may start work.
type Limiter interface {
	// IsRateLimited reports whether key (client IP or user) is over its request rate.
	IsRateLimited(ctx context.Context, key string) bool

	// IsUsageLimited reports whether principal has exhausted its run quota.
	IsUsageLimited(ctx context.Context, principal string) bool
}

// RunRecorder counts started runs toward the principal's quota.
type RunRecorder interface {
	RecordRun(ctx context.Context, principal string) error
}

// None never limits.
type None struct{}

func (None) IsRateLimited(context.Context, string) bool  { return false }
func (None) IsUsageLimited(context.Context, string) bool { return false }

// TokenBucket limits each key to a sustained rate with a burst allowance.
type TokenBucket struct {
	cache *limiterCache
}

// NewTokenBucket creates a per-key token bucket limiter.
func NewTokenBucket(requestsPerSecond float64, burst int) *TokenBucket {
	return &TokenBucket{
		cache: newLimiterCache(rate.Limit(requestsPerSecond), burst, defaultKeyTTL, defaultMaxKeys),
	}
}

func (t *TokenBucket) IsRateLimited(_ context.Context, key string) bool {
	return !t.cache.get(key).Allow()
}

func (t *TokenBucket) IsUsageLimited(context.Context, string) bool { return false }

// Close stops the idle key janitor.
func (t *TokenBucket) Close() {
	t.cache.close()
}

// Quota caps runs per principal per calendar month, backed by the usage store.
type Quota struct {
	usage  store.UsageStore
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// NewQuota creates a monthly run quota. A limit of 0 records usage but never limits.
func NewQuota(usage store.UsageStore, limit int, logger *slog.Logger) *Quota {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quota{
		usage:  usage,
		limit:  limit,
		now:    time.Now,
		logger: logger.With("component", "quota"),
	}
}

func (q *Quota) IsRateLimited(context.Context, string) bool { return false }

// IsUsageLimited fails open: a usage store error is logged and does not limit.
func (q *Quota) IsUsageLimited(ctx context.Context, principal string) bool {
	if q.limit <= 0 || principal == "" {
		return false
	}

	runs, err := q.usage.GetRunUsage(ctx, principal, store.UsagePeriod(q.now()))
	if err != nil {
		q.logger.Error("reading run usage", "principal", principal, "error", err)
		return false
	}
	return runs >= q.limit
}

// RecordRun adds one run to the principal's current month.
func (q *Quota) RecordRun(ctx context.Context, principal string) error {
	if principal == "" {
		return nil
	}
	if _, err := q.usage.IncrementRunUsage(ctx, principal, store.UsagePeriod(q.now())); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Options configures New.
type Options struct {
	Strategy          string
	RequestsPerSecond float64
	Burst             int
	MonthlyRunQuota   int
}

// Policy combines a rate strategy with an optional quota.
type Policy struct {
	rate  Limiter
	quota *Quota
}

// New builds the configured policy. usage may be nil, which disables quota
// checks and run recording.
func New(opts Options, usage store.UsageStore, logger *slog.Logger) (*Policy, error) {
	p := &Policy{}

	switch opts.Strategy {
	case "", StrategyNone:
		p.rate = None{}
	case StrategyTokenBucket:
		rps := opts.RequestsPerSecond
		if rps <= 0 {
			rps = defaultRequests
		}
		burst := opts.Burst
		if burst <= 0 {
			burst = defaultBurst
		}
		p.rate = NewTokenBucket(rps, burst)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}

	if usage != nil {
		p.quota = NewQuota(usage, opts.MonthlyRunQuota, logger)
	}

	return p, nil
}

func (p *Policy) IsRateLimited(ctx context.Context, key string) bool {
	return p.rate.IsRateLimited(ctx, key)
}

func (p *Policy) IsUsageLimited(ctx context.Context, principal string) bool {
	if p.quota == nil {
		return false
	}
	return p.quota.IsUsageLimited(ctx, principal)
}

func (p *Policy) RecordRun(ctx context.Context, principal string) error {
	if p.quota == nil {
		return nil
	}
	return p.quota.RecordRun(ctx, principal)
}

// Close releases background resources held by the rate strategy.
func (p *Policy) Close() {
	if tb, ok := p.rate.(*TokenBucket); ok {
		tb.Close()
	}
}

var (
	_ Limiter     = None{}
	_ Limiter     = (*TokenBucket)(nil)
	_ Limiter     = (*Quota)(nil)
	_ Limiter     = (*Policy)(nil)
	_ RunRecorder = (*Quota)(nil)
	_ RunRecorder = (*Policy)(nil)
)
