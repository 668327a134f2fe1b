package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/harunnryd/hearth/pkg/resilience"
)

// RetryConfig tunes Retry. Zero values fall back to a single attempt with
// a 100ms base delay doubling up to 2s.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	IsRetryable func(error) bool
	// Sleep replaces the context-aware wait between attempts. Tests use it
	// to skip the delay.
	Sleep func(time.Duration)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	return cfg
}

// Retry calls fn until it succeeds, returns a non-retryable error or runs out
// of attempts. MaxAttempts of 1 disables retries and returns fn's error as is.
// A rate limit carrying a Retry-After hint waits that long, capped at MaxDelay.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (Response, error)) (Response, error) {
	cfg = cfg.withDefaults()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !cfg.IsRetryable(err) || attempt == cfg.MaxAttempts-1 {
			break
		}
		if err := cfg.wait(ctx, cfg.delay(err, attempt, r)); err != nil {
			return Response{}, err
		}
	}
	if cfg.MaxAttempts == 1 {
		return Response{}, lastErr
	}
	return Response{}, fmt.Errorf("llm retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func (cfg RetryConfig) delay(err error, attempt int, r *rand.Rand) time.Duration {
	var rl resilience.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return min(rl.RetryAfter, cfg.MaxDelay)
	}
	d := min(time.Duration(float64(cfg.BaseDelay)*math.Pow(2, float64(attempt))), cfg.MaxDelay)
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * r.Float64())
	}
	return d
}

func (cfg RetryConfig) wait(ctx context.Context, d time.Duration) error {
	if cfg.Sleep != nil {
		cfg.Sleep(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultIsRetryable retries rate limits, provider outages and network
// errors. Cancellation and everything else is final.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resilience.IsTransient(err) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// RetryAdapter applies Retry to every Generate call of inner.
type RetryAdapter struct {
	inner LLMAdapter
	cfg   RetryConfig
}

func NewRetryAdapter(inner LLMAdapter, cfg RetryConfig) *RetryAdapter {
	return &RetryAdapter{inner: inner, cfg: cfg}
}

func (a *RetryAdapter) Name() string { return a.inner.Name() }

func (a *RetryAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	return Retry(ctx, a.cfg, func(ctx context.Context) (Response, error) {
		return a.inner.Generate(ctx, input)
	})
}

func (a *RetryAdapter) MapTools(tools []Tool) (any, error) {
	return a.inner.MapTools(tools)
}

func (a *RetryAdapter) ToProviderFormat(ctx Context) (any, error) {
	return a.inner.ToProviderFormat(ctx)
}

func (a *RetryAdapter) FromProviderFormat(raw any) (Response, error) {
	return a.inner.FromProviderFormat(raw)
}
