// Package resilience classifies provider failures and trips a breaker when a
// provider keeps refusing requests.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError represents a provider rate limit response.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// UnavailableError is a 5xx or connection-level failure of a provider.
type UnavailableError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e UnavailableError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "provider unavailable"
}

// IsUnavailable returns true when the error is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue UnavailableError
	return errors.As(err, &ue)
}

// IsTransient reports whether a retry could plausibly succeed.
func IsTransient(err error) bool {
	return IsRateLimit(err) || IsUnavailable(err)
}

// CircuitBreaker blocks requests after repeated transient failures.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.now().Before(c.openUntil)
}

// OnSuccess closes the breaker. It reports whether the breaker had tripped.
func (c *CircuitBreaker) OnSuccess() (recovered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	recovered = c.failures >= c.threshold
	c.failures = 0
	c.openUntil = time.Time{}
	return recovered
}

// OnError counts rate-limit and unavailable errors; anything else (bad
// request, auth) says nothing about provider health and is ignored. It
// reports whether this error tripped the breaker.
func (c *CircuitBreaker) OnError(err error) (tripped bool) {
	if !IsTransient(err) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures < c.threshold {
		return false
	}
	c.openUntil = c.now().Add(c.cooldown)
	return true
}
